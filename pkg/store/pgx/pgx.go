package pgx

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ontolab/graphweave/internal/util"
	"github.com/ontolab/graphweave/pkg/common"
	"github.com/ontolab/graphweave/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// Migrate applies the embedded schema migrations against databaseURL.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// RunDBStorage implements store.RunStorage on PostgreSQL. All run output
// is keyed by run ID; the graph_latest pointer row is only moved inside
// the commit transaction.
type RunDBStorage struct {
	conn  pgxIConn
	runID string
	runTS time.Time
}

// NewRunDBStorage registers the run row and returns storage scoped to it.
func NewRunDBStorage(ctx context.Context, conn pgxIConn, runID string, ts time.Time) (*RunDBStorage, error) {
	_, err := conn.Exec(ctx,
		`INSERT INTO graph_runs (run_id, run_ts) VALUES ($1, $2) ON CONFLICT (run_id) DO NOTHING`,
		runID, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register run %s: %w", runID, err)
	}
	return &RunDBStorage{conn: conn, runID: runID, runTS: ts}, nil
}

// SaveTriples writes one chunk's triples. Re-saving the same chunk is a
// no-op per triple, so retried chunks do not duplicate rows.
func (s *RunDBStorage) SaveTriples(ctx context.Context, chunkID int64, triples []common.Triple) error {
	if len(triples) == 0 {
		return nil
	}

	batch := &pgxv5.Batch{}
	for _, t := range triples {
		batch.Queue(
			`INSERT INTO graph_triples (run_id, chunk_id, subject, relation, object)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT DO NOTHING`,
			s.runID, chunkID,
			util.SanitizePostgresText(t.Subject),
			util.SanitizePostgresText(t.Relation),
			util.SanitizePostgresText(t.Object),
		)
	}
	if err := s.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to persist triples for chunk %d: %w", chunkID, err)
	}
	return nil
}

// Checkpoint replaces the run's node and edge rows with the current graph
// state in one transaction.
func (s *RunDBStorage) Checkpoint(ctx context.Context, nodes []common.Node, edges []common.Edge) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin checkpoint transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM graph_nodes WHERE run_id = $1`, s.runID); err != nil {
		return fmt.Errorf("failed to clear checkpoint nodes: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM graph_edges WHERE run_id = $1`, s.runID); err != nil {
		return fmt.Errorf("failed to clear checkpoint edges: %w", err)
	}

	nodeRows := make([][]any, len(nodes))
	for i, n := range nodes {
		nodeRows[i] = []any{s.runID, n.ID, n.Type, n.EntityType, util.SanitizePostgresText(n.Text), n.Source}
	}
	_, err = tx.CopyFrom(ctx,
		pgxv5.Identifier{"graph_nodes"},
		[]string{"run_id", "node_id", "node_type", "entity_type", "text_content", "source"},
		pgxv5.CopyFromRows(nodeRows),
	)
	if err != nil {
		return fmt.Errorf("failed to write checkpoint nodes: %w", err)
	}

	edgeRows := make([][]any, len(edges))
	for i, e := range edges {
		edgeRows[i] = []any{s.runID, e.Source, e.Target, util.SanitizePostgresText(e.Relation), e.Weight}
	}
	_, err = tx.CopyFrom(ctx,
		pgxv5.Identifier{"graph_edges"},
		[]string{"run_id", "source", "target", "relation", "weight"},
		pgxv5.CopyFromRows(edgeRows),
	)
	if err != nil {
		return fmt.Errorf("failed to write checkpoint edges: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	logger.Debug("[Store] Checkpoint written", "run", s.runID, "nodes", len(nodes), "edges", len(edges))
	return nil
}

// SaveSummaries replaces the run's community summaries.
func (s *RunDBStorage) SaveSummaries(ctx context.Context, summaries []common.CommunitySummary) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin summary transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM community_summaries WHERE run_id = $1`, s.runID); err != nil {
		return fmt.Errorf("failed to clear summaries: %w", err)
	}
	for _, summary := range summaries {
		entities, err := json.Marshal(summary.Entities)
		if err != nil {
			return fmt.Errorf("failed to encode summary entities: %w", err)
		}
		relations, err := json.Marshal(summary.KeyRelations)
		if err != nil {
			return fmt.Errorf("failed to encode summary relations: %w", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO community_summaries
			     (run_id, community_id, summary, entities, key_relations, num_entities, num_chunks)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			s.runID, summary.CommunityID, util.SanitizePostgresText(summary.Summary),
			entities, relations, summary.NumEntities, summary.NumChunks,
		)
		if err != nil {
			return fmt.Errorf("failed to write summary for community %d: %w", summary.CommunityID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit summaries: %w", err)
	}
	return nil
}

// CommitRun marks the run completed and moves the latest pointer to it,
// both in one transaction.
func (s *RunDBStorage) CommitRun(ctx context.Context, manifest common.RunManifest) (common.RunManifest, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return manifest, fmt.Errorf("failed to begin commit transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE graph_runs
		 SET completed = TRUE, committed_at = NOW(),
		     num_nodes = $2, num_edges = $3, num_triples = $4, num_communities = $5
		 WHERE run_id = $1`,
		s.runID,
		manifest.Counts.Nodes, manifest.Counts.Edges,
		manifest.Counts.Triples, manifest.Counts.Communities,
	)
	if err != nil {
		return manifest, fmt.Errorf("failed to mark run completed: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO graph_latest (singleton, run_id) VALUES (TRUE, $1)
		 ON CONFLICT (singleton) DO UPDATE SET run_id = EXCLUDED.run_id`,
		s.runID,
	)
	if err != nil {
		return manifest, fmt.Errorf("failed to move latest pointer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return manifest, fmt.Errorf("failed to commit run: %w", err)
	}

	manifest.Artifacts = map[string]string{
		"nodes":     "graph_nodes",
		"edges":     "graph_edges",
		"summaries": "community_summaries",
		"triples":   "graph_triples",
	}
	return manifest, nil
}

func (s *RunDBStorage) sendBatch(ctx context.Context, batch *pgxv5.Batch) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	res := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := res.Exec(); err != nil {
			res.Close()
			return err
		}
	}
	if err := res.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
