package file

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ontolab/graphweave/pkg/common"
	"github.com/ontolab/graphweave/pkg/logger"
)

const timestampLayout = "20060102_150405"

// RunFileStorage implements store.RunStorage on flat files in an output
// directory: CSV node and edge lists, JSONL summaries and triples, and a
// small latest_refs.json pointer. The pointer is replaced with a
// write-then-rename so readers never observe a partially written run.
type RunFileStorage struct {
	dir   string
	runID string
	stamp string

	edgesFile     string
	nodesFile     string
	summariesFile string
	triplesFile   string

	triples *os.File
}

// NewRunFileStorage creates file storage for one run. The triples file is
// opened immediately in append mode so write-through persists per chunk.
func NewRunFileStorage(dir, runID string, ts time.Time) (*RunFileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	stamp := ts.Format(timestampLayout)
	s := &RunFileStorage{
		dir:   dir,
		runID: runID,
		stamp: stamp,

		edgesFile:     filepath.Join(dir, fmt.Sprintf("graph_edges_%s.csv", stamp)),
		nodesFile:     filepath.Join(dir, fmt.Sprintf("graph_nodes_%s.csv", stamp)),
		summariesFile: filepath.Join(dir, fmt.Sprintf("summaries_%s.jsonl", stamp)),
		triplesFile:   filepath.Join(dir, fmt.Sprintf("triples_%s.jsonl", stamp)),
	}

	f, err := os.OpenFile(s.triplesFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open triples file: %w", err)
	}
	s.triples = f

	return s, nil
}

// SaveTriples appends one chunk's triples to the run's triples file and
// syncs, so a crash loses at most the current chunk.
func (s *RunFileStorage) SaveTriples(ctx context.Context, chunkID int64, triples []common.Triple) error {
	if len(triples) == 0 {
		return nil
	}

	enc := json.NewEncoder(s.triples)
	for _, t := range triples {
		if err := enc.Encode(t); err != nil {
			return fmt.Errorf("failed to append triple for chunk %d: %w", chunkID, err)
		}
	}
	if err := s.triples.Sync(); err != nil {
		return fmt.Errorf("failed to sync triples file: %w", err)
	}
	return nil
}

// Checkpoint replaces the run's node and edge CSVs with the current graph
// state. Each file is written to a temp name and renamed, so a checkpoint
// interrupted mid-write leaves the previous checkpoint intact.
func (s *RunFileStorage) Checkpoint(ctx context.Context, nodes []common.Node, edges []common.Edge) error {
	if err := s.writeNodesCSV(nodes); err != nil {
		return err
	}
	if err := s.writeEdgesCSV(edges); err != nil {
		return err
	}
	logger.Debug("[Store] Checkpoint written", "nodes", len(nodes), "edges", len(edges))
	return nil
}

func (s *RunFileStorage) writeNodesCSV(nodes []common.Node) error {
	return writeAtomic(s.nodesFile, func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write([]string{"id", "type", "entity_type", "text", "source"}); err != nil {
			return err
		}
		for _, n := range nodes {
			if err := w.Write([]string{n.ID, n.Type, n.EntityType, n.Text, n.Source}); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	})
}

func (s *RunFileStorage) writeEdgesCSV(edges []common.Edge) error {
	return writeAtomic(s.edgesFile, func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write([]string{"source", "target", "weight", "relation", "source_type", "target_type"}); err != nil {
			return err
		}
		for _, e := range edges {
			weight := strconv.FormatFloat(e.Weight, 'g', -1, 64)
			if err := w.Write([]string{e.Source, e.Target, weight, e.Relation, nodeTypeOf(e.Source), nodeTypeOf(e.Target)}); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	})
}

// SaveSummaries writes JSONL summaries, one object per line.
func (s *RunFileStorage) SaveSummaries(ctx context.Context, summaries []common.CommunitySummary) error {
	return writeAtomic(s.summariesFile, func(f *os.File) error {
		enc := json.NewEncoder(f)
		for _, summary := range summaries {
			if err := enc.Encode(summary); err != nil {
				return err
			}
		}
		return nil
	})
}

// CommitRun closes the triples stream and atomically replaces
// latest_refs.json with the new run's pointer. This is the only step
// that makes the run visible as "latest".
func (s *RunFileStorage) CommitRun(ctx context.Context, manifest common.RunManifest) (common.RunManifest, error) {
	if s.triples != nil {
		if err := s.triples.Close(); err != nil {
			return manifest, fmt.Errorf("failed to close triples file: %w", err)
		}
		s.triples = nil
	}

	manifest.Artifacts = map[string]string{
		"edges":     s.edgesFile,
		"nodes":     s.nodesFile,
		"summaries": s.summariesFile,
		"triples":   s.triplesFile,
	}

	pointer := struct {
		Edges     string           `json:"edges"`
		Nodes     string           `json:"nodes"`
		Summaries string           `json:"summaries"`
		Triples   string           `json:"triples"`
		Timestamp string           `json:"timestamp"`
		RunID     string           `json:"run_id"`
		Counts    common.RunCounts `json:"counts"`
	}{
		Edges:     s.edgesFile,
		Nodes:     s.nodesFile,
		Summaries: s.summariesFile,
		Triples:   s.triplesFile,
		Timestamp: s.stamp,
		RunID:     manifest.RunID,
		Counts:    manifest.Counts,
	}

	err := writeAtomic(filepath.Join(s.dir, "latest_refs.json"), func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(pointer)
	})
	if err != nil {
		return manifest, fmt.Errorf("failed to write latest pointer: %w", err)
	}

	return manifest, nil
}

// writeAtomic writes into a temp file in the target's directory, syncs,
// then renames over the target.
func writeAtomic(path string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func nodeTypeOf(nodeID string) string {
	if len(nodeID) > 6 && nodeID[:6] == "chunk_" {
		return common.NodeTypeChunk
	}
	return common.NodeTypeEntity
}
