package source

import (
	"context"
	"encoding/json"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/ontolab/graphweave/pkg/common"
)

// ChunkSource supplies the corpus in pages so the pipeline never holds
// more than one page of raw chunk text at a time. Implementations must
// return chunks in a stable order for a given corpus state.
type ChunkSource interface {
	FetchPage(ctx context.Context, offset, limit int) ([]common.Chunk, error)
}

type pgxIConn interface {
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
}

// PostgresChunkSource reads stored document chunks and their embeddings
// from the relational store managed by the ingestion collaborator.
type PostgresChunkSource struct {
	conn pgxIConn
}

// NewPostgresChunkSource creates a chunk source over an existing
// connection or pool.
func NewPostgresChunkSource(conn pgxIConn) *PostgresChunkSource {
	return &PostgresChunkSource{conn: conn}
}

// FetchPage returns one page of chunks ordered by chunk id. Chunks
// without a stored embedding are returned with a nil embedding.
func (s *PostgresChunkSource) FetchPage(ctx context.Context, offset, limit int) ([]common.Chunk, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT
			dc.id,
			dc.text_content,
			dc.source_metadata,
			ce.embedding_vector
		FROM
			document_chunks dc
		LEFT JOIN
			chunk_embeddings ce ON dc.id = ce.chunk_id
		ORDER BY dc.id
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk page: %w", err)
	}
	defer rows.Close()

	var chunks []common.Chunk
	for rows.Next() {
		var (
			chunk    common.Chunk
			metadata []byte
			vec      *pgvector.Vector
		)
		if err := rows.Scan(&chunk.ID, &chunk.Text, &metadata, &vec); err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}

		if len(metadata) > 0 {
			chunk.Metadata = decodeMetadata(metadata)
		}
		if vec != nil {
			chunk.Embedding = vec.Slice()
		}

		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunk rows: %w", err)
	}

	return chunks, nil
}

// decodeMetadata keeps the string-valued fields of the metadata blob.
// Metadata is advisory; a malformed blob never loses the chunk.
func decodeMetadata(raw []byte) map[string]string {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil
	}
	out := make(map[string]string, len(generic))
	for k, v := range generic {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
