package graph

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ontolab/graphweave/pkg/common"
	"github.com/ontolab/graphweave/pkg/extract"
	"github.com/ontolab/graphweave/pkg/logger"
	"github.com/ontolab/graphweave/pkg/source"
	"github.com/ontolab/graphweave/pkg/store"
)

// Mention edge weights. Named-entity mentions outweigh mentions that only
// surface as a triple endpoint; when both occur on the same pair the
// higher weight wins.
const (
	MentionWeightNamed   = 1.0
	MentionWeightDerived = 0.5
)

const (
	defaultPageSize        = 50
	defaultExtractParallel = 4
	defaultCheckpointEvery = 5
)

// ChunkExtractor extracts entities and triples from one chunk.
type ChunkExtractor interface {
	ExtractChunk(ctx context.Context, chunk common.Chunk) (*extract.Result, error)
}

// TripleCanonicalizer rewrites triple endpoints onto canonical surfaces.
type TripleCanonicalizer interface {
	CanonicalizeTriples(ctx context.Context, triples []common.Triple) []common.Triple
}

// BuildParams configures a streaming graph build.
type BuildParams struct {
	Source        source.ChunkSource
	Extractor     ChunkExtractor
	Canonicalizer TripleCanonicalizer
	// Storage is optional; without it the build is in-memory only.
	Storage store.RunStorage

	// PageSize bounds how many chunks are resident at once.
	PageSize int
	// ExtractParallel bounds concurrent oracle extractions within a page.
	ExtractParallel int
	// CheckpointEvery is the checkpoint cadence in pages.
	CheckpointEvery int
}

// Build streams chunks page by page and folds them into a graph. Within a
// page, extraction runs concurrently and read-only; all graph mutation
// happens on the calling goroutine afterwards. A chunk whose extraction
// fails contributes nothing beyond its own node. Triples are written
// through to storage per chunk, and the accumulated node and edge lists
// are checkpointed every CheckpointEvery pages and once at the end.
func Build(ctx context.Context, params BuildParams) (*Builder, error) {
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	parallel := params.ExtractParallel
	if parallel <= 0 {
		parallel = defaultExtractParallel
	}
	checkpointEvery := params.CheckpointEvery
	if checkpointEvery <= 0 {
		checkpointEvery = defaultCheckpointEvery
	}

	b := NewBuilder()
	offset := 0
	pages := 0

	for {
		chunks, err := params.Source.FetchPage(ctx, offset, pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch chunk page at offset %d: %w", offset, err)
		}
		if len(chunks) == 0 {
			break
		}

		results := make([]*extract.Result, len(chunks))
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(parallel)
		for i, chunk := range chunks {
			eg.Go(func() error {
				res, err := params.Extractor.ExtractChunk(egCtx, chunk)
				if err != nil {
					logger.Warn("[Graph] Extraction failed, chunk contributes no entities", "chunk", chunk.ID, "error", err)
					return nil
				}
				results[i] = res
				return nil
			})
		}
		_ = eg.Wait()
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageTriples := make([]common.Triple, 0)
		for i, chunk := range chunks {
			b.AddChunk(chunk)
			res := results[i]
			if res == nil {
				continue
			}
			for entityType, surfaces := range res.Entities {
				for _, surface := range surfaces {
					entityNodeID := b.AddEntity(entityType, surface)
					b.AddMention(chunk.ID, entityNodeID, MentionWeightNamed)
				}
			}
			pageTriples = append(pageTriples, res.Triples...)
		}

		canon := pageTriples
		if params.Canonicalizer != nil {
			canon = params.Canonicalizer.CanonicalizeTriples(ctx, pageTriples)
		}

		byChunk := make(map[int64][]common.Triple)
		for _, t := range canon {
			subjectID := b.AddTripleEntity(t.Subject)
			objectID := b.AddTripleEntity(t.Object)
			b.AddRelation(subjectID, objectID, t.Relation)
			b.AddMention(t.ChunkID, subjectID, MentionWeightDerived)
			b.AddMention(t.ChunkID, objectID, MentionWeightDerived)
			byChunk[t.ChunkID] = append(byChunk[t.ChunkID], t)
		}

		if params.Storage != nil {
			for _, chunk := range chunks {
				chunkTriples := byChunk[chunk.ID]
				if len(chunkTriples) == 0 {
					continue
				}
				if err := params.Storage.SaveTriples(ctx, chunk.ID, chunkTriples); err != nil {
					return nil, fmt.Errorf("failed to persist triples for chunk %d: %w", chunk.ID, err)
				}
			}
		}

		pages++
		if params.Storage != nil && pages%checkpointEvery == 0 {
			if err := params.Storage.Checkpoint(ctx, b.Nodes(), b.Edges()); err != nil {
				return nil, fmt.Errorf("failed to checkpoint after page %d: %w", pages, err)
			}
		}

		logger.Debug("[Graph] Page folded in", "page", pages, "chunks", len(chunks), "nodes", b.NodeCount(), "edges", b.EdgeCount())

		offset += len(chunks)
		if len(chunks) < pageSize {
			break
		}
	}

	if params.Storage != nil && b.NodeCount() > 0 {
		if err := params.Storage.Checkpoint(ctx, b.Nodes(), b.Edges()); err != nil {
			return nil, fmt.Errorf("failed to write final checkpoint: %w", err)
		}
	}

	return b, nil
}
