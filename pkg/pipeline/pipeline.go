package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/ontolab/graphweave/pkg/common"
	"github.com/ontolab/graphweave/pkg/community"
	"github.com/ontolab/graphweave/pkg/graph"
	"github.com/ontolab/graphweave/pkg/logger"
	"github.com/ontolab/graphweave/pkg/source"
	"github.com/ontolab/graphweave/pkg/store"
	"github.com/ontolab/graphweave/pkg/summarize"
)

// ErrNoChunks signals that the chunk store was empty and no run output was
// produced.
var ErrNoChunks = errors.New("chunk store is empty")

// StorageFactory creates run-scoped storage. Called once per run so every
// run writes into its own namespace before the latest pointer moves.
type StorageFactory func(runID string, ts time.Time) (store.RunStorage, error)

// ProcessorParams wires a Processor.
type ProcessorParams struct {
	Source         source.ChunkSource
	Extractor      graph.ChunkExtractor
	Canonicalizer  graph.TripleCanonicalizer
	Summarizer     *summarize.Summarizer
	StorageFactory StorageFactory
	// Detectors defaults to the standard chain when empty.
	Detectors []community.Detector

	PageSize        int
	ExtractParallel int
	CheckpointEvery int
	// Interval is the pause between loop iterations.
	Interval time.Duration
}

// Processor runs the full chunk-to-summaries pipeline. Runs never overlap:
// the loop starts the next run only after the previous one finished.
type Processor struct {
	params ProcessorParams
}

func NewProcessor(params ProcessorParams) *Processor {
	if len(params.Detectors) == 0 {
		params.Detectors = community.DefaultDetectors()
	}
	if params.Interval <= 0 {
		params.Interval = time.Hour
	}
	return &Processor{params: params}
}

// RunOnce executes one complete run: build the graph from all chunks,
// detect and summarize communities, and commit the run. Returns
// ErrNoChunks when the source has nothing to process.
func (p *Processor) RunOnce(ctx context.Context) (common.RunManifest, error) {
	runID, err := gonanoid.New()
	if err != nil {
		return common.RunManifest{}, fmt.Errorf("failed to generate run id: %w", err)
	}
	ts := time.Now().UTC()
	logger.Info("[Pipeline] Run starting", "run", runID)

	storage, err := p.params.StorageFactory(runID, ts)
	if err != nil {
		return common.RunManifest{}, fmt.Errorf("failed to create run storage: %w", err)
	}
	counted := &countingStorage{RunStorage: storage}

	b, err := graph.Build(ctx, graph.BuildParams{
		Source:          p.params.Source,
		Extractor:       p.params.Extractor,
		Canonicalizer:   p.params.Canonicalizer,
		Storage:         counted,
		PageSize:        p.params.PageSize,
		ExtractParallel: p.params.ExtractParallel,
		CheckpointEvery: p.params.CheckpointEvery,
	})
	if err != nil {
		return common.RunManifest{}, fmt.Errorf("graph build failed: %w", err)
	}
	if b.NodeCount() == 0 {
		logger.Info("[Pipeline] No chunks to process", "run", runID)
		return common.RunManifest{}, ErrNoChunks
	}

	partition := community.DetectWithFallback(b, p.params.Detectors...)
	communities := community.BuildCommunities(b, partition, community.MinEntityNodes)
	logger.Info("[Pipeline] Communities detected",
		"run", runID, "communities", len(communities), "nodes", b.NodeCount(), "edges", b.EdgeCount())

	summaries := p.params.Summarizer.SummarizeCommunities(ctx, b, communities)
	if err := counted.SaveSummaries(ctx, summaries); err != nil {
		return common.RunManifest{}, fmt.Errorf("failed to persist summaries: %w", err)
	}

	manifest := common.RunManifest{
		RunID:     runID,
		Timestamp: ts,
		Counts: common.RunCounts{
			Nodes:       b.NodeCount(),
			Edges:       b.EdgeCount(),
			Triples:     counted.triples,
			Communities: len(communities),
		},
	}
	manifest, err = counted.CommitRun(ctx, manifest)
	if err != nil {
		return common.RunManifest{}, fmt.Errorf("failed to commit run: %w", err)
	}

	logger.Info("[Pipeline] Run committed",
		"run", runID,
		"nodes", manifest.Counts.Nodes,
		"edges", manifest.Counts.Edges,
		"triples", manifest.Counts.Triples,
		"communities", manifest.Counts.Communities,
	)
	return manifest, nil
}

// RunLoop repeats RunOnce with the configured pause until ctx is done. Run
// failures are logged and the loop continues with the next interval.
func (p *Processor) RunLoop(ctx context.Context) {
	for {
		if _, err := p.RunOnce(ctx); err != nil && !errors.Is(err, ErrNoChunks) {
			if ctx.Err() != nil {
				return
			}
			logger.Error("[Pipeline] Run failed", "error", err)
		}

		logger.Info("[Pipeline] Sleeping until next run", "interval", p.params.Interval)
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.params.Interval):
		}
	}
}

// countingStorage tallies persisted triples so the manifest can report
// them without the builder holding triples in memory.
type countingStorage struct {
	store.RunStorage
	triples int
}

func (c *countingStorage) SaveTriples(ctx context.Context, chunkID int64, triples []common.Triple) error {
	if err := c.RunStorage.SaveTriples(ctx, chunkID, triples); err != nil {
		return err
	}
	c.triples += len(triples)
	return nil
}
