package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ontolab/graphweave/internal/util"
	"github.com/ontolab/graphweave/pkg/common"
	"github.com/ontolab/graphweave/pkg/community"
	"github.com/ontolab/graphweave/pkg/extract"
	"github.com/ontolab/graphweave/pkg/store"
	"github.com/ontolab/graphweave/pkg/summarize"
)

type memorySource struct {
	chunks []common.Chunk
}

func (m *memorySource) FetchPage(ctx context.Context, offset, limit int) ([]common.Chunk, error) {
	if offset >= len(m.chunks) {
		return nil, nil
	}
	end := util.Min(offset+limit, len(m.chunks))
	return m.chunks[offset:end], nil
}

type cannedExtractor struct {
	results map[int64]*extract.Result
}

func (c *cannedExtractor) ExtractChunk(ctx context.Context, chunk common.Chunk) (*extract.Result, error) {
	if res, ok := c.results[chunk.ID]; ok {
		return res, nil
	}
	return &extract.Result{Entities: map[string][]string{}}, nil
}

type identityCanonicalizer struct{}

func (identityCanonicalizer) CanonicalizeTriples(ctx context.Context, triples []common.Triple) []common.Triple {
	return triples
}

// memoryStorage records the order of storage operations.
type memoryStorage struct {
	events    []string
	triples   int
	summaries []common.CommunitySummary
	committed bool
}

func (m *memoryStorage) SaveTriples(ctx context.Context, chunkID int64, triples []common.Triple) error {
	m.events = append(m.events, "triples")
	m.triples += len(triples)
	return nil
}

func (m *memoryStorage) Checkpoint(ctx context.Context, nodes []common.Node, edges []common.Edge) error {
	m.events = append(m.events, "checkpoint")
	return nil
}

func (m *memoryStorage) SaveSummaries(ctx context.Context, summaries []common.CommunitySummary) error {
	m.events = append(m.events, "summaries")
	m.summaries = summaries
	return nil
}

func (m *memoryStorage) CommitRun(ctx context.Context, manifest common.RunManifest) (common.RunManifest, error) {
	m.events = append(m.events, "commit")
	m.committed = true
	return manifest, nil
}

func testProcessor(storage *memoryStorage, chunks []common.Chunk, results map[int64]*extract.Result) *Processor {
	return NewProcessor(ProcessorParams{
		Source:        &memorySource{chunks: chunks},
		Extractor:     &cannedExtractor{results: results},
		Canonicalizer: identityCanonicalizer{},
		Summarizer:    summarize.NewSummarizer(summarize.NewSummarizerParams{}),
		StorageFactory: func(runID string, ts time.Time) (store.RunStorage, error) {
			return storage, nil
		},
		// the trivial partition keeps community counts deterministic
		Detectors: []community.Detector{community.SingleCommunityDetector{}},
		Interval:  time.Minute,
	})
}

func TestRunOnce_EndToEnd(t *testing.T) {
	chunks := []common.Chunk{{ID: 1, Text: "Alice and Bob founded the lab in Geneva."}}
	results := map[int64]*extract.Result{
		1: {
			Entities: map[string][]string{
				"PERSON":   {"Alice", "Bob"},
				"LOCATION": {"Geneva"},
			},
			Triples: []common.Triple{
				{Subject: "Alice", Relation: "founded", Object: "the lab", ChunkID: 1},
				{Subject: "the lab", Relation: "located in", Object: "Geneva", ChunkID: 1},
			},
		},
	}
	storage := &memoryStorage{}

	manifest, err := testProcessor(storage, chunks, results).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if manifest.RunID == "" {
		t.Fatal("expected a run id")
	}
	if manifest.Counts.Triples != 2 {
		t.Fatalf("expected 2 triples counted, got %d", manifest.Counts.Triples)
	}
	if manifest.Counts.Nodes == 0 || manifest.Counts.Edges == 0 {
		t.Fatalf("expected nodes and edges, got %+v", manifest.Counts)
	}
	if manifest.Counts.Communities != 1 {
		t.Fatalf("expected one community, got %d", manifest.Counts.Communities)
	}
	if !storage.committed {
		t.Fatal("run was not committed")
	}

	// summaries must land before the commit, and the commit must be last
	last := storage.events[len(storage.events)-1]
	if last != "commit" {
		t.Fatalf("commit must be the final storage operation, got %v", storage.events)
	}
	sawSummaries := false
	for _, e := range storage.events[:len(storage.events)-1] {
		if e == "summaries" {
			sawSummaries = true
		}
	}
	if !sawSummaries {
		t.Fatalf("summaries never saved before commit: %v", storage.events)
	}

	// templated summaries since no generation oracle is wired
	if len(storage.summaries) != manifest.Counts.Communities {
		t.Fatalf("expected %d summaries, got %d", manifest.Counts.Communities, len(storage.summaries))
	}
	for _, s := range storage.summaries {
		if !strings.HasPrefix(s.Summary, "Community of ") {
			t.Fatalf("unexpected summary %q", s.Summary)
		}
	}
}

func TestRunOnce_EmptySource(t *testing.T) {
	storage := &memoryStorage{}
	_, err := testProcessor(storage, nil, nil).RunOnce(context.Background())
	if !errors.Is(err, ErrNoChunks) {
		t.Fatalf("expected ErrNoChunks, got %v", err)
	}
	if storage.committed {
		t.Fatal("empty run must not be committed")
	}
}

func TestRunOnce_StorageFactoryError(t *testing.T) {
	p := NewProcessor(ProcessorParams{
		Source:        &memorySource{},
		Extractor:     &cannedExtractor{},
		Canonicalizer: identityCanonicalizer{},
		Summarizer:    summarize.NewSummarizer(summarize.NewSummarizerParams{}),
		StorageFactory: func(runID string, ts time.Time) (store.RunStorage, error) {
			return nil, errors.New("sink unavailable")
		},
	})

	if _, err := p.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error when storage cannot be created")
	}
}
