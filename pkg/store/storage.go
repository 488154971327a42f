package store

import (
	"context"

	"github.com/ontolab/graphweave/pkg/common"
)

// RunStorage persists the artifacts of one processing run. Implementations
// are scoped to a single run: triples stream in per chunk while the graph
// is built, node/edge checkpoints overwrite each other, and CommitRun
// atomically advances the "latest" pointer once everything for the run is
// durably written.
//
// Exactly one pipeline instance writes a sink at a time, so no locking
// protocol is required beyond the commit's own atomicity.
type RunStorage interface {
	// SaveTriples writes one chunk's canonicalized triples through to
	// durable storage immediately, so partial progress survives a crash.
	SaveTriples(ctx context.Context, chunkID int64, triples []common.Triple) error

	// Checkpoint durably replaces the run's node and edge artifacts with
	// the current graph state. Called periodically and at run completion.
	Checkpoint(ctx context.Context, nodes []common.Node, edges []common.Edge) error

	// SaveSummaries writes the run's community summaries.
	SaveSummaries(ctx context.Context, summaries []common.CommunitySummary) error

	// CommitRun finalizes the run and atomically updates the latest
	// pointer. It returns the manifest with sink-specific artifact
	// locations filled in. A crash before CommitRun leaves the previous
	// completed run authoritative.
	CommitRun(ctx context.Context, manifest common.RunManifest) (common.RunManifest, error)
}
