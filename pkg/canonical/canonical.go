package canonical

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/ontolab/graphweave/internal/util"
	"github.com/ontolab/graphweave/pkg/ai"
	"github.com/ontolab/graphweave/pkg/common"
	"github.com/ontolab/graphweave/pkg/logger"
)

const (
	// DefaultThreshold is the cosine similarity above which two surface
	// forms are considered the same entity.
	DefaultThreshold = 0.85

	// DefaultSubBatchSize caps how many strings are compared pairwise at
	// once, bounding the quadratic comparison cost.
	DefaultSubBatchSize = 500
)

// Canonicalizer merges near-duplicate surface forms in triple batches via
// embedding similarity. The merge is a single greedy pass: once a string
// is mapped it never re-enters comparison, so chains of similar strings
// may split across canonical forms depending on batch order. The shorter
// string always wins as the canonical form.
type Canonicalizer struct {
	client        ai.GraphAIClient
	threshold     float64
	subBatchSize  int
	embedParallel int
	maxRetries    int
}

// NewCanonicalizerParams configures a Canonicalizer.
type NewCanonicalizerParams struct {
	Client        ai.GraphAIClient
	Threshold     float64
	SubBatchSize  int
	EmbedParallel int
	MaxRetries    int
}

// NewCanonicalizer creates a Canonicalizer with defaults applied.
func NewCanonicalizer(params NewCanonicalizerParams) *Canonicalizer {
	threshold := params.Threshold
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultThreshold
	}
	subBatchSize := params.SubBatchSize
	if subBatchSize <= 0 {
		subBatchSize = DefaultSubBatchSize
	}
	embedParallel := params.EmbedParallel
	if embedParallel <= 0 {
		embedParallel = 8
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}

	return &Canonicalizer{
		client:        params.Client,
		threshold:     threshold,
		subBatchSize:  subBatchSize,
		embedParallel: embedParallel,
		maxRetries:    maxRetries,
	}
}

// CanonicalizeTriples rewrites the batch's subjects and objects onto
// canonical forms and de-duplicates the result. Embedding failures
// fail open: an unembeddable string simply keeps itself as canonical.
func (c *Canonicalizer) CanonicalizeTriples(ctx context.Context, triples []common.Triple) []common.Triple {
	if len(triples) == 0 {
		return triples
	}

	surfaces := distinctSurfaces(triples)
	mapping := c.buildMapping(ctx, surfaces)

	rewritten := make([]common.Triple, 0, len(triples))
	seen := make(map[common.Triple]bool, len(triples))
	for _, t := range triples {
		if canon, ok := mapping[t.Subject]; ok {
			t.Subject = canon
		}
		if canon, ok := mapping[t.Object]; ok {
			t.Object = canon
		}
		if t.Subject == t.Object {
			continue
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		rewritten = append(rewritten, t)
	}
	return rewritten
}

// buildMapping returns merged→canonical pairs for the given surfaces,
// comparing within sub-batches only.
func (c *Canonicalizer) buildMapping(ctx context.Context, surfaces []string) map[string]string {
	if len(surfaces) < 2 {
		return nil
	}

	mapping := make(map[string]string)
	for start := 0; start < len(surfaces); start += c.subBatchSize {
		end := util.Min(start+c.subBatchSize, len(surfaces))
		c.mergeSubBatch(ctx, surfaces[start:end], mapping)
	}

	if len(mapping) > 0 {
		logger.Debug("[Canonical] Merged surface forms", "merged", len(mapping), "surfaces", len(surfaces))
	}
	return mapping
}

func (c *Canonicalizer) mergeSubBatch(ctx context.Context, batch []string, mapping map[string]string) {
	embeddings := c.embedAll(ctx, batch)

	for i := 0; i < len(batch); i++ {
		if _, mapped := mapping[batch[i]]; mapped {
			continue
		}
		if embeddings[i] == nil {
			continue
		}
		for j := i + 1; j < len(batch); j++ {
			if _, mapped := mapping[batch[j]]; mapped {
				continue
			}
			if embeddings[j] == nil {
				continue
			}

			if cosineSimilarity(embeddings[i], embeddings[j]) > c.threshold {
				// shorter string is the canonical form
				if len(batch[i]) <= len(batch[j]) {
					mapping[batch[j]] = batch[i]
				} else {
					mapping[batch[i]] = batch[j]
				}
			}
		}
	}
}

// embedAll embeds every string in the batch concurrently. A failed
// embedding leaves a nil vector: the pair is skipped rather than merged
// incorrectly.
func (c *Canonicalizer) embedAll(ctx context.Context, batch []string) [][]float32 {
	embeddings := make([][]float32, len(batch))

	eg, eCtx := errgroup.WithContext(ctx)
	eg.SetLimit(c.embedParallel)
	for i := range batch {
		idx := i
		eg.Go(func() error {
			vec, err := util.RetryWithContext(eCtx, c.maxRetries, func(ctx context.Context) ([]float32, error) {
				return c.client.GenerateEmbedding(ctx, []byte(batch[idx]))
			})
			if err != nil {
				logger.Warn("[Canonical] Embedding failed, skipping merges for surface", "surface", batch[idx], "err", err)
				return nil
			}
			embeddings[idx] = vec
			return nil
		})
	}
	_ = eg.Wait()

	return embeddings
}

// distinctSurfaces returns subject and object strings in first-appearance
// order. That order makes the greedy merge deterministic for a fixed
// batch order.
func distinctSurfaces(triples []common.Triple) []string {
	seen := make(map[string]bool)
	var surfaces []string
	for _, t := range triples {
		if !seen[t.Subject] {
			seen[t.Subject] = true
			surfaces = append(surfaces, t.Subject)
		}
		if !seen[t.Object] {
			seen[t.Object] = true
			surfaces = append(surfaces, t.Object)
		}
	}
	return surfaces
}

func cosineSimilarity(a, b []float32) float64 {
	n := util.Min(len(a), len(b))
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
