package ollama

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/ontolab/graphweave/pkg/ai"
)

// GenerateEmbedding creates a vector embedding for the given input text
// using the configured embedding model on Ollama.
//
// The input is provided as a byte slice and converted to a string before
// being sent to the embedding model. The returned vector keeps the
// model's native dimensionality; blank input yields a nil vector.
func (c *GraphOllamaClient) GenerateEmbedding(
	ctx context.Context,
	input []byte,
) ([]float32, error) {
	if len(strings.TrimSpace(string(input))) == 0 {
		return nil, nil
	}

	rCtx, cancel := context.WithTimeout(ctx, time.Minute*time.Duration(c.timeoutMin))
	defer cancel()

	req := &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: string(input),
	}

	if err := c.limiter.Wait(rCtx); err != nil {
		return nil, err
	}
	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, err
	}
	defer c.reqLock.Release(1)

	start := time.Now()
	res, err := c.Client.Embed(rCtx, req)
	if err != nil {
		return nil, err
	}

	metrics := ai.ModelMetrics{
		InputTokens:  res.PromptEvalCount,
		OutputTokens: 0,
		TotalTokens:  res.PromptEvalCount,
		DurationMs:   res.TotalDuration.Milliseconds(),
		WallClockMs:  time.Since(start).Milliseconds(),
	}
	c.modifyMetrics(metrics)

	if len(res.Embeddings) == 0 {
		return nil, errors.New("empty embedding response from model")
	}

	out := make([]float32, len(res.Embeddings[0]))
	for i, v := range res.Embeddings[0] {
		out[i] = float32(v)
	}
	return out, nil
}
