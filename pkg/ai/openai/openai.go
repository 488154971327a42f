package openai

import (
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/ontolab/graphweave/pkg/ai"
)

// GraphOpenAIClient is an OpenAI-compatible client for the three pipeline
// oracles: extraction (schema-constrained completions), summary generation
// (plain completions) and embeddings. Chat and embedding endpoints are
// configured independently so they can point at different deployments.
//
// A GraphOpenAIClient should be created using NewGraphOpenAIClient.
type GraphOpenAIClient struct {
	embeddingModel  string
	summaryModel    string
	extractionModel string

	embeddingURL string
	embeddingKey string
	chatURL      string
	chatKey      string

	timeoutMin int

	reqLock       *semaphore.Weighted
	embeddingLock *semaphore.Weighted
	limiter       *rate.Limiter

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewGraphOpenAIClientParams defines the configuration parameters for
// creating a new GraphOpenAIClient.
//
// RequestsPerSecond paces all oracle calls to respect upstream rate
// limits; zero disables pacing. MaxConcurrentRequests bounds in-flight
// requests per endpoint.
type NewGraphOpenAIClientParams struct {
	EmbeddingModel  string
	SummaryModel    string
	ExtractionModel string

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string

	TimeoutMin            int
	MaxConcurrentRequests int64
	RequestsPerSecond     float64
}

// NewGraphOpenAIClient creates and returns a new GraphOpenAIClient
// configured with the provided parameters. It initializes separate OpenAI
// clients for embeddings and chat/completion tasks.
func NewGraphOpenAIClient(
	params NewGraphOpenAIClientParams,
) *GraphOpenAIClient {
	chatClient := newOpenaiClient(params.ChatURL, params.ChatKey)
	embedClient := newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey)

	maxConcurrent := params.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	timeoutMin := params.TimeoutMin
	if timeoutMin <= 0 {
		timeoutMin = 5
	}

	limit := rate.Inf
	if params.RequestsPerSecond > 0 {
		limit = rate.Limit(params.RequestsPerSecond)
	}

	return &GraphOpenAIClient{
		embeddingModel:  params.EmbeddingModel,
		summaryModel:    params.SummaryModel,
		extractionModel: params.ExtractionModel,

		chatURL:      params.ChatURL,
		chatKey:      params.ChatKey,
		embeddingURL: params.EmbeddingURL,
		embeddingKey: params.EmbeddingKey,

		timeoutMin: timeoutMin,

		reqLock:       semaphore.NewWeighted(maxConcurrent),
		embeddingLock: semaphore.NewWeighted(maxConcurrent),
		limiter:       rate.NewLimiter(limit, 1),

		metricsLock: sync.Mutex{},
		metrics:     ai.ModelMetrics{},

		ChatClient:      chatClient,
		EmbeddingClient: embedClient,
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

func (c *GraphOpenAIClient) modifyMetrics(m ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()

	c.metrics.InputTokens += m.InputTokens
	c.metrics.OutputTokens += m.OutputTokens
	c.metrics.TotalTokens += m.TotalTokens
	c.metrics.DurationMs += m.DurationMs
	c.metrics.WallClockMs += m.WallClockMs
	if c.metrics.DurationMs > 0 {
		c.metrics.TokenPerSecond = float32(c.metrics.OutputTokens) / (float32(c.metrics.DurationMs) / 1000)
	}
}

// Metrics returns a snapshot of the accumulated model metrics.
func (c *GraphOpenAIClient) Metrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}
