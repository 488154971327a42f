package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ontolab/graphweave/internal/util"
	"github.com/ontolab/graphweave/pkg/ai"
	oai "github.com/ontolab/graphweave/pkg/ai/ollama"
	gai "github.com/ontolab/graphweave/pkg/ai/openai"
	"github.com/ontolab/graphweave/pkg/canonical"
	"github.com/ontolab/graphweave/pkg/extract"
	"github.com/ontolab/graphweave/pkg/logger"
	"github.com/ontolab/graphweave/pkg/logger/console"
	"github.com/ontolab/graphweave/pkg/pipeline"
	"github.com/ontolab/graphweave/pkg/source"
	"github.com/ontolab/graphweave/pkg/store"
	filestore "github.com/ontolab/graphweave/pkg/store/file"
	pgxstore "github.com/ontolab/graphweave/pkg/store/pgx"
	"github.com/ontolab/graphweave/pkg/summarize"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	// GraphAiClient
	adapter := util.GetEnv("AI_ADAPTER")
	var aiClient ai.GraphAIClient

	timeoutMin := int(util.GetEnvNumeric("AI_TIMEOUT_MIN", 0))
	maxConcurrent := int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 0))
	requestsPerSecond := util.GetEnvNumeric("AI_REQUESTS_PER_SECOND", 0)

	switch adapter {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			SummaryModel:    util.GetEnv("AI_CHAT_SUMMARY_MODEL"),
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			TimeoutMin:            timeoutMin,
			MaxConcurrentRequests: maxConcurrent,
			RequestsPerSecond:     requestsPerSecond,
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		aiClient = client
	default:
		aiClient = gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			EmbeddingModel:  util.GetEnv("AI_EMBED_MODEL"),
			SummaryModel:    util.GetEnv("AI_CHAT_SUMMARY_MODEL"),
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),

			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),
			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),

			TimeoutMin:            timeoutMin,
			MaxConcurrentRequests: maxConcurrent,
			RequestsPerSecond:     requestsPerSecond,
		})
	}

	// Init pgx client
	pgConn, err := pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()
	pgConn.Config().AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	// Run storage sink
	var factory pipeline.StorageFactory
	switch sink := util.GetEnvString("SINK", "file"); sink {
	case "postgres":
		if err := pgxstore.Migrate(util.GetEnv("DATABASE_URL")); err != nil {
			logger.Fatal("Failed to migrate database", "err", err)
		}
		factory = func(runID string, ts time.Time) (store.RunStorage, error) {
			return pgxstore.NewRunDBStorage(ctx, pgConn, runID, ts)
		}
	case "file":
		outputDir := util.GetEnvString("OUTPUT_DIR", "output")
		factory = func(runID string, ts time.Time) (store.RunStorage, error) {
			return filestore.NewRunFileStorage(outputDir, runID, ts)
		}
	default:
		logger.Fatal("Unknown sink", "sink", sink)
	}

	extractor := extract.NewExtractor(extract.NewExtractorParams{
		Client:     aiClient,
		MaxChars:   int(util.GetEnvNumeric("MAX_CHUNK_CHARS", 10000)),
		MaxRetries: int(util.GetEnvNumeric("AI_MAX_RETRIES", 3)),
	})
	canonicalizer := canonical.NewCanonicalizer(canonical.NewCanonicalizerParams{
		Client:       aiClient,
		Threshold:    util.GetEnvNumeric("CANONICAL_THRESHOLD", 0),
		SubBatchSize: int(util.GetEnvNumeric("CANONICAL_SUB_BATCH", 500)),
	})
	summarizer := summarize.NewSummarizer(summarize.NewSummarizerParams{
		Client:   aiClient,
		Thinking: util.GetEnv("AI_THINKING"),
	})

	interval := time.Duration(util.GetEnvNumeric("PROCESSING_INTERVAL", 3600)) * time.Second
	processor := pipeline.NewProcessor(pipeline.ProcessorParams{
		Source:          source.NewPostgresChunkSource(pgConn),
		Extractor:       extractor,
		Canonicalizer:   canonicalizer,
		Summarizer:      summarizer,
		StorageFactory:  factory,
		PageSize:        int(util.GetEnvNumeric("PAGE_SIZE", 50)),
		ExtractParallel: int(util.GetEnvNumeric("EXTRACT_PARALLEL", 4)),
		CheckpointEvery: int(util.GetEnvNumeric("CHECKPOINT_EVERY", 5)),
		Interval:        interval,
	})

	// Give dependent services a moment to come up on cold starts.
	startupDelay := time.Duration(util.GetEnvNumeric("STARTUP_DELAY", 10)) * time.Second
	logger.Info("Waiting before first run", "delay", startupDelay)
	select {
	case <-ctx.Done():
		return
	case <-time.After(startupDelay):
	}

	processor.RunLoop(ctx)

	if m, ok := aiClient.(interface{ Metrics() ai.ModelMetrics }); ok {
		usage := m.Metrics()
		logger.Info("Oracle usage",
			"input_tokens", usage.InputTokens,
			"output_tokens", usage.OutputTokens,
			"total_tokens", usage.TotalTokens,
			"duration_ms", usage.DurationMs,
			"wall_clock_ms", usage.WallClockMs,
			"tokens_per_second", usage.TokenPerSecond,
		)
	}
	logger.Info("Shutdown signal received, exiting...")
}
