package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/policygraph/internal/config"
	"github.com/OFFIS-RIT/policygraph/internal/db"
	"github.com/OFFIS-RIT/policygraph/internal/queue"
	"github.com/OFFIS-RIT/policygraph/internal/storage"
	"github.com/OFFIS-RIT/policygraph/internal/util"
	"github.com/OFFIS-RIT/policygraph/pkg/ai"
	"github.com/OFFIS-RIT/policygraph/pkg/leaselock"
	"github.com/OFFIS-RIT/policygraph/pkg/loader/auto"
	s3loader "github.com/OFFIS-RIT/policygraph/pkg/loader/s3"
	"github.com/OFFIS-RIT/policygraph/pkg/logger"
	graphstorage "github.com/OFFIS-RIT/policygraph/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config.InitLogger("", os.Stderr)

	aiClient, err := config.NewOracle()
	if err != nil {
		logger.Fatal("Could not create AI client", "err", err)
	}

	responseCache, err := config.OpenCache()
	if err != nil {
		logger.Fatal("Could not open extraction cache", "err", err)
	}
	if responseCache != nil {
		defer responseCache.Close()
	}
	graphClient, err := config.NewGraphClient(responseCache)
	if err != nil {
		logger.Fatal("Could not create graph client", "err", err)
	}

	// Init s3 client
	blobs, err := storage.NewS3Client(ctx)
	if err != nil {
		logger.Fatal("Could not create S3 client", "err", err)
	}

	// Init pgx client
	dbURL := util.GetEnv("DATABASE_URL")
	if err := db.Migrate(dbURL); err != nil {
		logger.Fatal("Failed to migrate database", "err", err)
	}
	pgConn, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()
	jobs := graphstorage.NewGraphDBStorageWithConnection(pgConn)

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()
	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	w := &queue.Worker{
		Jobs:    jobs,
		Blobs:   blobs,
		Loader:  auto.New(s3loader.NewS3LoaderWithClient(blobs.Bucket(), blobs.Client())),
		Builder: graphClient,
		Oracle:  aiClient,
		Locker:  leaselock.New(pgConn),
		Events:  ch,
	}

	if err := queue.RecoverStaleJobs(ctx, ch, jobs); err != nil {
		logger.Warn("Failed to recover stale jobs", "err", err)
	}

	handlers := map[string]queue.Handler{
		queue.BuildQueue:  withAIMetrics(aiClient, w.ProcessBuildMessage),
		queue.DeleteQueue: w.ProcessDeleteMessage,
	}
	if err := queue.Consume(ctx, conn, handlers); err != nil {
		logger.Fatal("Consumer stopped", "err", err)
	}
	logger.Info("Shutdown signal received, exiting...")
}

// withAIMetrics logs the token usage of each handled message.
func withAIMetrics(client ai.GraphAIClient, h queue.Handler) queue.Handler {
	return func(ctx context.Context, body []byte) error {
		client.ResetMetrics()
		err := h(ctx, body)

		metrics := client.GetMetrics()
		aiDuration := time.Duration(metrics.DurationMs) * time.Millisecond
		logger.Info(
			"AI Metrics",
			"input_tokens", metrics.InputTokens,
			"output_tokens", metrics.OutputTokens,
			"total_tokens", metrics.TotalTokens,
			"duration", fmt.Sprintf("%02d:%02d:%02d", int(aiDuration.Hours()), int(aiDuration.Minutes())%60, int(aiDuration.Seconds())%60),
		)
		return err
	}
}
