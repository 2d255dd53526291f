package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/yungbote/vidscribe-backend/internal/combine"
	"github.com/yungbote/vidscribe-backend/internal/keywords"
	"github.com/yungbote/vidscribe-backend/internal/manifest"
	"github.com/yungbote/vidscribe-backend/internal/pipeline"
	"github.com/yungbote/vidscribe-backend/internal/platform/bucket"
	"github.com/yungbote/vidscribe-backend/internal/platform/envutil"
	"github.com/yungbote/vidscribe-backend/internal/platform/llm"
	"github.com/yungbote/vidscribe-backend/internal/platform/lock"
	"github.com/yungbote/vidscribe-backend/internal/platform/logger"
	"github.com/yungbote/vidscribe-backend/internal/platform/media"
	"github.com/yungbote/vidscribe-backend/internal/scraper"
	"github.com/yungbote/vidscribe-backend/internal/stt"
	"github.com/yungbote/vidscribe-backend/internal/temporalx"
	"github.com/yungbote/vidscribe-backend/internal/temporalx/temporalworker"
	"github.com/yungbote/vidscribe-backend/internal/webindex"
)

func main() {
	_ = godotenv.Load()

	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting worker...")

	tc, err := temporalx.NewClient(log)
	if err != nil {
		log.Error("Could not connect to Temporal", "error", err)
		os.Exit(1)
	}
	defer tc.Close()

	bucketService, err := bucket.New(log)
	if err != nil {
		log.Error("Could not init bucket service", "error", err)
		os.Exit(1)
	}

	locker := lock.New(log)
	manifestStore := manifest.NewStore(log, bucketService, locker)
	llmClient := llm.NewClient(log)
	engine := keywords.NewEngine(log, llmClient)
	mediaTools := media.New(log)

	acts := &pipeline.Activities{
		Log:      log,
		Bucket:   bucketService,
		Manifest: manifestStore,
		Scraper:  scraper.NewClient(log),
		STT:      stt.NewClient(log),
		LLM:      llmClient,
		Engine:   engine,
		Builder:  combine.NewBuilder(log, bucketService, manifestStore, engine, mediaTools),
		Index:    webindex.NewRefresher(log),
	}

	runner, err := temporalworker.NewRunner(log, tc, acts)
	if err != nil {
		log.Error("Could not init worker runner", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := runner.Start(ctx); err != nil {
		log.Error("Worker failed to start", "error", err)
		os.Exit(1)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("Shutting down worker...")
}
