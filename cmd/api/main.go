package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/yungbote/vidscribe-backend/internal/combine"
	"github.com/yungbote/vidscribe-backend/internal/keywords"
	"github.com/yungbote/vidscribe-backend/internal/manifest"
	"github.com/yungbote/vidscribe-backend/internal/platform/bucket"
	"github.com/yungbote/vidscribe-backend/internal/platform/envutil"
	"github.com/yungbote/vidscribe-backend/internal/platform/llm"
	"github.com/yungbote/vidscribe-backend/internal/platform/lock"
	"github.com/yungbote/vidscribe-backend/internal/platform/logger"
	"github.com/yungbote/vidscribe-backend/internal/platform/media"
	"github.com/yungbote/vidscribe-backend/internal/server"
	"github.com/yungbote/vidscribe-backend/internal/temporalx"
)

func main() {
	_ = godotenv.Load()

	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting API...")

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
	builder := combine.NewBuilder(log, bucketService, manifestStore, engine, media.New(log))

	srv := server.New(log, tc, temporalx.LoadConfig(), bucketService, manifestStore, builder)
	if err := srv.Run(); err != nil {
		log.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
