/**
 * imagetext worker - Main Entry Point
 *
 * Serves the deskew and OCR pipelines as queue tasks so a backend can submit
 * jobs instead of spawning processes.
 *
 * Architecture:
 * - Asynq server on a Redis-backed queue (image:deskew, image:ocr)
 * - Per-task processing timeout
 * - Results on the task result writer, lifecycle events on <queue>:events
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"
	"github.com/google/uuid"

	"github.com/adverant/nexus/imagetext-tools/internal/config"
	"github.com/adverant/nexus/imagetext-tools/internal/deskew"
	"github.com/adverant/nexus/imagetext-tools/internal/logging"
	"github.com/adverant/nexus/imagetext-tools/internal/ocr"
	"github.com/adverant/nexus/imagetext-tools/internal/processor"
	"github.com/adverant/nexus/imagetext-tools/internal/processor/tesseract"
	"github.com/adverant/nexus/imagetext-tools/internal/queue"
	"github.com/adverant/nexus/imagetext-tools/internal/vision"
)

var args struct {
	EnvFile string `arg:"--env-file" default:".env" help:"dotenv file loaded before the environment is read"`
}

func main() {
	arg.MustParse(&args)

	bootLog := logging.NewLogger("worker")

	if err := config.LoadEnvFile(args.EnvFile); err != nil {
		bootLog.Warn("Env file not found, using system environment variables", "path", args.EnvFile)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		bootLog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateWorker(); err != nil {
		bootLog.Error("Invalid worker configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLoggerWithOptions("worker", logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}).With("instance_id", uuid.NewString())

	logger.Info("imagetext worker starting",
		"queue", cfg.Worker.QueueName,
		"concurrency", cfg.Worker.Concurrency,
		"timeout", cfg.Worker.ProcessingTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	proc, err := processor.NewOCRProcessor(&processor.ProcessorConfig{
		Engine:              tesseract.New(&tesseract.Config{TessdataPrefix: cfg.OCR.TessdataPrefix}, logger),
		Preparer:            vision.NewPreparer(vision.Options{FullGeneralSet: cfg.OCR.FullGeneralSet}, logger),
		DefaultLanguages:    ocr.ResolveDefaults(cfg.OCR.DefaultLanguages),
		EarlyExitConfidence: cfg.OCR.EarlyExitConfidence,
		Logger:              logger,
	})
	if err != nil {
		logger.Error("Failed to initialize OCR processor", "error", err)
		os.Exit(1)
	}

	publisher, err := queue.NewRedisPublisher(ctx, cfg.Worker.RedisURL, cfg.Worker.QueueName)
	if err != nil {
		logger.Error("Failed to initialize event publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	handler, err := queue.NewHandler(&queue.HandlerConfig{
		Deskewer:          deskew.NewCorrector(cfg.Deskew.MinAngle, logger),
		Recognizer:        proc,
		Publisher:         publisher,
		ProcessingTimeout: cfg.Worker.ProcessingTimeout,
		Logger:            logger,
	})
	if err != nil {
		logger.Error("Failed to initialize task handler", "error", err)
		os.Exit(1)
	}

	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:    cfg.Worker.RedisURL,
		QueueName:   cfg.Worker.QueueName,
		Concurrency: cfg.Worker.Concurrency,
		Handler:     handler,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("Failed to initialize queue consumer", "error", err)
		os.Exit(1)
	}

	if err := consumer.Start(ctx); err != nil {
		logger.Error("Failed to start queue consumer", "error", err)
		os.Exit(1)
	}

	logger.Info("Waiting for tasks", "stats", consumer.GetStatistics())

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	if err := consumer.Stop(context.Background()); err != nil {
		logger.Error("Error stopping queue consumer", "error", err)
	}

	logger.Info("Shutdown complete")
}
