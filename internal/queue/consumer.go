/**
 * Queue Consumer for the imagetext worker
 *
 * Serves image:deskew and image:ocr tasks from a Redis-backed asynq queue.
 * Each task runs under its own timeout; results go to the task's result
 * writer and lifecycle events to the queue's events channel.
 */

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/imagetext-tools/internal/deskew"
	perrors "github.com/adverant/nexus/imagetext-tools/internal/errors"
	"github.com/adverant/nexus/imagetext-tools/internal/logging"
	"github.com/adverant/nexus/imagetext-tools/internal/processor"
)

const defaultProcessingTimeout = 120 * time.Second

// Deskewer corrects the skew of one image file.
type Deskewer interface {
	Deskew(ctx context.Context, inputPath, outputPath string) (*deskew.Result, error)
}

// Recognizer runs the OCR pipeline on one image file.
type Recognizer interface {
	Process(ctx context.Context, req *processor.ProcessRequest) (*processor.Output, error)
}

// HandlerConfig holds task handler configuration
type HandlerConfig struct {
	Deskewer          Deskewer
	Recognizer        Recognizer
	Publisher         EventPublisher // optional
	ProcessingTimeout time.Duration
	Logger            *logging.Logger
}

// Handler executes tasks. It is independent of the asynq server so it can be
// driven directly.
type Handler struct {
	deskewer   Deskewer
	recognizer Recognizer
	publisher  EventPublisher
	timeout    time.Duration
	logger     *logging.Logger
}

// NewHandler creates a task handler
func NewHandler(cfg *HandlerConfig) (*Handler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Deskewer == nil {
		return nil, fmt.Errorf("Deskewer is required")
	}

	if cfg.Recognizer == nil {
		return nil, fmt.Errorf("Recognizer is required")
	}

	timeout := cfg.ProcessingTimeout
	if timeout <= 0 {
		timeout = defaultProcessingTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("queue")
	}

	return &Handler{
		deskewer:   cfg.Deskewer,
		recognizer: cfg.Recognizer,
		publisher:  cfg.Publisher,
		timeout:    timeout,
		logger:     logger,
	}, nil
}

// Register routes both task types on mux.
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeDeskew, h.HandleDeskew)
	mux.HandleFunc(TypeOCR, h.HandleOCR)
}

// HandleDeskew processes an image:deskew task.
func (h *Handler) HandleDeskew(ctx context.Context, task *asynq.Task) error {
	var payload DeskewPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal deskew payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.InputPath == "" || payload.OutputPath == "" {
		return fmt.Errorf("input_path and output_path are required: %w", asynq.SkipRetry)
	}

	return h.run(ctx, task, func(ctx context.Context, taskID string) (interface{}, error) {
		h.logger.Info("Deskewing image", "task_id", taskID, "input", payload.InputPath)
		res, err := h.deskewer.Deskew(ctx, payload.InputPath, payload.OutputPath)
		if err != nil {
			return nil, err
		}
		return res, nil
	})
}

// HandleOCR processes an image:ocr task.
func (h *Handler) HandleOCR(ctx context.Context, task *asynq.Task) error {
	var payload OCRPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal ocr payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.ImagePath == "" {
		return fmt.Errorf("image_path is required: %w", asynq.SkipRetry)
	}

	return h.run(ctx, task, func(ctx context.Context, taskID string) (interface{}, error) {
		h.logger.Info("Running OCR", "task_id", taskID, "image", payload.ImagePath, "languages", payload.Languages)
		out, err := h.recognizer.Process(ctx, &processor.ProcessRequest{
			JobID:     taskID,
			ImagePath: payload.ImagePath,
			Languages: payload.Languages,
		})
		if out == nil {
			return nil, err
		}
		return out, err
	})
}

type taskFunc func(ctx context.Context, taskID string) (interface{}, error)

func (h *Handler) run(ctx context.Context, task *asynq.Task, fn taskFunc) error {
	startTime := time.Now()

	taskID, ok := asynq.GetTaskID(ctx)
	if !ok {
		taskID = uuid.NewString()
	}
	logger := h.logger.With("task_id", taskID, "type", task.Type())

	h.publish(ctx, NewEvent(StatusProcessing, taskID, task.Type()))

	processCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	result, err := fn(processCtx, taskID)
	duration := time.Since(startTime)

	// The OCR runner returns a record even on failure.
	if result != nil {
		if werr := writeResult(task, result); werr != nil {
			logger.Warn("Failed to write task result", "error", werr)
		}
	}

	if err != nil {
		if processCtx.Err() == context.DeadlineExceeded {
			err = perrors.NewProcessingTimeoutError(taskID, h.timeout, err)
			logger.Error("Task timed out", "duration", duration, "timeout", h.timeout)
		} else {
			logger.Error("Task failed", "duration", duration, "error", err)
		}

		h.publish(ctx, failedEvent(taskID, task.Type(), err))

		if errors.Is(err, perrors.ErrImageUnreadable) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	logger.Info("Task completed", "duration", duration)
	h.publish(ctx, NewEvent(StatusCompleted, taskID, task.Type()))
	return nil
}

// failedEvent carries the error code and, for processing errors, their
// structured details.
func failedEvent(taskID, taskType string, err error) Event {
	ev := NewEvent(StatusFailed, taskID, taskType)
	ev.Error = err.Error()
	ev.Code = string(perrors.CodeOf(err))

	var pe *perrors.ProcessingError
	if errors.As(err, &pe) {
		ev.Details = pe.ToMap()
	}
	return ev
}

func (h *Handler) publish(ctx context.Context, ev Event) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(ctx, ev); err != nil {
		h.logger.Warn("Failed to publish event", "event", ev.Event, "task_id", ev.TaskID, "error", err)
	}
}

func writeResult(task *asynq.Task, result interface{}) error {
	rw := task.ResultWriter()
	if rw == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if _, err := rw.Write(data); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}

// Consumer handles task consumption from the Redis queue
type Consumer struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	handler *Handler
	config  *ConsumerConfig
	logger  *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL    string
	QueueName   string
	Concurrency int
	Handler     *Handler
	Logger      *logging.Logger
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Handler == nil {
		return nil, fmt.Errorf("Handler is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("queue")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			RetryDelayFunc: RetryDelay,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error",
					"type", task.Type(), "payload", string(task.Payload()), "error", err)
			}),
			Logger: logger.Entry(),
		},
	)

	mux := asynq.NewServeMux()
	cfg.Handler.Register(mux)

	return &Consumer{
		server:  server,
		mux:     mux,
		handler: cfg.Handler,
		config:  cfg,
		logger:  logger,
	}, nil
}

const maxRetryDelay = 60 * time.Second

// RetryDelay backs off exponentially from 5s, capped at one minute.
func RetryDelay(n int, err error, task *asynq.Task) time.Duration {
	if n < 0 {
		n = 0
	}
	// 5s << 4 already exceeds the cap.
	if n > 4 {
		return maxRetryDelay
	}
	delay := time.Duration(5<<uint(n)) * time.Second
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

// Start starts the queue consumer. It does not block.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer",
		"concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer")
	c.server.Shutdown()
	c.logger.Info("Queue consumer stopped")
	return nil
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
		"events":      EventsChannel(c.config.QueueName),
	}
}
