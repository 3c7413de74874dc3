/**
 * Task event publisher
 *
 * Publishes task lifecycle events on a Redis pub/sub channel so callers can
 * follow progress without polling the queue.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Task statuses carried in events.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Event is one task lifecycle notification.
type Event struct {
	Event     string                 `json:"event"`
	TaskID    string                 `json:"task_id"`
	Type      string                 `json:"type"`
	Timestamp string                 `json:"timestamp"`
	Error     string                 `json:"error,omitempty"`
	Code      string                 `json:"code,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// NewEvent builds an event stamped with the current time.
func NewEvent(status, taskID, taskType string) Event {
	return Event{
		Event:     fmt.Sprintf("task:%s", status),
		TaskID:    taskID,
		Type:      taskType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// EventPublisher delivers task events.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// EventsChannel returns the pub/sub channel for a queue.
func EventsChannel(queueName string) string {
	return fmt.Sprintf("%s:events", queueName)
}

// RedisPublisher publishes events with Redis PUBLISH.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher connects to redisURL and publishes on the queue's events channel.
func NewRedisPublisher(ctx context.Context, redisURL, queueName string) (*RedisPublisher, error) {
	if queueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisPublisher{client: client, channel: EventsChannel(queueName)}, nil
}

// Publish sends ev as JSON.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
