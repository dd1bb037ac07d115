package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type Handler func(ctx context.Context, event Event) error

type Subscriber struct {
	client        *redis.Client
	group         string
	consumer      string
	stream        string
	handler       Handler
	batchSize     int64
	blockDuration time.Duration
	startID       string
}

type SubscriberConfig struct {
	Group         string
	Consumer      string
	Stream        string
	Handler       Handler
	BatchSize     int64
	BlockDuration time.Duration
	// StartID is where a newly created group starts reading. Defaults to "$"
	// so a fresh instance only sees events published after it came up.
	StartID string
}

func NewSubscriber(client *redis.Client, config SubscriberConfig) *Subscriber {
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}
	if config.BlockDuration == 0 {
		config.BlockDuration = 5 * time.Second
	}

	return &Subscriber{
		client:        client,
		group:         config.Group,
		consumer:      config.Consumer,
		stream:        config.Stream,
		handler:       config.Handler,
		batchSize:     config.BatchSize,
		blockDuration: config.BlockDuration,
		startID:       config.StartID,
	}
}

// EnsureGroup creates the consumer group if it doesn't exist.
func (s *Subscriber) EnsureGroup(ctx context.Context, startID string) error {
	if startID == "" {
		startID = "$"
	}
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, startID).Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

func (s *Subscriber) Start(ctx context.Context) error {
	if err := s.EnsureGroup(ctx, s.startID); err != nil {
		return err
	}

	logger := slog.With("stream", s.stream, "group", s.group, "consumer", s.consumer)
	logger.Info("subscriber started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("subscriber stopping")
			return ctx.Err()
		default:
			if err := s.ReadOnce(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				logger.Error("failed to read events", "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

// ReadOnce reads and handles a single batch. Handled messages are
// acknowledged; messages whose handler failed stay pending for redelivery.
// Messages that cannot be decoded are acknowledged and dropped.
func (s *Subscriber) ReadOnce(ctx context.Context) error {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    s.batchSize,
		Block:    s.blockDuration,
	}).Result()

	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			event, err := decodeMessage(message)
			if err != nil {
				slog.Warn("dropping malformed event", "stream", s.stream, "id", message.ID, "error", err)
			} else if err := s.handler(ctx, event); err != nil {
				slog.Error("event handler failed", "stream", s.stream, "id", message.ID, "type", event.Type, "error", err)
				continue
			}

			if err := s.client.XAck(ctx, s.stream, s.group, message.ID).Err(); err != nil {
				slog.Error("failed to ack event", "stream", s.stream, "id", message.ID, "error", err)
			}
		}
	}

	return nil
}

func decodeMessage(message redis.XMessage) (Event, error) {
	var event Event
	raw, ok := message.Values["event"].(string)
	if !ok {
		return event, errors.New("message has no event field")
	}
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return event, nil
}
