// Package redis provides the Redis-backed change-log source and
// snapshot reader: one stream per table carries change tuples, and
// table state lives in hashes for warm-restart snapshot reads.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/linkfabric/swagent/pkg/orch"
)

// StreamSource implements orch.ChangeSource over a Redis stream,
// reading through a consumer group so restarts resume at the pending
// entry list.
type StreamSource struct {
	client   *redis.Client
	table    string
	group    string
	consumer string
	logger   *zap.Logger

	mu      sync.Mutex
	pending []orch.Tuple
	events  chan struct{}
	cancel  context.CancelFunc
}

// NewStreamSource creates the source for one table and starts its
// background stream reader.
func NewStreamSource(ctx context.Context, client *redis.Client, table, group string, logger *zap.Logger) (*StreamSource, error) {
	streamKey := getStreamKey(table)

	// Create consumer group if it doesn't exist
	err := client.XGroupCreateMkStream(ctx, streamKey, group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	s := &StreamSource{
		client:   client,
		table:    table,
		group:    group,
		consumer: fmt.Sprintf("swagent-%s", uuid.NewString()[:8]),
		logger:   logger,
		events:   make(chan struct{}, 1),
		cancel:   cancel,
	}

	logger.Info("subscribed to change stream",
		zap.String("stream", streamKey),
		zap.String("table", table),
		zap.String("consumer_group", group),
		zap.String("consumer", s.consumer))

	go s.readStream(readCtx, streamKey)

	return s, nil
}

// Events implements orch.EventSource.
func (s *StreamSource) Events() <-chan struct{} { return s.events }

// TableName implements orch.ChangeSource.
func (s *StreamSource) TableName() string { return s.table }

// Backend implements orch.ChangeSource.
func (s *StreamSource) Backend() string {
	opts := s.client.Options()
	return fmt.Sprintf("redis:%s/db%d", opts.Addr, opts.DB)
}

// Pops implements orch.ChangeSource: it drains the tuples buffered by
// the background reader since the last call.
func (s *StreamSource) Pops(ctx context.Context) ([]orch.Tuple, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out, nil
}

// Close stops the background reader.
func (s *StreamSource) Close() error {
	s.cancel()
	return nil
}

// readStream reads tuples from the stream into the pending buffer.
func (s *StreamSource) readStream(ctx context.Context, streamKey string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    s.group,
				Consumer: s.consumer,
				Streams:  []string{streamKey, ">"},
				Count:    128,
				Block:    time.Second,
			}).Result()

			if err != nil {
				if err == redis.Nil {
					// No new messages
					continue
				}
				if ctx.Err() != nil {
					return
				}
				s.logger.Error("failed to read from change stream",
					zap.String("stream", streamKey),
					zap.Error(err))
				time.Sleep(time.Second)
				continue
			}

			for _, stream := range streams {
				for _, message := range stream.Messages {
					s.processMessage(ctx, streamKey, message)
				}
			}
		}
	}
}

// processMessage decodes one stream message into the pending buffer
// and acknowledges it.
func (s *StreamSource) processMessage(ctx context.Context, streamKey string, message redis.XMessage) {
	data, ok := message.Values["data"].(string)
	if !ok {
		s.logger.Error("invalid message format",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID))
		return
	}

	var tuple orch.Tuple
	if err := json.Unmarshal([]byte(data), &tuple); err != nil {
		s.logger.Error("failed to unmarshal change tuple",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID),
			zap.Error(err))
		return
	}

	s.mu.Lock()
	s.pending = append(s.pending, tuple)
	s.mu.Unlock()

	select {
	case s.events <- struct{}{}:
	default:
	}

	if err := s.client.XAck(ctx, streamKey, s.group, message.ID).Err(); err != nil {
		s.logger.Error("failed to acknowledge message",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID),
			zap.Error(err))
	}
}

// Publish appends a change tuple to a table's stream. Producers on the
// management plane use this; the agent itself only consumes.
func Publish(ctx context.Context, client *redis.Client, table string, t orch.Tuple) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal change tuple: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: getStreamKey(table),
		Values: map[string]interface{}{
			"data": string(data),
		},
	}
	if _, err := client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to add to stream: %w", err)
	}
	return nil
}

// getStreamKey returns the Redis stream key for a table's change log.
func getStreamKey(table string) string {
	return fmt.Sprintf("swagent:changes:%s", table)
}
