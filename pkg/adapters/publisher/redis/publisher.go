// Package redis provides the Redis-backed response publisher: task
// acknowledgements buffered in memory and delivered to state-table
// hashes in one pipeline on Flush.
package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/linkfabric/swagent/pkg/orch"
)

type record struct {
	table  string
	key    string
	fields []orch.FieldValue
	status orch.TaskStatus
}

// Publisher implements orch.ResponsePublisher. Publish buffers; Flush
// writes everything buffered through one Redis pipeline. Safe for
// concurrent use.
type Publisher struct {
	client *redis.Client
	logger *zap.Logger

	mu       sync.Mutex
	buffered []record
}

// New creates a publisher over one Redis connection.
func New(client *redis.Client, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

// Publish implements orch.ResponsePublisher.
func (p *Publisher) Publish(table, key string, fields []orch.FieldValue, status orch.TaskStatus) {
	p.mu.Lock()
	p.buffered = append(p.buffered, record{table: table, key: key, fields: fields, status: status})
	p.mu.Unlock()
}

// Flush implements orch.ResponsePublisher: buffered acknowledgements
// are delivered synchronously. On failure the records are re-buffered
// for the next flush.
func (p *Publisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	records := p.buffered
	p.buffered = nil
	p.mu.Unlock()

	if len(records) == 0 {
		return nil
	}

	_, err := p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, r := range records {
			values := make(map[string]interface{}, len(r.fields)+1)
			for _, fv := range r.fields {
				values[fv.Field] = fv.Value
			}
			values["status"] = r.status.String()
			pipe.HSet(ctx, getStateKey(r.table, r.key), values)
		}
		return nil
	})
	if err != nil {
		p.mu.Lock()
		p.buffered = append(records, p.buffered...)
		p.mu.Unlock()
		return fmt.Errorf("failed to flush responses: %w", err)
	}

	p.logger.Debug("responses flushed", zap.Int("count", len(records)))
	return nil
}

// getStateKey returns the state-table hash key for one object.
func getStateKey(table, key string) string {
	return fmt.Sprintf("swagent:state:%s%s%s", table, orch.StateDBKeyDelimiter, key)
}
