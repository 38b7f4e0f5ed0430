package redis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/linkfabric/swagent/pkg/orch"
)

// SnapshotTable implements orch.SnapshotSource by scanning the hashes
// a table's rows are stored under. Used only at startup for warm
// restart.
type SnapshotTable struct {
	client *redis.Client
	table  string
	logger *zap.Logger
}

// NewSnapshotTable creates a snapshot reader for one table.
func NewSnapshotTable(client *redis.Client, table string, logger *zap.Logger) *SnapshotTable {
	return &SnapshotTable{client: client, table: table, logger: logger}
}

// TableName implements orch.SnapshotSource.
func (s *SnapshotTable) TableName() string { return s.table }

// ReadAll implements orch.SnapshotSource: every stored row becomes a
// SET tuple. Hash field order is undefined, so fields are sorted for a
// deterministic result.
func (s *SnapshotTable) ReadAll(ctx context.Context) ([]orch.Tuple, error) {
	prefix := getTableKeyPrefix(s.table)

	var cursor uint64
	var keys []string
	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan table %s: %w", s.table, err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}
	sort.Strings(keys)

	tuples := make([]orch.Tuple, 0, len(keys))
	for _, key := range keys {
		values, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read row %s: %w", key, err)
		}

		names := make([]string, 0, len(values))
		for name := range values {
			names = append(names, name)
		}
		sort.Strings(names)

		fields := make([]orch.FieldValue, 0, len(names))
		for _, name := range names {
			fields = append(fields, orch.FieldValue{Field: name, Value: values[name]})
		}
		tuples = append(tuples, orch.Tuple{
			Key:    strings.TrimPrefix(key, prefix),
			Op:     orch.OpSet,
			Fields: fields,
		})
	}

	s.logger.Debug("table snapshot read",
		zap.String("table", s.table),
		zap.Int("rows", len(tuples)))

	return tuples, nil
}

// SnapshotProvider implements orch.SnapshotProvider over one Redis
// connection.
type SnapshotProvider struct {
	client *redis.Client
	logger *zap.Logger
}

// NewSnapshotProvider creates a provider of table snapshot readers.
func NewSnapshotProvider(client *redis.Client, logger *zap.Logger) *SnapshotProvider {
	return &SnapshotProvider{client: client, logger: logger}
}

// Snapshot implements orch.SnapshotProvider.
func (p *SnapshotProvider) Snapshot(table string) orch.SnapshotSource {
	return NewSnapshotTable(p.client, table, p.logger)
}

// getTableKeyPrefix returns the key prefix a table's rows live under.
func getTableKeyPrefix(table string) string {
	return fmt.Sprintf("swagent:table:%s%s", table, orch.Delimiter)
}
