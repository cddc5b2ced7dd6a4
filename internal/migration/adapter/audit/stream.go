package audit

import (
	"context"

	"cosmo-migrator/internal/migration/domain/model"
	"cosmo-migrator/internal/shared/utils"

	"github.com/redis/go-redis/v9"
)

// RedisStreamSink appends records to a Redis stream so other processes can
// follow a run.
type RedisStreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamSink writes to stream, trimming it to roughly maxLen entries
// when maxLen is positive.
func NewRedisStreamSink(client *redis.Client, stream string, maxLen int64) *RedisStreamSink {
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisStreamSink) Record(ctx context.Context, rec model.AuditRecord) error {
	runID, _ := utils.GetRunIDFromContext(ctx)
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"runId":          runID,
			"kind":           string(rec.Kind),
			"oldId":          rec.OldID,
			"newId":          rec.NewID,
			"status":         string(rec.Status),
			"detail":         rec.Detail,
			"organizationId": rec.Scope.OrganizationID,
			"workspaceId":    rec.Scope.WorkspaceID,
			"scenarioId":     rec.Scope.ScenarioID,
			"timestamp":      rec.Timestamp.UnixMilli(),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return s.client.XAdd(ctx, args).Err()
}

// Close leaves the shared client open.
func (s *RedisStreamSink) Close() error { return nil }
