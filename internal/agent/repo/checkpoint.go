package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/support-agent/server/internal/agent/model"
	errx "github.com/support-agent/server/internal/core/error"
	logx "github.com/support-agent/server/pkg/logger"
)

// RedisCheckpointStore persists the full conversation state as a JSON blob
// keyed by session id. Concurrent turns for the same session are not
// serialized here: the caller must process a session's turns sequentially,
// and violations resolve as last-writer-wins.
type RedisCheckpointStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisCheckpointStore(rdb redis.Cmdable, ttl time.Duration) *RedisCheckpointStore {
	return &RedisCheckpointStore{rdb: rdb, ttl: ttl}
}

func (r *RedisCheckpointStore) checkpointKey(sessionID string) string {
	return fmt.Sprintf("session:%s:state", sessionID)
}

// Load returns the checkpointed state for the session, or (nil, nil) when no
// checkpoint exists yet.
func (r *RedisCheckpointStore) Load(ctx context.Context, sessionID string) (*model.Conversation, error) {
	key := r.checkpointKey(sessionID)

	raw, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load checkpoint from redis")
		return nil, errx.WrapRedis(err)
	}

	var conv model.Conversation
	if err := json.Unmarshal([]byte(raw), &conv); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to unmarshal checkpoint")
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &conv, nil
}

// Save writes the state and refreshes the TTL. A failed write means the turn
// must not be considered committed.
func (r *RedisCheckpointStore) Save(ctx context.Context, sessionID string, conv *model.Conversation) error {
	b, err := json.Marshal(conv)
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to marshal checkpoint")
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	key := r.checkpointKey(sessionID)

	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to write checkpoint to redis")
		return errx.New(err, http.StatusBadGateway, errx.CheckpointErrorMessage)
	}
	return nil
}

// Delete removes a session's checkpoint. Archival policy lives outside the
// core; this exists for operational cleanup.
func (r *RedisCheckpointStore) Delete(ctx context.Context, sessionID string) error {
	key := r.checkpointKey(sessionID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete checkpoint from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.CheckpointStore = (*RedisCheckpointStore)(nil)
