package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/moham7dreza/structured-docs-engine/pkg/models"
)

// ErrMirrorMiss is returned when the mirror holds no leaderboard.
var ErrMirrorMiss = errors.New("leaderboard mirror is empty")

// generationTTL expires generation keys a crashed publish left behind.
const generationTTL = 10 * time.Minute

// LeaderboardMirror is a read replica of the current leaderboard generation.
type LeaderboardMirror interface {
	// Publish makes snapshot current unless a newer snapshot is already mirrored.
	Publish(ctx context.Context, snapshot *models.LeaderboardSnapshot) error
	Current(ctx context.Context, limit int) (*models.LeaderboardSnapshot, error)
	// Invalidate drops the current generation so reads miss.
	Invalidate(ctx context.Context) error
}

// swapGeneration renames a written generation over the current keys when its
// snapshot id is not older than the mirrored one. Stale generations are dropped.
//
// KEYS: current meta, current ranks, generation meta, generation ranks.
// ARGV: snapshot id. Returns 1 when swapped, 0 when stale.
var swapGeneration = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'snapshot_id')
if current and tonumber(current) > tonumber(ARGV[1]) then
	redis.call('DEL', KEYS[3], KEYS[4])
	return 0
end
if redis.call('EXISTS', KEYS[4]) == 1 then
	redis.call('RENAME', KEYS[4], KEYS[2])
	redis.call('PERSIST', KEYS[2])
else
	redis.call('DEL', KEYS[2])
end
redis.call('RENAME', KEYS[3], KEYS[1])
redis.call('PERSIST', KEYS[1])
return 1
`)

// redisLeaderboardMirror keeps entries as JSON members of a sorted set scored
// by rank, plus a metadata hash. A generation is written under its own keys and
// renamed over the current keys by swapGeneration.
type redisLeaderboardMirror struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisLeaderboardMirror creates a mirror under the given key prefix.
func NewRedisLeaderboardMirror(client *redis.Client, prefix string, logger *zap.Logger) LeaderboardMirror {
	return &redisLeaderboardMirror{
		client: client,
		prefix: prefix,
		logger: logger.Named("leaderboard-mirror"),
	}
}

var _ LeaderboardMirror = (*redisLeaderboardMirror)(nil)

func (m *redisLeaderboardMirror) ranksKey() string { return m.prefix + ":ranks" }
func (m *redisLeaderboardMirror) metaKey() string  { return m.prefix + ":meta" }

func (m *redisLeaderboardMirror) generationKey(id int64, name string) string {
	return fmt.Sprintf("%s:gen:%d:%s", m.prefix, id, name)
}

func (m *redisLeaderboardMirror) Publish(ctx context.Context, snapshot *models.LeaderboardSnapshot) error {
	genRanks := m.generationKey(snapshot.ID, "ranks")
	genMeta := m.generationKey(snapshot.ID, "meta")

	members := make([]redis.Z, 0, len(snapshot.Entries))
	for _, e := range snapshot.Entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode entry for user %d: %w", e.UserID, err)
		}
		members = append(members, redis.Z{Score: float64(e.Rank), Member: string(data)})
	}

	_, err := m.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, genRanks, genMeta)
		if len(members) > 0 {
			pipe.ZAdd(ctx, genRanks, members...)
			pipe.Expire(ctx, genRanks, generationTTL)
		}
		pipe.HSet(ctx, genMeta,
			"snapshot_id", snapshot.ID,
			"computed_at", snapshot.ComputedAt.UTC().Format(time.RFC3339Nano),
			"entry_count", len(snapshot.Entries))
		pipe.Expire(ctx, genMeta, generationTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write leaderboard generation: %w", err)
	}

	keys := []string{m.metaKey(), m.ranksKey(), genMeta, genRanks}
	swapped, err := swapGeneration.Run(ctx, m.client, keys, snapshot.ID).Int()
	if err != nil {
		return fmt.Errorf("failed to swap leaderboard generation: %w", err)
	}
	if swapped == 0 {
		m.logger.Debug("Skipped stale leaderboard generation",
			zap.Int64("snapshot_id", snapshot.ID))
		return nil
	}

	m.logger.Debug("Leaderboard mirrored",
		zap.Int64("snapshot_id", snapshot.ID),
		zap.Int("entries", len(snapshot.Entries)))
	return nil
}

func (m *redisLeaderboardMirror) Invalidate(ctx context.Context) error {
	if err := m.client.Del(ctx, m.metaKey(), m.ranksKey()).Err(); err != nil {
		return fmt.Errorf("failed to invalidate leaderboard mirror: %w", err)
	}
	return nil
}

func (m *redisLeaderboardMirror) Current(ctx context.Context, limit int) (*models.LeaderboardSnapshot, error) {
	var ranks *redis.StringSliceCmd
	var meta *redis.MapStringStringCmd
	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		ranks = pipe.ZRange(ctx, m.ranksKey(), 0, int64(limit)-1)
		meta = pipe.HGetAll(ctx, m.metaKey())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard mirror: %w", err)
	}

	fields := meta.Val()
	if len(fields) == 0 {
		return nil, ErrMirrorMiss
	}

	snapshot := &models.LeaderboardSnapshot{Entries: make([]models.LeaderboardEntry, 0, len(ranks.Val()))}
	if snapshot.ID, err = strconv.ParseInt(fields["snapshot_id"], 10, 64); err != nil {
		return nil, fmt.Errorf("invalid mirrored snapshot id: %w", err)
	}
	if snapshot.ComputedAt, err = time.Parse(time.RFC3339Nano, fields["computed_at"]); err != nil {
		return nil, fmt.Errorf("invalid mirrored computed_at: %w", err)
	}

	for _, member := range ranks.Val() {
		var e models.LeaderboardEntry
		if err := json.Unmarshal([]byte(member), &e); err != nil {
			return nil, fmt.Errorf("invalid mirrored entry: %w", err)
		}
		snapshot.Entries = append(snapshot.Entries, e)
	}
	return snapshot, nil
}
