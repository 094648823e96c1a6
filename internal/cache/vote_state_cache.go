package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/emilythestrangee/reddit-clone/voteledger/internal/models"
	"github.com/emilythestrangee/reddit-clone/voteledger/internal/votes"
)

const (
	noVote = "none"
	// versionField lives in the same hash as the states; item ids are UUIDs so it cannot collide.
	versionField = "_version"
)

// storeIfCurrentScript writes states only while the hash version still matches ARGV[1].
// ARGV[2] is the ttl in milliseconds, the rest are field/value pairs.
var storeIfCurrentScript = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], '_version')) or 0
if current ~= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 3))
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

// VoteStateCache keeps one hash per user: field = item id, value = up, down or none.
// Every invalidation bumps the hash version so a reader holding an older version cannot write back.
// The whole hash expires ttl after its last write.
type VoteStateCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ votes.StateCache = (*VoteStateCache)(nil)

func NewVoteStateCache(rdb *redis.Client, ttl time.Duration) *VoteStateCache {
	return &VoteStateCache{rdb: rdb, ttl: ttl}
}

func stateKey(userID uuid.UUID) string {
	return "vote_state:" + userID.String()
}

func (c *VoteStateCache) Lookup(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]models.VoteState, int64, error) {
	hits := make(map[uuid.UUID]models.VoteState, len(itemIDs))
	if len(itemIDs) == 0 {
		return hits, 0, nil
	}
	fields := make([]string, 0, len(itemIDs)+1)
	fields = append(fields, versionField)
	for _, id := range itemIDs {
		fields = append(fields, id.String())
	}

	vals, err := c.rdb.HMGet(ctx, stateKey(userID), fields...).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("hmget vote state: %w", err)
	}

	var version int64
	if s, ok := vals[0].(string); ok {
		if version, err = strconv.ParseInt(s, 10, 64); err != nil {
			return nil, 0, fmt.Errorf("parse vote state version %q: %w", s, err)
		}
	}
	for i, v := range vals[1:] {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if s == noVote {
			hits[itemIDs[i]] = models.VoteState{}
			continue
		}
		dir, err := models.ParseDirection(s)
		if err != nil {
			continue
		}
		hits[itemIDs[i]] = models.StateOf(dir)
	}
	return hits, version, nil
}

// Store writes states read at version. It is a no-op when the user's hash moved on since.
func (c *VoteStateCache) Store(ctx context.Context, userID uuid.UUID, version int64, states map[uuid.UUID]models.VoteState) error {
	if len(states) == 0 {
		return nil
	}
	args := make([]interface{}, 0, 2+2*len(states))
	args = append(args, version, c.ttl.Milliseconds())
	for id, st := range states {
		v := string(st.Direction())
		if v == "" {
			v = noVote
		}
		args = append(args, id.String(), v)
	}

	if err := storeIfCurrentScript.Run(ctx, c.rdb, []string{stateKey(userID)}, args...).Err(); err != nil {
		return fmt.Errorf("store vote state: %w", err)
	}
	return nil
}

func (c *VoteStateCache) Invalidate(ctx context.Context, userID, itemID uuid.UUID) error {
	key := stateKey(userID)
	pipe := c.rdb.TxPipeline()
	pipe.HDel(ctx, key, itemID.String())
	pipe.HIncrBy(ctx, key, versionField, 1)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("invalidate vote state: %w", err)
	}
	return nil
}
