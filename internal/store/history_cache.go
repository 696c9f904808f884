package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/normanking/aura-orchestrator/internal/types"
)

// HistoryCache write-through-mirrors the Conversation Handler's bounded,
// in-process history to Redis so a restarted host process can rehydrate a
// user's recent conversational context. It is a mirror, not the source of
// truth: the in-memory history in internal/handlers/conversation always
// governs what is sent to the reasoning collaborator.
type HistoryCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewHistoryCache connects to addr/db and verifies reachability with a
// short-timeout ping.
func NewHistoryCache(addr string, db int, ttl time.Duration) (*HistoryCache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: redis ping failed: %w", err)
	}

	return &HistoryCache{rdb: rdb, ttl: ttl}, nil
}

func key(sessionID string) string {
	return "aura:history:" + sessionID
}

// Mirror overwrites the cached turn list for sessionID with turns.
func (c *HistoryCache) Mirror(ctx context.Context, sessionID string, turns []types.ConversationTurn) error {
	payload, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("store: marshalling history: %w", err)
	}
	if err := c.rdb.Set(ctx, key(sessionID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("store: writing history cache: %w", err)
	}
	return nil
}

// Load returns the cached turn list for sessionID, or nil if absent.
func (c *HistoryCache) Load(ctx context.Context, sessionID string) ([]types.ConversationTurn, error) {
	raw, err := c.rdb.Get(ctx, key(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: reading history cache: %w", err)
	}
	var turns []types.ConversationTurn
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, fmt.Errorf("store: unmarshalling history cache: %w", err)
	}
	return turns, nil
}

// Close releases the underlying Redis connection pool.
func (c *HistoryCache) Close() error {
	return c.rdb.Close()
}
