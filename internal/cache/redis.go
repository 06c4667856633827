package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/go_pos/domain"
	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 12 * time.Hour

// SnapshotCache keeps the last successfully loaded content of each
// collection so a terminal can start with stale data when the store is
// unreachable.
type SnapshotCache struct {
	client   *redis.Client
	terminal string
	baseTTL  time.Duration
}

func NewSnapshotCache(client *redis.Client, terminalID string) *SnapshotCache {
	return &SnapshotCache{
		client:   client,
		terminal: terminalID,
		baseTTL:  DefaultTTL,
	}
}

func (c *SnapshotCache) Get(ctx context.Context, entity domain.EntityType) ([]json.RawMessage, error) {
	data, err := c.client.Get(ctx, c.key(entity)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("unmarshal %s snapshot failed: %w", entity.Plural(), err)
	}
	return raws, nil
}

func (c *SnapshotCache) Set(ctx context.Context, entity domain.EntityType, raws []json.RawMessage) error {
	if raws == nil {
		raws = []json.RawMessage{}
	}
	data, err := json.Marshal(raws)
	if err != nil {
		return fmt.Errorf("marshal %s snapshot failed: %w", entity.Plural(), err)
	}

	jitter := time.Duration(rand.Intn(30)) * time.Minute
	if err := c.client.Set(ctx, c.key(entity), data, c.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *SnapshotCache) key(entity domain.EntityType) string {
	return fmt.Sprintf("pos:%s:snapshot:%s", c.terminal, entity.Plural())
}
