package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard remembers canonical event ids so a redelivered callback is not
// dispatched twice. The reconciler stays the idempotency authority; this is a
// cheap first line that absorbs provider retries. Forget releases an id whose
// dispatch failed, so the provider's redelivery is not mistaken for a replay.
type ReplayGuard interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type redisReplayGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func (g *redisReplayGuard) Seen(ctx context.Context, eventID string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.prefix+":"+eventID, "1", g.ttl).Result()
	if err != nil {
		return false, err
	}
	// false => key existed => duplicate delivery
	return !ok, nil
}

func (g *redisReplayGuard) Forget(ctx context.Context, eventID string) error {
	return g.client.Del(ctx, g.prefix+":"+eventID).Err()
}

type memoryReplayGuard struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	ttl    time.Duration
	nextGC time.Time
}

func newMemoryReplayGuard(ttl time.Duration) *memoryReplayGuard {
	now := time.Now()
	return &memoryReplayGuard{
		seen:   make(map[string]time.Time),
		ttl:    ttl,
		nextGC: now.Add(ttl),
	}
}

func (g *memoryReplayGuard) Seen(_ context.Context, eventID string) (bool, error) {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if exp, ok := g.seen[eventID]; ok && exp.After(now) {
		return true, nil
	}

	g.seen[eventID] = now.Add(g.ttl)
	if now.After(g.nextGC) {
		for id, exp := range g.seen {
			if exp.Before(now) {
				delete(g.seen, id)
			}
		}
		g.nextGC = now.Add(g.ttl)
	}

	return false, nil
}

func (g *memoryReplayGuard) Forget(_ context.Context, eventID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, eventID)
	return nil
}

// NewReplayGuard builds a Redis-backed guard and falls back to in-memory when
// Redis is unreachable or unconfigured.
func NewReplayGuard(addr, pass string, db int, ttl time.Duration) (ReplayGuard, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if addr == "" {
		return newMemoryReplayGuard(ttl), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pass,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return newMemoryReplayGuard(ttl), err
	}

	return &redisReplayGuard{
		client: client,
		prefix: "webhook:event",
		ttl:    ttl,
	}, nil
}
