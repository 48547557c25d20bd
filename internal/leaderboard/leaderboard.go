// Package leaderboard keeps a fast, eventually consistent top-N view of the
// attendance standings, fed by attendance.marked events.
package leaderboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"geoattend/internal/attendance"
)

// Cache is a ranking of users by attended days.
type Cache interface {
	// Record applies one marked event. Counts never go down, so replays and
	// out-of-order delivery are harmless.
	Record(ctx context.Context, ev attendance.MarkedEvent) error
	// Top returns the n best standings; n <= 0 returns all of them.
	Top(ctx context.Context, n int) ([]attendance.Standing, error)
	// Seed replaces the cache content with standings.
	Seed(ctx context.Context, standings []attendance.Standing) error
}

// MemoryCache is a Cache for a single process.
type MemoryCache struct {
	mu   sync.RWMutex
	rows map[string]attendance.Standing
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{rows: make(map[string]attendance.Standing)}
}

func (c *MemoryCache) Record(_ context.Context, ev attendance.MarkedEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	row := c.rows[ev.Key]
	row.Key = ev.Key
	if ev.Days > row.Days {
		row.Days = ev.Days
	}
	if ev.Name != "" {
		row.Name = ev.Name
	}
	if ev.Email != "" {
		row.Email = ev.Email
	}
	c.rows[ev.Key] = row
	return nil
}

func (c *MemoryCache) Top(_ context.Context, n int) ([]attendance.Standing, error) {
	c.mu.RLock()
	out := make([]attendance.Standing, 0, len(c.rows))
	for _, r := range c.rows {
		out = append(out, attendance.StandingOf(r.Key, r.Name, r.Email, r.Days))
	}
	c.mu.RUnlock()
	attendance.SortStandings(out)
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (c *MemoryCache) Seed(_ context.Context, standings []attendance.Standing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = make(map[string]attendance.Standing, len(standings))
	for _, s := range standings {
		c.rows[s.Key] = s
	}
	return nil
}

// RedisCache stores the ranking in a sorted set scored by days, with display
// names and emails in two hashes next to it.
type RedisCache struct {
	client *redis.Client
	key    string
}

// NewRedisCache creates a cache under key (default "attendance:leaderboard").
func NewRedisCache(client *redis.Client, key string) *RedisCache {
	if key == "" {
		key = "attendance:leaderboard"
	}
	return &RedisCache{client: client, key: key}
}

func (c *RedisCache) names() string  { return c.key + ":names" }
func (c *RedisCache) emails() string { return c.key + ":emails" }

func (c *RedisCache) Record(ctx context.Context, ev attendance.MarkedEvent) error {
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAddArgs(ctx, c.key, redis.ZAddArgs{
			GT:      true,
			Members: []redis.Z{{Score: float64(ev.Days), Member: ev.Key}},
		})
		if ev.Name != "" {
			p.HSet(ctx, c.names(), ev.Key, ev.Name)
		}
		if ev.Email != "" {
			p.HSet(ctx, c.emails(), ev.Key, ev.Email)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("leaderboard record %s: %w", ev.Key, err)
	}
	return nil
}

func (c *RedisCache) Top(ctx context.Context, n int) ([]attendance.Standing, error) {
	var (
		zs  []redis.Z
		err error
	)
	if n <= 0 {
		zs, err = c.client.ZRevRangeWithScores(ctx, c.key, 0, -1).Result()
	} else {
		zs, err = c.topWithTies(ctx, n)
	}
	if err != nil {
		return nil, fmt.Errorf("leaderboard top: %w", err)
	}
	if len(zs) == 0 {
		return []attendance.Standing{}, nil
	}

	keys := make([]string, len(zs))
	for i, z := range zs {
		keys[i] = z.Member.(string)
	}
	names, err := c.client.HMGet(ctx, c.names(), keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard names: %w", err)
	}
	emails, err := c.client.HMGet(ctx, c.emails(), keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard emails: %w", err)
	}

	out := make([]attendance.Standing, len(zs))
	for i, z := range zs {
		name, _ := names[i].(string)
		email, _ := emails[i].(string)
		out[i] = attendance.StandingOf(keys[i], name, email, int(z.Score))
	}
	attendance.SortStandings(out)
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// topWithTies returns the first n members plus every member tied with the
// n-th, so the tie order can be decided by key afterwards.
func (c *RedisCache) topWithTies(ctx context.Context, n int) ([]redis.Z, error) {
	head, err := c.client.ZRevRangeWithScores(ctx, c.key, int64(n-1), int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(head) == 0 {
		return c.client.ZRevRangeWithScores(ctx, c.key, 0, -1).Result()
	}
	return c.client.ZRevRangeByScoreWithScores(ctx, c.key, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", int(head[0].Score)),
		Max: "+inf",
	}).Result()
}

func (c *RedisCache) Seed(ctx context.Context, standings []attendance.Standing) error {
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, c.key, c.names(), c.emails())
		for _, s := range standings {
			p.ZAdd(ctx, c.key, redis.Z{Score: float64(s.Days), Member: s.Key})
			if s.Name != "" {
				p.HSet(ctx, c.names(), s.Key, s.Name)
			}
			if s.Email != "" {
				p.HSet(ctx, c.emails(), s.Key, s.Email)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("leaderboard seed: %w", err)
	}
	return nil
}
