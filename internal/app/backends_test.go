package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoattend/internal/attendance"
	"geoattend/internal/config"
	"geoattend/internal/identity"
	"geoattend/internal/leaderboard"
	"geoattend/internal/queue"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func devConfig() config.App {
	return config.App{
		StoreBackend:     "memory",
		QueueBackend:     "memory",
		LockBackend:      "memory",
		IdentityProvider: "dev",
	}
}

func TestOpenMemory(t *testing.T) {
	ctx := context.Background()
	cfg := devConfig()
	b, err := Open(ctx, cfg, quiet)
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &attendance.MemoryStore{}, b.Store)
	assert.IsType(t, &queue.InMemory{}, b.Queue(cfg))
	assert.IsType(t, &leaderboard.MemoryCache{}, b.Cache(cfg))
	assert.IsType(t, &attendance.KeyedLocker{}, b.Locker(cfg))
	assert.Equal(t, identity.DevProvider{}, b.Provider(cfg))
	assert.Empty(t, b.Health())
}

func TestOpenSQLiteAndRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cfg := devConfig()
	cfg.StoreBackend = "sqlite"
	cfg.SQLitePath = filepath.Join(t.TempDir(), "att.db")
	cfg.QueueBackend = "redis"
	cfg.LockBackend = "redis"
	cfg.RedisAddr = mr.Addr()

	b, err := Open(ctx, cfg, quiet)
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &attendance.Repository{}, b.Store)
	assert.IsType(t, &queue.RedisQueue{}, b.Queue(cfg))
	assert.IsType(t, &attendance.RedisLocker{}, b.Locker(cfg))
	checks := b.Health()
	require.Contains(t, checks, "db")
	require.Contains(t, checks, "redis")
	assert.True(t, checks["db"](ctx))
	assert.True(t, checks["redis"](ctx))

	require.NoError(t, b.Store.AppendDate(ctx, "ann_x_io", "2024-01-01", "Ann", "ann@x.io"))
	cache := b.Cache(cfg)
	require.NoError(t, b.Seed(ctx, cache))
	top, err := cache.Top(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []attendance.Standing{{Key: "ann_x_io", Name: "Ann", Email: "ann@x.io", Days: 1}}, top)
}

func TestOpenUnknownStore(t *testing.T) {
	cfg := devConfig()
	cfg.StoreBackend = "mongo"
	_, err := Open(context.Background(), cfg, quiet)
	assert.Error(t, err)
}
