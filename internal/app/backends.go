// Package app builds the backends selected by config for the api and worker
// binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"geoattend/internal/attendance"
	"geoattend/internal/config"
	"geoattend/internal/identity"
	"geoattend/internal/leaderboard"
	"geoattend/internal/queue"
	"geoattend/internal/store"
)

// Backends holds every opened connection. Nil fields are not configured.
type Backends struct {
	Store    attendance.Store
	DB       *store.DB
	Redis    *store.Redis
	Firebase *store.Firebase
	log      *slog.Logger
}

// Open connects the store and, when cfg needs them, Redis and Firebase.
func Open(ctx context.Context, cfg config.App, log *slog.Logger) (*Backends, error) {
	b := &Backends{log: log}

	needAuth := cfg.IdentityProvider == "firebase"
	needFirestore := cfg.StoreBackend == "firestore"
	if needAuth || needFirestore {
		fb, err := store.NewFirebase(ctx, store.FirebaseOptions{
			ProjectID:       cfg.FirebaseProjectID,
			CredentialsFile: cfg.FirebaseCredentialsFile,
			CredentialsJSON: cfg.FirebaseCredentialsJSON,
		}, needFirestore, needAuth)
		if err != nil {
			return nil, err
		}
		b.Firebase = fb
	}

	switch cfg.StoreBackend {
	case "memory":
		log.Warn("using in-memory attendance store; data is lost on restart")
		b.Store = attendance.NewMemoryStore()
	case "firestore":
		b.Store = attendance.NewFirestoreStore(b.Firebase.Firestore, cfg.FirestoreCollection)
	case "postgres", "sqlite":
		var (
			db      *store.DB
			err     error
			dialect = attendance.Postgres
		)
		if cfg.StoreBackend == "postgres" {
			db, err = store.NewDB(ctx, cfg.DatabaseURL)
		} else {
			dialect = attendance.SQLite
			db, err = store.NewSQLite(ctx, cfg.SQLitePath)
		}
		if err != nil {
			b.Close()
			return nil, err
		}
		b.DB = db
		repo := attendance.NewRepository(db.Client, dialect)
		if err := repo.Migrate(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.Store = repo
	default:
		b.Close()
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	if cfg.NeedsRedis() {
		b.Redis = store.NewRedis(cfg.RedisAddr)
		if !b.Redis.Healthy(ctx) {
			log.Warn("redis not reachable at startup", "addr", cfg.RedisAddr)
		}
	}
	log.Info("backends ready", "store", cfg.StoreBackend, "queue", cfg.QueueBackend, "lock", cfg.LockBackend)
	return b, nil
}

// Queue returns the configured queue.
func (b *Backends) Queue(cfg config.App) queue.Queue {
	if cfg.QueueBackend == "redis" && b.Redis != nil {
		return queue.NewRedisQueue(b.Redis.Client, cfg.QueueKey, b.log)
	}
	return queue.NewInMemory(256)
}

// Cache returns a Redis leaderboard cache when Redis is available, an
// in-process one otherwise.
func (b *Backends) Cache(cfg config.App) leaderboard.Cache {
	if b.Redis != nil {
		return leaderboard.NewRedisCache(b.Redis.Client, cfg.LeaderboardKey)
	}
	return leaderboard.NewMemoryCache()
}

// Locker returns the configured per-user mark lock.
func (b *Backends) Locker(cfg config.App) attendance.Locker {
	if cfg.LockBackend == "redis" && b.Redis != nil {
		return attendance.NewRedisLocker(b.Redis.Client, "", cfg.LockTTL)
	}
	return attendance.NewKeyedLocker()
}

// Provider returns the identity provider verifying sign-in tokens.
func (b *Backends) Provider(cfg config.App) identity.Provider {
	if cfg.IdentityProvider == "dev" {
		b.log.Warn("dev identity provider accepts unverified tokens")
		return identity.DevProvider{}
	}
	return identity.NewFirebaseProvider(b.Firebase.Auth)
}

// Health lists the checks exposed by /healthz.
func (b *Backends) Health() map[string]func(context.Context) bool {
	checks := map[string]func(context.Context) bool{}
	if b.DB != nil {
		checks["db"] = b.DB.Healthy
	}
	if b.Redis != nil {
		checks["redis"] = b.Redis.Healthy
	}
	return checks
}

// Seed loads the authoritative standings into cache.
func (b *Backends) Seed(ctx context.Context, cache leaderboard.Cache) error {
	records, err := b.Store.List(ctx)
	if err != nil {
		return fmt.Errorf("seed leaderboard: %w", err)
	}
	return cache.Seed(ctx, attendance.Rank(records))
}

// Close releases every connection.
func (b *Backends) Close() {
	if b.DB != nil {
		_ = b.DB.Close()
	}
	if b.Redis != nil {
		_ = b.Redis.Close()
	}
	b.Firebase.Close()
}
