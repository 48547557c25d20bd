package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNewSQLiteFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "geoattend.db")

	db, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	assert.True(t, db.Healthy(ctx))
	assert.Equal(t, "sqlite3", db.Driver)

	var mode string
	require.NoError(t, db.Client.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	require.NoError(t, db.Close())
	assert.False(t, db.Healthy(ctx))
}

func TestNilHandles(t *testing.T) {
	var db *DB
	assert.False(t, db.Healthy(context.Background()))
	assert.NoError(t, db.Close())

	var r *Redis
	assert.False(t, r.Healthy(context.Background()))
	assert.NoError(t, r.Close())
}

func TestRedisHealthy(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedis(mr.Addr())
	defer r.Close()
	assert.True(t, r.Healthy(context.Background()))
	mr.Close()
	assert.False(t, r.Healthy(context.Background()))
}

func TestFirebaseClientOptions(t *testing.T) {
	assert.Empty(t, FirebaseOptions{}.ClientOptions())
	assert.Equal(t, []option.ClientOption{option.WithCredentialsFile("sa.json")},
		FirebaseOptions{CredentialsFile: "sa.json", CredentialsJSON: "{}"}.ClientOptions())
	assert.Len(t, FirebaseOptions{CredentialsJSON: "{}"}.ClientOptions(), 1)
}
