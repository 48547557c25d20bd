package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoattend/internal/attendance"
	"geoattend/internal/leaderboard"
	"geoattend/internal/queue"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func marked(t *testing.T, rec attendance.Record, date string) queue.Message {
	t.Helper()
	body, err := attendance.NewMarkedEvent(rec, date, time.Now()).Encode()
	require.NoError(t, err)
	return queue.NewMessage(attendance.EventMarked, body)
}

func TestRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := queue.NewInMemory(8)
	cache := leaderboard.NewMemoryCache()

	require.NoError(t, q.Publish(ctx, queue.NewMessage("something.else", []byte(`{}`))))
	require.NoError(t, q.Publish(ctx, queue.NewMessage(attendance.EventMarked, []byte(`{"key":""}`))))
	require.NoError(t, q.Publish(ctx, marked(t, attendance.Record{Key: "a", Name: "Al", Email: "a@x.io", Dates: []string{"2024-01-01"}}, "2024-01-01")))
	require.NoError(t, q.Publish(ctx, marked(t, attendance.Record{Key: "a", Name: "Al", Email: "a@x.io", Dates: []string{"2024-01-01", "2024-01-02"}}, "2024-01-02")))

	done := make(chan error, 1)
	go func() { done <- Run(ctx, q, cache, quiet) }()

	require.Eventually(t, func() bool {
		top, _ := cache.Top(ctx, 1)
		return len(top) == 1 && top[0].Days == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	top, err := cache.Top(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []attendance.Standing{{Key: "a", Name: "Al", Email: "a@x.io", Days: 2}}, top)
}

type brokenCache struct{ leaderboard.Cache }

func (brokenCache) Record(context.Context, attendance.MarkedEvent) error {
	return errors.New("redis down")
}

func TestHandleCacheFailure(t *testing.T) {
	msg := marked(t, attendance.Record{Key: "a", Email: "a@x.io", Dates: []string{"2024-01-01"}}, "2024-01-01")
	assert.NotPanics(t, func() {
		Handle(context.Background(), msg, brokenCache{}, quiet)
	})
}
