// Package worker applies queued attendance events to the leaderboard cache.
package worker

import (
	"context"
	"log/slog"

	"geoattend/internal/attendance"
	"geoattend/internal/leaderboard"
	"geoattend/internal/metrics"
	"geoattend/internal/queue"
)

// Run consumes q until ctx is done. Messages of unknown type and payloads
// that fail to decode are logged and skipped.
func Run(ctx context.Context, q queue.Queue, cache leaderboard.Cache, log *slog.Logger) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	log.Info("worker started, waiting for messages")
	for msg := range messages {
		Handle(ctx, msg, cache, log)
	}
	log.Info("worker stopped")
	return nil
}

// Handle processes a single message.
func Handle(ctx context.Context, msg queue.Message, cache leaderboard.Cache, log *slog.Logger) {
	if msg.Type != attendance.EventMarked {
		metrics.Event("skipped")
		log.Debug("ignoring message", "id", msg.ID, "type", msg.Type)
		return
	}
	ev, err := attendance.DecodeMarkedEvent(msg.Body)
	if err != nil {
		metrics.Event("invalid")
		log.Warn("dropping event", "id", msg.ID, "error", err)
		return
	}
	if err := cache.Record(ctx, ev); err != nil {
		metrics.Event("failed")
		log.Error("leaderboard update failed", "id", msg.ID, "key", ev.Key, "error", err)
		return
	}
	metrics.Event("processed")
	log.Debug("event processed", "id", msg.ID, "key", ev.Key, "days", ev.Days)
}
