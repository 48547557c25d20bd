package attendance

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventMarked is the queue message type published after a new day is recorded.
const EventMarked = "attendance.marked"

// MarkedEvent announces that a user gained an attended day.
type MarkedEvent struct {
	ID    string    `json:"id"`
	Key   string    `json:"key"`
	Name  string    `json:"name,omitempty"`
	Email string    `json:"email"`
	Date  string    `json:"date"`
	Days  int       `json:"days"`
	At    time.Time `json:"at"`
}

// NewMarkedEvent describes rec right after date was added to it.
func NewMarkedEvent(rec Record, date string, at time.Time) MarkedEvent {
	return MarkedEvent{
		ID:    uuid.NewString(),
		Key:   rec.Key,
		Name:  rec.Name,
		Email: rec.Email,
		Date:  date,
		Days:  len(rec.Dates),
		At:    at.UTC(),
	}
}

// Encode serializes the event for the queue.
func (e MarkedEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeMarkedEvent parses a queue payload.
func DecodeMarkedEvent(b []byte) (MarkedEvent, error) {
	var e MarkedEvent
	if err := json.Unmarshal(b, &e); err != nil {
		return MarkedEvent{}, fmt.Errorf("decode marked event: %w", err)
	}
	if e.Key == "" || !ValidDate(e.Date) || e.Days < 1 {
		return MarkedEvent{}, fmt.Errorf("decode marked event: incomplete event %+v", e)
	}
	return e, nil
}
