// Package types defines the core data model shared by every component of
// the timeline service: rooms, events, editions, changes and segments.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Room is a bounded collaborative session containing an event log.
//
// Rooms are created by external ingestion and are immutable from the core's
// point of view except that ClosedAt may be clamped and SourceRoomID set
// when a room is produced by the commit engine.
type Room struct {
	ID              uuid.UUID      `json:"id"`
	Audience        string         `json:"audience"`
	OpenedAt        time.Time      `json:"-"`
	ClosedAt        *time.Time     `json:"-"`
	Tags            map[string]any `json:"tags,omitempty"`
	SourceRoomID    *uuid.UUID     `json:"source_room_id,omitempty"`
	PreserveHistory bool           `json:"preserve_history"`
}

// Duration returns the room's wall-clock span. A nil ClosedAt means the room
// is still open; callers that need a bound (commit, default pagination
// cursor) must reject that case explicitly.
func (r *Room) Duration() (time.Duration, bool) {
	if r.ClosedAt == nil {
		return 0, false
	}
	return r.ClosedAt.Sub(r.OpenedAt), true
}

// DurationNanos returns the room duration in nanoseconds, the unit
// `occurred_at` is measured in relative to OpenedAt.
func (r *Room) DurationNanos() (int64, bool) {
	d, ok := r.Duration()
	if !ok {
		return 0, false
	}
	return d.Nanoseconds(), true
}

// timeBounds is the wire shape for a room's half-open time interval,
// serialized as a two-element tuple of unix seconds with null for an
// unbounded end — mirrors the donor project's "ts_seconds_bound_tuple"
// convention for room time.
type timeBounds [2]*int64

// MarshalTimeBounds produces the `[opened_at, closed_at)` wire tuple.
func (r *Room) MarshalTimeBounds() timeBounds {
	opened := r.OpenedAt.Unix()
	var closed *int64
	if r.ClosedAt != nil {
		c := r.ClosedAt.Unix()
		closed = &c
	}
	return timeBounds{&opened, closed}
}
