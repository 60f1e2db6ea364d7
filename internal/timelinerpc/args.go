package timelinerpc

import (
	"time"

	"github.com/google/uuid"

	"github.com/fluxroom/timeline/internal/storage"
	"github.com/fluxroom/timeline/internal/types"
)

// EditionCreateArgs is edition.create's payload.
type EditionCreateArgs struct {
	RoomID uuid.UUID `json:"room_id"`
}

// EditionListArgs is edition.list's payload.
type EditionListArgs struct {
	RoomID        uuid.UUID  `json:"room_id"`
	LastCreatedAt *time.Time `json:"last_created_at,omitempty"`
	Limit         int        `json:"limit,omitempty"`
}

// EditionDeleteArgs is edition.delete's payload.
type EditionDeleteArgs struct {
	ID uuid.UUID `json:"id"`
}

// EditionCommitArgs is edition.commit's payload.
type EditionCommitArgs struct {
	ID uuid.UUID `json:"id"`
}

// EventListArgs is event.list's payload. LastOccurredAt supplements §6's
// table (which names only last_id): List's cursor is the (occurred_at, id)
// pair the storage layer's key-set pagination requires, so a bare last_id
// cannot resume a scan on its own.
type EventListArgs struct {
	RoomID         uuid.UUID  `json:"room_id"`
	Type           *string    `json:"type,omitempty"`
	LastID         *uuid.UUID `json:"last_id,omitempty"`
	LastOccurredAt *int64     `json:"last_occurred_at,omitempty"`
	Direction      string     `json:"direction,omitempty"`
	Limit          int        `json:"limit,omitempty"`
}

// StateReadArgs is state.read's payload.
type StateReadArgs struct {
	RoomID     uuid.UUID       `json:"room_id"`
	Sets       []string        `json:"sets"`
	Attribute  *types.Attribute `json:"attribute,omitempty"`
	OccurredAt *int64          `json:"occurred_at,omitempty"`
	Limit      int             `json:"limit,omitempty"`
}

// RoomDumpEventsArgs is room.dump_events's payload.
type RoomDumpEventsArgs struct {
	ID uuid.UUID `json:"id"`
}

// eventListDirection maps the client-supplied direction string to
// storage.Direction: storage.Backward when it names that, else Forward.
func eventListDirection(d string) storage.Direction {
	if d == string(storage.Backward) {
		return storage.Backward
	}
	return storage.Forward
}
