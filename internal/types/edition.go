package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Edition is a named staging area of changes to be applied when producing a
// modified duplicate of a room. Many editions may exist per source room;
// they commit independently of one another.
type Edition struct {
	ID           uuid.UUID `json:"id"`
	SourceRoomID uuid.UUID `json:"source_room_id"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChangeKind is the kind of mutation a Change applies to the source event
// log when an edition commits.
type ChangeKind string

const (
	ChangeAddition     ChangeKind = "addition"
	ChangeModification ChangeKind = "modification"
	ChangeRemoval      ChangeKind = "removal"
)

// Change is an individual addition, modification or removal within an
// edition. It never mutates the original event row; it is applied only at
// commit time by the commit engine's full outer join.
type Change struct {
	ID        uuid.UUID  `json:"id"`
	EditionID uuid.UUID  `json:"edition_id"`
	Kind      ChangeKind `json:"kind"`

	// EventID is required for modification/removal, absent for addition.
	EventID *uuid.UUID `json:"event_id,omitempty"`

	// Overrides for editable event fields. Only EventKind, EventOccurredAt
	// and EventCreatedBy are mandatory for an addition; the rest fall back to
	// the source event's values for a modification.
	EventKind       *string          `json:"event_kind,omitempty"`
	EventSet        *string          `json:"event_set,omitempty"`
	EventLabel      *string          `json:"event_label,omitempty"`
	EventData       *json.RawMessage `json:"event_data,omitempty"`
	EventOccurredAt *int64           `json:"event_occurred_at,omitempty"`
	EventCreatedBy  *string          `json:"event_created_by,omitempty"`
}

// Validate checks the integrity rules from §3's "Change" section that are
// independent of any particular event row (id-reference checks live in the
// commit engine, which has the joined rows in hand).
func (c *Change) Validate() error {
	switch c.Kind {
	case ChangeAddition:
		if c.EventID != nil {
			return errAdditionHasEventID
		}
		if c.EventKind == nil || c.EventOccurredAt == nil || c.EventCreatedBy == nil {
			return errAdditionMissingFields
		}
	case ChangeModification, ChangeRemoval:
		if c.EventID == nil {
			return errChangeMissingEventID
		}
	default:
		return errUnknownChangeKind
	}
	return nil
}
