package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StreamKind is the reserved event kind used for cut-start/cut-stop
// markers consumed by the gap analyzer and stripped from every destination
// room by the commit engine.
const StreamKind = "stream"

// CutDirection labels a stream event/change as the start or stop of a gap.
type CutDirection string

const (
	CutStart CutDirection = "start"
	CutStop  CutDirection = "stop"
)

// Event is a single immutable item appended to a room's log.
//
// Within a room the logical "set state" groups events by Set and picks, for
// each (Set, Label) pair, the row with the greatest OriginalOccurredAt that
// is not tombstoned. Unlabeled events are never deduplicated.
type Event struct {
	ID     uuid.UUID `json:"id"`
	RoomID uuid.UUID `json:"room_id"`
	Kind   string    `json:"kind"`
	// Set namespaces Label. Defaults to Kind when not supplied on insert.
	Set   string          `json:"set"`
	Label *string         `json:"label,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`

	// OccurredAt is nanoseconds relative to the room's OpenedAt. It is
	// rewritten by the commit engine's gap-squeeze arithmetic.
	OccurredAt int64 `json:"occurred_at"`

	// OriginalOccurredAt is a snapshot of OccurredAt taken at first insert.
	// It never changes, including across commits, and is the pagination
	// key for state.read.
	OriginalOccurredAt int64 `json:"original_occurred_at"`

	Attribute Attribute `json:"attribute,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Removed   bool      `json:"-"`
}

// EffectiveSet returns Set, defaulting to Kind when Set is empty — the
// insert-time default described in §4.1.
func (e *Event) EffectiveSet() string {
	if e.Set != "" {
		return e.Set
	}
	return e.Kind
}

// IsStreamCut reports whether the event is a cut-start/cut-stop marker fed
// to the gap analyzer, and if so which direction.
func (e *Event) IsStreamCut() (CutDirection, bool) {
	if e.Kind != StreamKind {
		return "", false
	}
	var payload struct {
		Cut string `json:"cut"`
	}
	if err := json.Unmarshal(e.Data, &payload); err != nil {
		return "", false
	}
	switch payload.Cut {
	case string(CutStart):
		return CutStart, true
	case string(CutStop):
		return CutStop, true
	default:
		return "", false
	}
}
