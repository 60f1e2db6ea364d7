// Package stateread implements the State Reader (C5): reconstructing the
// logical state of one or more named sets in a room at a query time.
package stateread

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/fluxroom/timeline/internal/apperror"
	"github.com/fluxroom/timeline/internal/storage"
	"github.com/fluxroom/timeline/internal/types"
)

// MaxSets is the upper bound on how many sets a single request may read
// (§4.5).
const MaxSets = 10

// MaxLimit is the row cap List/SetState enforce regardless of the caller's
// requested limit.
const MaxLimit = 100

// DefaultLimit is applied when the caller omits Limit entirely.
const DefaultLimit = MaxLimit

// Request is the state.read method's payload.
type Request struct {
	RoomID uuid.UUID
	Sets   []string

	Attribute *types.Attribute

	// OccurredAt is the query cursor: SetState returns the latest version
	// per label with OriginalOccurredAt strictly before it. Nil defaults to
	// one nanosecond past the room's close (§4.5: "after the end of the
	// room"), so a room-closed read sees everything.
	OccurredAt *int64

	Limit int
}

// SetResult is one set's entry in a Response: at most one of Event or
// Events is populated, per §4.5's polymorphic response shape (grounded on
// _examples/original_source/src/app/endpoint/state.rs, whose handler
// inlines an event object when the set resolves to a single unlabeled row,
// and a JSON array otherwise). With neither populated it serializes as an
// empty array.
type SetResult struct {
	Event  *types.Event
	Events []*types.Event
}

// MarshalJSON emits the bare event when Event is set, otherwise the array
// — the tagged-sum serialization §9's design note describes, so the core
// never constructs untyped JSON.
func (r SetResult) MarshalJSON() ([]byte, error) {
	if r.Event != nil {
		return json.Marshal(r.Event)
	}
	if r.Events == nil {
		return json.Marshal([]*types.Event{})
	}
	return json.Marshal(r.Events)
}

// Response is the state.read result: one entry per requested set, plus a
// sibling HasNext flag populated only when exactly one set was requested
// (§4.5). It flattens to a single JSON object keyed by set name with
// "has_next" as an additional sibling key, matching the donor handler's
// flat `JsonMap` response.
type Response struct {
	Sets    map[string]SetResult
	HasNext *bool
}

// MarshalJSON flattens Sets and the optional HasNext into one object.
func (r Response) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(r.Sets)+1)
	for set, result := range r.Sets {
		data, err := result.MarshalJSON()
		if err != nil {
			return nil, err
		}
		out[set] = data
	}
	if r.HasNext != nil {
		data, err := json.Marshal(*r.HasNext)
		if err != nil {
			return nil, err
		}
		out["has_next"] = data
	}
	return json.Marshal(out)
}

// Read executes §4.5 against store.
func Read(ctx context.Context, store storage.EventStore, room *types.Room, req Request) (Response, error) {
	if len(req.Sets) == 0 || len(req.Sets) > MaxSets {
		return Response{}, apperror.New(apperror.KindInvalidStateSets, "state.read.validate_sets",
			fmt.Sprintf("sets must name between 1 and %d sets, got %d", MaxSets, len(req.Sets)))
	}

	at, err := resolveOccurredAt(room, req.OccurredAt)
	if err != nil {
		return Response{}, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	single := len(req.Sets) == 1
	resp := Response{Sets: make(map[string]SetResult, len(req.Sets))}
	for _, set := range req.Sets {
		events, err := store.SetState(ctx, room.ID, set, at, limit, req.Attribute)
		if err != nil {
			return Response{}, apperror.Wrap(apperror.KindDBQueryFailed, "state.read.set_state", err)
		}

		result := SetResult{}
		if len(events) == 1 && events[0].Label == nil {
			result.Event = events[0]
		} else {
			result.Events = events
		}

		if single {
			total, err := store.CountSetState(ctx, room.ID, set, at, req.Attribute)
			if err != nil {
				return Response{}, apperror.Wrap(apperror.KindDBQueryFailed, "state.read.count_set_state", err)
			}
			hasNext := total > limit
			resp.HasNext = &hasNext
		}

		resp.Sets[set] = result
	}
	return resp, nil
}

// resolveOccurredAt returns the caller's cursor, or the default of
// closed_at - opened_at + 1 ns when omitted (§4.5).
func resolveOccurredAt(room *types.Room, cursor *int64) (int64, error) {
	if cursor != nil {
		return *cursor, nil
	}
	duration, ok := room.DurationNanos()
	if !ok {
		return 0, apperror.New(apperror.KindInvalidRoomTime, "state.read.default_cursor",
			fmt.Sprintf("room %s has no closed_at; occurred_at must be supplied explicitly", room.ID))
	}
	return duration + 1, nil
}
