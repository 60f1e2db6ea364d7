// Package commit implements the Commit Engine (C4): given an edition and
// its source room, it produces a time-compressed destination room whose
// event log is the source log transformed by the edition's change set.
//
// The donor's equivalent operation expresses the event/change merge as a
// single Postgres FULL OUTER JOIN with inline ROW_NUMBER() tie-breaking.
// Dolt's MySQL wire protocol has no FULL OUTER JOIN, so this package fetches
// both sides as Go slices and performs the join, the gap-squeeze shift and
// the tie-break numbering in application code, grounded on the same
// per-row CASE rules (§4.4 step 6).
package commit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/fluxroom/timeline/internal/apperror"
	"github.com/fluxroom/timeline/internal/gapanalyzer"
	"github.com/fluxroom/timeline/internal/storage"
	"github.com/fluxroom/timeline/internal/types"
)

// Engine runs the commit operation against a storage.Store.
type Engine struct {
	Store storage.Store
}

// New constructs a commit Engine.
func New(store storage.Store) *Engine {
	return &Engine{Store: store}
}

// Commit executes §4.4 steps 1-8 and returns the destination room plus its
// modified segments.
func (e *Engine) Commit(ctx context.Context, edition *types.Edition, source *types.Room) (*types.Room, types.Segments, error) {
	totalNanos, ok := source.DurationNanos()
	if !ok || totalNanos <= 0 {
		return nil, nil, apperror.New(apperror.KindInvalidRoomTime, "commit.validate_time",
			fmt.Sprintf("room %s has an unbounded or non-positive duration", source.ID))
	}

	cutEvents, err := e.Store.CutEvents(ctx, source.ID)
	if err != nil {
		return nil, nil, err
	}

	allEvents, err := e.Store.ListAllByRoom(ctx, source.ID)
	if err != nil {
		return nil, nil, err
	}

	allChanges, err := e.Store.ListChanges(ctx, edition.ID)
	if err != nil {
		return nil, nil, err
	}

	eventByID := make(map[uuid.UUID]*types.Event, len(allEvents))
	for _, ev := range allEvents {
		eventByID[ev.ID] = ev
	}

	cutChanges := resolveCutChanges(allChanges, eventByID)
	gaps, err := gapanalyzer.CollectGaps(cutEvents, cutChanges)
	if err != nil {
		return nil, nil, apperror.Classify("commit.collect_gaps", err)
	}

	rows := mergeEventsAndChanges(allEvents, allChanges, eventByID)
	applyGapSqueeze(rows, gaps)
	assignTieBreak(rows)

	var destination *types.Room
	err = e.Store.RunInTransaction(ctx, func(ctx context.Context, tx storage.CommitStore) error {
		dest, err := tx.CloneRoom(ctx, source)
		if err != nil {
			return err
		}
		destination = dest

		for _, row := range rows {
			row.event.RoomID = dest.ID
			if _, err := tx.Insert(ctx, row.event); err != nil {
				return err
			}
		}

		if err := tx.DeleteByKind(ctx, dest.ID, types.StreamKind); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	segments, err := gapanalyzer.InvertSegments(gaps, totalNanos)
	if err != nil {
		return nil, nil, apperror.Wrap(apperror.KindDBQueryFailed, "commit.invert_segments", err)
	}
	return destination, segments, nil
}

// resolveCutChanges returns, among the edition's changes, those whose
// synthesized event kind is "stream" — the changes the gap analyzer must
// see alongside the source's real cut events (§4.4 step 3).
func resolveCutChanges(changes []*types.Change, eventByID map[uuid.UUID]*types.Event) []*types.Change {
	var out []*types.Change
	for _, c := range changes {
		kind, data, occurredAt, ok := synthesizedCutFields(c, eventByID)
		if !ok || kind != types.StreamKind {
			continue
		}
		resolved := *c
		resolved.EventData = data
		resolved.EventOccurredAt = &occurredAt
		out = append(out, &resolved)
	}
	return out
}

// synthesizedCutFields resolves the kind/data/occurred_at a change would
// give its synthesized event, coalescing against the source event for
// modifications. The fourth return is false for removals, which never
// synthesize an event.
func synthesizedCutFields(c *types.Change, eventByID map[uuid.UUID]*types.Event) (kind string, data *json.RawMessage, occurredAt int64, ok bool) {
	switch c.Kind {
	case types.ChangeAddition:
		if c.EventKind == nil || c.EventOccurredAt == nil {
			return "", nil, 0, false
		}
		return *c.EventKind, c.EventData, *c.EventOccurredAt, true
	case types.ChangeModification:
		var src *types.Event
		found := false
		if c.EventID != nil {
			src, found = eventByID[*c.EventID]
		}
		k := ""
		if c.EventKind != nil {
			k = *c.EventKind
		} else if found {
			k = src.Kind
		}
		at := int64(0)
		if c.EventOccurredAt != nil {
			at = *c.EventOccurredAt
		} else if found {
			at = src.OccurredAt
		} else {
			return "", nil, 0, false
		}
		d := c.EventData
		if d == nil && found {
			d = &src.Data
		}
		return k, d, at, true
	default:
		return "", nil, 0, false
	}
}
