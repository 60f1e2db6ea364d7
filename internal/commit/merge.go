package commit

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fluxroom/timeline/internal/gapanalyzer"
	"github.com/fluxroom/timeline/internal/types"
)

// synthesizedRow pairs a destination-bound event with the occurred_at it
// carried before gap-squeeze, so the tie-break pass can bucket rows by
// their squeezed value while still ordering within a bucket by CreatedAt.
type synthesizedRow struct {
	event          *types.Event
	baseOccurredAt int64
}

// mergeEventsAndChanges implements §4.4 step 6's per-row rule table over
// the full outer join of source events and edition changes keyed by
// change.event_id = event.id.
func mergeEventsAndChanges(allEvents []*types.Event, allChanges []*types.Change, eventByID map[uuid.UUID]*types.Event) []*synthesizedRow {
	changeByEventID := make(map[uuid.UUID]*types.Change, len(allChanges))
	for _, c := range allChanges {
		if c.EventID != nil {
			changeByEventID[*c.EventID] = c
		}
	}

	var rows []*synthesizedRow
	for _, ev := range allEvents {
		ch, hasChange := changeByEventID[ev.ID]
		switch {
		case hasChange && ch.Kind == types.ChangeRemoval:
			continue
		case hasChange && ch.Kind == types.ChangeModification:
			merged := applyModification(ev, ch)
			rows = append(rows, &synthesizedRow{event: merged, baseOccurredAt: merged.OccurredAt})
		default:
			passthrough := *ev
			passthrough.ID = uuid.New()
			rows = append(rows, &synthesizedRow{event: &passthrough, baseOccurredAt: passthrough.OccurredAt})
		}
	}

	for _, ch := range allChanges {
		if ch.Kind != types.ChangeAddition {
			continue
		}
		synth := synthesizeAddition(ch)
		rows = append(rows, &synthesizedRow{event: synth, baseOccurredAt: synth.OccurredAt})
	}

	return rows
}

// applyModification takes change fields where present, else the source
// event's — the donor's "modification" CASE branch.
func applyModification(ev *types.Event, ch *types.Change) *types.Event {
	out := *ev
	out.ID = uuid.New()

	if ch.EventKind != nil {
		out.Kind = *ch.EventKind
	}
	out.Set = coalesceNonEmpty(derefOrEmpty(ch.EventSet), ev.Set, derefOrEmpty(ch.EventKind), ev.Kind)
	if ch.EventLabel != nil {
		out.Label = ch.EventLabel
	}
	if ch.EventData != nil {
		out.Data = *ch.EventData
	}
	if ch.EventOccurredAt != nil {
		out.OccurredAt = *ch.EventOccurredAt
	}
	// created_by/created_at/original_occurred_at/attribute are preserved
	// from the source event; a modification never rewrites provenance.
	return &out
}

// synthesizeAddition builds a brand-new destination event purely from
// change fields — the donor's "addition" CASE branch. OriginalOccurredAt is
// left zero so the storage layer's Insert defaults it to the final
// (squeezed, tie-broken) OccurredAt, since this is the event's first ever
// insert.
func synthesizeAddition(ch *types.Change) *types.Event {
	return &types.Event{
		ID:         uuid.New(),
		Kind:       derefOrEmpty(ch.EventKind),
		Set:        coalesceNonEmpty(derefOrEmpty(ch.EventSet), derefOrEmpty(ch.EventKind)),
		Label:      ch.EventLabel,
		Data:       derefData(ch.EventData),
		OccurredAt: derefOrZero(ch.EventOccurredAt),
		CreatedBy:  derefOrEmpty(ch.EventCreatedBy),
		CreatedAt:  time.Now().UTC(),
	}
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefOrZero(i *int64) int64 {
	if i == nil {
		return 0
	}
	return *i
}

func derefData(d *json.RawMessage) json.RawMessage {
	if d == nil {
		return nil
	}
	return *d
}

func coalesceNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

// applyGapSqueeze rewrites every row's OccurredAt to its gap-squeezed value.
func applyGapSqueeze(rows []*synthesizedRow, gaps []types.Gap) {
	for _, r := range rows {
		r.event.OccurredAt = gapanalyzer.Squeeze(r.baseOccurredAt, gaps)
	}
}

// assignTieBreak disambiguates rows that collapsed onto the same squeezed
// OccurredAt: within each bucket, order by CreatedAt ascending and add
// rowIndex nanoseconds so values are strictly increasing. The first row in
// a bucket keeps its exact squeezed value (§4.4 step 6).
func assignTieBreak(rows []*synthesizedRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].event.OccurredAt != rows[j].event.OccurredAt {
			return rows[i].event.OccurredAt < rows[j].event.OccurredAt
		}
		return rows[i].event.CreatedAt.Before(rows[j].event.CreatedAt)
	})

	bucketStart := 0
	for i := 1; i <= len(rows); i++ {
		if i == len(rows) || rows[i].event.OccurredAt != rows[bucketStart].event.OccurredAt {
			base := rows[bucketStart].event.OccurredAt
			for j := bucketStart; j < i; j++ {
				rows[j].event.OccurredAt = base + int64(j-bucketStart)
			}
			bucketStart = i
		}
	}
}
