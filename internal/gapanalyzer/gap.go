// Package gapanalyzer implements the stream-cut state machine and the
// gap-squeeze arithmetic the commit engine (C4) uses to time-compress a
// room, generalized from the donor's collect_gaps/invert_segments pair in
// its edition-commit operation.
package gapanalyzer

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/fluxroom/timeline/internal/apperror"
	"github.com/fluxroom/timeline/internal/types"
)

// errorf wraps one of apperror's cut-state sentinels with a descriptive
// message, so the caller can classify it with apperror.Classify while
// still reporting which event or change triggered it.
func errorf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// NanosecondsPerMillisecond converts a gap-squeezed occurred_at (ns) into
// the millisecond segments reported to clients (§4.4 step 8).
const NanosecondsPerMillisecond = int64(1_000_000)

type cutMark struct {
	occurredAt int64
	command    string
	sourceID   string
	isChange   bool
}

func cutMarkFromEvent(e *types.Event) (cutMark, bool) {
	dir, ok := e.IsStreamCut()
	if !ok {
		return cutMark{}, false
	}
	return cutMark{occurredAt: e.OccurredAt, command: string(dir), sourceID: e.ID.String()}, true
}

func cutMarkFromChange(c *types.Change) (cutMark, bool) {
	if c.EventData == nil || c.EventOccurredAt == nil {
		return cutMark{}, false
	}
	var payload struct {
		Cut string `json:"cut"`
	}
	if err := json.Unmarshal(*c.EventData, &payload); err != nil || payload.Cut == "" {
		return cutMark{}, false
	}
	return cutMark{occurredAt: *c.EventOccurredAt, command: payload.Cut, sourceID: c.ID.String(), isChange: true}, true
}

// CollectGaps merges a room's cut events with an edition's pending
// stream-kind changes into a list of (start, stop) gaps, per §4.3's
// nested-cut state machine: a queue of pending cut-starts, where each
// cut-stop closes the OLDEST still-open start (FIFO). Reentrant starts
// increase the nesting depth without discarding the earlier open start, so
// overlapping user-supplied cuts surface as separate, possibly overlapping
// gap entries rather than one merged span — §4.3 explicitly allows
// non-disjoint output and leaves overlap handling to the commit engine's
// gap-squeeze arithmetic. A cut-stop with nothing open, or an open start
// still pending at the end of input, is a fatal validation error.
func CollectGaps(cutEvents []*types.Event, cutChanges []*types.Change) ([]types.Gap, error) {
	marks := make([]cutMark, 0, len(cutEvents)+len(cutChanges))
	for _, e := range cutEvents {
		if m, ok := cutMarkFromEvent(e); ok {
			marks = append(marks, m)
		}
	}
	for _, c := range cutChanges {
		if m, ok := cutMarkFromChange(c); ok {
			marks = append(marks, m)
		}
	}
	sort.SliceStable(marks, func(i, j int) bool { return marks[i].occurredAt < marks[j].occurredAt })

	var gaps []types.Gap
	var pendingStarts []int64

	for _, m := range marks {
		switch m.command {
		case "start":
			pendingStarts = append(pendingStarts, m.occurredAt)
		case "stop":
			if len(pendingStarts) == 0 {
				return nil, errorf(apperror.ErrNestedCutUnderflow, "source=%s", m.sourceID)
			}
			start := pendingStarts[0]
			pendingStarts = pendingStarts[1:]
			gaps = append(gaps, types.Gap{Start: start, Stop: m.occurredAt})
		default:
			return nil, errorf(apperror.ErrUnclosedCut, "invalid cut command %q, source=%s", m.command, m.sourceID)
		}
	}

	if len(pendingStarts) > 0 {
		return nil, errorf(apperror.ErrUnclosedCut, "stream cut started at %d but never stopped", pendingStarts[0])
	}
	return gaps, nil
}

// Squeeze shifts occurredAt earlier by the total duration of every gap that
// starts before it, clamping each gap's contribution to the portion that
// falls before occurredAt — the donor's per-row subquery
// "SUM(LEAST(stop, occurred_at) - start) WHERE start < occurred_at".
func Squeeze(occurredAt int64, gaps []types.Gap) int64 {
	var shift int64
	for _, g := range gaps {
		if g.Start < occurredAt {
			stop := g.Stop
			if occurredAt < stop {
				stop = occurredAt
			}
			shift += stop - g.Start
		}
	}
	return occurredAt - shift
}

// InvertSegments computes the complement of the gap list within [0, total),
// the room's surviving (non-cut) time ranges, converted to millisecond
// Segments (§4.4 step 8). Since §4.3 permits non-disjoint gaps, overlapping
// or touching entries are merged before complementing.
func InvertSegments(gaps []types.Gap, totalNanos int64) (types.Segments, error) {
	if totalNanos < 0 {
		return nil, fmt.Errorf("gap: negative room duration")
	}
	merged := mergeGaps(gaps)

	var segments types.Segments
	cursor := int64(0)
	for _, g := range merged {
		if g.Start > cursor {
			segments = append(segments, types.Segment{
				Start: cursor / NanosecondsPerMillisecond,
				Stop:  g.Start / NanosecondsPerMillisecond,
			})
		}
		cursor = g.Stop
	}
	if cursor < totalNanos {
		segments = append(segments, types.Segment{
			Start: cursor / NanosecondsPerMillisecond,
			Stop:  totalNanos / NanosecondsPerMillisecond,
		})
	}
	return segments, nil
}

// mergeGaps sorts gaps by start and coalesces overlapping or adjacent ones.
func mergeGaps(gaps []types.Gap) []types.Gap {
	if len(gaps) == 0 {
		return nil
	}
	sorted := make([]types.Gap, len(gaps))
	copy(sorted, gaps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	merged := []types.Gap{sorted[0]}
	for _, g := range sorted[1:] {
		last := &merged[len(merged)-1]
		if g.Start <= last.Stop {
			if g.Stop > last.Stop {
				last.Stop = g.Stop
			}
			continue
		}
		merged = append(merged, g)
	}
	return merged
}
