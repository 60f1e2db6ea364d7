package gapanalyzer

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxroom/timeline/internal/types"
)

func streamEvent(occurredAt int64, cut string) *types.Event {
	return &types.Event{
		ID:         uuid.New(),
		Kind:       types.StreamKind,
		OccurredAt: occurredAt,
		Data:       json.RawMessage(`{"cut":"` + cut + `"}`),
	}
}

func streamChange(occurredAt int64, cut string) *types.Change {
	data := json.RawMessage(`{"cut":"` + cut + `"}`)
	at := occurredAt
	return &types.Change{
		ID:              uuid.New(),
		EventOccurredAt: &at,
		EventData:       &data,
	}
}

func TestCollectGapsSinglePair(t *testing.T) {
	events := []*types.Event{streamEvent(3e9, "start"), streamEvent(5e9, "stop")}
	gaps, err := CollectGaps(events, nil)
	require.NoError(t, err)
	assert.Equal(t, []types.Gap{{Start: 3e9, Stop: 5e9}}, gaps)
}

func TestCollectGapsDisjointFromMixedSources(t *testing.T) {
	events := []*types.Event{streamEvent(4.2e9, "start"), streamEvent(4.8e9, "stop")}
	changes := []*types.Change{streamChange(3e9, "start"), streamChange(4e9, "stop")}
	gaps, err := CollectGaps(events, changes)
	require.NoError(t, err)
	assert.Equal(t, []types.Gap{{Start: 3e9, Stop: 4e9}, {Start: 4.2e9, Stop: 4.8e9}}, gaps)
}

func TestCollectGapsOverlappingFIFOPairing(t *testing.T) {
	// Source cut-start@3e9/cut-stop@4e9 overlaps edition cut-start@3.2e9/
	// cut-stop@4.5e9 — §4.3's FIFO pairing closes the oldest open start
	// first, yielding two separate (overlapping) gaps rather than one
	// merged span.
	events := []*types.Event{streamEvent(3e9, "start"), streamEvent(4e9, "stop")}
	changes := []*types.Change{streamChange(3.2e9, "start"), streamChange(4.5e9, "stop")}
	gaps, err := CollectGaps(events, changes)
	require.NoError(t, err)
	assert.Equal(t, []types.Gap{{Start: 3e9, Stop: 4e9}, {Start: 3.2e9, Stop: 4.5e9}}, gaps)
}

func TestCollectGapsUnclosedCutFails(t *testing.T) {
	events := []*types.Event{streamEvent(3e9, "start")}
	_, err := CollectGaps(events, nil)
	require.Error(t, err)
}

func TestCollectGapsStopWithoutStartFails(t *testing.T) {
	events := []*types.Event{streamEvent(3e9, "stop")}
	_, err := CollectGaps(events, nil)
	require.Error(t, err)
}

func TestSqueezeSingleGap(t *testing.T) {
	gaps := []types.Gap{{Start: 3e9, Stop: 5e9}}
	assert.Equal(t, int64(3e9), Squeeze(4e9, gaps))
	assert.Equal(t, int64(3e9), Squeeze(3.5e9, gaps))
	assert.Equal(t, int64(1e9), Squeeze(1e9, gaps))
}

func TestSqueezeOverlappingGapsMatchesWorkedExample(t *testing.T) {
	// §4.4's worked example: 5e9 − (4e9−3e9) − (4.5e9−3.2e9) = 2.7e9.
	gaps := []types.Gap{{Start: 3e9, Stop: 4e9}, {Start: 3.2e9, Stop: 4.5e9}}
	assert.Equal(t, int64(2.7e9), Squeeze(5e9, gaps))
}

func TestInvertSegmentsSingleGap(t *testing.T) {
	segments, err := InvertSegments([]types.Gap{{Start: 3e9, Stop: 5e9}}, 6e9)
	require.NoError(t, err)
	assert.Equal(t, types.Segments{{Start: 0, Stop: 3000}, {Start: 5000, Stop: 6000}}, segments)
}

func TestInvertSegmentsMergesOverlappingGaps(t *testing.T) {
	segments, err := InvertSegments([]types.Gap{{Start: 3e9, Stop: 4e9}, {Start: 3.2e9, Stop: 4.5e9}}, 6e9)
	require.NoError(t, err)
	assert.Equal(t, types.Segments{{Start: 0, Stop: 3000}, {Start: 4500, Stop: 6000}}, segments)
}

func TestInvertSegmentsNoGaps(t *testing.T) {
	segments, err := InvertSegments(nil, 2e9)
	require.NoError(t, err)
	assert.Equal(t, types.Segments{{Start: 0, Stop: 2000}}, segments)
}
