package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSegmentsMarshalJSON(t *testing.T) {
	segs := Segments{{Start: 0, Stop: 1000}, {Start: 2000, Stop: 3000}}
	data, err := json.Marshal(segs)
	require.NoError(t, err)
	require.JSONEq(t, `[[0,1000],[2000,3000]]`, string(data))
}

func TestSegmentsMarshalEmpty(t *testing.T) {
	var segs Segments
	data, err := json.Marshal(segs)
	require.NoError(t, err)
	require.JSONEq(t, `[]`, string(data))
}

func TestSegmentsUnmarshalJSON(t *testing.T) {
	var segs Segments
	require.NoError(t, json.Unmarshal([]byte(`[[0,1000],[2000,3000]]`), &segs))
	require.Equal(t, Segments{{Start: 0, Stop: 1000}, {Start: 2000, Stop: 3000}}, segs)
}

func TestSegmentsUnmarshalRejectsInverted(t *testing.T) {
	var segs Segments
	err := json.Unmarshal([]byte(`[[1000,0]]`), &segs)
	require.Error(t, err)
}

func TestSegmentsTotalDuration(t *testing.T) {
	segs := Segments{{Start: 0, Stop: 1000}, {Start: 3000, Stop: 4500}}
	require.Equal(t, int64(2500), segs.TotalDuration())
}

func TestEventEffectiveSet(t *testing.T) {
	e := &Event{Kind: "message"}
	require.Equal(t, "message", e.EffectiveSet())
	e.Set = "messages"
	require.Equal(t, "messages", e.EffectiveSet())
}

func TestEventIsStreamCut(t *testing.T) {
	e := &Event{Kind: StreamKind, Data: json.RawMessage(`{"cut":"start"}`)}
	dir, ok := e.IsStreamCut()
	require.True(t, ok)
	require.Equal(t, CutStart, dir)

	notCut := &Event{Kind: "message", Data: json.RawMessage(`{}`)}
	_, ok = notCut.IsStreamCut()
	require.False(t, ok)
}

func TestChangeValidate(t *testing.T) {
	kind := "message"
	occurredAt := int64(100)
	createdBy := "agent-1"

	add := &Change{Kind: ChangeAddition, EventKind: &kind, EventOccurredAt: &occurredAt, EventCreatedBy: &createdBy}
	require.NoError(t, add.Validate())

	badAdd := &Change{Kind: ChangeAddition}
	require.Error(t, badAdd.Validate())

	mod := &Change{Kind: ChangeModification}
	require.Error(t, mod.Validate())
}
