package stateread

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxroom/timeline/internal/storage"
	"github.com/fluxroom/timeline/internal/types"
)

// fakeEventStore answers SetState/CountSetState from canned per-set tables,
// ignoring at/limit/attribute filtering so tests can assert on exactly what
// Read does with the results rather than re-deriving storage semantics.
type fakeEventStore struct {
	byResult map[string][]*types.Event
	total    map[string]int

	lastLimit map[string]int
}

func (f *fakeEventStore) Insert(ctx context.Context, e *types.Event) (*types.Event, error) {
	panic("not used")
}
func (f *fakeEventStore) List(ctx context.Context, roomID uuid.UUID, filter storage.ListFilter, dir storage.Direction, limit int, cursor *storage.ListCursor) ([]*types.Event, error) {
	panic("not used")
}

func (f *fakeEventStore) SetState(ctx context.Context, roomID uuid.UUID, set string, at int64, limit int, attribute *types.Attribute) ([]*types.Event, error) {
	if f.lastLimit == nil {
		f.lastLimit = map[string]int{}
	}
	f.lastLimit[set] = limit
	return f.byResult[set], nil
}

func (f *fakeEventStore) CountSetState(ctx context.Context, roomID uuid.UUID, set string, at int64, attribute *types.Attribute) (int, error) {
	return f.total[set], nil
}

func (f *fakeEventStore) DeleteByKind(ctx context.Context, roomID uuid.UUID, kind string) error {
	panic("not used")
}
func (f *fakeEventStore) CutEvents(ctx context.Context, roomID uuid.UUID) ([]*types.Event, error) {
	panic("not used")
}
func (f *fakeEventStore) ListAllByRoom(ctx context.Context, roomID uuid.UUID) ([]*types.Event, error) {
	panic("not used")
}

func label(s string) *string { return &s }

func testRoom() *types.Room {
	opened := time.Unix(0, 0).UTC()
	closed := opened.Add(10 * time.Second)
	return &types.Room{ID: uuid.New(), OpenedAt: opened, ClosedAt: &closed}
}

func TestReadSingleUnlabeledEventReturnsBareObject(t *testing.T) {
	room := testRoom()
	ev := &types.Event{ID: uuid.New(), Kind: "layout", OccurredAt: 2e9}
	store := &fakeEventStore{
		byResult: map[string][]*types.Event{"layout": {ev}},
		total:    map[string]int{"layout": 1},
	}

	resp, err := Read(context.Background(), store, room, Request{Sets: []string{"layout"}})
	require.NoError(t, err)

	result := resp.Sets["layout"]
	assert.Same(t, ev, result.Event)
	assert.Nil(t, result.Events)
	require.NotNil(t, resp.HasNext)
	assert.False(t, *resp.HasNext)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "layout")
	assert.Contains(t, decoded, "has_next")
	var decodedEvent types.Event
	require.NoError(t, json.Unmarshal(decoded["layout"], &decodedEvent))
	assert.Equal(t, ev.ID, decodedEvent.ID)
}

func TestReadSingleLabeledEventReturnsArray(t *testing.T) {
	room := testRoom()
	ev := &types.Event{ID: uuid.New(), Kind: "messages", Label: label("message-1")}
	store := &fakeEventStore{
		byResult: map[string][]*types.Event{"messages": {ev}},
		total:    map[string]int{"messages": 1},
	}

	resp, err := Read(context.Background(), store, room, Request{Sets: []string{"messages"}})
	require.NoError(t, err)

	result := resp.Sets["messages"]
	assert.Nil(t, result.Event)
	assert.Equal(t, []*types.Event{ev}, result.Events)
}

func TestReadMultipleSetsOmitsHasNext(t *testing.T) {
	room := testRoom()
	store := &fakeEventStore{
		byResult: map[string][]*types.Event{
			"messages": {{ID: uuid.New(), Label: label("m1")}},
			"layout":   {{ID: uuid.New()}},
		},
	}

	resp, err := Read(context.Background(), store, room, Request{Sets: []string{"messages", "layout"}})
	require.NoError(t, err)
	assert.Nil(t, resp.HasNext)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.NotContains(t, decoded, "has_next")
}

func TestReadHasNextWhenTotalExceedsLimit(t *testing.T) {
	room := testRoom()
	store := &fakeEventStore{
		byResult: map[string][]*types.Event{"messages": {{ID: uuid.New(), Label: label("m1")}}},
		total:    map[string]int{"messages": 150},
	}

	resp, err := Read(context.Background(), store, room, Request{Sets: []string{"messages"}, Limit: 50})
	require.NoError(t, err)
	require.NotNil(t, resp.HasNext)
	assert.True(t, *resp.HasNext)
	assert.Equal(t, 50, store.lastLimit["messages"])
}

func TestReadClampsOversizedLimit(t *testing.T) {
	room := testRoom()
	store := &fakeEventStore{byResult: map[string][]*types.Event{"messages": {}}, total: map[string]int{"messages": 0}}

	_, err := Read(context.Background(), store, room, Request{Sets: []string{"messages"}, Limit: 10000})
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, store.lastLimit["messages"])
}

func TestResolveOccurredAtDefaultsPastRoomClose(t *testing.T) {
	room := testRoom()
	at, err := resolveOccurredAt(room, nil)
	require.NoError(t, err)
	duration, _ := room.DurationNanos()
	assert.Equal(t, duration+1, at)
}

func TestReadRejectsTooManySets(t *testing.T) {
	room := testRoom()
	store := &fakeEventStore{}
	sets := make([]string, MaxSets+1)
	for i := range sets {
		sets[i] = "set"
	}
	_, err := Read(context.Background(), store, room, Request{Sets: sets})
	require.Error(t, err)
}

func TestReadRejectsEmptySets(t *testing.T) {
	room := testRoom()
	store := &fakeEventStore{}
	_, err := Read(context.Background(), store, room, Request{Sets: nil})
	require.Error(t, err)
}

func TestReadRejectsUnboundedRoomWithoutExplicitCursor(t *testing.T) {
	room := &types.Room{ID: uuid.New(), OpenedAt: time.Unix(0, 0)}
	store := &fakeEventStore{}
	_, err := Read(context.Background(), store, room, Request{Sets: []string{"messages"}})
	require.Error(t, err)
}
