package objectstore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxroom/timeline/internal/storage"
	"github.com/fluxroom/timeline/internal/types"
)

type fakeEventLister struct {
	events []*types.Event
}

func (f *fakeEventLister) Insert(ctx context.Context, e *types.Event) (*types.Event, error) {
	panic("not used")
}
func (f *fakeEventLister) List(ctx context.Context, roomID uuid.UUID, filter storage.ListFilter, dir storage.Direction, limit int, cursor *storage.ListCursor) ([]*types.Event, error) {
	panic("not used")
}
func (f *fakeEventLister) SetState(ctx context.Context, roomID uuid.UUID, set string, at int64, limit int, attribute *types.Attribute) ([]*types.Event, error) {
	panic("not used")
}
func (f *fakeEventLister) CountSetState(ctx context.Context, roomID uuid.UUID, set string, at int64, attribute *types.Attribute) (int, error) {
	panic("not used")
}
func (f *fakeEventLister) DeleteByKind(ctx context.Context, roomID uuid.UUID, kind string) error {
	panic("not used")
}
func (f *fakeEventLister) CutEvents(ctx context.Context, roomID uuid.UUID) ([]*types.Event, error) {
	panic("not used")
}
func (f *fakeEventLister) ListAllByRoom(ctx context.Context, roomID uuid.UUID) ([]*types.Event, error) {
	return f.events, nil
}

func TestDumpRoomEventsWritesNDJSONExcludingTombstones(t *testing.T) {
	kept := &types.Event{ID: uuid.New(), Kind: "message", Data: json.RawMessage(`{}`)}
	tombstoned := &types.Event{ID: uuid.New(), Kind: "message", Attribute: types.AttributeDeleted, Data: json.RawMessage(`{}`)}
	store := &fakeEventLister{events: []*types.Event{kept, tombstoned}}
	objects := NewMemory()
	room := &types.Room{ID: uuid.New(), Audience: "example.org"}

	uri, err := DumpRoomEvents(context.Background(), store, objects, room)
	require.NoError(t, err)
	assert.Equal(t, "s3://eventsdump.example.org/"+room.ID.String()+".json", uri)

	data, ok := objects.Get("eventsdump.example.org", room.ID.String()+".json")
	require.True(t, ok)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	var lines int
	for scanner.Scan() {
		var decoded types.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &decoded))
		assert.Equal(t, kept.ID, decoded.ID)
		lines++
	}
	assert.Equal(t, 1, lines)
}
