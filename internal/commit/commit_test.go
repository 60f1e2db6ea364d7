package commit

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxroom/timeline/internal/storage"
	"github.com/fluxroom/timeline/internal/types"
)

// fakeStore is a minimal in-memory storage.Store exercising only what the
// commit engine touches. Every method the engine doesn't call panics, so a
// test that starts depending on new storage surface fails loudly instead of
// silently no-opping.
type fakeStore struct {
	events  []*types.Event
	changes []*types.Change

	inserted []*types.Event
	deleted  []string
}

func (f *fakeStore) GetRoom(ctx context.Context, id uuid.UUID) (*types.Room, error) {
	panic("not used by commit engine")
}

func (f *fakeStore) CloneRoom(ctx context.Context, source *types.Room) (*types.Room, error) {
	clone := *source
	clone.ID = uuid.New()
	clone.SourceRoomID = &source.ID
	return &clone, nil
}

func (f *fakeStore) Insert(ctx context.Context, e *types.Event) (*types.Event, error) {
	if e.OriginalOccurredAt == 0 {
		e.OriginalOccurredAt = e.OccurredAt
	}
	f.inserted = append(f.inserted, e)
	return e, nil
}

func (f *fakeStore) List(ctx context.Context, roomID uuid.UUID, filter storage.ListFilter, dir storage.Direction, limit int, cursor *storage.ListCursor) ([]*types.Event, error) {
	panic("not used by commit engine")
}

func (f *fakeStore) SetState(ctx context.Context, roomID uuid.UUID, set string, at int64, limit int, attribute *types.Attribute) ([]*types.Event, error) {
	panic("not used by commit engine")
}

func (f *fakeStore) CountSetState(ctx context.Context, roomID uuid.UUID, set string, at int64, attribute *types.Attribute) (int, error) {
	panic("not used by commit engine")
}

func (f *fakeStore) DeleteByKind(ctx context.Context, roomID uuid.UUID, kind string) error {
	f.deleted = append(f.deleted, kind)
	kept := f.inserted[:0]
	for _, e := range f.inserted {
		if e.Kind != kind {
			kept = append(kept, e)
		}
	}
	f.inserted = kept
	return nil
}

func (f *fakeStore) CutEvents(ctx context.Context, roomID uuid.UUID) ([]*types.Event, error) {
	var out []*types.Event
	for _, e := range f.events {
		if e.Kind == types.StreamKind {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) ListAllByRoom(ctx context.Context, roomID uuid.UUID) ([]*types.Event, error) {
	return f.events, nil
}

func (f *fakeStore) CreateEdition(ctx context.Context, e *types.Edition) (*types.Edition, error) {
	panic("not used by commit engine")
}
func (f *fakeStore) GetEdition(ctx context.Context, id uuid.UUID) (*types.Edition, error) {
	panic("not used by commit engine")
}
func (f *fakeStore) ListEditions(ctx context.Context, sourceRoomID uuid.UUID, lastCreatedAt *time.Time, limit int) ([]*types.Edition, error) {
	panic("not used by commit engine")
}
func (f *fakeStore) DeleteEdition(ctx context.Context, id uuid.UUID) error {
	panic("not used by commit engine")
}

func (f *fakeStore) CreateChange(ctx context.Context, c *types.Change) (*types.Change, error) {
	panic("not used by commit engine")
}

func (f *fakeStore) ListChanges(ctx context.Context, editionID uuid.UUID) ([]*types.Change, error) {
	return f.changes, nil
}

func (f *fakeStore) DeleteChange(ctx context.Context, id uuid.UUID) error {
	panic("not used by commit engine")
}

func (f *fakeStore) CutChanges(ctx context.Context, editionID uuid.UUID) ([]*types.Change, error) {
	var out []*types.Change
	for _, c := range f.changes {
		if c.EventKind != nil && *c.EventKind == types.StreamKind {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) HistorySurplus(ctx context.Context, roomID uuid.UUID, maxSize int, olderThan time.Time) ([]uuid.UUID, error) {
	panic("not used by commit engine")
}
func (f *fakeStore) StaleTombstones(ctx context.Context, roomID uuid.UUID, olderThan time.Time) ([]uuid.UUID, error) {
	panic("not used by commit engine")
}
func (f *fakeStore) DeleteEvents(ctx context.Context, ids []uuid.UUID) (int, error) {
	panic("not used by commit engine")
}
func (f *fakeStore) RoomsToVacuum(ctx context.Context) ([]uuid.UUID, error) {
	panic("not used by commit engine")
}
func (f *fakeStore) OrphanDestinationRooms(ctx context.Context, olderThan time.Time) ([]uuid.UUID, error) {
	panic("not used by commit engine")
}
func (f *fakeStore) DeleteRooms(ctx context.Context, ids []uuid.UUID) (int, error) {
	panic("not used by commit engine")
}

func (f *fakeStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx storage.CommitStore) error) error {
	return fn(ctx, f)
}

func (f *fakeStore) Close() error { return nil }

func cutEvent(occurredAt int64, cut string) *types.Event {
	return &types.Event{
		ID:         uuid.New(),
		Kind:       types.StreamKind,
		OccurredAt: occurredAt,
		CreatedAt:  time.Unix(0, occurredAt),
		Data:       json.RawMessage(fmt.Sprintf(`{"cut":%q}`, cut)),
	}
}

func plainEvent(occurredAt int64, kind string) *types.Event {
	return &types.Event{
		ID:         uuid.New(),
		Kind:       kind,
		Set:        kind,
		OccurredAt: occurredAt,
		CreatedAt:  time.Unix(0, occurredAt),
		Data:       json.RawMessage(`{}`),
	}
}

func testRoom(durationNanos int64) *types.Room {
	opened := time.Unix(0, 0).UTC()
	closed := opened.Add(time.Duration(durationNanos))
	return &types.Room{ID: uuid.New(), Audience: "test", OpenedAt: opened, ClosedAt: &closed}
}

// grounded on the Rust donor's commit_edition_with_cut_changes test: a
// single non-overlapping gap entirely from source cut events, passed
// through unmodified alongside one ordinary event.
func TestCommitSingleGapPassthrough(t *testing.T) {
	store := &fakeStore{
		events: []*types.Event{
			plainEvent(1e9, "message"),
			cutEvent(3e9, "start"),
			cutEvent(5e9, "stop"),
			plainEvent(6e9, "message"),
		},
	}
	edition := &types.Edition{ID: uuid.New()}
	source := testRoom(8e9)

	engine := New(store)
	dest, segments, err := engine.Commit(context.Background(), edition, source)
	require.NoError(t, err)
	require.NotNil(t, dest)
	assert.Equal(t, source.ID, *dest.SourceRoomID)

	// stream markers are stripped from the destination.
	for _, e := range store.inserted {
		assert.NotEqual(t, types.StreamKind, e.Kind)
	}
	require.Len(t, store.inserted, 2)

	// second event squeezed by the 2e9 gap: 6e9 - 2e9 = 4e9.
	var occurredAts []int64
	for _, e := range store.inserted {
		occurredAts = append(occurredAts, e.OccurredAt)
	}
	assert.Contains(t, occurredAts, int64(1e9))
	assert.Contains(t, occurredAts, int64(4e9))

	assert.Equal(t, types.Segments{{Start: 0, Stop: 3000}, {Start: 5000, Stop: 8000}}, segments)
}

// grounded on §4.4's worked example: two overlapping cut pairs, one from
// source events and one from an edition's synthesized stream changes, FIFO
// pair into two separate gaps, squeezing a later event by 2.3e9 total.
func TestCommitOverlappingGapsMatchesWorkedExample(t *testing.T) {
	streamKind := types.StreamKind
	start := int64(3.2e9)
	stop := int64(4.5e9)
	startData := json.RawMessage(`{"cut":"start"}`)
	stopData := json.RawMessage(`{"cut":"stop"}`)

	store := &fakeStore{
		events: []*types.Event{
			cutEvent(3e9, "start"),
			cutEvent(4e9, "stop"),
			plainEvent(5e9, "message"),
		},
		changes: []*types.Change{
			{ID: uuid.New(), Kind: types.ChangeAddition, EventKind: &streamKind, EventOccurredAt: &start, EventData: &startData, EventCreatedBy: strPtr("editor")},
			{ID: uuid.New(), Kind: types.ChangeAddition, EventKind: &streamKind, EventOccurredAt: &stop, EventData: &stopData, EventCreatedBy: strPtr("editor")},
		},
	}
	edition := &types.Edition{ID: uuid.New()}
	source := testRoom(6e9)

	engine := New(store)
	_, segments, err := engine.Commit(context.Background(), edition, source)
	require.NoError(t, err)

	var messageOccurredAt int64
	found := false
	for _, e := range store.inserted {
		if e.Kind == "message" {
			messageOccurredAt = e.OccurredAt
			found = true
		}
	}
	require.True(t, found)
	assert.Equal(t, int64(2.7e9), messageOccurredAt)

	assert.Equal(t, types.Segments{{Start: 0, Stop: 3000}, {Start: 4500, Stop: 6000}}, segments)
}

func TestCommitModificationOverridesFields(t *testing.T) {
	original := plainEvent(2e9, "message")
	original.Data = json.RawMessage(`{"text":"hello"}`)

	newData := json.RawMessage(`{"text":"edited"}`)
	store := &fakeStore{
		events: []*types.Event{original},
		changes: []*types.Change{
			{ID: uuid.New(), Kind: types.ChangeModification, EventID: &original.ID, EventData: &newData},
		},
	}
	edition := &types.Edition{ID: uuid.New()}
	source := testRoom(4e9)

	engine := New(store)
	_, _, err := engine.Commit(context.Background(), edition, source)
	require.NoError(t, err)

	require.Len(t, store.inserted, 1)
	assert.JSONEq(t, `{"text":"edited"}`, string(store.inserted[0].Data))
	assert.Equal(t, int64(2e9), store.inserted[0].OccurredAt)
}

func TestCommitRemovalDropsEvent(t *testing.T) {
	original := plainEvent(2e9, "message")
	store := &fakeStore{
		events: []*types.Event{original},
		changes: []*types.Change{
			{ID: uuid.New(), Kind: types.ChangeRemoval, EventID: &original.ID},
		},
	}
	edition := &types.Edition{ID: uuid.New()}
	source := testRoom(4e9)

	engine := New(store)
	_, _, err := engine.Commit(context.Background(), edition, source)
	require.NoError(t, err)
	assert.Empty(t, store.inserted)
}

func TestCommitRejectsUnboundedRoom(t *testing.T) {
	store := &fakeStore{}
	edition := &types.Edition{ID: uuid.New()}
	source := &types.Room{ID: uuid.New(), OpenedAt: time.Unix(0, 0)}

	engine := New(store)
	_, _, err := engine.Commit(context.Background(), edition, source)
	require.Error(t, err)
}

func strPtr(s string) *string { return &s }
