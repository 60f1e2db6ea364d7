package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fluxroom/timeline/internal/types"
)

// Direction selects the sort order for Event.List pagination.
type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// ListCursor is the opaque (occurred_at, id) pagination key used for
// stable key-set pagination over a room's event log, per §4.1.
type ListCursor struct {
	OccurredAt int64
	ID         uuid.UUID
}

// ListFilter narrows Event.List to a subset of a room's events.
type ListFilter struct {
	Kind         *string
	Set          *string
	Label        *string
	Attribute    *types.Attribute
	MinOccurred  *int64
	MaxOccurred  *int64
}

// RoomStore manages Room rows.
type RoomStore interface {
	GetRoom(ctx context.Context, id uuid.UUID) (*types.Room, error)
	// CloneRoom creates a destination room copying audience, time and tags
	// from source, with SourceRoomID set to source's id (§4.4 step 5).
	CloneRoom(ctx context.Context, source *types.Room) (*types.Room, error)
}

// EventStore is the Event Log (C1).
type EventStore interface {
	// Insert appends a new event. OriginalOccurredAt is set equal to
	// OccurredAt by the implementation when the caller leaves it zero.
	Insert(ctx context.Context, e *types.Event) (*types.Event, error)

	// List returns events in a room matching filter, ordered by
	// (occurred_at, created_at, id) and direction, starting after cursor
	// (exclusive), clamped to at most 100 rows.
	List(ctx context.Context, roomID uuid.UUID, filter ListFilter, dir Direction, limit int, cursor *ListCursor) ([]*types.Event, error)

	// SetState returns, for the given set, the latest non-tombstoned event
	// per label with OriginalOccurredAt < at (plus unlabeled events in
	// descending OriginalOccurredAt order, undeduplicated), clamped to
	// limit rows, optionally filtered by attribute.
	SetState(ctx context.Context, roomID uuid.UUID, set string, at int64, limit int, attribute *types.Attribute) ([]*types.Event, error)

	// CountSetState returns the total number of rows SetState would
	// enumerate (ignoring limit), used by state.read's single-set
	// has_next/total_count computation.
	CountSetState(ctx context.Context, roomID uuid.UUID, set string, at int64, attribute *types.Attribute) (int, error)

	// DeleteByKind removes every event of the given kind in a room. Used
	// only by the commit engine to strip stream markers (§4.4 step 7).
	DeleteByKind(ctx context.Context, roomID uuid.UUID, kind string) error

	// CutEvents returns the room's non-tombstoned stream events, ordered
	// by occurred_at ascending, for gap analysis (§4.4 step 2).
	CutEvents(ctx context.Context, roomID uuid.UUID) ([]*types.Event, error)

	// ListAllByRoom returns every non-removed event in a room, unpaginated,
	// for the commit engine's full-outer-join merge against an edition's
	// change set (§4.4 step 6).
	ListAllByRoom(ctx context.Context, roomID uuid.UUID) ([]*types.Event, error)
}

// EditionStore is the Change Set's edition half (C2).
type EditionStore interface {
	CreateEdition(ctx context.Context, e *types.Edition) (*types.Edition, error)
	GetEdition(ctx context.Context, id uuid.UUID) (*types.Edition, error)
	ListEditions(ctx context.Context, sourceRoomID uuid.UUID, lastCreatedAt *time.Time, limit int) ([]*types.Edition, error)
	DeleteEdition(ctx context.Context, id uuid.UUID) error
}

// ChangeStore is the Change Set's change half (C2).
type ChangeStore interface {
	CreateChange(ctx context.Context, c *types.Change) (*types.Change, error)
	ListChanges(ctx context.Context, editionID uuid.UUID) ([]*types.Change, error)
	DeleteChange(ctx context.Context, id uuid.UUID) error

	// CutChanges returns the edition's pending stream-kind changes, i.e.
	// changes whose synthesized event has kind "stream" (§4.4 step 3).
	CutChanges(ctx context.Context, editionID uuid.UUID) ([]*types.Change, error)
}

// VacuumStore exposes the row-level operations C6 needs.
type VacuumStore interface {
	// HistorySurplus returns, per (set, label) group, the ids of the
	// non-current versions that either rank beyond the newest maxSize or
	// were created before olderThan (never including the latest version).
	HistorySurplus(ctx context.Context, roomID uuid.UUID, maxSize int, olderThan time.Time) ([]uuid.UUID, error)

	// StaleTombstones returns ids of events whose attribute="deleted" is
	// the latest version for its (set, label) and became so more than
	// olderThan ago, excluding labels with a later non-deleted event.
	StaleTombstones(ctx context.Context, roomID uuid.UUID, olderThan time.Time) ([]uuid.UUID, error)

	DeleteEvents(ctx context.Context, ids []uuid.UUID) (int, error)

	// RoomsToVacuum returns ids of rooms with preserve_history=false.
	RoomsToVacuum(ctx context.Context) ([]uuid.UUID, error)

	// OrphanDestinationRooms returns destination rooms (source_room_id
	// set) with zero events, older than olderThan — artifacts of a
	// failed non-transactional commit (§4.4, §6A supplement).
	OrphanDestinationRooms(ctx context.Context, olderThan time.Time) ([]uuid.UUID, error)
	DeleteRooms(ctx context.Context, ids []uuid.UUID) (int, error)
}

// CommitStore is the subset of storage the commit engine drives directly;
// it composes room/event/change access behind a single transactional
// handle so the engine can run steps 5-7 of §4.4 in one *sql.Tx.
type CommitStore interface {
	RoomStore
	EventStore
	ChangeStore

	// RunInTransaction executes fn with a transactional view of the store;
	// if fn returns an error the transaction is rolled back.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx CommitStore) error) error
}

// Store is the full read-write surface used by the service.
type Store interface {
	RoomStore
	EventStore
	EditionStore
	ChangeStore
	VacuumStore
	CommitStore

	Close() error
}
