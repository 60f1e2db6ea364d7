package sql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/fluxroom/timeline/internal/apperror"
	"github.com/fluxroom/timeline/internal/storage"
	"github.com/fluxroom/timeline/internal/types"
)

// txStore is a storage.CommitStore bound to a single *sql.Tx, used by the
// commit engine to run clone-room/merge-events/strip-markers as one atomic
// unit (§4.4 steps 5-7). It reuses the package's *Via helper functions so
// the query logic stays identical to the pooled path.
type txStore struct {
	tx *sql.Tx
}

func (t *txStore) GetRoom(ctx context.Context, id uuid.UUID) (*types.Room, error) {
	return getRoomVia(ctx, t.tx, id)
}

func (t *txStore) CloneRoom(ctx context.Context, source *types.Room) (*types.Room, error) {
	return cloneRoomVia(ctx, t.tx, source)
}

func (t *txStore) Insert(ctx context.Context, e *types.Event) (*types.Event, error) {
	return insertVia(ctx, t.tx, e)
}

func (t *txStore) List(ctx context.Context, roomID uuid.UUID, filter storage.ListFilter, dir storage.Direction, limit int, cursor *storage.ListCursor) ([]*types.Event, error) {
	return listVia(ctx, t.tx, roomID, filter, dir, limit, cursor)
}

func (t *txStore) SetState(ctx context.Context, roomID uuid.UUID, set string, at int64, limit int, attribute *types.Attribute) ([]*types.Event, error) {
	return setStateVia(ctx, t.tx, roomID, set, at, limit, attribute)
}

func (t *txStore) CountSetState(ctx context.Context, roomID uuid.UUID, set string, at int64, attribute *types.Attribute) (int, error) {
	return countSetStateVia(ctx, t.tx, roomID, set, at, attribute)
}

func (t *txStore) DeleteByKind(ctx context.Context, roomID uuid.UUID, kind string) error {
	return deleteByKindVia(ctx, t.tx, roomID, kind)
}

func (t *txStore) CutEvents(ctx context.Context, roomID uuid.UUID) ([]*types.Event, error) {
	return cutEventsVia(ctx, t.tx, roomID)
}

func (t *txStore) CreateChange(ctx context.Context, c *types.Change) (*types.Change, error) {
	return createChangeVia(ctx, t.tx, c)
}

func (t *txStore) ListChanges(ctx context.Context, editionID uuid.UUID) ([]*types.Change, error) {
	return listChangesVia(ctx, t.tx, editionID)
}

func (t *txStore) DeleteChange(ctx context.Context, id uuid.UUID) error {
	return deleteChangeVia(ctx, t.tx, id)
}

func (t *txStore) CutChanges(ctx context.Context, editionID uuid.UUID) ([]*types.Change, error) {
	return cutChangesVia(ctx, t.tx, editionID)
}

// RunInTransaction is not reentrant: a commit already running inside a
// transaction must not open a nested one.
func (t *txStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx storage.CommitStore) error) error {
	return fmt.Errorf("sql: nested RunInTransaction is not supported")
}

// RunInTransaction begins a transaction against the read-write pool, hands
// fn a txStore view, and commits on success or rolls back on error or
// panic — the generalization of the commit engine's need for steps 5-7 of
// §4.4 (clone room, merge events, strip stream markers) to run atomically.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx storage.CommitStore) error) error {
	tx, err := s.rw.BeginTx(ctx, nil)
	if err != nil {
		return apperror.Wrap(apperror.KindDBQueryFailed, "tx.begin", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, &txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperror.Wrap(apperror.KindDBQueryFailed, "tx.commit", err)
	}
	committed = true
	return nil
}
