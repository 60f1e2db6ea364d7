package sql

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/fluxroom/timeline/internal/apperror"
	"github.com/fluxroom/timeline/internal/types"
)

// CreateChange inserts a new change row.
func (s *Store) CreateChange(ctx context.Context, c *types.Change) (*types.Change, error) {
	out := *c
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	var dataJSON any
	if out.EventData != nil {
		dataJSON = string(*out.EventData)
	}
	_, err := s.execRW(ctx, "change.create", `
		INSERT INTO changes (id, edition_id, kind, event_id, event_kind, event_set, event_label,
			event_data, event_occurred_at, event_created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, out.ID.String(), out.EditionID.String(), string(out.Kind), nullableUUID(out.EventID),
		nullableString(out.EventKind), nullableString(out.EventSet), nullableString(out.EventLabel),
		dataJSON, nullableInt64(out.EventOccurredAt), nullableString(out.EventCreatedBy))
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func createChangeVia(ctx context.Context, db dbHandle, c *types.Change) (*types.Change, error) {
	out := *c
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	var dataJSON any
	if out.EventData != nil {
		dataJSON = string(*out.EventData)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO changes (id, edition_id, kind, event_id, event_kind, event_set, event_label,
			event_data, event_occurred_at, event_created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, out.ID.String(), out.EditionID.String(), string(out.Kind), nullableUUID(out.EventID),
		nullableString(out.EventKind), nullableString(out.EventSet), nullableString(out.EventLabel),
		dataJSON, nullableInt64(out.EventOccurredAt), nullableString(out.EventCreatedBy))
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDBQueryFailed, "change.create", err)
	}
	return &out, nil
}

func nullableUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func nullableInt64(i *int64) any {
	if i == nil {
		return nil
	}
	return *i
}

func scanChange(row rowScanner) (*types.Change, error) {
	var (
		idStr, editionIDStr, kind string
		eventIDStr                sql.NullString
		eventKind, eventSet       sql.NullString
		eventLabel                sql.NullString
		eventData                 sql.NullString
		eventOccurredAt           sql.NullInt64
		eventCreatedBy            sql.NullString
	)
	if err := row.Scan(&idStr, &editionIDStr, &kind, &eventIDStr, &eventKind, &eventSet,
		&eventLabel, &eventData, &eventOccurredAt, &eventCreatedBy); err != nil {
		return nil, err
	}
	c := &types.Change{
		ID:        uuid.MustParse(idStr),
		EditionID: uuid.MustParse(editionIDStr),
		Kind:      types.ChangeKind(kind),
	}
	if eventIDStr.Valid {
		id := uuid.MustParse(eventIDStr.String)
		c.EventID = &id
	}
	if eventKind.Valid {
		v := eventKind.String
		c.EventKind = &v
	}
	if eventSet.Valid {
		v := eventSet.String
		c.EventSet = &v
	}
	if eventLabel.Valid {
		v := eventLabel.String
		c.EventLabel = &v
	}
	if eventData.Valid {
		v := json.RawMessage(eventData.String)
		c.EventData = &v
	}
	if eventOccurredAt.Valid {
		v := eventOccurredAt.Int64
		c.EventOccurredAt = &v
	}
	if eventCreatedBy.Valid {
		v := eventCreatedBy.String
		c.EventCreatedBy = &v
	}
	return c, nil
}

const changeColumns = `id, edition_id, kind, event_id, event_kind, event_set, event_label, event_data, event_occurred_at, event_created_by`

// ListChanges lists every change belonging to an edition.
func (s *Store) ListChanges(ctx context.Context, editionID uuid.UUID) ([]*types.Change, error) {
	rows, err := s.queryRO(ctx, "change.list", `SELECT `+changeColumns+` FROM changes WHERE edition_id = ?`, editionID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*types.Change
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, apperror.Wrap(apperror.KindDBQueryFailed, "change.list", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func listChangesVia(ctx context.Context, db dbHandle, editionID uuid.UUID) ([]*types.Change, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+changeColumns+` FROM changes WHERE edition_id = ?`, editionID.String())
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDBQueryFailed, "change.list", err)
	}
	defer rows.Close()
	var out []*types.Change
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, apperror.Wrap(apperror.KindDBQueryFailed, "change.list", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteChange removes a single change row.
func (s *Store) DeleteChange(ctx context.Context, id uuid.UUID) error {
	_, err := s.execRW(ctx, "change.delete", `DELETE FROM changes WHERE id = ?`, id.String())
	return err
}

func deleteChangeVia(ctx context.Context, db dbHandle, id uuid.UUID) error {
	_, err := db.ExecContext(ctx, `DELETE FROM changes WHERE id = ?`, id.String())
	if err != nil {
		return apperror.Wrap(apperror.KindDBQueryFailed, "change.delete", err)
	}
	return nil
}

// CutChanges returns the edition's pending stream-kind changes: those whose
// synthesized event has kind "stream" (§4.4 step 3). Only additions and
// modifications carry an event_kind; the synthesized event's kind for a
// modification still requires joining the source event when event_kind is
// unset, which the commit engine resolves — here we return all candidates
// whose change-level kind is a literal stream kind, deferring
// modification-without-override resolution to the caller.
func (s *Store) CutChanges(ctx context.Context, editionID uuid.UUID) ([]*types.Change, error) {
	rows, err := s.queryRW(ctx, "change.cut_changes", `
		SELECT `+changeColumns+` FROM changes
		WHERE edition_id = ? AND (event_kind = ? OR (kind = ? AND event_kind IS NULL))
	`, editionID.String(), types.StreamKind, string(types.ChangeModification))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*types.Change
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, apperror.Wrap(apperror.KindDBQueryFailed, "change.cut_changes", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func cutChangesVia(ctx context.Context, db dbHandle, editionID uuid.UUID) ([]*types.Change, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+changeColumns+` FROM changes
		WHERE edition_id = ? AND (event_kind = ? OR (kind = ? AND event_kind IS NULL))
	`, editionID.String(), types.StreamKind, string(types.ChangeModification))
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDBQueryFailed, "change.cut_changes", err)
	}
	defer rows.Close()
	var out []*types.Change
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, apperror.Wrap(apperror.KindDBQueryFailed, "change.cut_changes", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
