package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fluxroom/timeline/internal/apperror"
	"github.com/fluxroom/timeline/internal/storage"
	"github.com/fluxroom/timeline/internal/types"
)

const maxListLimit = 100

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// Insert appends a new event; OriginalOccurredAt defaults to OccurredAt.
func (s *Store) Insert(ctx context.Context, e *types.Event) (*types.Event, error) {
	return insertVia(ctx, s.rw, e)
}

func insertVia(ctx context.Context, db dbHandle, e *types.Event) (*types.Event, error) {
	out := *e
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	if out.Set == "" {
		out.Set = out.EffectiveSet()
	}
	if out.OriginalOccurredAt == 0 {
		out.OriginalOccurredAt = out.OccurredAt
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO events (id, room_id, kind, event_set, label, data, occurred_at,
			original_occurred_at, attribute, created_by, created_at, removed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, out.ID.String(), out.RoomID.String(), out.Kind, out.Set, nullableString(out.Label),
		nullableJSON(out.Data), out.OccurredAt, out.OriginalOccurredAt,
		nullableAttribute(out.Attribute), out.CreatedBy, out.CreatedAt, out.Removed)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDBQueryFailed, "event.insert", err)
	}
	return &out, nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableAttribute(a types.Attribute) any {
	if a == types.AttributeNone {
		return nil
	}
	return string(a)
}

const eventColumns = `id, room_id, kind, event_set, label, data, occurred_at, original_occurred_at, attribute, created_by, created_at, removed`

func scanEvent(row rowScanner) (*types.Event, error) {
	var (
		idStr, roomIDStr, kind, set string
		label, attr                 sql.NullString
		data                        sql.NullString
		occurredAt, originalAt      int64
		createdBy                   string
		createdAt                   time.Time
		removed                     bool
	)
	if err := row.Scan(&idStr, &roomIDStr, &kind, &set, &label, &data, &occurredAt,
		&originalAt, &attr, &createdBy, &createdAt, &removed); err != nil {
		return nil, err
	}
	e := &types.Event{
		ID:                 uuid.MustParse(idStr),
		RoomID:             uuid.MustParse(roomIDStr),
		Kind:               kind,
		Set:                set,
		OccurredAt:         occurredAt,
		OriginalOccurredAt: originalAt,
		CreatedBy:          createdBy,
		CreatedAt:          createdAt,
		Removed:            removed,
	}
	if label.Valid {
		l := label.String
		e.Label = &l
	}
	if data.Valid {
		e.Data = json.RawMessage(data.String)
	}
	if attr.Valid {
		e.Attribute = types.Attribute(attr.String)
	}
	return e, nil
}

func scanEvents(rows *sql.Rows) ([]*types.Event, error) {
	defer rows.Close()
	var out []*types.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// List returns events in a room matching filter, ordered by
// (occurred_at, created_at, id) (or reversed for Backward), starting
// strictly after cursor, clamped to at most 100 rows.
func (s *Store) List(ctx context.Context, roomID uuid.UUID, filter storage.ListFilter, dir storage.Direction, limit int, cursor *storage.ListCursor) ([]*types.Event, error) {
	query, args := buildListQuery(roomID, filter, dir, limit, cursor)
	rows, err := s.queryRO(ctx, "event.list", query, args...)
	if err != nil {
		return nil, err
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDBQueryFailed, "event.list", err)
	}
	return events, nil
}

func listVia(ctx context.Context, db dbHandle, roomID uuid.UUID, filter storage.ListFilter, dir storage.Direction, limit int, cursor *storage.ListCursor) ([]*types.Event, error) {
	query, args := buildListQuery(roomID, filter, dir, limit, cursor)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDBQueryFailed, "event.list", err)
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDBQueryFailed, "event.list", err)
	}
	return events, nil
}

func buildListQuery(roomID uuid.UUID, filter storage.ListFilter, dir storage.Direction, limit int, cursor *storage.ListCursor) (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT " + eventColumns + " FROM events WHERE room_id = ?")
	args := []any{roomID.String()}

	if filter.Kind != nil {
		sb.WriteString(" AND kind = ?")
		args = append(args, *filter.Kind)
	}
	if filter.Set != nil {
		sb.WriteString(" AND event_set = ?")
		args = append(args, *filter.Set)
	}
	if filter.Label != nil {
		sb.WriteString(" AND label = ?")
		args = append(args, *filter.Label)
	}
	if filter.Attribute != nil {
		sb.WriteString(" AND attribute = ?")
		args = append(args, string(*filter.Attribute))
	}
	if filter.MinOccurred != nil {
		sb.WriteString(" AND occurred_at >= ?")
		args = append(args, *filter.MinOccurred)
	}
	if filter.MaxOccurred != nil {
		sb.WriteString(" AND occurred_at <= ?")
		args = append(args, *filter.MaxOccurred)
	}

	cmp, order := ">", "ASC"
	if dir == storage.Backward {
		cmp, order = "<", "DESC"
	}
	if cursor != nil {
		sb.WriteString(fmt.Sprintf(" AND (occurred_at, id) %s (?, ?)", cmp))
		args = append(args, cursor.OccurredAt, cursor.ID.String())
	}
	sb.WriteString(fmt.Sprintf(" ORDER BY occurred_at %s, created_at %s, id %s LIMIT ?", order, order, order))
	args = append(args, clampLimit(limit))
	return sb.String(), args
}

// SetState returns the latest non-tombstoned event per label with
// original_occurred_at < at (plus unlabeled events, undeduplicated, in
// descending original_occurred_at order), clamped to limit rows.
func (s *Store) SetState(ctx context.Context, roomID uuid.UUID, set string, at int64, limit int, attribute *types.Attribute) ([]*types.Event, error) {
	query, args := buildSetStateQuery(roomID, set, at, limit, attribute)
	rows, err := s.queryRO(ctx, "event.set_state", query, args...)
	if err != nil {
		return nil, err
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDBQueryFailed, "event.set_state", err)
	}
	return events, nil
}

// CountSetState returns the total row count SetState would enumerate,
// ignoring limit.
func (s *Store) CountSetState(ctx context.Context, roomID uuid.UUID, set string, at int64, attribute *types.Attribute) (int, error) {
	query, args := buildSetStateCountQuery(roomID, set, at, attribute)
	row := s.ro.QueryRowContext(ctx, query, args...)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, apperror.Wrap(apperror.KindDBQueryFailed, "event.set_state_count", err)
	}
	return count, nil
}

func setStateVia(ctx context.Context, db dbHandle, roomID uuid.UUID, set string, at int64, limit int, attribute *types.Attribute) ([]*types.Event, error) {
	query, args := buildSetStateQuery(roomID, set, at, limit, attribute)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDBQueryFailed, "event.set_state", err)
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDBQueryFailed, "event.set_state", err)
	}
	return events, nil
}

func countSetStateVia(ctx context.Context, db dbHandle, roomID uuid.UUID, set string, at int64, attribute *types.Attribute) (int, error) {
	query, args := buildSetStateCountQuery(roomID, set, at, attribute)
	row := db.QueryRowContext(ctx, query, args...)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, apperror.Wrap(apperror.KindDBQueryFailed, "event.set_state_count", err)
	}
	return count, nil
}

// buildSetStateQuery implements §4.1's SetState contract: for labeled
// events, the latest (by original_occurred_at) non-deleted row per label;
// for unlabeled events, every row, undeduplicated, newest first.
//
// MySQL/Dolt's window functions implement "latest per label" without a
// correlated subquery: ROW_NUMBER() OVER (PARTITION BY label ORDER BY
// original_occurred_at DESC) = 1 selects the winner per label.
func buildSetStateQuery(roomID uuid.UUID, set string, at int64, limit int, attribute *types.Attribute) (string, []any) {
	attrClause := ""
	args := []any{roomID.String(), set, at}
	if attribute != nil {
		attrClause = " AND attribute = ?"
		args = append(args, string(*attribute))
	}

	query := fmt.Sprintf(`
		SELECT %s FROM (
			SELECT %s,
				ROW_NUMBER() OVER (PARTITION BY label ORDER BY original_occurred_at DESC) AS rn
			FROM events
			WHERE room_id = ? AND event_set = ? AND original_occurred_at < ?
				AND (attribute IS NULL OR attribute <> 'deleted')%s
		) ranked
		WHERE label IS NULL OR rn = 1
		ORDER BY label IS NULL DESC, original_occurred_at DESC
		LIMIT ?
	`, prefixColumns(eventColumns, "ranked"), eventColumns, attrClause)
	args = append(args, clampLimit(limit))
	return query, args
}

func buildSetStateCountQuery(roomID uuid.UUID, set string, at int64, attribute *types.Attribute) (string, []any) {
	attrClause := ""
	args := []any{roomID.String(), set, at}
	if attribute != nil {
		attrClause = " AND attribute = ?"
		args = append(args, string(*attribute))
	}
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM (
			SELECT label,
				ROW_NUMBER() OVER (PARTITION BY label ORDER BY original_occurred_at DESC) AS rn
			FROM events
			WHERE room_id = ? AND event_set = ? AND original_occurred_at < ?
				AND (attribute IS NULL OR attribute <> 'deleted')%s
		) ranked
		WHERE label IS NULL OR rn = 1
	`, attrClause)
	return query, args
}

func prefixColumns(columns, alias string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}

// DeleteByKind removes every event of the given kind in a room (§4.4 step 7).
func (s *Store) DeleteByKind(ctx context.Context, roomID uuid.UUID, kind string) error {
	_, err := s.execRW(ctx, "event.delete_by_kind", `DELETE FROM events WHERE room_id = ? AND kind = ?`, roomID.String(), kind)
	return err
}

func deleteByKindVia(ctx context.Context, db dbHandle, roomID uuid.UUID, kind string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM events WHERE room_id = ? AND kind = ?`, roomID.String(), kind)
	if err != nil {
		return apperror.Wrap(apperror.KindDBQueryFailed, "event.delete_by_kind", err)
	}
	return nil
}

// CutEvents returns the room's non-tombstoned stream events, ordered by
// occurred_at ascending.
func (s *Store) CutEvents(ctx context.Context, roomID uuid.UUID) ([]*types.Event, error) {
	rows, err := s.queryRW(ctx, "event.cut_events", fmt.Sprintf(`
		SELECT %s FROM events
		WHERE room_id = ? AND kind = ? AND (attribute IS NULL OR attribute <> 'deleted')
		ORDER BY occurred_at ASC
	`, eventColumns), roomID.String(), types.StreamKind)
	if err != nil {
		return nil, err
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDBQueryFailed, "event.cut_events", err)
	}
	return events, nil
}

func cutEventsVia(ctx context.Context, db dbHandle, roomID uuid.UUID) ([]*types.Event, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM events
		WHERE room_id = ? AND kind = ? AND (attribute IS NULL OR attribute <> 'deleted')
		ORDER BY occurred_at ASC
	`, eventColumns), roomID.String(), types.StreamKind)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDBQueryFailed, "event.cut_events", err)
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDBQueryFailed, "event.cut_events", err)
	}
	return events, nil
}

// ListAllByRoom returns every non-removed event in a room, unpaginated.
func (s *Store) ListAllByRoom(ctx context.Context, roomID uuid.UUID) ([]*types.Event, error) {
	return listAllByRoomVia(ctx, s.ro, roomID)
}

func listAllByRoomVia(ctx context.Context, db dbHandle, roomID uuid.UUID) ([]*types.Event, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM events WHERE room_id = ? AND removed = FALSE ORDER BY occurred_at ASC
	`, eventColumns), roomID.String())
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDBQueryFailed, "event.list_all", err)
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDBQueryFailed, "event.list_all", err)
	}
	return events, nil
}
