package sql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fluxroom/timeline/internal/apperror"
)

// HistorySurplus returns the ids of non-current ((set, label) versions other
// than the latest) events that are surplus to keep: either the group holds
// more than maxSize non-current versions (rn exceeds maxSize) or the row is
// simply older than olderThan, whichever fires first — §4.6's history rule
// is a count cap OR an age cap, never both required at once. The latest
// version (rn = 1) is never a candidate here regardless of its age.
func (s *Store) HistorySurplus(ctx context.Context, roomID uuid.UUID, maxSize int, olderThan time.Time) ([]uuid.UUID, error) {
	rows, err := s.queryRW(ctx, "vacuum.history_surplus", `
		SELECT id FROM (
			SELECT id, created_at,
				ROW_NUMBER() OVER (PARTITION BY event_set, label ORDER BY original_occurred_at DESC) AS rn
			FROM events
			WHERE room_id = ? AND label IS NOT NULL
		) ranked
		WHERE rn > 1 AND (rn > ? OR created_at < ?)
	`, roomID.String(), maxSize, olderThan)
	if err != nil {
		return nil, err
	}
	return scanUUIDs(rows, "vacuum.history_surplus")
}

// StaleTombstones returns ids of events whose attribute="deleted" is the
// latest version for its (set, label) and became so more than olderThan
// ago. A later non-deleted event for the same (set, label) means the
// deleted row is no longer rn=1 and is therefore excluded automatically —
// this is exactly the "restoration suppresses deletion" rule in §4.6.
func (s *Store) StaleTombstones(ctx context.Context, roomID uuid.UUID, olderThan time.Time) ([]uuid.UUID, error) {
	rows, err := s.queryRW(ctx, "vacuum.stale_tombstones", `
		SELECT id FROM (
			SELECT id, attribute, created_at,
				ROW_NUMBER() OVER (PARTITION BY event_set, label ORDER BY original_occurred_at DESC) AS rn
			FROM events
			WHERE room_id = ? AND label IS NOT NULL
		) ranked
		WHERE rn = 1 AND attribute = 'deleted' AND created_at < ?
	`, roomID.String(), olderThan)
	if err != nil {
		return nil, err
	}
	return scanUUIDs(rows, "vacuum.stale_tombstones")
}

func scanUUIDs(rows *sql.Rows, op string) ([]uuid.UUID, error) {
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, apperror.Wrap(apperror.KindDBQueryFailed, op, err)
		}
		out = append(out, uuid.MustParse(idStr))
	}
	return out, rows.Err()
}

// DeleteEvents hard-deletes the given event ids and returns the count
// actually removed.
func (s *Store) DeleteEvents(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id.String()
	}
	query := fmt.Sprintf(`DELETE FROM events WHERE id IN (%s)`, joinPlaceholders(placeholders))
	res, err := s.execRW(ctx, "vacuum.delete_events", query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperror.Wrap(apperror.KindDBQueryFailed, "vacuum.delete_events", err)
	}
	return int(n), nil
}

// RoomsToVacuum returns ids of rooms with preserve_history=false.
func (s *Store) RoomsToVacuum(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.queryRW(ctx, "vacuum.rooms", `SELECT id FROM rooms WHERE preserve_history = FALSE`)
	if err != nil {
		return nil, err
	}
	return scanUUIDs(rows, "vacuum.rooms")
}

// OrphanDestinationRooms returns destination rooms with zero events, older
// than olderThan — the §6A supplement to vacuum.
func (s *Store) OrphanDestinationRooms(ctx context.Context, olderThan time.Time) ([]uuid.UUID, error) {
	rows, err := s.queryRW(ctx, "vacuum.orphan_rooms", `
		SELECT r.id FROM rooms r
		LEFT JOIN events e ON e.room_id = r.id
		WHERE r.source_room_id IS NOT NULL AND e.id IS NULL AND r.opened_at < ?
	`, olderThan)
	if err != nil {
		return nil, err
	}
	return scanUUIDs(rows, "vacuum.orphan_rooms")
}

// DeleteRooms hard-deletes the given room ids and returns the count
// actually removed.
func (s *Store) DeleteRooms(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id.String()
	}
	query := fmt.Sprintf(`DELETE FROM rooms WHERE id IN (%s)`, joinPlaceholders(placeholders))
	res, err := s.execRW(ctx, "vacuum.delete_rooms", query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperror.Wrap(apperror.KindDBQueryFailed, "vacuum.delete_rooms", err)
	}
	return int(n), nil
}

func joinPlaceholders(ps []string) string {
	out := ps[0]
	for _, p := range ps[1:] {
		out += "," + p
	}
	return out
}
