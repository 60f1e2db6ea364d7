package sql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fluxroom/timeline/internal/apperror"
	"github.com/fluxroom/timeline/internal/types"
)

// CreateEdition inserts a new edition row.
func (s *Store) CreateEdition(ctx context.Context, e *types.Edition) (*types.Edition, error) {
	out := *e
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	_, err := s.execRW(ctx, "edition.create", `
		INSERT INTO editions (id, source_room_id, created_by, created_at)
		VALUES (?, ?, ?, ?)
	`, out.ID.String(), out.SourceRoomID.String(), out.CreatedBy, out.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetEdition fetches an edition by id.
func (s *Store) GetEdition(ctx context.Context, id uuid.UUID) (*types.Edition, error) {
	row := s.ro.QueryRowContext(ctx, `
		SELECT id, source_room_id, created_by, created_at FROM editions WHERE id = ?
	`, id.String())
	e, err := scanEdition(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.New(apperror.KindEditionNotFound, "edition.get", fmt.Sprintf("edition %s not found", id))
		}
		return nil, apperror.Wrap(apperror.KindDBQueryFailed, "edition.get", err)
	}
	return e, nil
}

func scanEdition(row rowScanner) (*types.Edition, error) {
	var idStr, sourceRoomIDStr, createdBy string
	var createdAt time.Time
	if err := row.Scan(&idStr, &sourceRoomIDStr, &createdBy, &createdAt); err != nil {
		return nil, err
	}
	return &types.Edition{
		ID:           uuid.MustParse(idStr),
		SourceRoomID: uuid.MustParse(sourceRoomIDStr),
		CreatedBy:    createdBy,
		CreatedAt:    createdAt,
	}, nil
}

// ListEditions lists editions for a source room, newest first, optionally
// paginated by lastCreatedAt.
func (s *Store) ListEditions(ctx context.Context, sourceRoomID uuid.UUID, lastCreatedAt *time.Time, limit int) ([]*types.Edition, error) {
	query := `SELECT id, source_room_id, created_by, created_at FROM editions WHERE source_room_id = ?`
	args := []any{sourceRoomID.String()}
	if lastCreatedAt != nil {
		query += ` AND created_at < ?`
		args = append(args, *lastCreatedAt)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, clampLimit(limit))

	rows, err := s.queryRO(ctx, "edition.list", query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*types.Edition
	for rows.Next() {
		e, err := scanEdition(rows)
		if err != nil {
			return nil, apperror.Wrap(apperror.KindDBQueryFailed, "edition.list", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteEdition removes an edition and its changes.
func (s *Store) DeleteEdition(ctx context.Context, id uuid.UUID) error {
	_, err := s.execRW(ctx, "edition.delete", `DELETE FROM changes WHERE edition_id = ?`, id.String())
	if err != nil {
		return err
	}
	_, err = s.execRW(ctx, "edition.delete", `DELETE FROM editions WHERE id = ?`, id.String())
	return err
}
