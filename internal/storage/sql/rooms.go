package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fluxroom/timeline/internal/apperror"
	"github.com/fluxroom/timeline/internal/types"
)

// GetRoom fetches a room by id.
func (s *Store) GetRoom(ctx context.Context, id uuid.UUID) (*types.Room, error) {
	return getRoomVia(ctx, s.ro, id)
}

func getRoomVia(ctx context.Context, db dbHandle, id uuid.UUID) (*types.Room, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, audience, opened_at, closed_at, tags, source_room_id, preserve_history
		FROM rooms WHERE id = ?
	`, id.String())
	room, err := scanRoom(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.New(apperror.KindRoomNotFound, "room.get", fmt.Sprintf("room %s not found", id))
		}
		return nil, apperror.Wrap(apperror.KindDBQueryFailed, "room.get", err)
	}
	return room, nil
}

// rowScanner abstracts over *sql.Row and *sql.Rows for a single-row scan.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*types.Room, error) {
	var (
		idStr, audience    string
		openedAt           time.Time
		closedAt           sql.NullTime
		tagsRaw            sql.NullString
		sourceRoomIDStr    sql.NullString
		preserveHistory    bool
	)
	if err := row.Scan(&idStr, &audience, &openedAt, &closedAt, &tagsRaw, &sourceRoomIDStr, &preserveHistory); err != nil {
		return nil, err
	}
	room := &types.Room{
		ID:              uuid.MustParse(idStr),
		Audience:        audience,
		OpenedAt:        openedAt,
		PreserveHistory: preserveHistory,
	}
	if closedAt.Valid {
		t := closedAt.Time
		room.ClosedAt = &t
	}
	if tagsRaw.Valid && tagsRaw.String != "" {
		var tags map[string]any
		if err := json.Unmarshal([]byte(tagsRaw.String), &tags); err == nil {
			room.Tags = tags
		}
	}
	if sourceRoomIDStr.Valid && sourceRoomIDStr.String != "" {
		id := uuid.MustParse(sourceRoomIDStr.String)
		room.SourceRoomID = &id
	}
	return room, nil
}

// CloneRoom creates a destination room copying audience, time and tags from
// source, with SourceRoomID set to source's id (§4.4 step 5).
func (s *Store) CloneRoom(ctx context.Context, source *types.Room) (*types.Room, error) {
	return cloneRoomVia(ctx, s.rw, source)
}

func cloneRoomVia(ctx context.Context, db dbHandle, source *types.Room) (*types.Room, error) {
	dest := &types.Room{
		ID:              uuid.New(),
		Audience:        source.Audience,
		OpenedAt:        source.OpenedAt,
		ClosedAt:        source.ClosedAt,
		Tags:            source.Tags,
		SourceRoomID:    &source.ID,
		PreserveHistory: false,
	}
	var tagsJSON []byte
	if dest.Tags != nil {
		var err error
		tagsJSON, err = json.Marshal(dest.Tags)
		if err != nil {
			return nil, apperror.Wrap(apperror.KindSerializationFailed, "room.clone", err)
		}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO rooms (id, audience, opened_at, closed_at, tags, source_room_id, preserve_history)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, dest.ID.String(), dest.Audience, dest.OpenedAt, dest.ClosedAt, nullableJSON(tagsJSON), dest.SourceRoomID.String(), dest.PreserveHistory)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDBQueryFailed, "room.clone", err)
	}
	return dest, nil
}

func nullableJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
