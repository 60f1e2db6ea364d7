package sql

import (
	"context"
	"database/sql"
	"fmt"
)

// RunMigrations creates the core schema if absent, following the donor's
// idempotent-existence-check-then-CREATE pattern (internal/storage/sqlite/
// migrations/041_resource_tables.go) rather than a numbered migration
// runner — there is exactly one schema version for this service so far.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_name = 'rooms'
	`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("sql: check schema: %w", err)
	}
	if exists {
		return nil
	}

	statements := []string{
		`CREATE TABLE rooms (
			id CHAR(36) PRIMARY KEY,
			audience VARCHAR(255) NOT NULL,
			opened_at DATETIME(6) NOT NULL,
			closed_at DATETIME(6) NULL,
			tags JSON NULL,
			source_room_id CHAR(36) NULL,
			preserve_history BOOLEAN NOT NULL DEFAULT FALSE,
			INDEX idx_rooms_audience (audience),
			INDEX idx_rooms_source (source_room_id)
		)`,
		`CREATE TABLE events (
			id CHAR(36) PRIMARY KEY,
			room_id CHAR(36) NOT NULL,
			kind VARCHAR(255) NOT NULL,
			event_set VARCHAR(255) NOT NULL,
			label VARCHAR(255) NULL,
			data JSON NULL,
			occurred_at BIGINT NOT NULL,
			original_occurred_at BIGINT NOT NULL,
			attribute VARCHAR(32) NULL,
			created_by VARCHAR(255) NOT NULL,
			created_at DATETIME(6) NOT NULL,
			removed BOOLEAN NOT NULL DEFAULT FALSE,
			INDEX idx_events_room_order (room_id, occurred_at, created_at, id),
			INDEX idx_events_room_set_label (room_id, event_set, label, original_occurred_at),
			INDEX idx_events_room_kind (room_id, kind)
		)`,
		`CREATE TABLE editions (
			id CHAR(36) PRIMARY KEY,
			source_room_id CHAR(36) NOT NULL,
			created_by VARCHAR(255) NOT NULL,
			created_at DATETIME(6) NOT NULL,
			INDEX idx_editions_source (source_room_id, created_at)
		)`,
		`CREATE TABLE changes (
			id CHAR(36) PRIMARY KEY,
			edition_id CHAR(36) NOT NULL,
			kind VARCHAR(32) NOT NULL,
			event_id CHAR(36) NULL,
			event_kind VARCHAR(255) NULL,
			event_set VARCHAR(255) NULL,
			event_label VARCHAR(255) NULL,
			event_data JSON NULL,
			event_occurred_at BIGINT NULL,
			event_created_by VARCHAR(255) NULL,
			INDEX idx_changes_edition (edition_id),
			INDEX idx_changes_event (event_id)
		)`,
	}

	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sql: create schema statement %d: %w", i, err)
		}
	}
	return nil
}
