//go:build integration

// Integration tests for internal/storage/sql's window-function vacuum
// queries, run against a real dolt sql-server subprocess — the same
// spawn-and-wait-for-readiness pattern the donor project uses for its own
// Dolt integration tests (internal/storage/dolt/server.go's StartServer,
// internal/storage/dolt/server_test.go), rather than a mocked driver.
// Requires a `dolt` binary on PATH; skips otherwise.
package sql

import (
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fluxroom/timeline/internal/types"
)

func requireDoltBinary(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("dolt"); err != nil {
		t.Skip("dolt binary not found on PATH, skipping integration test")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func waitForDolt(host string, port int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return context.DeadlineExceeded
}

// startDoltServer spawns a real `dolt sql-server` rooted at a fresh temp
// data directory, mirroring the donor's StartServer, and returns a Store
// connected to it; teardown is registered with t.Cleanup.
func startDoltServer(t *testing.T) *Store {
	t.Helper()
	requireDoltBinary(t)

	dataDir := t.TempDir()
	dbDir := filepath.Join(dataDir, "timeline_test")
	require.NoError(t, os.MkdirAll(dbDir, 0o750))
	port := freePort(t)

	initCmd := exec.Command("dolt", "init")
	initCmd.Dir = dbDir
	require.NoError(t, initCmd.Run())

	// --data-dir serves every dolt repo found as an immediate subdirectory
	// as its own MySQL database, named after the subdirectory.
	cmd := exec.Command("dolt", "sql-server", "--host", "127.0.0.1", "--port", strconv.Itoa(port), "--data-dir", dataDir)
	cmd.Dir = dataDir
	logPath := filepath.Join(dataDir, "sql-server.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	require.NoError(t, err)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	require.NoError(t, cmd.Start())

	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		_ = logFile.Close()
	})

	require.NoError(t, waitForDolt("127.0.0.1", port, 30*time.Second))

	dsn := "root:@tcp(127.0.0.1:" + strconv.Itoa(port) + ")/timeline_test?parseTime=true"
	store, err := Open(context.Background(), Config{ReadWriteDSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func insertEvent(t *testing.T, store *Store, roomID uuid.UUID, set, label string, originalOccurredAt int64, createdAt time.Time, attribute types.Attribute) {
	t.Helper()
	_, err := store.Insert(context.Background(), &types.Event{
		RoomID:             roomID,
		Kind:               "state",
		Set:                set,
		Label:              &label,
		OccurredAt:         originalOccurredAt,
		OriginalOccurredAt: originalOccurredAt,
		Attribute:          attribute,
		CreatedBy:          "test",
		CreatedAt:          createdAt,
	})
	require.NoError(t, err)
}

// TestHistorySurplusCountOrAge reproduces S5: two events for one label,
// created 70 and 30 minutes ago, max_history_size=2 and
// max_history_lifetime=1h — only the 70-minute event is surplus, because
// the size cap alone (group size 2, cap 2) never trips.
func TestHistorySurplusCountOrAge(t *testing.T) {
	store := startDoltServer(t)
	ctx := context.Background()

	room := &types.Room{ID: uuid.New(), Audience: "aud", OpenedAt: time.Now().UTC()}
	_, err := store.rw.ExecContext(ctx, `INSERT INTO rooms (id, audience, opened_at, preserve_history) VALUES (?, ?, ?, ?)`,
		room.ID.String(), room.Audience, room.OpenedAt, false)
	require.NoError(t, err)

	now := time.Now().UTC()
	insertEvent(t, store, room.ID, "s", "label-a", 1, now.Add(-70*time.Minute), types.AttributeNone)
	insertEvent(t, store, room.ID, "s", "label-a", 2, now.Add(-30*time.Minute), types.AttributeNone)

	surplus, err := store.HistorySurplus(ctx, room.ID, 2, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, surplus, 1)
}

// TestStaleTombstonesRespectsRestoration reproduces S6: events at -100,
// -90, -10 minutes for one label where the middle one is the tombstone —
// none are removed, since the most recent event is not itself deleted.
func TestStaleTombstonesRespectsRestoration(t *testing.T) {
	store := startDoltServer(t)
	ctx := context.Background()

	room := &types.Room{ID: uuid.New(), Audience: "aud", OpenedAt: time.Now().UTC()}
	_, err := store.rw.ExecContext(ctx, `INSERT INTO rooms (id, audience, opened_at, preserve_history) VALUES (?, ?, ?, ?)`,
		room.ID.String(), room.Audience, room.OpenedAt, false)
	require.NoError(t, err)

	now := time.Now().UTC()
	insertEvent(t, store, room.ID, "s", "label-b", 1, now.Add(-100*time.Minute), types.AttributeNone)
	insertEvent(t, store, room.ID, "s", "label-b", 2, now.Add(-90*time.Minute), types.AttributeDeleted)
	insertEvent(t, store, room.ID, "s", "label-b", 3, now.Add(-10*time.Minute), types.AttributeNone)

	stale, err := store.StaleTombstones(ctx, room.ID, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Empty(t, stale)
}
