package svcconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "timeline", cfg.ServiceID)
	require.Equal(t, 10, cfg.Vacuum.MaxHistorySize)
	require.Equal(t, cfg.Storage.ReadWriteDSN, cfg.Storage.ReadOnlyDSN)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
service_id: edge-timeline
storage:
  read_write_dsn: "root:@tcp(127.0.0.1:3307)/timeline"
vacuum:
  max_history_size: 3
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "edge-timeline", cfg.ServiceID)
	require.Equal(t, 3, cfg.Vacuum.MaxHistorySize)
	require.Equal(t, "root:@tcp(127.0.0.1:3307)/timeline", cfg.Storage.ReadWriteDSN)
	require.Equal(t, cfg.Storage.ReadWriteDSN, cfg.Storage.ReadOnlyDSN)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
