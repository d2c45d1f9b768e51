package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ridesync/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupService(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Put(ctx, map[string][]byte{"sync:queue": []byte(`[{"sequenceId":1}]`)}))

	storagePath := filepath.Join(t.TempDir(), "backups")
	cfg := config.BackupConfig{Enabled: true, StoragePath: storagePath, Retention: 2}
	logger := zerolog.Nop()
	s := NewBackupService(db, cfg, &logger)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	s.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Minute)
	}

	t.Run("PerformBackup", func(t *testing.T) {
		path, err := s.PerformBackup(ctx)
		require.NoError(t, err)
		assert.FileExists(t, path)

		copyDB, err := sql.Open("sqlite3", path)
		require.NoError(t, err)
		defer copyDB.Close()

		var value string
		require.NoError(t, copyDB.QueryRow(`SELECT value FROM kv_store WHERE key = 'sync:queue'`).Scan(&value))
		assert.Equal(t, `[{"sequenceId":1}]`, value)
	})

	t.Run("CleanupOldBackups", func(t *testing.T) {
		_, err := s.PerformBackup(ctx)
		require.NoError(t, err)
		newest, err := s.PerformBackup(ctx)
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(filepath.Join(storagePath, "notes.txt"), []byte("keep"), 0o644))

		s.CleanupOldBackups()

		files, err := os.ReadDir(storagePath)
		require.NoError(t, err)
		var names []string
		for _, f := range files {
			names = append(names, f.Name())
		}
		assert.Len(t, names, 3)
		assert.Contains(t, names, "notes.txt")
		assert.Contains(t, names, filepath.Base(newest))
	})
}

func TestBackupService_Disabled(_ *testing.T) {
	logger := zerolog.Nop()
	s := NewBackupService(nil, config.BackupConfig{Enabled: false}, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Start(ctx)
}
