package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ridesync/internal/config"

	"github.com/rs/zerolog"
)

const backupPrefix = "ridesync_"

// BackupService periodically copies the local store so a corrupted device
// database does not lose the pending write queue.
type BackupService struct {
	db     *DB
	config config.BackupConfig
	logger zerolog.Logger
	now    func() time.Time
}

func NewBackupService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "backup").Logger()
	}
	return &BackupService{db: db, config: cfg, logger: l, now: time.Now}
}

func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return
	}

	interval := s.config.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	s.logger.Info().Dur("interval", interval).Msg("Backup service started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *BackupService) runOnce(ctx context.Context) {
	if _, err := s.PerformBackup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Backup failed")
		return
	}
	s.CleanupOldBackups()
}

// PerformBackup writes a consistent copy of the store and returns its path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("%s%s.db", backupPrefix, s.now().UTC().Format("20060102_150405.000"))
	backupPath := filepath.Join(s.config.StoragePath, name)

	// VACUUM INTO takes a transactionally consistent snapshot while the
	// store stays open.
	if _, err := s.db.db.ExecContext(ctx, `VACUUM INTO ?`, backupPath); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", backupPath, err)
	}

	s.logger.Info().Str("path", backupPath).Msg("Backup completed")
	return backupPath, nil
}

// CleanupOldBackups keeps the newest Retention backups and removes the rest.
func (s *BackupService) CleanupOldBackups() {
	if s.config.Retention <= 0 {
		return
	}

	entries, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read backup directory for cleanup")
		return
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), backupPrefix) {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) <= s.config.Retention {
		return
	}

	// Timestamped names sort chronologically.
	sort.Strings(names)
	for _, name := range names[:len(names)-s.config.Retention] {
		s.logger.Info().Str("file", name).Msg("Deleting old backup")
		if err := os.Remove(filepath.Join(s.config.StoragePath, name)); err != nil {
			s.logger.Warn().Err(err).Str("file", name).Msg("Failed to delete old backup")
		}
	}
}
