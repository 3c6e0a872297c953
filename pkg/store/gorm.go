package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cuemby/burrow/pkg/types"
)

// GORMStore implements Store on an embedded SQLite database. Every
// operation runs in its own transaction; callers never observe partially
// applied writes.
type GORMStore struct {
	db *gorm.DB
}

// Open opens (creating if needed) the database at <configDir>/database.db
// and migrates the schema.
func Open(configDir string) (*GORMStore, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	path := filepath.Join(configDir, "database.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	if err := db.AutoMigrate(&types.FileRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &GORMStore{db: db}, nil
}

// Upsert inserts or updates by (session_id, filename). On update the row's
// created_at is preserved and every other column is overwritten.
func (s *GORMStore) Upsert(ctx context.Context, rec *types.FileRecord) error {
	now := time.Now().UTC()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing types.FileRecord
		err := tx.Where("session_id = ? AND filename = ?", rec.SessionID, rec.Filename).
			First(&existing).Error

		switch {
		case err == nil:
			rec.CreatedAt = existing.CreatedAt
			rec.LastModified = now
			res := tx.Model(&types.FileRecord{}).
				Where("session_id = ? AND filename = ?", rec.SessionID, rec.Filename).
				Updates(map[string]any{
					"id":                rec.ID,
					"filepath":          rec.Filepath,
					"size":              rec.Size,
					"content_type":      rec.ContentType,
					"original_filename": rec.OriginalFilename,
					"etag":              rec.Etag,
					"last_modified":     rec.LastModified,
				})
			return res.Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec.CreatedAt = now
			rec.LastModified = now
			return tx.Create(rec).Error
		default:
			return err
		}
	})
}

// Get returns the record for (session_id, file_id).
func (s *GORMStore) Get(ctx context.Context, sessionID, fileID string) (*types.FileRecord, error) {
	var rec types.FileRecord
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND id = ?", sessionID, fileID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns all records for a session.
func (s *GORMStore) List(ctx context.Context, sessionID string) ([]types.FileRecord, error) {
	var recs []types.FileRecord
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// Delete removes a record and reports whether a row existed.
func (s *GORMStore) Delete(ctx context.Context, sessionID, fileID string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("session_id = ? AND id = ?", sessionID, fileID).
		Delete(&types.FileRecord{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Reap deletes everything older than maxAge. The select and delete run in
// one transaction so the returned set equals the deleted set.
func (s *GORMStore) Reap(ctx context.Context, maxAge time.Duration) ([]types.FileRecord, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	var reaped []types.FileRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("last_modified < ?", cutoff).Find(&reaped).Error; err != nil {
			return err
		}
		if len(reaped) == 0 {
			return nil
		}
		return tx.Where("last_modified < ?", cutoff).Delete(&types.FileRecord{}).Error
	})
	if err != nil {
		return nil, err
	}
	return reaped, nil
}

// Close closes the underlying SQLite handle.
func (s *GORMStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
