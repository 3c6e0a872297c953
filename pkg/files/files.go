package files

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/ident"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/store"
	"github.com/cuemby/burrow/pkg/types"
)

var (
	// ErrExtensionNotAllowed rejects uploads whose extension is outside the
	// configured whitelist.
	ErrExtensionNotAllowed = errors.New("file extension not allowed")

	// ErrFileTooLarge rejects uploads exceeding FILE_MAX_UPLOAD_SIZE.
	ErrFileTooLarge = errors.New("file exceeds maximum upload size")
)

// Manager owns the upload root: it writes uploaded bytes into session
// directories and keeps the metadata store in step with what is on disk.
type Manager struct {
	cfg    *config.Config
	store  store.Store
	logger zerolog.Logger
}

// NewManager creates a Manager over the configured upload root.
func NewManager(cfg *config.Config, st store.Store) *Manager {
	return &Manager{
		cfg:    cfg,
		store:  st,
		logger: log.WithComponent("files"),
	}
}

// SessionDir returns the absolute directory holding a session's files.
func (m *Manager) SessionDir(sessionID string) string {
	return filepath.Join(m.cfg.UploadPathAbs(), sessionID)
}

// Save streams an upload into the session directory and registers it.
// The stored name is the base name of the submitted filename; an upload
// with the same name replaces the previous one.
func (m *Manager) Save(ctx context.Context, sessionID, filename string, r io.Reader) (*types.FileRecord, error) {
	name := filepath.Base(filepath.Clean(filename))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return nil, fmt.Errorf("invalid filename %q", filename)
	}

	ext := path.Ext(name)
	if !m.cfg.ExtensionAllowed(ext) {
		return nil, fmt.Errorf("%w: %q", ErrExtensionNotAllowed, ext)
	}

	dir := m.SessionDir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	dst := filepath.Join(dir, name)
	f, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	hash := md5.New()
	// One byte past the cap distinguishes "at the limit" from "over it".
	written, err := io.Copy(io.MultiWriter(f, hash), io.LimitReader(r, m.cfg.FileMaxUploadSize+1))
	closeErr := f.Close()

	switch {
	case err != nil:
		_ = os.Remove(dst)
		return nil, fmt.Errorf("failed to write file: %w", err)
	case closeErr != nil:
		_ = os.Remove(dst)
		return nil, fmt.Errorf("failed to write file: %w", closeErr)
	case written > m.cfg.FileMaxUploadSize:
		_ = os.Remove(dst)
		return nil, fmt.Errorf("%w (%d bytes max)", ErrFileTooLarge, m.cfg.FileMaxUploadSize)
	}

	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	rec := &types.FileRecord{
		ID:               ident.New(),
		SessionID:        sessionID,
		Filename:         name,
		Filepath:         sessionID + "/" + name,
		Size:             written,
		ContentType:      contentType,
		OriginalFilename: filename,
		Etag:             hex.EncodeToString(hash.Sum(nil)),
	}

	if err := m.store.Upsert(ctx, rec); err != nil {
		_ = os.Remove(dst)
		return nil, fmt.Errorf("failed to register file: %w", err)
	}

	metrics.FilesRegisteredTotal.Inc()
	m.logger.Info().
		Str("session_id", sessionID).
		Str("file_id", rec.ID).
		Str("filename", name).
		Int64("size", written).
		Msg("File uploaded")
	return rec, nil
}

// Get returns a file's metadata without touching its content.
func (m *Manager) Get(ctx context.Context, sessionID, fileID string) (*types.FileRecord, error) {
	return m.store.Get(ctx, sessionID, fileID)
}

// Open resolves a file by id and opens its content for reading. The caller
// closes the returned reader.
func (m *Manager) Open(ctx context.Context, sessionID, fileID string) (*types.FileRecord, io.ReadCloser, error) {
	rec, err := m.store.Get(ctx, sessionID, fileID)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(filepath.Join(m.cfg.UploadPathAbs(), filepath.FromSlash(rec.Filepath)))
	if err != nil {
		if os.IsNotExist(err) {
			// Metadata without content; treat as gone.
			return nil, nil, store.ErrFileNotFound
		}
		return nil, nil, err
	}
	return rec, f, nil
}

// List returns the metadata for every file the session owns.
func (m *Manager) List(ctx context.Context, sessionID string) ([]types.FileRecord, error) {
	return m.store.List(ctx, sessionID)
}

// Delete removes a file's content and metadata. The session directory is
// removed once its last file is gone.
func (m *Manager) Delete(ctx context.Context, sessionID, fileID string) error {
	rec, err := m.store.Get(ctx, sessionID, fileID)
	if err != nil {
		return err
	}

	if _, err := m.store.Delete(ctx, sessionID, fileID); err != nil {
		return err
	}

	abs := filepath.Join(m.cfg.UploadPathAbs(), filepath.FromSlash(rec.Filepath))
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		m.logger.Warn().Err(err).Str("path", abs).Msg("Failed to remove file content")
	}

	m.removeDirIfEmpty(m.SessionDir(sessionID))

	m.logger.Info().
		Str("session_id", sessionID).
		Str("file_id", fileID).
		Str("filename", rec.Filename).
		Msg("File deleted")
	return nil
}

func (m *Manager) removeDirIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return
	}
	if err := os.Remove(dir); err != nil {
		m.logger.Debug().Err(err).Str("dir", dir).Msg("Failed to remove empty session directory")
	}
}
