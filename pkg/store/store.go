package store

import (
	"context"
	"errors"
	"time"

	"github.com/cuemby/burrow/pkg/types"
)

// ErrFileNotFound is returned when no record matches the requested
// (session_id, file_id) pair. The HTTP layer maps it to 404.
var ErrFileNotFound = errors.New("file not found")

// Store defines the interface for file metadata persistence.
type Store interface {
	// Upsert inserts the record, or overwrites the existing row with the
	// same (session_id, filename) while preserving its created_at. The
	// record's LastModified (and CreatedAt on insert) are set by the store.
	Upsert(ctx context.Context, rec *types.FileRecord) error

	// Get returns the record for (session_id, file_id), or ErrFileNotFound.
	Get(ctx context.Context, sessionID, fileID string) (*types.FileRecord, error)

	// List returns all records for a session. Order is unspecified.
	List(ctx context.Context, sessionID string) ([]types.FileRecord, error)

	// Delete removes a record and reports whether a row was removed.
	Delete(ctx context.Context, sessionID, fileID string) (bool, error)

	// Reap deletes every record whose last_modified is older than maxAge
	// and returns exactly the deleted set.
	Reap(ctx context.Context, maxAge time.Duration) ([]types.FileRecord, error)

	// Close releases the underlying database.
	Close() error
}
