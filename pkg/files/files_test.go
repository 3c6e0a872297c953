package files

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/store"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}

func newTestManager(t *testing.T) (*Manager, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		HostPath:           t.TempDir(),
		HostConfigPath:     "config",
		HostFileUploadPath: "uploads",
		FileMaxUploadSize:  1024,
		FileAllowedExtensions: map[string]struct{}{
			"txt": {}, "csv": {}, "png": {},
		},
	}
	st, err := store.Open(cfg.ConfigPathAbs())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return NewManager(cfg, st), cfg
}

func TestSaveAndOpen(t *testing.T) {
	m, cfg := newTestManager(t)
	ctx := context.Background()

	content := "a,b\n1,2\n"
	rec, err := m.Save(ctx, "sess-1", "data.csv", strings.NewReader(content))
	require.NoError(t, err)

	assert.Regexp(t, `^[A-Za-z0-9_-]{21}$`, rec.ID)
	assert.Equal(t, "data.csv", rec.Filename)
	assert.Equal(t, "sess-1/data.csv", rec.Filepath)
	assert.Equal(t, int64(len(content)), rec.Size)
	assert.Equal(t, "data.csv", rec.OriginalFilename)

	sum := md5.Sum([]byte(content))
	assert.Equal(t, hex.EncodeToString(sum[:]), rec.Etag)

	// Content lands inside the session directory under the upload root.
	onDisk, err := os.ReadFile(filepath.Join(cfg.UploadPathAbs(), "sess-1", "data.csv"))
	require.NoError(t, err)
	assert.Equal(t, content, string(onDisk))

	got, rc, err := m.Open(ctx, "sess-1", rec.ID)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, rec.ID, got.ID)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, string(body))
}

func TestSaveStripsDirectoryComponents(t *testing.T) {
	m, cfg := newTestManager(t)

	rec, err := m.Save(context.Background(), "sess-1", "../../../etc/passwd.txt", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "passwd.txt", rec.Filename)

	_, err = os.Stat(filepath.Join(cfg.UploadPathAbs(), "sess-1", "passwd.txt"))
	assert.NoError(t, err)
}

func TestSaveRejectsDisallowedExtension(t *testing.T) {
	m, cfg := newTestManager(t)

	_, err := m.Save(context.Background(), "sess-1", "payload.exe", strings.NewReader("MZ"))
	assert.ErrorIs(t, err, ErrExtensionNotAllowed)

	_, statErr := os.Stat(filepath.Join(cfg.UploadPathAbs(), "sess-1", "payload.exe"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSaveRejectsOversizedUpload(t *testing.T) {
	m, cfg := newTestManager(t)

	big := strings.Repeat("x", int(cfg.FileMaxUploadSize)+1)
	_, err := m.Save(context.Background(), "sess-1", "big.txt", strings.NewReader(big))
	assert.ErrorIs(t, err, ErrFileTooLarge)

	// Partial content must not survive the rejection.
	_, statErr := os.Stat(filepath.Join(cfg.UploadPathAbs(), "sess-1", "big.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSaveAtExactLimitSucceeds(t *testing.T) {
	m, cfg := newTestManager(t)

	exact := strings.Repeat("x", int(cfg.FileMaxUploadSize))
	rec, err := m.Save(context.Background(), "sess-1", "exact.txt", strings.NewReader(exact))
	require.NoError(t, err)
	assert.Equal(t, cfg.FileMaxUploadSize, rec.Size)
}

func TestSaveSameNameReplaces(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.Save(ctx, "sess-1", "notes.txt", strings.NewReader("v1"))
	require.NoError(t, err)
	second, err := m.Save(ctx, "sess-1", "notes.txt", strings.NewReader("version two"))
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)

	list, err := m.List(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, int64(len("version two")), list[0].Size)
}

func TestOpenMissingContentReportsNotFound(t *testing.T) {
	m, cfg := newTestManager(t)
	ctx := context.Background()

	rec, err := m.Save(ctx, "sess-1", "gone.txt", strings.NewReader("x"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(cfg.UploadPathAbs(), "sess-1", "gone.txt")))

	_, _, err = m.Open(ctx, "sess-1", rec.ID)
	assert.ErrorIs(t, err, store.ErrFileNotFound)
}

func TestOpenWrongSession(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	rec, err := m.Save(ctx, "sess-1", "private.txt", strings.NewReader("x"))
	require.NoError(t, err)

	_, _, err = m.Open(ctx, "sess-2", rec.ID)
	assert.ErrorIs(t, err, store.ErrFileNotFound)
}

func TestDeleteRemovesContentAndEmptyDir(t *testing.T) {
	m, cfg := newTestManager(t)
	ctx := context.Background()

	rec, err := m.Save(ctx, "sess-1", "only.txt", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, "sess-1", rec.ID))

	_, err = m.store.Get(ctx, "sess-1", rec.ID)
	assert.ErrorIs(t, err, store.ErrFileNotFound)

	_, statErr := os.Stat(filepath.Join(cfg.UploadPathAbs(), "sess-1"))
	assert.True(t, os.IsNotExist(statErr), "empty session directory must be pruned")
}

func TestDeleteKeepsNonEmptyDir(t *testing.T) {
	m, cfg := newTestManager(t)
	ctx := context.Background()

	rec, err := m.Save(ctx, "sess-1", "a.txt", strings.NewReader("a"))
	require.NoError(t, err)
	_, err = m.Save(ctx, "sess-1", "b.txt", strings.NewReader("b"))
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, "sess-1", rec.ID))

	_, statErr := os.Stat(filepath.Join(cfg.UploadPathAbs(), "sess-1", "b.txt"))
	assert.NoError(t, statErr)
}

func TestDeleteUnknownFile(t *testing.T) {
	m, _ := newTestManager(t)
	err := m.Delete(context.Background(), "sess-1", "no-such-id")
	assert.ErrorIs(t, err, store.ErrFileNotFound)
}

func TestListTimestamps(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	before := time.Now().Add(-time.Minute)
	_, err := m.Save(ctx, "sess-1", "stamped.txt", strings.NewReader("x"))
	require.NoError(t, err)

	list, err := m.List(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].CreatedAt.After(before))
	assert.True(t, list[0].LastModified.After(before))
}
