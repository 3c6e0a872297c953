package snapshot

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}

func write(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTakeMissingRoot(t *testing.T) {
	states := Take(filepath.Join(t.TempDir(), "does-not-exist"))
	if len(states) != 0 {
		t.Errorf("Take() on missing root = %d entries, want 0", len(states))
	}
}

func TestTakeRecordsRegularFiles(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.txt", "hello")
	write(t, root, "nested/deep/b.txt", "world")

	states := Take(root)
	if len(states) != 2 {
		t.Fatalf("Take() = %d entries, want 2", len(states))
	}

	a, ok := states["a.txt"]
	if !ok {
		t.Fatal("a.txt missing from snapshot")
	}
	if a.Size != 5 {
		t.Errorf("a.txt size = %d, want 5", a.Size)
	}
	if a.Hash == "" || a.MTime == 0 {
		t.Errorf("a.txt state incomplete: %+v", a)
	}

	if _, ok := states["nested/deep/b.txt"]; !ok {
		t.Error("nested/deep/b.txt missing from snapshot")
	}
}

func TestTakeSkipsLockFilesAndSymlinks(t *testing.T) {
	root := t.TempDir()
	write(t, root, "kept.txt", "x")
	write(t, root, "busy.txt.lock", "lock")
	write(t, root, "dir.lock/inner.txt", "hidden")

	target := write(t, root, "target.txt", "t")
	if err := os.Symlink(target, filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	states := Take(root)
	for _, rel := range []string{"busy.txt.lock", "dir.lock/inner.txt", "link.txt"} {
		if _, ok := states[rel]; ok {
			t.Errorf("%s should not appear in snapshot", rel)
		}
	}
	if _, ok := states["kept.txt"]; !ok {
		t.Error("kept.txt missing from snapshot")
	}
}

func TestDiffNewAndModified(t *testing.T) {
	root := t.TempDir()
	write(t, root, "stable.txt", "same")
	write(t, root, "grows.txt", "v1")
	before := Take(root)

	write(t, root, "grows.txt", "version two")
	write(t, root, "created.txt", "new")

	changed := Diff(before, Take(root))
	want := []string{"created.txt", "grows.txt"}
	if len(changed) != len(want) {
		t.Fatalf("Diff() = %v, want %v", changed, want)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Errorf("Diff()[%d] = %q, want %q", i, changed[i], want[i])
		}
	}
}

func TestDiffIdenticalRewrite(t *testing.T) {
	root := t.TempDir()
	path := write(t, root, "unchanged.txt", "constant content")
	before := Take(root)

	// Rewrite the same bytes; only mtime moves.
	if err := os.WriteFile(path, []byte("constant content"), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	if changed := Diff(before, Take(root)); len(changed) != 0 {
		t.Errorf("Diff() after identical rewrite = %v, want empty", changed)
	}
}

func TestDiffSameSizeDifferentContent(t *testing.T) {
	root := t.TempDir()
	path := write(t, root, "swap.txt", "aaaa")
	before := Take(root)

	if err := os.WriteFile(path, []byte("bbbb"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Pin mtime back so only the content differs.
	prev := before["swap.txt"]
	mtime := time.Unix(0, int64(prev.MTime*1e9))
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	changed := Diff(before, Take(root))
	if len(changed) != 1 || changed[0] != "swap.txt" {
		t.Errorf("Diff() = %v, want [swap.txt]", changed)
	}
}

func TestDiffZeroByteThenContent(t *testing.T) {
	root := t.TempDir()
	before := Take(root)

	path := write(t, root, "empty.txt", "")
	mid := Take(root)

	changed := Diff(before, mid)
	if len(changed) != 1 || changed[0] != "empty.txt" {
		t.Fatalf("zero-byte creation not detected: %v", changed)
	}

	if err := os.WriteFile(path, []byte("now has content"), 0o644); err != nil {
		t.Fatal(err)
	}
	changed = Diff(mid, Take(root))
	if len(changed) != 1 || changed[0] != "empty.txt" {
		t.Errorf("zero-byte to content not detected: %v", changed)
	}
}

func TestDiffRenameReportsOnlyNewName(t *testing.T) {
	root := t.TempDir()
	old := write(t, root, "before.txt", "payload")
	before := Take(root)

	if err := os.Rename(old, filepath.Join(root, "after.txt")); err != nil {
		t.Fatal(err)
	}

	changed := Diff(before, Take(root))
	if len(changed) != 1 || changed[0] != "after.txt" {
		t.Errorf("Diff() after rename = %v, want [after.txt]", changed)
	}
}

func TestDiffIdenticalContentTwoNames(t *testing.T) {
	root := t.TempDir()
	write(t, root, "original.txt", "duplicate content")
	before := Take(root)

	write(t, root, "copy.txt", "duplicate content")

	changed := Diff(before, Take(root))
	if len(changed) != 1 || changed[0] != "copy.txt" {
		t.Errorf("Diff() = %v, want [copy.txt]", changed)
	}
}

func TestDiffUnicodeNames(t *testing.T) {
	root := t.TempDir()
	before := Take(root)
	write(t, root, "résultat-日本語.txt", "süß ünïcödé content 日本語")

	changed := Diff(before, Take(root))
	if len(changed) != 1 || changed[0] != "résultat-日本語.txt" {
		t.Errorf("Diff() = %v, want the unicode name round-tripped", changed)
	}
}

func TestDiffManyFilesSubset(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		write(t, root, fmt.Sprintf("file-%02d.txt", i), fmt.Sprintf("initial %d", i))
	}
	before := Take(root)

	for i := 10; i < 20; i++ {
		write(t, root, fmt.Sprintf("file-%02d.txt", i), fmt.Sprintf("modified %d", i))
	}

	changed := Diff(before, Take(root))
	if len(changed) != 10 {
		t.Fatalf("Diff() = %d entries, want 10: %v", len(changed), changed)
	}
	for i, rel := range changed {
		want := fmt.Sprintf("file-%02d.txt", i+10)
		if rel != want {
			t.Errorf("changed[%d] = %q, want %q", i, rel, want)
		}
	}
}
