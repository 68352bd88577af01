package repository

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nakedgoat/pwstash/internal/models"
)

const testShadow = "root:$6$rootsalt$roothash:19000:0:99999:7:::\n" +
	"alice:$6$abc$oldhash:19500:0:99999:7:::\n" +
	"bob:$6$bbb$bobhash:19400:0:99999:7:::\n"

// testOwnership leaves uid/gid alone so tests run unprivileged.
func testOwnership(mode os.FileMode) FileOwnership {
	return FileOwnership{UID: -1, GID: -1, Mode: mode}
}

func newTestShadowFile(t *testing.T, content string) *ShadowFile {
	t.Helper()
	dir := t.TempDir()
	shadowPath := filepath.Join(dir, "shadow")
	passwdPath := filepath.Join(dir, "passwd")
	if err := os.WriteFile(shadowPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write shadow fixture: %v", err)
	}
	if err := os.WriteFile(passwdPath, []byte("alice:x:1000:1000::/home/alice:/bin/sh\n"), 0o600); err != nil {
		t.Fatalf("write passwd fixture: %v", err)
	}
	return &ShadowFile{
		Path:        shadowPath,
		PasswdPath:  passwdPath,
		SnapshotDir: filepath.Join(dir, "backups"),
		ShadowOwner: testOwnership(0o600),
		PasswdOwner: testOwnership(0o644),
	}
}

func TestFind_Found(t *testing.T) {
	s := newTestShadowFile(t, testShadow)

	rec, err := s.Find("alice")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if rec.Raw != "alice:$6$abc$oldhash:19500:0:99999:7:::" {
		t.Errorf("unexpected record: %q", rec.Raw)
	}
}

func TestFind_PrefixIsNotAMatch(t *testing.T) {
	s := newTestShadowFile(t, testShadow)

	// "ali" is a prefix of "alice" but keys no record.
	_, err := s.Find("ali")
	if !errors.Is(err, models.ErrRecordNotFound) {
		t.Fatalf("Find error = %v; want ErrRecordNotFound", err)
	}
}

func TestFind_NotFound(t *testing.T) {
	s := newTestShadowFile(t, testShadow)

	_, err := s.Find("mallory")
	if !errors.Is(err, models.ErrRecordNotFound) {
		t.Fatalf("Find error = %v; want ErrRecordNotFound", err)
	}
}

func TestFind_MissingFile(t *testing.T) {
	s := newTestShadowFile(t, testShadow)
	s.Path = filepath.Join(t.TempDir(), "nonexistent")

	_, err := s.Find("alice")
	if err == nil {
		t.Fatal("expected error for missing credential file")
	}
	if errors.Is(err, models.ErrRecordNotFound) {
		t.Errorf("missing file reported as ErrRecordNotFound: %v", err)
	}
}

func TestSnapshot_CopiesWholeFile(t *testing.T) {
	s := newTestShadowFile(t, testShadow)

	now := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	path, err := s.Snapshot(now)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if string(data) != testShadow {
		t.Errorf("snapshot content differs from source")
	}
	if !strings.HasPrefix(filepath.Base(path), "shadow-20240301-123000") {
		t.Errorf("snapshot name %q not derived from timestamp", filepath.Base(path))
	}
}

func TestSnapshot_NeverOverwrites(t *testing.T) {
	s := newTestShadowFile(t, testShadow)

	// Same instant twice: the second copy must get a distinct name.
	now := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	first, err := s.Snapshot(now)
	if err != nil {
		t.Fatalf("first Snapshot failed: %v", err)
	}
	second, err := s.Snapshot(now)
	if err != nil {
		t.Fatalf("second Snapshot failed: %v", err)
	}
	if first == second {
		t.Fatalf("snapshots share the name %q", first)
	}
	for _, p := range []string{first, second} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("snapshot %s missing: %v", p, err)
		}
	}
}

func TestReplace_SubstitutesOnlyTargetLine(t *testing.T) {
	s := newTestShadowFile(t, testShadow)

	rec := models.Record{Raw: "alice:$6$abc$newhash:19600:0:99999:7:::"}
	if err := s.Replace(rec); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		t.Fatalf("read rewritten file: %v", err)
	}
	want := "root:$6$rootsalt$roothash:19000:0:99999:7:::\n" +
		"alice:$6$abc$newhash:19600:0:99999:7:::\n" +
		"bob:$6$bbb$bobhash:19400:0:99999:7:::\n"
	if string(data) != want {
		t.Errorf("rewritten file = %q; want %q", data, want)
	}
}

func TestReplace_UserMissingLeavesFileUntouched(t *testing.T) {
	s := newTestShadowFile(t, testShadow)

	rec := models.Record{Raw: "mallory:$6$mmm$hash:19600:0:99999:7:::"}
	err := s.Replace(rec)
	if !errors.Is(err, models.ErrUserNotInStore) {
		t.Fatalf("Replace error = %v; want ErrUserNotInStore", err)
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		t.Fatalf("read credential file: %v", err)
	}
	if string(data) != testShadow {
		t.Errorf("credential file changed on failed replace")
	}

	// The aborted rewrite must not leave its temp file behind.
	entries, err := os.ReadDir(filepath.Dir(s.Path))
	if err != nil {
		t.Fatalf("list dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".pwstash.") {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}

func TestReplace_KeepsFinalLineWithoutNewline(t *testing.T) {
	// The file's last record carries no trailing newline; replacing another
	// record must not add one.
	content := "alice:$6$abc$oldhash:19500:0:99999:7:::\n" +
		"bob:$6$bbb$bobhash:19400:0:99999:7:::"
	s := newTestShadowFile(t, content)

	rec := models.Record{Raw: "alice:$6$abc$newhash:19600:0:99999:7:::"}
	if err := s.Replace(rec); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		t.Fatalf("read rewritten file: %v", err)
	}
	want := "alice:$6$abc$newhash:19600:0:99999:7:::\n" +
		"bob:$6$bbb$bobhash:19400:0:99999:7:::"
	if string(data) != want {
		t.Errorf("rewritten file = %q; want %q", data, want)
	}
}

func TestReplace_TargetOnFinalLineWithoutNewline(t *testing.T) {
	content := "root:$6$rootsalt$roothash:19000:0:99999:7:::\n" +
		"alice:$6$abc$oldhash:19500:0:99999:7:::"
	s := newTestShadowFile(t, content)

	rec := models.Record{Raw: "alice:$6$abc$newhash:19600:0:99999:7:::"}
	if err := s.Replace(rec); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		t.Fatalf("read rewritten file: %v", err)
	}
	want := "root:$6$rootsalt$roothash:19000:0:99999:7:::\n" +
		"alice:$6$abc$newhash:19600:0:99999:7:::"
	if string(data) != want {
		t.Errorf("rewritten file = %q; want %q", data, want)
	}
}

func TestSnapshot_FailedCopyLeavesNoFile(t *testing.T) {
	s := newTestShadowFile(t, testShadow)
	// A directory opens fine but cannot be read, so the copy itself fails.
	s.Path = t.TempDir()

	_, err := s.Snapshot(time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC))
	if err == nil {
		t.Fatal("expected error copying from a directory")
	}

	entries, err := os.ReadDir(s.SnapshotDir)
	if err != nil {
		t.Fatalf("list snapshot dir: %v", err)
	}
	for _, e := range entries {
		t.Errorf("truncated snapshot %s left behind", e.Name())
	}
}

func TestReplace_ReappliesModes(t *testing.T) {
	s := newTestShadowFile(t, testShadow)
	s.ShadowOwner = testOwnership(0o640)
	s.PasswdOwner = testOwnership(0o644)

	rec := models.Record{Raw: "bob:$6$bbb$rotated:19600:0:99999:7:::"}
	if err := s.Replace(rec); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	info, err := os.Stat(s.Path)
	if err != nil {
		t.Fatalf("stat credential file: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o640 {
		t.Errorf("credential file mode = %o; want 640", got)
	}
	info, err = os.Stat(s.PasswdPath)
	if err != nil {
		t.Fatalf("stat identity file: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o644 {
		t.Errorf("identity file mode = %o; want 644", got)
	}
}
