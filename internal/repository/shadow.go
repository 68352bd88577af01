// Package repository provides file-backed persistence for credential
// records, backup entries and safety snapshots, plus the system collaborators
// the accessor talks to.
package repository

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nakedgoat/pwstash/internal/models"
)

// snapshotTimeFormat gives snapshots sortable, nanosecond-precision names.
const snapshotTimeFormat = "20060102-150405.000000000"

// FileOwnership describes the ownership and mode re-applied to a file after
// the credential file is rewritten. A UID or GID of -1 leaves that id
// unchanged.
type FileOwnership struct {
	UID  int
	GID  int
	Mode os.FileMode
}

// ShadowFile reads and rewrites one line of a colon-delimited credential
// file, keyed by the username field, and keeps whole-file safety snapshots.
type ShadowFile struct {
	// Path is the live credential file.
	Path string
	// PasswdPath is the companion identity file.
	PasswdPath string
	// SnapshotDir is where whole-file safety snapshots are written.
	SnapshotDir string
	// ShadowOwner and PasswdOwner are re-applied after every rewrite, since
	// some edit paths reset them.
	ShadowOwner FileOwnership
	PasswdOwner FileOwnership
}

// NewShadowFile creates a ShadowFile over the given paths with the canonical
// system ownership for each file: root:shadow 0640 for the credential file,
// root:root 0644 for the identity file.
func NewShadowFile(shadowPath, passwdPath, snapshotDir string) *ShadowFile {
	return &ShadowFile{
		Path:        shadowPath,
		PasswdPath:  passwdPath,
		SnapshotDir: snapshotDir,
		ShadowOwner: canonicalOwnership("root", "shadow", 0o640),
		PasswdOwner: canonicalOwnership("root", "root", 0o644),
	}
}

// canonicalOwnership resolves a user and group name to numeric ids. A failed
// lookup leaves that id unchanged on re-apply; group "shadow" does not exist
// on every system.
func canonicalOwnership(userName, groupName string, mode os.FileMode) FileOwnership {
	own := FileOwnership{UID: -1, GID: -1, Mode: mode}
	if u, err := user.Lookup(userName); err == nil {
		if uid, err := strconv.Atoi(u.Uid); err == nil {
			own.UID = uid
		}
	}
	if g, err := user.LookupGroup(groupName); err == nil {
		if gid, err := strconv.Atoi(g.Gid); err == nil {
			own.GID = gid
		}
	}
	return own
}

// Find returns the record keyed by user, or ErrRecordNotFound.
func (s *ShadowFile) Find(user string) (models.Record, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return models.Record{}, fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		rec := models.Record{Raw: sc.Text()}
		if rec.Matches(user) {
			return rec, nil
		}
	}
	if err := sc.Err(); err != nil {
		return models.Record{}, fmt.Errorf("read %s: %w", s.Path, err)
	}
	return models.Record{}, fmt.Errorf("%w: %s has no record for %q", models.ErrRecordNotFound, s.Path, user)
}

// Snapshot copies the whole credential file into SnapshotDir under a name
// derived from now. Existing snapshots are never overwritten; a name
// collision gets a numeric suffix.
func (s *ShadowFile) Snapshot(now time.Time) (string, error) {
	if err := os.MkdirAll(s.SnapshotDir, 0o700); err != nil {
		return "", fmt.Errorf("create snapshot dir %s: %w", s.SnapshotDir, err)
	}

	src, err := os.Open(s.Path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer src.Close()

	base := "shadow-" + now.Format(snapshotTimeFormat)
	name := filepath.Join(s.SnapshotDir, base)
	dst, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	for n := 1; err != nil && os.IsExist(err); n++ {
		name = filepath.Join(s.SnapshotDir, fmt.Sprintf("%s.%d", base, n))
		dst, err = os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	}
	if err != nil {
		return "", fmt.Errorf("create snapshot %s: %w", name, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(name) // a truncated copy is no snapshot
		return "", fmt.Errorf("copy %s to %s: %w", s.Path, name, err)
	}
	return name, nil
}

// Replace substitutes the line keyed by rec's username with rec and passes
// every other line through unchanged, in order. The rewrite goes to a
// temporary file renamed over the original, so a crash cannot leave a
// half-written credential file. When no line matches, nothing is written and
// ErrUserNotInStore is returned.
func (s *ShadowFile) Replace(rec models.Record) error {
	target := rec.Username()

	src, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer src.Close()

	tmpName := filepath.Join(filepath.Dir(s.Path), ".pwstash."+uuid.NewString())
	tmp, err := os.OpenFile(tmpName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create temp file %s: %w", tmpName, err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmpName) // no-op once the rename has happened
	}()

	matched := false
	w := bufio.NewWriter(tmp)
	r := bufio.NewReader(src)
	for {
		line, readErr := r.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return fmt.Errorf("read %s: %w", s.Path, readErr)
		}
		if line != "" {
			// Keep each line's own terminator, so a final line without a
			// trailing newline stays that way.
			body := strings.TrimSuffix(line, "\n")
			terminator := line[len(body):]
			if !matched && (models.Record{Raw: body}).Matches(target) {
				body = rec.Raw
				matched = true
			}
			if _, err := w.WriteString(body + terminator); err != nil {
				return fmt.Errorf("write %s: %w", tmpName, err)
			}
		}
		if readErr == io.EOF {
			break
		}
	}
	if !matched {
		return fmt.Errorf("%w: %s has no record for %q", models.ErrUserNotInStore, s.Path, target)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		return fmt.Errorf("replace %s: %w", s.Path, err)
	}

	if err := applyOwnership(s.Path, s.ShadowOwner); err != nil {
		return err
	}
	return applyOwnership(s.PasswdPath, s.PasswdOwner)
}

func applyOwnership(path string, own FileOwnership) error {
	if err := os.Chmod(path, own.Mode); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if own.UID == -1 && own.GID == -1 {
		return nil
	}
	if err := os.Chown(path, own.UID, own.GID); err != nil {
		return fmt.Errorf("chown %s: %w", path, err)
	}
	return nil
}
