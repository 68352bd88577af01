package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nakedgoat/pwstash/internal/models"
)

// BackupDir stores one backup entry per user: a file named after the user
// holding that user's saved record line. The tool never deletes entries.
type BackupDir struct {
	// Root is the backup directory, created owner-only on first save.
	Root string
}

// NewBackupDir creates a BackupDir rooted at root.
func NewBackupDir(root string) *BackupDir {
	return &BackupDir{Root: root}
}

// Save writes rec as user's backup entry, overwriting any prior entry. The
// write goes through a temporary file so a failure cannot leave a partial
// entry behind.
func (b *BackupDir) Save(user string, rec models.Record) error {
	if err := os.MkdirAll(b.Root, 0o700); err != nil {
		return fmt.Errorf("create backup dir %s: %w", b.Root, err)
	}

	path := b.entryPath(user)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(rec.Raw+"\n"), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// Load returns user's saved backup entry, or ErrNoBackup when none exists.
func (b *BackupDir) Load(user string) (models.Record, error) {
	path := b.entryPath(user)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.Record{}, fmt.Errorf("%w for %q: %s", models.ErrNoBackup, user, path)
		}
		return models.Record{}, fmt.Errorf("read %s: %w", path, err)
	}

	// An entry holds exactly one newline-terminated line.
	line, _, _ := strings.Cut(string(data), "\n")
	return models.Record{Raw: line}, nil
}

func (b *BackupDir) entryPath(user string) string {
	return filepath.Join(b.Root, user)
}
