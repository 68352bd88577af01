// Package service provides the backup, restore and rotate operations over a
// credential store, delegating persistence to repository implementations.
package service

import (
	"fmt"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/nakedgoat/pwstash/internal/models"
)

// ShadowStore defines the credential-file operations required by the
// accessor.
type ShadowStore interface {
	// Find returns the record keyed by user, or ErrRecordNotFound.
	Find(user string) (models.Record, error)
	// Snapshot copies the whole credential file aside under a name derived
	// from now and returns the copy's path.
	Snapshot(now time.Time) (string, error)
	// Replace substitutes the record keyed by rec's username, leaving every
	// other line unchanged, or fails with ErrUserNotInStore without writing.
	Replace(rec models.Record) error
}

// BackupStore defines per-user backup entry persistence.
type BackupStore interface {
	// Save writes user's backup entry, overwriting any prior one.
	Save(user string, rec models.Record) error
	// Load returns user's saved entry, or ErrNoBackup.
	Load(user string) (models.Record, error)
}

// AccountDirectory answers whether a username names a real system account.
type AccountDirectory interface {
	Exists(user string) (bool, error)
}

// Rotator launches the external password-rotation command.
type Rotator interface {
	Run() error
}

// Accessor implements the backup, restore and rotate actions over the
// credential store.
type Accessor struct {
	shadow   ShadowStore
	backups  BackupStore
	accounts AccountDirectory
	rotator  Rotator
	clk      clock.Clock
	log      *zap.Logger
}

// NewAccessor constructs an Accessor over the given stores and
// collaborators.
func NewAccessor(
	shadow ShadowStore,
	backups BackupStore,
	accounts AccountDirectory,
	rotator Rotator,
	clk clock.Clock,
	log *zap.Logger,
) *Accessor {
	return &Accessor{
		shadow:   shadow,
		backups:  backups,
		accounts: accounts,
		rotator:  rotator,
		clk:      clk,
		log:      log,
	}
}

// Backup saves user's current credential record as their backup entry,
// overwriting any prior entry. It fails with ErrUserNotFound when user names
// no system account and ErrRecordNotFound when the account has no record.
func (a *Accessor) Backup(user string) error {
	ok, err := a.accounts.Exists(user)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q", models.ErrUserNotFound, user)
	}

	rec, err := a.shadow.Find(user)
	if err != nil {
		return err
	}
	if err := a.backups.Save(user, rec); err != nil {
		return err
	}

	a.log.Info("backed up credential record", zap.String("user", user))
	return nil
}

// Restore writes user's backup entry back over their live record, taking a
// whole-file safety snapshot first. It returns the snapshot's path. The
// credential file is left untouched on every failure.
func (a *Accessor) Restore(user string) (string, error) {
	rec, err := a.backups.Load(user)
	if err != nil {
		return "", err
	}
	if !rec.Matches(user) {
		return "", fmt.Errorf("%w: entry for %q is keyed %q", models.ErrCorruptBackup, user, rec.Username())
	}

	snap, err := a.shadow.Snapshot(a.clk.Now())
	if err != nil {
		return "", err
	}
	if err := a.shadow.Replace(rec); err != nil {
		return "", err
	}

	a.log.Info("restored credential record",
		zap.String("user", user),
		zap.String("snapshot", snap))
	return snap, nil
}

// Rotate backs up user's record, then launches the external rotation
// command. Backup errors propagate unchanged and stop the rotation; no
// automatic restore ever happens afterwards.
func (a *Accessor) Rotate(user string) error {
	if err := a.Backup(user); err != nil {
		return err
	}
	if err := a.rotator.Run(); err != nil {
		return err
	}

	a.log.Info("rotation command finished", zap.String("user", user))
	return nil
}
