// Package models defines the credential record type and the failure kinds
// reported by pwstash operations.
package models

import (
	"strings"

	"github.com/juju/errors"
)

// Failure kinds. Every terminal failure of an invocation matches exactly one
// of these via errors.Is; plain I/O failures are returned as ordinary
// wrapped errors.
const (
	// ErrNotRoot indicates the process lacks the privileges needed to touch
	// the protected credential file.
	ErrNotRoot = errors.ConstError("must be run as root")
	// ErrUserNotFound indicates the username names no system account.
	ErrUserNotFound = errors.ConstError("user not found")
	// ErrRecordNotFound indicates the account exists but the credential file
	// holds no record for it.
	ErrRecordNotFound = errors.ConstError("record not found")
	// ErrNoBackup indicates no backup entry exists for the user.
	ErrNoBackup = errors.ConstError("no backup")
	// ErrCorruptBackup indicates the stored backup line is not keyed by the
	// user it was saved under.
	ErrCorruptBackup = errors.ConstError("corrupt backup")
	// ErrUserNotInStore indicates the user's record is gone from the
	// credential file; restore never inserts new records.
	ErrUserNotInStore = errors.ConstError("user not in credential file")
	// ErrDependencyMissing indicates the external rotation command is not on
	// the execution path.
	ErrDependencyMissing = errors.ConstError("rotation command missing")
	// ErrUsage indicates invalid command-line arguments.
	ErrUsage = errors.ConstError("usage error")
)

// Record is one line of the credential file. Fields beyond the leading
// username key are opaque and preserved byte-for-byte.
type Record struct {
	// Raw is the record line without its trailing newline.
	Raw string
}

// Username returns the record's key field: the text before the first colon.
// A line with no colon has no key and returns "".
func (r Record) Username() string {
	name, _, ok := strings.Cut(r.Raw, ":")
	if !ok {
		return ""
	}
	return name
}

// Matches reports whether the record is keyed by user.
func (r Record) Matches(user string) bool {
	return user != "" && strings.HasPrefix(r.Raw, user+":")
}
