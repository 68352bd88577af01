package repository

import (
	"errors"
	"fmt"
	"os/user"
)

// Accounts answers whether a username names a real system account, via the
// local account directory.
type Accounts struct{}

// NewAccounts creates an Accounts directory client.
func NewAccounts() *Accounts {
	return &Accounts{}
}

// Exists reports whether name names a system account.
func (a *Accounts) Exists(name string) (bool, error) {
	_, err := user.Lookup(name)
	if err == nil {
		return true, nil
	}
	var unknown user.UnknownUserError
	if errors.As(err, &unknown) {
		return false, nil
	}
	return false, fmt.Errorf("look up account %q: %w", name, err)
}
