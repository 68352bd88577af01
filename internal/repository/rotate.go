package repository

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/nakedgoat/pwstash/internal/models"
)

// RotateRunner launches the external password-rotation command with the
// invoking process's stdio, so interactive prompts reach the operator.
type RotateRunner struct {
	// Command is the rotation command name, resolved on PATH at run time.
	Command string
}

// NewRotateRunner creates a RotateRunner for the named command.
func NewRotateRunner(command string) *RotateRunner {
	return &RotateRunner{Command: command}
}

// Run resolves the rotation command on PATH and launches it with no
// arguments. A command that cannot be located fails with
// ErrDependencyMissing before anything is launched; its own exit status is
// reported as an ordinary error and not inspected further.
func (r *RotateRunner) Run() error {
	path, err := exec.LookPath(r.Command)
	if err != nil {
		return fmt.Errorf("%w: %q not found on PATH", models.ErrDependencyMissing, r.Command)
	}

	cmd := exec.Command(path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run %s: %w", path, err)
	}
	return nil
}
