// Package main is the pwstash command: it backs up and restores a single
// account's credential-file record, and wraps an external password-rotation
// command with an automatic pre-rotation backup.
package main

import (
	"cmp"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/nakedgoat/pwstash/internal/config"
	"github.com/nakedgoat/pwstash/internal/logger"
	"github.com/nakedgoat/pwstash/internal/models"
	"github.com/nakedgoat/pwstash/internal/repository"
	"github.com/nakedgoat/pwstash/internal/service"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string

	// euid is a seam so tests can drive run without root.
	euid = os.Geteuid
)

type action int

const (
	actionBackup action = iota
	actionRestore
	actionRotate
)

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "pwstash %s (built %s)\n\n", cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A"))
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  pwstash [flags] backup <user>")
	fmt.Fprintln(out, "  pwstash [flags] restore <user>")
	fmt.Fprintln(out, "  pwstash [flags] -rotate [-user <user>]")
	fmt.Fprintln(out, "  pwstash [flags] -restore-after-rotate [-user <user>]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Flags:")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	options := config.Parse()

	log := logger.New()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "pwstash: init logging: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Log.Sync() }()

	code := run(options, flag.Args(), log.Log)
	_ = log.Log.Sync()
	os.Exit(code)
}

func run(options *config.Options, args []string, log *zap.Logger) int {
	act, user, err := resolveAction(options, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pwstash: %v\n", err)
		if errors.Is(err, models.ErrUsage) {
			usage()
			return 2
		}
		return 1
	}

	if euid() != 0 {
		fmt.Fprintf(os.Stderr, "pwstash: %v: %s is protected\n", models.ErrNotRoot, options.ShadowFile)
		return 1
	}

	shadow := repository.NewShadowFile(options.ShadowFile, options.PasswdFile, options.BackupRoot)
	backups := repository.NewBackupDir(options.BackupRoot)
	accessor := service.NewAccessor(
		shadow,
		backups,
		repository.NewAccounts(),
		repository.NewRotateRunner(options.RotateCommand),
		clock.WallClock,
		log,
	)

	switch act {
	case actionBackup:
		if err := accessor.Backup(user); err != nil {
			fmt.Fprintf(os.Stderr, "pwstash: backup %s: %v\n", user, err)
			return 1
		}
		fmt.Printf("Backed up credential record for %s to %s\n", user, filepath.Join(options.BackupRoot, user))

	case actionRestore:
		snap, err := accessor.Restore(user)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pwstash: restore %s: %v\n", user, err)
			return 1
		}
		fmt.Printf("Restored credential record for %s\n", user)
		fmt.Printf("Safety snapshot written to %s\n", snap)

	case actionRotate:
		if err := accessor.Rotate(user); err != nil {
			fmt.Fprintf(os.Stderr, "pwstash: rotate %s: %v\n", user, err)
			return 1
		}
		fmt.Printf("Backed up credential record for %s and ran %s\n", user, options.RotateCommand)
	}
	return 0
}

// resolveAction maps the flag modes and positional subcommands onto one
// action and one target user per invocation.
func resolveAction(options *config.Options, args []string) (action, string, error) {
	switch {
	case options.Rotate && options.RestoreAfterRotate:
		return 0, "", fmt.Errorf("%w: -rotate and -restore-after-rotate are mutually exclusive", models.ErrUsage)

	case options.Rotate, options.RestoreAfterRotate:
		if len(args) != 0 {
			return 0, "", fmt.Errorf("%w: unexpected argument %q", models.ErrUsage, args[0])
		}
		user := options.User
		if user == "" {
			var err error
			user, err = config.DefaultUser()
			if err != nil {
				return 0, "", fmt.Errorf("resolve default user: %w", err)
			}
		}
		if err := checkUser(user); err != nil {
			return 0, "", err
		}
		if options.Rotate {
			return actionRotate, user, nil
		}
		return actionRestore, user, nil

	case len(args) == 2 && args[0] == "backup":
		return actionBackup, args[1], checkUser(args[1])

	case len(args) == 2 && args[0] == "restore":
		return actionRestore, args[1], checkUser(args[1])

	case len(args) == 1 && (args[0] == "backup" || args[0] == "restore"):
		return 0, "", fmt.Errorf("%w: missing user name for %q", models.ErrUsage, args[0])

	case len(args) == 0:
		return 0, "", fmt.Errorf("%w: no action given", models.ErrUsage)

	default:
		return 0, "", fmt.Errorf("%w: unknown action %q", models.ErrUsage, strings.Join(args, " "))
	}
}

// checkUser rejects names that cannot key a record or would escape the
// backup directory.
func checkUser(user string) error {
	if user == "" || user == "." || user == ".." || strings.ContainsAny(user, "/:") {
		return fmt.Errorf("%w: invalid user name %q", models.ErrUsage, user)
	}
	return nil
}
