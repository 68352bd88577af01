// Package config provides functionality for managing configuration options
// for the tool using command-line flags, environment variables and an
// optional JSON config file.
package config

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/user"
)

// Options holds the configuration values for one invocation.
type Options struct {
	// ShadowFile is the path of the line-oriented credential file.
	ShadowFile string

	// PasswdFile is the companion identity file whose ownership and mode
	// are re-applied together with the credential file after a restore.
	PasswdFile string

	// BackupRoot is the directory holding per-user backup entries and
	// safety snapshots.
	BackupRoot string

	// RotateCommand is the name of the external password-rotation command.
	RotateCommand string

	// User is the target account for the rotate and restore-after-rotate
	// modes; empty means resolve a default with DefaultUser.
	User string

	// Rotate selects the backup-then-rotate mode.
	Rotate bool

	// RestoreAfterRotate selects the restore mode with default-user
	// resolution.
	RestoreAfterRotate bool

	// LogLevel sets the diagnostic log level.
	LogLevel string

	// Config is the path to the Config file.
	Config string
}

// options holds the current configuration values.
var options = &Options{}

// init initializes command-line flags and sets default values.
func init() {
	flag.StringVar(&options.ShadowFile, "shadow", "/etc/shadow", "path of the credential file")
	flag.StringVar(&options.PasswdFile, "passwd", "/etc/passwd", "path of the companion identity file")
	flag.StringVar(&options.BackupRoot, "backup-dir", "/var/lib/pwstash", "directory for backup entries and safety snapshots")
	flag.StringVar(&options.RotateCommand, "rotate-cmd", "passwd-rotate", "external password-rotation command")
	flag.StringVar(&options.User, "user", "", "target account name")
	flag.BoolVar(&options.Rotate, "rotate", false, "back up the target account's record, then run the rotation command")
	flag.BoolVar(&options.RestoreAfterRotate, "restore-after-rotate", false, "restore the target account's record from its backup")
	flag.StringVar(&options.LogLevel, "log-level", "info", "diagnostic log level")
	flag.StringVar(&options.Config, "config", "", "path to config file")
	flag.StringVar(&options.Config, "c", "", "path to config file (shorthand)")
}

// Parse parses the command-line flags and environment variables to set
// configuration values. It returns a pointer to the Options struct containing
// the parsed configuration values.
func Parse() *Options {
	flag.Parse()

	// Override flags with environment variables if set
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				log.Fatalf("error while reading config file: %v", err)
			}
			if err := json.Unmarshal(data, options); err != nil {
				log.Fatalf("error while parsing config file: %v", err)
			}
		}
	}

	if shadowFile := os.Getenv("PWSTASH_SHADOW"); shadowFile != "" {
		options.ShadowFile = shadowFile
	}
	if passwdFile := os.Getenv("PWSTASH_PASSWD"); passwdFile != "" {
		options.PasswdFile = passwdFile
	}
	if backupRoot := os.Getenv("PWSTASH_BACKUP_DIR"); backupRoot != "" {
		options.BackupRoot = backupRoot
	}
	if rotateCommand := os.Getenv("PWSTASH_ROTATE_CMD"); rotateCommand != "" {
		options.RotateCommand = rotateCommand
	}

	return options
}

// DefaultUser resolves the account the rotate and restore-after-rotate modes
// act on when no -user flag is given: the invoking identity behind sudo if
// set, else the current process identity.
func DefaultUser() (string, error) {
	if name := os.Getenv("SUDO_USER"); name != "" {
		return name, nil
	}
	cur, err := user.Current()
	if err != nil {
		return "", err
	}
	return cur.Username, nil
}
