package api

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AppName names the configuration directory.
const AppName = "orgz"

// BackupTimeFormat is the timestamp layout in backup file names.
const BackupTimeFormat = "20060102_150405"

// ProjectRulesetNames are the file names [FindConfigFile] looks for when
// discovering a ruleset that lives next to the files it organizes.
var ProjectRulesetNames = []string{".orgz.yaml", "orgz.yaml"}

// ConfigDir returns the orgz directory under $XDG_CONFIG_HOME, or under
// ~/.config when that is unset. If neither can be determined, a directory in
// [os.TempDir] is used.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, AppName)
	}

	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		dir := filepath.Join(os.TempDir(), AppName)
		slog.Warn("no user config directory, using temp directory",
			slog.String("path", dir),
			slog.Any("err", err),
		)

		return dir
	}

	return filepath.Join(home, ".config", AppName)
}

// ConfigPath returns the path to name inside [ConfigDir].
func ConfigPath(name string) string {
	return filepath.Join(ConfigDir(), name)
}

// statRegular reports whether path is an existing regular file.
// Directories and other non-regular files are errors.
func statRegular(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat file: %w", err)
	case info.IsDir():
		return false, fmt.Errorf("%s: path is a directory", path)
	case !info.Mode().IsRegular():
		return false, fmt.Errorf("%s: not a regular file", path)
	}

	return true, nil
}

// ReadFile reads a regular file. Missing files return an error wrapping
// [fs.ErrNotExist].
func ReadFile(path string) ([]byte, error) {
	ok, err := statRegular(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("stat file: %w", &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist})
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: Paths come from the user.
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return data, nil
}

// WriteIfNotExists writes data to path, creating parent directories, unless
// a regular file is already there.
func WriteIfNotExists(path string, data []byte) error {
	exists, err := statRegular(path)
	if err != nil || exists {
		return err
	}

	return writeNew(path, data)
}

// WriteDefaultFile writes defaultData to path unless a file already exists.
// With force, an existing file is first renamed to a backup named like
// config_backup_20250102_150405.yaml. Kind names the file in logs and errors.
func WriteDefaultFile(path string, defaultData []byte, force bool, kind string) error {
	exists, err := statRegular(path)
	if err != nil {
		return err
	}

	if exists && !force {
		slog.Debug("file exists, not overwriting",
			slog.String("type", kind),
			slog.String("path", path),
		)

		return nil
	}

	if exists {
		backup, err := BackupPath(path, time.Now())
		if err != nil {
			return fmt.Errorf("back up %s file: %w", kind, err)
		}

		err = os.Rename(path, backup)
		if err != nil {
			return fmt.Errorf("back up %s file: %w", kind, err)
		}

		slog.Info("backed up existing file",
			slog.String("type", kind),
			slog.String("path", backup),
		)
	}

	err = writeNew(path, defaultData)
	if err != nil {
		return fmt.Errorf("write %s file: %w", kind, err)
	}

	slog.Info("wrote default file",
		slog.String("type", kind),
		slog.String("path", path),
	)

	return nil
}

// BackupPath returns a free sibling path for a backup of path taken at t,
// of the form <stem>_backup_<YYYYmmdd_HHMMSS><ext>. A counter is appended
// to the stem when several backups share a timestamp.
func BackupPath(path string, t time.Time) (string, error) {
	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	if ext == base {
		ext = ""
	}

	stem := strings.TrimSuffix(base, ext) + "_backup_" + t.Format(BackupTimeFormat)

	for i := range 100 {
		name := stem + ext
		if i > 0 {
			name = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}

		candidate := filepath.Join(dir, name)

		_, err := os.Lstat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%s: too many backups at %s", path, t.Format(BackupTimeFormat))
}

func writeNew(path string, data []byte) error {
	err := os.MkdirAll(filepath.Dir(path), 0o700)
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	err = os.WriteFile(path, data, 0o600)
	if err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}

// FindConfigFile looks for any of names in start's directory (or start
// itself when it is a directory) and then in each parent up to the root.
// It returns "" when nothing is found.
func FindConfigFile(start string, names []string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("get absolute path: %w", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("stat path: %w", err)
	}

	if !info.IsDir() {
		dir = filepath.Dir(dir)
	}

	for {
		for _, name := range names {
			candidate := filepath.Join(dir, name)

			ok, _ := statRegular(candidate)
			if ok {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}

		dir = parent
	}
}
