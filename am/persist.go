package am

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/histsync/errors"
)

// ErrConfigExists is returned by WriteConfig when the target exists and
// overwrite was not requested.
var ErrConfigExists = errors.New("config file already exists")

const maxBackups = 3

// WriteConfig writes cfg as TOML to path. An existing file is kept unless
// overwrite is set, in which case it is rotated into path.back1..back3.
func WriteConfig(path string, cfg *Config, overwrite bool) error {
	if _, err := os.Stat(path); err == nil {
		if !overwrite {
			return errors.WithHintf(errors.Mark(errors.Newf("%s already exists", path), ErrConfigExists),
				"pass --force to replace it (the old file is kept as %s.back1)", path)
		}
		if err := rotateBackups(path); err != nil {
			return err
		}
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to encode config")
	}

	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create config directory for %s", path)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "failed to move config into place at %s", path)
	}
	return nil
}

// rotateBackups shifts path.back1 -> back2 -> back3 and moves path to back1
func rotateBackups(path string) error {
	for i := maxBackups - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.back%d", path, i)
		to := fmt.Sprintf("%s.back%d", path, i+1)
		if _, err := os.Stat(from); err == nil {
			if err := os.Rename(from, to); err != nil {
				return errors.Wrapf(err, "failed to rotate backup %s", from)
			}
		}
	}
	if err := os.Rename(path, path+".back1"); err != nil {
		return errors.Wrapf(err, "failed to back up %s", path)
	}
	return nil
}

// WriteDefault writes the default configuration to path.
func WriteDefault(path string, overwrite bool) error {
	return WriteConfig(path, Defaults(), overwrite)
}
