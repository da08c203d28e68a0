package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/teranos/histsync/errors"
	"github.com/teranos/histsync/record"
)

// LoadHostID reads this installation's host id from path, generating and
// persisting a fresh one on first use.
func LoadHostID(path string) (record.HostID, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		id, perr := record.ParseHostID(strings.TrimSpace(string(data)))
		if perr != nil {
			return record.HostID{}, errors.WithHintf(
				errors.Wrapf(perr, "host id file %s is corrupt", path),
				"delete %s to generate a new host id; records already pushed under the old id stay with it", path)
		}
		return id, nil
	}
	if !os.IsNotExist(err) {
		return record.HostID{}, errors.Wrapf(err, "failed to read host id from %s", path)
	}

	id := record.NewHostID()
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return record.HostID{}, errors.Wrapf(err, "failed to create directory for %s", path)
	}
	if err := os.WriteFile(path, []byte(id.String()+"\n"), DefaultFilePermissions); err != nil {
		return record.HostID{}, errors.Wrapf(err, "failed to write host id to %s", path)
	}
	return id, nil
}
