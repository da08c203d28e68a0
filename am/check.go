package am

import (
	"github.com/BurntSushi/toml"

	"github.com/teranos/histsync/errors"
)

// UnknownKeys parses the TOML file at path strictly and returns every key
// that does not map onto Config, such as a misspelt "sync.adress".
// Viper ignores these silently.
func UnknownKeys(path string) ([]string, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}

	var unknown []string
	for _, key := range md.Undecoded() {
		unknown = append(unknown, key.String())
	}
	return unknown, nil
}
