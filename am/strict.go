package am

import (
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/teranos/crosspost/errors"
)

// UnknownKeys parses the TOML file at path and returns the keys that match
// no configuration field, such as a misspelt "sheduler.max_retries". Viper
// ignores those silently.
func UnknownKeys(path string) ([]string, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}

	var keys []string
	for _, k := range md.Undecoded() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	return keys, nil
}
