// Package presets holds named configurations that replace the defaults before
// the config file is applied.
package presets

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spacemeshos/go-chronosync/config"
)

var presets = map[string]config.Config{}

func register(name string, cfg config.Config) {
	if _, exist := presets[name]; exist {
		panic(fmt.Sprintf("BUG: preset %q registered twice", name))
	}
	presets[name] = cfg
}

// Options returns the sorted names of the registered presets.
func Options() []string {
	return slices.Sorted(maps.Keys(presets))
}

// Get returns the named preset.
func Get(name string) (config.Config, error) {
	cfg, ok := presets[name]
	if !ok {
		return config.Config{}, fmt.Errorf("preset %q not found, options: %v", name, Options())
	}
	return cfg, nil
}
