package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// ConfigFileEnvVar names the optional YAML file holding settings keyed by
// their environment variable names.
const ConfigFileEnvVar = "CONFIG_FILE"

var (
	fileMu     sync.RWMutex
	fileValues map[string]string
)

// LoadFile reads a flat YAML map of settings. Values already present in the
// environment still win. An empty path is a no-op.
func LoadFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		values[k] = fmt.Sprint(v)
	}

	fileMu.Lock()
	fileValues = values
	fileMu.Unlock()
	return nil
}

// ResetFile clears any loaded file values.
func ResetFile() {
	fileMu.Lock()
	fileValues = nil
	fileMu.Unlock()
}

func fileValue(key string) (string, bool) {
	fileMu.RLock()
	defer fileMu.RUnlock()
	v, ok := fileValues[key]
	return v, ok
}
