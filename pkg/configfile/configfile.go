// Package configfile decodes the YAML and JSON registry files that declare
// destinations and notifiers.
package configfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Decode reads path into out. The decoder is picked by extension; a file
// without one is read as YAML, which also accepts plain JSON documents.
func Decode(path, what string, out any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("%s file path is empty", what)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s file: %w", what, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(raw, out)
	case ".yaml", ".yml", "":
		err = yaml.Unmarshal(raw, out)
	default:
		return fmt.Errorf("%s file %s: unsupported extension %q (expected .yaml, .yml or .json)", what, filepath.Base(path), ext)
	}
	if err != nil {
		return fmt.Errorf("decode %s file: %w", what, err)
	}
	return nil
}

// ExpandMap trims keys and values, expands ${ENV} references in values and
// drops entries whose key or value ends up empty. It returns nil when nothing is left.
func ExpandMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		key := strings.TrimSpace(k)
		val := strings.TrimSpace(os.ExpandEnv(v))
		if key == "" || val == "" {
			continue
		}
		out[key] = val
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
