package resolve

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// loadDocument reads a TOML, YAML or JSON file and returns the table found at
// the dotted attribute path.
func loadDocument(path, attr string) (map[string]any, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(blob, &doc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(blob, &doc)
	case ".json":
		err = json.Unmarshal(blob, &doc)
	default:
		return nil, fmt.Errorf("unsupported definition format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	var node any = doc
	walked := make([]string, 0, 4)
	for _, seg := range strings.Split(attr, ".") {
		table, ok := asTable(node)
		if !ok {
			return nil, fmt.Errorf("%s is not a table", strings.Join(walked, "."))
		}
		next, ok := table[seg]
		if !ok {
			return nil, fmt.Errorf("attribute %q not found", strings.Join(append(walked, seg), "."))
		}
		walked = append(walked, seg)
		node = next
	}
	table, ok := asTable(node)
	if !ok {
		return nil, fmt.Errorf("attribute %q is a %T, not a session definition", attr, node)
	}
	return table, nil
}

func asTable(node any) (map[string]any, bool) {
	switch t := node.(type) {
	case map[string]any:
		return t, true
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = v
		}
		return out, true
	default:
		return nil, false
	}
}
