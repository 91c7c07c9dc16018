// Package resolve turns a "location:attribute" reference into a session
// definition: the journal path and optional scaffold overrides phantom stages.
package resolve

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"
	"golang.org/x/mod/semver"

	"phantom/internal/failure"
)

const refHint = "use <file.go|file.toml|file.yaml|file.json>:<attribute>, e.g. migrations.toml:phantom"

// Extensions are tried in this order when a location has none.
var Extensions = []string{".go", ".toml", ".yaml", ".yml", ".json"}

//go:embed definition.schema.json
var definitionSchema []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// Definition is a resolved session definition.
type Definition struct {
	Ref             string  `json:"ref"`
	VersionDataPath string  `json:"version_data_path"`
	INIContent      *string `json:"ini_content,omitempty"`
	EnvContent      *string `json:"env_content,omitempty"`
	MinVersion      string  `json:"min_version,omitempty"`
}

type Resolver struct {
	// ToolVersion is checked against a definition's min_version. Non-semver
	// values (development builds) skip the check.
	ToolVersion string
	// WorkDir anchors relative locations and journal paths; defaults to the
	// process working directory.
	WorkDir string
}

// SplitRef separates a reference at its last colon, so drive-letter paths
// keep working.
func SplitRef(ref string) (location, attr string, err error) {
	idx := strings.LastIndex(ref, ":")
	if idx <= 0 || idx == len(ref)-1 {
		return "", "", fmt.Errorf("reference %q must look like location:attribute", ref)
	}
	location = strings.TrimSpace(ref[:idx])
	attr = strings.TrimSpace(ref[idx+1:])
	if location == "" || attr == "" {
		return "", "", fmt.Errorf("reference %q must look like location:attribute", ref)
	}
	for _, seg := range strings.Split(attr, ".") {
		if seg == "" {
			return "", "", fmt.Errorf("reference %q has an empty attribute segment", ref)
		}
	}
	return location, attr, nil
}

// Resolve loads ref and checks that it describes a session.
func (r *Resolver) Resolve(ref string) (Definition, error) {
	def, err := r.resolve(ref)
	if err != nil {
		return Definition{}, failure.Wrap(err, failure.KindConfigResolution, "CFG_RESOLVE", refHint)
	}
	return def, nil
}

func (r *Resolver) resolve(ref string) (Definition, error) {
	location, attr, err := SplitRef(ref)
	if err != nil {
		return Definition{}, err
	}
	workDir, err := r.workDir()
	if err != nil {
		return Definition{}, err
	}
	path, err := findLocation(location, workDir)
	if err != nil {
		return Definition{}, err
	}

	var fields map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		fields, err = loadGoSource(path, attr)
	default:
		fields, err = loadDocument(path, attr)
	}
	if err != nil {
		return Definition{}, fmt.Errorf("%s: %w", ref, err)
	}
	def, err := decode(fields)
	if err != nil {
		return Definition{}, fmt.Errorf("%s: %w", ref, err)
	}
	if err := checkMinVersion(def.MinVersion, r.ToolVersion); err != nil {
		return Definition{}, fmt.Errorf("%s: %w", ref, err)
	}
	def.Ref = ref
	if !filepath.IsAbs(def.VersionDataPath) {
		def.VersionDataPath = filepath.Join(workDir, def.VersionDataPath)
	}
	return def, nil
}

func (r *Resolver) workDir() (string, error) {
	if r.WorkDir != "" {
		return filepath.Abs(r.WorkDir)
	}
	return os.Getwd()
}

func findLocation(location, workDir string) (string, error) {
	if !filepath.IsAbs(location) {
		location = filepath.Join(workDir, location)
	}
	candidates := []string{location}
	if filepath.Ext(location) == "" {
		candidates = candidates[:0]
		for _, ext := range Extensions {
			candidates = append(candidates, location+ext)
		}
	}
	for _, c := range candidates {
		info, err := os.Stat(c)
		if err != nil {
			continue
		}
		if info.IsDir() {
			return "", fmt.Errorf("%s is a directory", c)
		}
		if !supported(c) {
			return "", fmt.Errorf("%s: unsupported definition format %q", c, filepath.Ext(c))
		}
		return c, nil
	}
	return "", fmt.Errorf("definition file %s not found", location)
}

func supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiledSchema, schemaErr = compiler.Compile(definitionSchema)
	})
	return compiledSchema, schemaErr
}

// decode validates fields against the definition schema and converts them.
// Keys outside the schema are ignored, the same way extra struct fields on a
// Go definition are, so a definition can share a table with other settings.
func decode(fields map[string]any) (Definition, error) {
	blob, err := json.Marshal(fields)
	if err != nil {
		return Definition{}, fmt.Errorf("encode definition: %w", err)
	}
	s, err := schema()
	if err != nil {
		return Definition{}, fmt.Errorf("compile definition schema: %w", err)
	}
	if result := s.ValidateJSON(blob); !result.IsValid() {
		return Definition{}, fmt.Errorf("not a session definition: %s", describeErrors(result.Errors))
	}
	var def Definition
	if err := json.Unmarshal(blob, &def); err != nil {
		return Definition{}, fmt.Errorf("decode definition: %w", err)
	}
	return def, nil
}

func describeErrors(errs map[string]*jsonschema.EvaluationError) string {
	if len(errs) == 0 {
		return "schema validation failed"
	}
	parts := make([]string, 0, len(errs))
	for key, e := range errs {
		if e == nil {
			parts = append(parts, key)
			continue
		}
		parts = append(parts, key+": "+e.Error())
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func checkMinVersion(minVersion, toolVersion string) error {
	if minVersion == "" {
		return nil
	}
	want := canonicalSemver(minVersion)
	if want == "" {
		return fmt.Errorf("min_version %q is not a semantic version", minVersion)
	}
	have := canonicalSemver(toolVersion)
	if have == "" {
		return nil
	}
	if semver.Compare(have, want) < 0 {
		return errors.New("definition requires phantom " + want + " or newer, running " + have)
	}
	return nil
}

func canonicalSemver(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return v
}
