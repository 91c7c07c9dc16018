package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// ProjectFileName is the definition file looked up when no reference is given.
	ProjectFileName = "phantom.toml"
	// ProjectAttribute is the table read from ProjectFileName.
	ProjectAttribute  = "phantom"
	maxAncestorSearch = 50
)

var ErrNoProjectFile = errors.New("no reference given and no " + ProjectFileName + " found")

// FindProjectFile walks up from startDir looking for phantom.toml.
// Returns (path, true) if found, or ("", false) if not.
func FindProjectFile(startDir string) (string, bool) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false
	}
	for i := 0; i < maxAncestorSearch; i++ {
		candidate := filepath.Join(dir, ProjectFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return "", false
}

// DefaultRef returns explicit when set, otherwise the reference to the
// nearest phantom.toml's [phantom] table.
func DefaultRef(explicit, cwd string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	path, ok := FindProjectFile(cwd)
	if !ok {
		return "", fmt.Errorf("PRJ_NO_DEFINITION: %w from %s", ErrNoProjectFile, cwd)
	}
	return path + ":" + ProjectAttribute, nil
}
