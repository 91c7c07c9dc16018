package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".phantom/config.toml"
	}
	return filepath.Join(home, ".phantom", "config.toml")
}

func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return home, nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
	}
	return path, nil
}

func ResolveStorageRoot(cfg Config) (string, error) {
	expanded, err := ExpandPath(cfg.Storage.Root)
	if err != nil {
		return "", err
	}
	return filepath.Clean(expanded), nil
}

// ResolveTempRoot returns the expanded staging base directory, or "" for the OS default.
func ResolveTempRoot(cfg Config) (string, error) {
	if cfg.Staging.TempRoot == "" {
		return "", nil
	}
	expanded, err := ExpandPath(cfg.Staging.TempRoot)
	if err != nil {
		return "", err
	}
	return filepath.Clean(expanded), nil
}
