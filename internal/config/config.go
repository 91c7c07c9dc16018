package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
	"phantom/internal/fsutil"
)

// fileHeader opens every config file phantom writes.
const fileHeader = "# phantom tool configuration.\n" +
	"# Edit by hand or with `phantom config set-engine` / `phantom config set-logging`.\n\n"

// Ensure returns the config at path, writing DefaultConfig there first when
// no file exists yet. An existing file that fails to load is returned as an
// error and never overwritten.
func Ensure(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	cfg, err := Load(path)
	switch {
	case err == nil:
		return cfg, nil
	case !errors.Is(err, fs.ErrNotExist):
		return Config{}, err
	}
	cfg = DefaultConfig()
	if err := Save(path, cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads, normalizes and validates the config at path.
//
// A missing file yields an error matching fs.ErrNotExist. Other read failures
// carry DOC_CONFIG_READ, TOML syntax errors DOC_CONFIG_PARSE, and rule
// violations the DOC_CONFIG_* code reported by Validate.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}
	if err != nil {
		return Config{}, fmt.Errorf("DOC_CONFIG_READ: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("DOC_CONFIG_PARSE: %s: %w", path, err)
	}
	cfg = Normalize(cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save validates cfg and atomically replaces path with its TOML encoding,
// creating parent directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	cfg = Normalize(cfg)
	if err := Validate(cfg); err != nil {
		return err
	}
	blob, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("DOC_CONFIG_ENCODE: %w", err)
	}
	if err := fsutil.AtomicWrite(path, append([]byte(fileHeader), blob...), 0o644); err != nil {
		return fmt.Errorf("DOC_CONFIG_WRITE: %w", err)
	}
	return nil
}
