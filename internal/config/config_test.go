package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Engine.Kind != "native" {
		t.Fatalf("expected native default engine, got %q", cfg.Engine.Kind)
	}
}

func TestEnsureCreatesAndLoadsConfig(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "nested", "config.toml")
	cfg, err := Ensure(path)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if cfg.Version != SchemaVersion {
		t.Fatalf("expected schema version %d, got %d", SchemaVersion, cfg.Version)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file should exist: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Storage.Root != "~/.phantom" || loaded.Logging.Format != "text" {
		t.Fatalf("unexpected loaded config: %+v", loaded)
	}
}

func TestLoadNormalizesPartialDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	doc := "[engine]\nkind = \"ALEMBIC\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Engine.Kind != "alembic" {
		t.Fatalf("expected lowercased engine kind, got %q", cfg.Engine.Kind)
	}
	if len(cfg.Engine.Command) != 1 || cfg.Engine.Command[0] != "alembic" {
		t.Fatalf("expected default alembic command, got %v", cfg.Engine.Command)
	}
	if cfg.Version != SchemaVersion || cfg.Logging.Level != "info" {
		t.Fatalf("expected defaults filled in: %+v", cfg)
	}
}

func TestLoadRejectsInvalidDocuments(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		code string
	}{
		{name: "parse", doc: "version = [", code: "DOC_CONFIG_PARSE"},
		{name: "version", doc: "version = 7\n", code: "DOC_CONFIG_VERSION"},
		{name: "engine", doc: "[engine]\nkind = \"flyway\"\n", code: "DOC_CONFIG_ENGINE"},
		{name: "level", doc: "[logging]\nlevel = \"loud\"\n", code: "DOC_CONFIG_LOGGING"},
		{name: "format", doc: "[logging]\nformat = \"xml\"\n", code: "DOC_CONFIG_LOGGING"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tc.doc), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tc.code) {
				t.Fatalf("expected %s error, got %v", tc.code, err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := DefaultConfig()
	cfg.Engine = EngineConfig{Kind: "alembic", Command: []string{"python", "-m", "alembic"}}
	cfg.Staging.TempRoot = "/var/tmp/phantom"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if strings.Join(loaded.Engine.Command, " ") != "python -m alembic" {
		t.Fatalf("unexpected command: %v", loaded.Engine.Command)
	}
	if loaded.Staging.TempRoot != "/var/tmp/phantom" {
		t.Fatalf("unexpected temp root: %q", loaded.Staging.TempRoot)
	}
}

func TestSaveWritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := Save(path, DefaultConfig()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.HasPrefix(string(blob), fileHeader) || !strings.Contains(string(blob), "[engine]") {
		t.Fatalf("unexpected config file:\n%s", blob)
	}
}

func TestLoadErrorCodes(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "absent.toml")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	// a directory in place of the file is a read failure, not a missing file
	_, err := Load(dir)
	if err == nil || errors.Is(err, fs.ErrNotExist) || !strings.HasPrefix(err.Error(), "DOC_CONFIG_READ:") {
		t.Fatalf("expected DOC_CONFIG_READ, got %v", err)
	}
	if _, err := Ensure(dir); err == nil || !strings.Contains(err.Error(), "DOC_CONFIG_READ") {
		t.Fatalf("ensure must surface the read failure, got %v", err)
	}
}

func TestEnsureKeepsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	doc := "[engine]\nkind = \"flyway\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Ensure(path); err == nil || !strings.Contains(err.Error(), "DOC_CONFIG_ENGINE") {
		t.Fatalf("expected DOC_CONFIG_ENGINE, got %v", err)
	}
	blob, _ := os.ReadFile(path)
	if string(blob) != doc {
		t.Fatalf("invalid config must not be overwritten, got %q", blob)
	}
}

func TestSetEngine(t *testing.T) {
	cfg := DefaultConfig()
	if err := SetEngine(&cfg, " Alembic ", []string{"alembic-wrapper"}); err != nil {
		t.Fatalf("set engine failed: %v", err)
	}
	if cfg.Engine.Kind != "alembic" || cfg.Engine.Command[0] != "alembic-wrapper" {
		t.Fatalf("unexpected engine: %+v", cfg.Engine)
	}
	if err := SetEngine(&cfg, "native", nil); err != nil {
		t.Fatalf("set engine failed: %v", err)
	}
	if cfg.Engine.Command[0] != "alembic-wrapper" {
		t.Fatalf("nil command should keep the existing one: %v", cfg.Engine.Command)
	}
	if err := SetEngine(&cfg, "liquibase", nil); err == nil {
		t.Fatalf("expected unsupported engine error")
	}
}

func TestSetLogging(t *testing.T) {
	cfg := DefaultConfig()
	if err := SetLogging(&cfg, "DEBUG", ""); err != nil {
		t.Fatalf("set logging failed: %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Fatalf("unexpected logging: %+v", cfg.Logging)
	}
	if err := SetLogging(&cfg, "", "yaml"); err == nil {
		t.Fatalf("expected invalid format error")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := ExpandPath("~/.phantom")
	if err != nil {
		t.Fatalf("expand failed: %v", err)
	}
	if got != filepath.Join(home, ".phantom") {
		t.Fatalf("unexpected expansion: %q", got)
	}
	if got, _ := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Fatalf("absolute path should pass through: %q", got)
	}
	if _, err := ExpandPath(""); err == nil {
		t.Fatalf("expected empty path error")
	}
}

func TestResolveTempRoot(t *testing.T) {
	cfg := DefaultConfig()
	got, err := ResolveTempRoot(cfg)
	if err != nil || got != "" {
		t.Fatalf("expected empty temp root, got %q, %v", got, err)
	}
	cfg.Staging.TempRoot = "/tmp/phantom/../phantom-stage"
	got, err = ResolveTempRoot(cfg)
	if err != nil || got != "/tmp/phantom-stage" {
		t.Fatalf("expected cleaned temp root, got %q, %v", got, err)
	}
}
