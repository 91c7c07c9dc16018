package config

import "strings"

func Normalize(cfg Config) Config {
	if cfg.Version == 0 {
		cfg.Version = SchemaVersion
	}
	cfg.Engine.Kind = strings.ToLower(strings.TrimSpace(cfg.Engine.Kind))
	if cfg.Engine.Kind == "" {
		cfg.Engine.Kind = "native"
	}
	if len(cfg.Engine.Command) == 0 {
		cfg.Engine.Command = []string{"alembic"}
	}
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = "~/.phantom"
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	return cfg
}
