package config

import (
	"fmt"
	"strings"
)

var allowedEngines = map[string]struct{}{
	"native":  {},
	"alembic": {},
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

var allowedLogFormats = map[string]struct{}{
	"text": {},
	"json": {},
}

func Validate(cfg Config) error {
	if cfg.Version != SchemaVersion {
		return fmt.Errorf("DOC_CONFIG_VERSION: unsupported version %d", cfg.Version)
	}
	if _, ok := allowedEngines[cfg.Engine.Kind]; !ok {
		return fmt.Errorf("DOC_CONFIG_ENGINE: unsupported engine %q", cfg.Engine.Kind)
	}
	if cfg.Engine.Kind == "alembic" {
		if len(cfg.Engine.Command) == 0 || strings.TrimSpace(cfg.Engine.Command[0]) == "" {
			return fmt.Errorf("DOC_CONFIG_ENGINE: alembic engine needs a command")
		}
	}
	if cfg.Storage.Root == "" {
		return fmt.Errorf("DOC_CONFIG_STORAGE: missing storage root")
	}
	if _, ok := allowedLogLevels[cfg.Logging.Level]; !ok {
		return fmt.Errorf("DOC_CONFIG_LOGGING: invalid level %q", cfg.Logging.Level)
	}
	if _, ok := allowedLogFormats[cfg.Logging.Format]; !ok {
		return fmt.Errorf("DOC_CONFIG_LOGGING: invalid format %q", cfg.Logging.Format)
	}
	return nil
}
