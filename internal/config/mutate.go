package config

import (
	"fmt"
	"strings"
)

// SetEngine switches the configured engine. A nil command keeps the current one.
func SetEngine(cfg *Config, kind string, command []string) error {
	if cfg == nil {
		return fmt.Errorf("DOC_CONFIG_ENGINE: nil config")
	}
	cfg.Engine.Kind = strings.ToLower(strings.TrimSpace(kind))
	if command != nil {
		cfg.Engine.Command = append([]string(nil), command...)
	}
	*cfg = Normalize(*cfg)
	return Validate(*cfg)
}

// SetLogging updates level and/or format; empty values are left unchanged.
func SetLogging(cfg *Config, level, format string) error {
	if cfg == nil {
		return fmt.Errorf("DOC_CONFIG_LOGGING: nil config")
	}
	if level != "" {
		cfg.Logging.Level = level
	}
	if format != "" {
		cfg.Logging.Format = format
	}
	*cfg = Normalize(*cfg)
	return Validate(*cfg)
}
