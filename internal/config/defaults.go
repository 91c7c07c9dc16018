package config

const (
	SchemaVersion = 1
)

// DefaultConfig returns a fully-populated v1 config document.
func DefaultConfig() Config {
	return Config{
		Version: SchemaVersion,
		Engine: EngineConfig{
			Kind:    "native",
			Command: []string{"alembic"},
		},
		Storage: StorageConfig{
			Root: "~/.phantom",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
