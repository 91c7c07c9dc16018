package config

// Config is the v1 tool configuration stored at ~/.phantom/config.toml.
type Config struct {
	Version int           `toml:"version" json:"version"`
	Engine  EngineConfig  `toml:"engine" json:"engine"`
	Staging StagingConfig `toml:"staging" json:"staging"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
}

type EngineConfig struct {
	Kind string `toml:"kind" json:"kind"`
	// Command launches alembic for the alembic engine, e.g. ["python", "-m", "alembic"].
	Command []string `toml:"command,omitempty" json:"command,omitempty"`
}

type StagingConfig struct {
	// TempRoot is where staging directories are created; empty uses the OS temp dir.
	TempRoot string `toml:"temp_root,omitempty" json:"tempRoot,omitempty"`
}

type StorageConfig struct {
	Root string `toml:"root" json:"root"`
}

type LoggingConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
}
