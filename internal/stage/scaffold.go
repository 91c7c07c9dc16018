package stage

import _ "embed"

// Layout names inside a staging directory.
const (
	ConfigFileName   = "alembic.ini"
	MigrationsDir    = "migrations"
	VersionsDir      = "versions"
	EnvFileName      = "env.py"
	DefaultMessage   = "empty message"
	scratchDirPrefix = "phantom-"
)

//go:embed scaffold/env.py
var defaultEnv string

//go:embed scaffold/script.py.mako
var scriptTemplate string

// DefaultEnv returns the env.py written when the caller supplies no override.
func DefaultEnv() string { return defaultEnv }

// ScriptTemplate returns the fixed template new revision scripts render from.
func ScriptTemplate() string { return scriptTemplate }
