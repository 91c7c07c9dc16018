package config

// Build metadata, overridden with -ldflags "-X phantom/internal/config.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
