package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// DerivedConfigName is the config file the alembic engine hands to the
// alembic command line; the caller's own config file is left as staged.
const DerivedConfigName = "phantom.ini"

// iniOptions reads configs the way configparser does: indented continuation
// lines, no inline comments, case-insensitive keys.
var iniOptions = ini.LoadOptions{
	AllowPythonMultilineValues: true,
	IgnoreInlineComment:        true,
	InsensitiveKeys:            true,
	PreserveSurroundedQuote:    true,
}

func init() {
	// configparser style "key = value" without column alignment.
	ini.PrettyFormat = false
	ini.PrettyEqual = true
}

// Alembic runs an external alembic command inside the staged root.
type Alembic struct {
	// Command is the program and leading arguments, e.g. ["python", "-m", "alembic"].
	// Defaults to ["alembic"].
	Command []string
	Stdout  io.Writer
	Stderr  io.Writer
	Env     []string
}

func (a *Alembic) Revision(ctx context.Context, t Target, opts RevisionOptions) error {
	var userConfig string
	if t.ConfigPath != "" {
		blob, err := os.ReadFile(t.ConfigPath)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		userConfig = string(blob)
	}
	cfgPath := filepath.Join(t.Root, DerivedConfigName)
	derived, err := DeriveConfig(userConfig, t)
	if err != nil {
		return err
	}
	if err := os.WriteFile(cfgPath, []byte(derived), 0o644); err != nil {
		return fmt.Errorf("write derived config: %w", err)
	}

	command := a.Command
	if len(command) == 0 {
		command = []string{"alembic"}
	}
	args := append([]string{}, command[1:]...)
	args = append(args, "-c", cfgPath, "revision", "-m", opts.Message)
	if opts.Autogenerate {
		args = append(args, "--autogenerate")
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command[0], args...)
	cmd.Dir = t.Root
	if len(a.Env) > 0 {
		cmd.Env = append(os.Environ(), a.Env...)
	}
	cmd.Stdout = a.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = io.Discard
	}
	if a.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, a.Stderr)
	} else {
		cmd.Stderr = &stderr
	}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		detail := strings.TrimSpace(stderr.String())
		if errors.As(err, &exitErr) && detail != "" {
			return fmt.Errorf("%s revision failed: %w: %s", command[0], err, lastLines(detail, 5))
		}
		return fmt.Errorf("%s revision failed: %w", command[0], err)
	}
	return nil
}

// DeriveConfig returns config text whose [alembic] section points script
// discovery and version storage at t. Every other section and key of the
// caller's config is carried over; comments stay attached to what follows them.
func DeriveConfig(userConfig string, t Target) (string, error) {
	cfg, err := ini.LoadSources(iniOptions, []byte("[alembic]\n"), []byte(userConfig))
	if err != nil {
		return "", fmt.Errorf("parse config: %w", err)
	}
	sec := cfg.Section("alembic")
	sec.DeleteKey("version_path")
	sec.Key("script_location").SetValue(iniEscape(t.ScriptLocation))
	sec.Key("version_locations").SetValue(iniEscape(t.VersionPath))
	sec.Key("version_path_separator").SetValue("os")

	// go-ini would re-emit continuation lines as a """-quoted value, which
	// configparser reads literally.
	for _, s := range cfg.Sections() {
		for _, k := range s.Keys() {
			if strings.Contains(k.Value(), "\n") {
				return "", fmt.Errorf("config key %s.%s spans several lines; write it on one line", s.Name(), k.Name())
			}
		}
	}

	var buf bytes.Buffer
	if _, err := cfg.WriteTo(&buf); err != nil {
		return "", fmt.Errorf("render config: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n") + "\n", nil
}

// iniEscape protects paths from configparser interpolation.
func iniEscape(path string) string {
	return strings.ReplaceAll(path, "%", "%%")
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
