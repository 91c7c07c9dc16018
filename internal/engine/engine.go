// Package engine defines how phantom drives a migration engine against a
// staged directory, and ships the engines the CLI can select.
package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
)

const (
	KindNative  = "native"
	KindAlembic = "alembic"
)

// TemplateName is the file, inside the script location, that new revision
// scripts are rendered from.
const TemplateName = "script.py.mako"

// Target is the staged layout an engine works in.
type Target struct {
	Root           string
	ConfigPath     string // empty when no static config text was supplied
	ScriptLocation string
	VersionPath    string
}

type RevisionOptions struct {
	Message      string
	Autogenerate bool
}

// Engine creates one new revision script inside Target.VersionPath.
type Engine interface {
	Revision(ctx context.Context, t Target, opts RevisionOptions) error
}

// Func adapts a plain function to Engine.
type Func func(ctx context.Context, t Target, opts RevisionOptions) error

func (f Func) Revision(ctx context.Context, t Target, opts RevisionOptions) error {
	return f(ctx, t, opts)
}

// New builds the engine named by kind. command is only used by the alembic
// engine; output from external processes goes to stdout and stderr.
func New(kind string, command []string, stdout, stderr io.Writer) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindNative:
		return &Native{}, nil
	case KindAlembic:
		return &Alembic{Command: command, Stdout: stdout, Stderr: stderr}, nil
	default:
		return nil, fmt.Errorf("ENG_UNKNOWN: unsupported engine %q", kind)
	}
}
