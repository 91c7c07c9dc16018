// Package stage materializes a version-data journal into a scratch migration
// directory, runs an engine against it and captures the result back into the
// journal.
package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"phantom/internal/engine"
	"phantom/internal/failure"
	"phantom/internal/journal"
)

const setupHint = "check that the temp directory exists and is writable"

type Options struct {
	JournalPath string
	// INIContent, when set, is written to alembic.ini at the staging root.
	INIContent *string
	// EnvContent replaces the default env.py.
	EnvContent *string
	Engine     engine.Engine
	// TempRoot is where staging directories are created; empty means the OS default.
	TempRoot string
	Logger   *slog.Logger
}

// Session stages one journal. It holds no resources between calls to Run.
type Session struct {
	opts   Options
	logger *slog.Logger
}

// Workspace is the staged directory handed to the caller while a session is active.
type Workspace struct {
	Root           string
	ConfigPath     string
	ScriptLocation string
	VersionPath    string
}

func (w *Workspace) Target() engine.Target {
	return engine.Target{
		Root:           w.Root,
		ConfigPath:     w.ConfigPath,
		ScriptLocation: w.ScriptLocation,
		VersionPath:    w.VersionPath,
	}
}

// Result describes what a revision run changed.
type Result struct {
	Created []string `json:"created"`
	Records int      `json:"records"`
}

func New(opts Options) (*Session, error) {
	if strings.TrimSpace(opts.JournalPath) == "" {
		return nil, failure.Wrap(errors.New("journal path is required"), failure.KindConfigResolution, "CFG_JOURNAL_PATH", "set version_data_path in the definition")
	}
	if opts.Engine == nil {
		opts.Engine = &engine.Native{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Session{opts: opts, logger: logger.With("journal", opts.JournalPath)}, nil
}

func (s *Session) JournalPath() string { return s.opts.JournalPath }

// EnvContent returns the env.py text this session stages.
func (s *Session) EnvContent() string {
	if s.opts.EnvContent != nil {
		return *s.opts.EnvContent
	}
	return DefaultEnv()
}

// Run stages the journal, calls fn, and rebuilds the journal from the staged
// scripts only if fn succeeds. The staging directory is removed on every
// path out of Run. An error from fn is returned unchanged.
func (s *Session) Run(ctx context.Context, fn func(ctx context.Context, ws *Workspace) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	records, err := journal.Load(s.opts.JournalPath)
	if err != nil {
		return err
	}
	ws, err := s.enter(records)
	if err != nil {
		return err
	}
	defer s.destroy(ws)

	s.logger.Debug("session active", "root", ws.Root, "records", len(records))
	if err := fn(ctx, ws); err != nil {
		s.logger.Debug("session aborted, journal untouched", "error", err)
		return err
	}
	if err := journal.Save(s.opts.JournalPath, ws.VersionPath); err != nil {
		return err
	}
	s.logger.Debug("journal rebuilt", "root", ws.Root)
	return nil
}

// Revision creates one new revision script through the session's engine.
// An empty message is replaced by DefaultMessage.
func (s *Session) Revision(ctx context.Context, opts engine.RevisionOptions) (Result, error) {
	if opts.Message == "" {
		opts.Message = DefaultMessage
	}
	var res Result
	err := s.Run(ctx, func(ctx context.Context, ws *Workspace) error {
		before, err := scriptNames(ws.VersionPath)
		if err != nil {
			return failure.Wrap(err, failure.KindStagingSetup, "STG_SCAN", "")
		}
		s.logger.Info("running engine", "message", opts.Message, "autogenerate", opts.Autogenerate)
		if err := s.opts.Engine.Revision(ctx, ws.Target(), opts); err != nil {
			return failure.Wrap(err, failure.KindEngine, "ENG_REVISION", "the journal was not modified")
		}
		after, err := scriptNames(ws.VersionPath)
		if err != nil {
			return failure.Wrap(err, failure.KindStagingSetup, "STG_SCAN", "")
		}
		res = Result{Created: added(before, after), Records: len(after)}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (s *Session) enter(records []journal.Record) (ws *Workspace, err error) {
	if s.opts.TempRoot != "" {
		if err := os.MkdirAll(s.opts.TempRoot, 0o755); err != nil {
			return nil, failure.Wrap(err, failure.KindStagingSetup, "STG_SETUP", setupHint)
		}
	}
	root, err := os.MkdirTemp(s.opts.TempRoot, scratchDirPrefix+"*")
	if err != nil {
		return nil, failure.Wrap(err, failure.KindStagingSetup, "STG_SETUP", setupHint)
	}
	ws = &Workspace{
		Root:           root,
		ScriptLocation: filepath.Join(root, MigrationsDir),
		VersionPath:    filepath.Join(root, MigrationsDir, VersionsDir),
	}
	defer func() {
		if err != nil {
			s.destroy(ws)
		}
	}()

	if err := os.MkdirAll(ws.VersionPath, 0o755); err != nil {
		return nil, failure.Wrap(err, failure.KindStagingSetup, "STG_SETUP", setupHint)
	}
	if s.opts.INIContent != nil {
		ws.ConfigPath = filepath.Join(root, ConfigFileName)
		if err := writeFile(ws.ConfigPath, *s.opts.INIContent); err != nil {
			return nil, err
		}
	}
	if err := writeFile(filepath.Join(ws.ScriptLocation, EnvFileName), s.EnvContent()); err != nil {
		return nil, err
	}
	if err := writeFile(filepath.Join(ws.ScriptLocation, engine.TemplateName), ScriptTemplate()); err != nil {
		return nil, err
	}
	for _, rec := range records {
		if err := writeFile(filepath.Join(ws.VersionPath, rec.Name), rec.Content); err != nil {
			return nil, err
		}
	}
	return ws, nil
}

func (s *Session) destroy(ws *Workspace) {
	if err := os.RemoveAll(ws.Root); err != nil {
		s.logger.Warn("could not remove staging directory", "root", ws.Root, "error", err)
	}
}

func writeFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return failure.Wrap(fmt.Errorf("write %s: %w", filepath.Base(path), err), failure.KindStagingSetup, "STG_SETUP", setupHint)
	}
	return nil
}

func scriptNames(dir string) ([]string, error) {
	records, err := journal.Collect(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.Name)
	}
	return names, nil
}

func added(before, after []string) []string {
	seen := make(map[string]struct{}, len(before))
	for _, name := range before {
		seen[name] = struct{}{}
	}
	var out []string
	for _, name := range after {
		if _, ok := seen[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
