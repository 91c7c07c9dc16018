package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"phantom/internal/audit"
	"phantom/internal/config"
	"phantom/internal/doctor"
	"phantom/internal/engine"
	"phantom/internal/failure"
	"phantom/internal/journal"
	"phantom/internal/logging"
	"phantom/internal/resolve"
	"phantom/internal/stage"
	storepkg "phantom/internal/store"
)

const configHint = "fix the file or remove it to regenerate defaults"

type Options struct {
	ConfigPath string
	// EngineKind overrides the configured engine for this process.
	EngineKind string
	// WorkDir anchors references and the phantom.toml lookup; defaults to the process working directory.
	WorkDir string
	Stdout  io.Writer
	Stderr  io.Writer
	// Engine replaces the configured engine entirely.
	Engine engine.Engine
	Now    func() time.Time
}

type Service struct {
	ConfigPath string
	Config     config.Config
	StateRoot  string
	TempRoot   string
	WorkDir    string

	Logger   *slog.Logger
	Audit    *audit.Logger
	Resolver *resolve.Resolver
	Doctor   *doctor.Service
	Engine   engine.Engine

	now    func() time.Time
	digest func(path string) (string, int, error)
}

// RevisionReport is the outcome of one revision operation.
type RevisionReport struct {
	Ref     string   `json:"ref"`
	Journal string   `json:"journal"`
	Engine  string   `json:"engine"`
	Created []string `json:"created"`
	Records int      `json:"records"`
	// Digest is empty when the journal could not be re-read after the revision.
	Digest  string   `json:"digest,omitempty"`
}

func New(opts Options) (*Service, error) {
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	cfg, err := config.Ensure(configPath)
	if err != nil {
		return nil, failure.Wrap(err, failure.KindConfigResolution, "", configHint)
	}
	if opts.EngineKind != "" {
		if err := config.SetEngine(&cfg, opts.EngineKind, nil); err != nil {
			return nil, failure.Wrap(err, failure.KindConfigResolution, "", "use --engine native or --engine alembic")
		}
	}

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	logger, err := logging.New(cfg.Logging, stderr)
	if err != nil {
		return nil, failure.Wrap(err, failure.KindConfigResolution, "", configHint)
	}

	stateRoot, err := config.ResolveStorageRoot(cfg)
	if err != nil {
		return nil, failure.Wrap(fmt.Errorf("DOC_CONFIG_STORAGE: %w", err), failure.KindConfigResolution, "", configHint)
	}
	tempRoot, err := config.ResolveTempRoot(cfg)
	if err != nil {
		return nil, failure.Wrap(fmt.Errorf("DOC_CONFIG_STAGING: %w", err), failure.KindConfigResolution, "", configHint)
	}
	if err := storepkg.EnsureLayout(stateRoot); err != nil {
		return nil, failure.Wrap(err, failure.KindStagingSetup, "DOC_STATE_LAYOUT", "")
	}

	workDir := opts.WorkDir
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			workDir = "."
		}
	}

	eng := opts.Engine
	if eng == nil {
		eng, err = engine.New(cfg.Engine.Kind, cfg.Engine.Command, stdout, stderr)
		if err != nil {
			return nil, failure.Wrap(err, failure.KindConfigResolution, "", configHint)
		}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		ConfigPath: configPath,
		Config:     cfg,
		StateRoot:  stateRoot,
		TempRoot:   tempRoot,
		WorkDir:    workDir,
		Logger:     logger,
		Audit:      audit.New(storepkg.AuditPath(stateRoot)),
		Resolver:   &resolve.Resolver{ToolVersion: config.Version, WorkDir: workDir},
		Doctor:     &doctor.Service{ConfigPath: configPath, StateRoot: stateRoot, EngineKind: cfg.Engine.Kind},
		Engine:     eng,
		now:        now,
		digest:     journal.Digest,
	}, nil
}

// Resolve turns ref, or the nearest phantom.toml when ref is empty, into a definition.
func (s *Service) Resolve(ref string) (resolve.Definition, error) {
	ref, err := config.DefaultRef(ref, s.WorkDir)
	if err != nil {
		return resolve.Definition{}, failure.Wrap(err, failure.KindConfigResolution, "", "pass a reference such as migrations.toml:phantom")
	}
	return s.Resolver.Resolve(ref)
}

func (s *Service) Session(def resolve.Definition) (*stage.Session, error) {
	return stage.New(stage.Options{
		JournalPath: def.VersionDataPath,
		INIContent:  def.INIContent,
		EnvContent:  def.EnvContent,
		Engine:      s.Engine,
		TempRoot:    s.TempRoot,
		Logger:      s.Logger,
	})
}

// Revision stages the referenced journal, asks the engine for one new
// revision script and records the rewritten journal in the state file.
func (s *Service) Revision(ctx context.Context, ref, message string, autogenerate bool) (RevisionReport, error) {
	ctx = logging.ContextWithLogger(ctx, s.Logger)
	def, err := s.Resolve(ref)
	if err != nil {
		_ = s.Audit.Outcome("revision", "resolve", err, map[string]string{"ref": ref})
		return RevisionReport{}, err
	}
	fields := map[string]string{"ref": def.Ref, "journal": def.VersionDataPath, "engine": s.Config.Engine.Kind}
	_ = s.Audit.Log(audit.Event{Operation: "revision", Phase: "session", Status: audit.StatusStart, Fields: fields})

	report, err := s.revision(ctx, def, engine.RevisionOptions{Message: message, Autogenerate: autogenerate})
	_ = s.Audit.Outcome("revision", "session", err, fields)
	if err != nil {
		return RevisionReport{}, err
	}
	return report, nil
}

func (s *Service) revision(ctx context.Context, def resolve.Definition, opts engine.RevisionOptions) (RevisionReport, error) {
	session, err := s.Session(def)
	if err != nil {
		return RevisionReport{}, err
	}
	res, err := session.Revision(ctx, opts)
	if err != nil {
		return RevisionReport{}, err
	}
	report := RevisionReport{
		Ref:     def.Ref,
		Journal: def.VersionDataPath,
		Engine:  s.Config.Engine.Kind,
		Created: res.Created,
		Records: res.Records,
	}
	// The journal is already written; bookkeeping failures below only warn.
	digest, count, err := s.digest(def.VersionDataPath)
	if err != nil {
		logging.FromContext(ctx).Warn("journal digest failed; state not updated", "journal", def.VersionDataPath, "error", err)
		return report, nil
	}
	report.Digest = digest
	if err := s.recordJournal(def.VersionDataPath, digest, count); err != nil {
		logging.FromContext(ctx).Warn("state not updated", "journal", def.VersionDataPath, "error", err)
	}
	return report, nil
}

func (s *Service) recordJournal(path, digest string, count int) error {
	st, err := storepkg.LoadState(s.StateRoot)
	if err != nil {
		return err
	}
	storepkg.RecordJournal(&st, storepkg.JournalState{
		Path:      path,
		Digest:    digest,
		Records:   count,
		UpdatedAt: s.now().UTC(),
	})
	return storepkg.SaveState(s.StateRoot, st)
}

// RunDoctor checks the tool setup and, when ref or a phantom.toml resolves,
// the journal it names.
func (s *Service) RunDoctor(ctx context.Context, ref string) doctor.Report {
	svc := *s.Doctor
	var resolveErr error
	if def, err := s.Resolve(ref); err == nil {
		svc.JournalPath = def.VersionDataPath
	} else if ref != "" || !errors.Is(err, config.ErrNoProjectFile) {
		resolveErr = err
	}
	report := svc.Run(ctx)
	if resolveErr != nil {
		report.Healthy = false
		report.Findings = append(report.Findings, doctor.Finding{Code: "CFG_RESOLVE", Level: "error", Message: resolveErr.Error()})
	}
	return report
}
