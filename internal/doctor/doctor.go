package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"phantom/internal/config"
	"phantom/internal/failure"
	"phantom/internal/journal"
	"phantom/internal/store"
)

type Finding struct {
	Code    string `json:"code"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

type JournalReport struct {
	Path    string `json:"path"`
	Records int    `json:"records"`
	Digest  string `json:"digest,omitempty"`
}

type Report struct {
	Healthy  bool           `json:"healthy"`
	Engine   string         `json:"engine,omitempty"`
	Journal  *JournalReport `json:"journal,omitempty"`
	Findings []Finding      `json:"findings"`
}

type Service struct {
	ConfigPath string
	StateRoot  string
	// EngineKind overrides the configured engine when set.
	EngineKind string
	// JournalPath enables the journal checks when set.
	JournalPath string
	LookPath    func(string) (string, error)
}

func (s *Service) Run(ctx context.Context) Report {
	findings := []Finding{}
	report := Report{}

	cfg := config.DefaultConfig()
	if _, err := os.Stat(s.ConfigPath); err != nil {
		findings = append(findings, Finding{Code: "DOC_CONFIG_MISSING", Level: "error", Message: err.Error()})
	} else if loaded, err := config.Load(s.ConfigPath); err != nil {
		findings = append(findings, Finding{Code: "DOC_CONFIG_INVALID", Level: "error", Message: err.Error()})
	} else {
		cfg = loaded
	}
	if s.EngineKind != "" {
		cfg.Engine.Kind = s.EngineKind
	}
	report.Engine = cfg.Engine.Kind
	findings = append(findings, s.checkEngine(cfg)...)

	st, err := store.LoadState(s.StateRoot)
	if err != nil {
		findings = append(findings, Finding{Code: "DOC_STATE_INVALID", Level: "error", Message: err.Error()})
	}

	if s.JournalPath != "" {
		if err := ctx.Err(); err != nil {
			findings = append(findings, Finding{Code: "DOC_CANCELLED", Level: "error", Message: err.Error()})
		} else {
			jr, jf := checkJournal(s.JournalPath, st)
			report.Journal = jr
			findings = append(findings, jf...)
		}
	}

	healthy := true
	for _, f := range findings {
		if f.Level == "error" {
			healthy = false
			break
		}
	}
	report.Healthy = healthy
	report.Findings = findings
	return report
}

func (s *Service) checkEngine(cfg config.Config) []Finding {
	switch cfg.Engine.Kind {
	case "native":
		return nil
	case "alembic":
		if len(cfg.Engine.Command) == 0 {
			return []Finding{{Code: "ENG_UNAVAILABLE", Level: "error", Message: "alembic engine has no command"}}
		}
		lookPath := s.LookPath
		if lookPath == nil {
			lookPath = exec.LookPath
		}
		if _, err := lookPath(cfg.Engine.Command[0]); err != nil {
			return []Finding{{Code: "ENG_UNAVAILABLE", Level: "error", Message: err.Error()}}
		}
		return nil
	default:
		return []Finding{{Code: "ENG_UNKNOWN", Level: "error", Message: fmt.Sprintf("unsupported engine %q", cfg.Engine.Kind)}}
	}
}

func checkJournal(path string, st store.State) (*JournalReport, []Finding) {
	jr := &JournalReport{Path: path}
	recorded, tracked := store.FindJournal(st, path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if tracked && recorded.Records > 0 {
			return jr, []Finding{{Code: "JRN_MISSING", Level: "error", Message: path + " was written before but no longer exists"}}
		}
		return jr, []Finding{{Code: "JRN_ABSENT", Level: "info", Message: path + " does not exist yet"}}
	}
	digest, count, err := journal.Digest(path)
	if err != nil {
		code := failure.CodeOf(err)
		if code == "" {
			code = "JRN_READ"
		}
		return jr, []Finding{{Code: code, Level: "error", Message: err.Error()}}
	}
	jr.Digest = digest
	jr.Records = count
	if !tracked {
		return jr, []Finding{{Code: "JRN_UNTRACKED", Level: "info", Message: path + " has not been written by phantom on this machine"}}
	}
	if recorded.Digest != digest {
		return jr, []Finding{{
			Code:    "JRN_DRIFT",
			Level:   "warn",
			Message: fmt.Sprintf("%s changed outside phantom since %s", path, recorded.UpdatedAt.Format(time.RFC3339)),
		}}
	}
	return jr, nil
}
