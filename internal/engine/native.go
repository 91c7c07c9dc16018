package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const slugMaxLength = 40

// ErrAutogenerateUnsupported is returned by Native when asked to autogenerate:
// that needs a live schema comparison only the alembic engine can do.
var ErrAutogenerateUnsupported = errors.New("autogenerate requires the alembic engine")

var (
	revisionPattern     = regexp.MustCompile(`(?m)^revision(?:\s*:[^=\n]*)?\s*=\s*['"]([^'"]+)['"]`)
	downRevisionPattern = regexp.MustCompile(`(?m)^down_revision(?:\s*:[^=\n]*)?\s*=\s*(.+)$`)
	quotedPattern       = regexp.MustCompile(`['"]([^'"]+)['"]`)
	expressionPattern   = regexp.MustCompile(`\$\{([^}]*)\}`)
	slugUnsafe          = regexp.MustCompile(`[^a-z0-9]+`)
)

// Native renders new revision scripts in-process from the staged template,
// chaining each new revision onto the current head.
type Native struct {
	Now   func() time.Time
	NewID func() string
}

// Script is the revision header parsed from one script file.
type Script struct {
	File          string
	Revision      string
	DownRevisions []string
}

func (n *Native) Revision(ctx context.Context, t Target, opts RevisionOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if opts.Autogenerate {
		return ErrAutogenerateUnsupported
	}
	tmpl, err := os.ReadFile(filepath.Join(t.ScriptLocation, TemplateName))
	if err != nil {
		return fmt.Errorf("read template: %w", err)
	}
	scripts, err := ScanScripts(t.VersionPath)
	if err != nil {
		return err
	}
	heads := Heads(scripts)
	if len(heads) > 1 {
		return fmt.Errorf("multiple heads are present (%s); merge them before adding a revision", strings.Join(heads, ", "))
	}

	known := make(map[string]struct{}, len(scripts))
	for _, s := range scripts {
		known[s.Revision] = struct{}{}
	}
	rev := n.newID()
	for i := 0; ; i++ {
		if _, dup := known[rev]; !dup {
			break
		}
		if i > 8 {
			return fmt.Errorf("could not allocate a unique revision id")
		}
		rev = n.newID()
	}

	down := ""
	if len(heads) == 1 {
		down = heads[0]
	}
	body, err := renderTemplate(string(tmpl), templateValues{
		Message:      opts.Message,
		UpRevision:   rev,
		DownRevision: down,
		CreateDate:   n.now().Format("2006-01-02 15:04:05.000000"),
	})
	if err != nil {
		return err
	}

	name := fmt.Sprintf("%s_%s.py", rev, Slug(opts.Message))
	f, err := os.OpenFile(filepath.Join(t.VersionPath, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := f.WriteString(body); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return f.Close()
}

func (n *Native) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}

func (n *Native) newID() string {
	if n.NewID != nil {
		return n.NewID()
	}
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return hex[len(hex)-12:]
}

// ScanScripts parses the revision header of every script in dir. Files
// without a revision assignment are skipped.
func ScanScripts(dir string) ([]Script, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read versions: %w", err)
	}
	var scripts []Script
	for _, e := range entries {
		if !e.Type().IsRegular() || filepath.Ext(e.Name()) != ".py" {
			continue
		}
		blob, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		s, ok := ParseScript(string(blob))
		if !ok {
			continue
		}
		s.File = e.Name()
		scripts = append(scripts, s)
	}
	return scripts, nil
}

// ParseScript extracts revision and down_revision from script source.
func ParseScript(src string) (Script, bool) {
	m := revisionPattern.FindStringSubmatch(src)
	if m == nil {
		return Script{}, false
	}
	s := Script{Revision: m[1]}
	if dm := downRevisionPattern.FindStringSubmatch(src); dm != nil {
		for _, q := range quotedPattern.FindAllStringSubmatch(dm[1], -1) {
			s.DownRevisions = append(s.DownRevisions, q[1])
		}
	}
	return s, true
}

// Heads returns, sorted, the revisions no other script revises.
func Heads(scripts []Script) []string {
	revised := map[string]struct{}{}
	for _, s := range scripts {
		for _, d := range s.DownRevisions {
			revised[d] = struct{}{}
		}
	}
	var heads []string
	for _, s := range scripts {
		if _, ok := revised[s.Revision]; !ok {
			heads = append(heads, s.Revision)
		}
	}
	sort.Strings(heads)
	return heads
}

// Slug turns a revision message into the file-name fragment used after the
// revision id.
func Slug(message string) string {
	slug := strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(message), "_"), "_")
	if len(slug) > slugMaxLength {
		cut := slug[:slugMaxLength]
		if i := strings.LastIndex(cut, "_"); i > 0 {
			cut = cut[:i]
		}
		slug = cut + "_"
	}
	return slug
}

type templateValues struct {
	Message      string
	UpRevision   string
	DownRevision string
	CreateDate   string
}

// renderTemplate fills the fixed revision template. Only the expressions the
// template actually uses are understood; anything else is an error rather
// than silently emitted.
func renderTemplate(tmpl string, v templateValues) (string, error) {
	downRepr := "None"
	if v.DownRevision != "" {
		downRepr = pyRepr(v.DownRevision)
	}
	values := map[string]string{
		"message":                              v.Message,
		"up_revision":                          v.UpRevision,
		"down_revision | comma,n":              v.DownRevision,
		"create_date":                          v.CreateDate,
		`imports if imports else ""`:           "",
		"repr(up_revision)":                    pyRepr(v.UpRevision),
		"repr(down_revision)":                  downRepr,
		"repr(branch_labels)":                  "None",
		"repr(depends_on)":                     "None",
		`upgrades if upgrades else "pass"`:     "pass",
		`downgrades if downgrades else "pass"`: "pass",
	}
	var unknown []string
	out := expressionPattern.ReplaceAllStringFunc(tmpl, func(expr string) string {
		key := strings.TrimSpace(expr[2 : len(expr)-1])
		val, ok := values[key]
		if !ok {
			unknown = append(unknown, key)
			return expr
		}
		return val
	})
	if len(unknown) > 0 {
		return "", fmt.Errorf("template uses unsupported expressions: %s", strings.Join(unknown, "; "))
	}
	return out, nil
}

func pyRepr(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`)
	return "'" + r.Replace(s) + "'"
}
