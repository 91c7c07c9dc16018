package e2e

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"phantom/internal/app"
	"phantom/internal/journal"
)

func TestCLINativeFlow(t *testing.T) {
	home := t.TempDir()
	bin, env := buildCLI(t, home)
	work := filepath.Join(home, "project")
	writeFile(t, filepath.Join(work, "phantom.toml"), "[phantom]\nversion_data_path = \"db/versions.jsonl\"\n", 0o644)
	journalPath := filepath.Join(work, "db", "versions.jsonl")

	out := runCLI(t, bin, env, work, "revision", "-m", "create users")
	assertContains(t, out, "_create_users.py")
	runCLI(t, bin, env, work, "revision", "-m", "add email")

	out = runCLI(t, bin, env, work, "--json", "history")
	var hist app.HistoryReport
	if err := json.Unmarshal([]byte(out), &hist); err != nil {
		t.Fatalf("decode history: %v\n%s", err, out)
	}
	if len(hist.Entries) != 2 || hist.Entries[0].Message != "add email" || !hist.Entries[0].Head {
		t.Fatalf("unexpected history: %+v", hist.Entries)
	}
	if hist.Entries[0].DownRevisions[0] != hist.Entries[1].Revision {
		t.Fatalf("second revision should chain onto the first: %+v", hist.Entries)
	}

	out = runCLI(t, bin, env, work, "doctor")
	assertContains(t, out, "healthy")

	records, err := journal.Load(journalPath)
	if err != nil {
		t.Fatalf("load journal: %v", err)
	}
	records = append(records, journal.Record{Name: "manual.py", Content: "revision = 'm1'\n"})
	if err := journal.Write(journalPath, records); err != nil {
		t.Fatalf("write journal: %v", err)
	}
	out = runCLI(t, bin, env, work, "doctor")
	assertContains(t, out, "JRN_DRIFT")
}

func TestCLIExitCodes(t *testing.T) {
	home := t.TempDir()
	bin, env := buildCLI(t, home)
	work := filepath.Join(home, "project")
	writeFile(t, filepath.Join(work, "phantom.toml"), "[phantom]\nversion_data_path = \"versions.jsonl\"\n", 0o644)

	out, code := runCLIExitCode(t, bin, env, work, "revision", "missing.yaml:phantom")
	if code != 2 {
		t.Fatalf("expected exit 2 for an unresolvable reference, got %d\n%s", code, out)
	}
	assertContains(t, out, "hint:")

	out, code = runCLIExitCode(t, bin, env, work, "revision", "--autogenerate")
	if code != 5 {
		t.Fatalf("expected exit 5 for an engine failure, got %d\n%s", code, out)
	}

	writeFile(t, filepath.Join(work, "versions.jsonl"), "not json\n", 0o644)
	out, code = runCLIExitCode(t, bin, env, work, "revision", "-m", "x")
	if code != 3 {
		t.Fatalf("expected exit 3 for a corrupt journal, got %d\n%s", code, out)
	}
	assertContains(t, out, "JRN_CORRUPT")
}

func TestCLIAlembicEngine(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake alembic is a shell script")
	}
	home := t.TempDir()
	bin, env := buildCLI(t, home)
	work := filepath.Join(home, "project")
	writeFile(t, filepath.Join(work, "phantom.toml"), "[phantom]\nversion_data_path = \"versions.jsonl\"\nini_content = \"[alembic]\\nsqlalchemy.url = sqlite://\\n\"\n", 0o644)

	fake := filepath.Join(home, "bin", "fake-alembic")
	writeFile(t, fake, `#!/bin/sh
test -f "$2" || { echo "missing config $2" >&2; exit 2; }
test -f alembic.ini || { echo "missing alembic.ini" >&2; exit 2; }
if [ "$5" = "fail" ]; then echo "Target database is not up to date." >&2; exit 1; fi
printf "revision = 'x1'\ndown_revision = None\n" > migrations/versions/x1_made.py
`, 0o755)

	runCLI(t, bin, env, work, "config", "set-engine", "alembic", "--", fake)
	runCLI(t, bin, env, work, "revision", "-m", "made")

	journalPath := filepath.Join(work, "versions.jsonl")
	records, err := journal.Load(journalPath)
	if err != nil {
		t.Fatalf("load journal: %v", err)
	}
	if len(records) != 1 || records[0].Name != "x1_made.py" {
		t.Fatalf("unexpected journal records: %+v", records)
	}

	before, err := os.ReadFile(journalPath)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	out, code := runCLIExitCode(t, bin, env, work, "revision", "-m", "fail")
	if code != 5 {
		t.Fatalf("expected exit 5, got %d\n%s", code, out)
	}
	assertContains(t, out, "Target database is not up to date.")
	after, err := os.ReadFile(journalPath)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if string(before) != string(after) {
		t.Fatalf("failed revision must leave the journal byte-identical")
	}
}
