// Package journal reads and writes the version-data journal: a JSONL file in
// which every line holds the name and full content of one migration script.
package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gowebpki/jcs"

	"phantom/internal/failure"
	"phantom/internal/fsutil"
)

// ScriptSuffix selects which files of a scripts directory belong in the journal.
const ScriptSuffix = ".py"

const corruptHint = "restore the journal from version control; phantom never rewrites a journal it cannot read"

// Record is one migration script as stored in the journal.
type Record struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type wireRecord struct {
	Name    *string `json:"name"`
	Content *string `json:"content"`
}

// Encode renders r as a single canonical (RFC 8785) JSON line without the
// trailing newline. Equal records always encode to equal bytes.
func Encode(r Record) ([]byte, error) {
	if err := validName(r.Name); err != nil {
		return nil, err
	}
	if !utf8.ValidString(r.Content) {
		return nil, fmt.Errorf("record %q: content is not valid UTF-8", r.Name)
	}
	blob, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("record %q: %w", r.Name, err)
	}
	canonical, err := jcs.Transform(blob)
	if err != nil {
		return nil, fmt.Errorf("record %q: canonicalize: %w", r.Name, err)
	}
	return canonical, nil
}

// Decode parses one journal line. Key order is irrelevant and unknown keys
// are ignored; both name and content must be present. Invalid UTF-8 is
// rejected rather than replaced, so a damaged line never round-trips lossily.
func Decode(line []byte) (Record, error) {
	if !utf8.Valid(line) {
		return Record{}, errors.New("line is not valid UTF-8")
	}
	var w wireRecord
	if err := json.Unmarshal(line, &w); err != nil {
		return Record{}, err
	}
	if w.Name == nil {
		return Record{}, errors.New("missing name")
	}
	if w.Content == nil {
		return Record{}, errors.New("missing content")
	}
	if err := validName(*w.Name); err != nil {
		return Record{}, err
	}
	return Record{Name: *w.Name, Content: *w.Content}, nil
}

// Load returns every record of the journal at path. A missing journal is an
// empty one. A single undecodable line fails the whole load.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, failure.Wrap(err, failure.KindStagingSetup, "JRN_READ", "")
	}
	defer f.Close()
	return read(f)
}

func read(r io.Reader) ([]Record, error) {
	var records []Record
	reader := bufio.NewReader(r)
	lineNo := 0
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			trimmed := bytes.TrimSpace(line)
			if len(trimmed) > 0 {
				rec, decErr := Decode(trimmed)
				if decErr != nil {
					return nil, failure.Wrap(fmt.Errorf("line %d: %w", lineNo, decErr), failure.KindCorruptJournal, "JRN_CORRUPT", corruptHint)
				}
				records = append(records, rec)
			}
		}
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, failure.Wrap(err, failure.KindStagingSetup, "JRN_READ", "")
		}
	}
}

// Collect reads every regular file directly inside dir whose name ends in
// ScriptSuffix, in directory-listing order.
func Collect(dir string) ([]Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var records []Record
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), ScriptSuffix) {
			continue
		}
		blob, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		records = append(records, Record{Name: e.Name(), Content: string(blob)})
	}
	return records, nil
}

// Write replaces the journal at path with records. Nothing is written unless
// every record encodes.
func Write(path string, records []Record) error {
	var buf bytes.Buffer
	for _, rec := range records {
		line, err := Encode(rec)
		if err != nil {
			return failure.Wrap(err, failure.KindJournalWrite, "JRN_WRITE", "")
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := fsutil.AtomicWrite(path, buf.Bytes(), 0o644); err != nil {
		return failure.Wrap(err, failure.KindJournalWrite, "JRN_WRITE", "check that the journal directory is writable")
	}
	return nil
}

// Save rebuilds the journal at path from the script files currently in dir.
// It is a total rewrite: records whose file no longer exists are dropped.
func Save(path, dir string) error {
	records, err := Collect(dir)
	if err != nil {
		return failure.Wrap(err, failure.KindJournalWrite, "JRN_WRITE", "")
	}
	return Write(path, records)
}

func validName(name string) error {
	switch {
	case name == "":
		return errors.New("empty script name")
	case name == "." || name == "..":
		return fmt.Errorf("invalid script name %q", name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("script name %q must not contain path separators", name)
	}
	return nil
}
