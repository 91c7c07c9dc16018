package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"phantom/internal/fsutil"
)

func EnsureLayout(root string) error {
	return os.MkdirAll(root, 0o755)
}

func LoadState(root string) (State, error) {
	if err := EnsureLayout(root); err != nil {
		return State{}, err
	}
	blob, err := os.ReadFile(StatePath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return State{Version: StateVersion}, nil
		}
		return State{}, err
	}
	var st State
	if err := toml.Unmarshal(blob, &st); err != nil {
		return State{}, fmt.Errorf("DOC_STATE_PARSE: %w", err)
	}
	if st.Version == 0 {
		st.Version = StateVersion
	}
	if st.Version != StateVersion {
		return State{}, fmt.Errorf("DOC_STATE_VERSION: unsupported state version %d", st.Version)
	}
	for i := range st.Journals {
		if st.Journals[i].Path == "" {
			return State{}, fmt.Errorf("DOC_STATE_SCHEMA: journal entry missing path")
		}
	}
	return st, nil
}

func SaveState(root string, st State) error {
	if err := EnsureLayout(root); err != nil {
		return err
	}
	st.Version = StateVersion
	sort.Slice(st.Journals, func(i, j int) bool {
		return st.Journals[i].Path < st.Journals[j].Path
	})
	blob, err := toml.Marshal(st)
	if err != nil {
		return fmt.Errorf("DOC_STATE_ENCODE: %w", err)
	}
	return fsutil.AtomicWrite(StatePath(root), blob, 0o644)
}

// RecordJournal upserts the entry for rec.Path. Paths are stored absolute.
func RecordJournal(st *State, rec JournalState) {
	if abs, err := filepath.Abs(rec.Path); err == nil {
		rec.Path = abs
	}
	for i := range st.Journals {
		if st.Journals[i].Path == rec.Path {
			st.Journals[i] = rec
			return
		}
	}
	st.Journals = append(st.Journals, rec)
}

func FindJournal(st State, path string) (JournalState, bool) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	for _, j := range st.Journals {
		if j.Path == path {
			return j, true
		}
	}
	return JournalState{}, false
}
