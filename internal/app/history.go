package app

import (
	"sort"
	"strings"

	"phantom/internal/engine"
	"phantom/internal/journal"
)

type HistoryEntry struct {
	Name          string   `json:"name"`
	Revision      string   `json:"revision,omitempty"`
	DownRevisions []string `json:"downRevisions,omitempty"`
	Message       string   `json:"message,omitempty"`
	Head          bool     `json:"head,omitempty"`
}

type HistoryReport struct {
	Ref     string         `json:"ref"`
	Journal string         `json:"journal"`
	Entries []HistoryEntry `json:"entries"`
}

// History lists the scripts held by the referenced journal, newest first.
// Nothing is staged.
func (s *Service) History(ref string) (HistoryReport, error) {
	def, err := s.Resolve(ref)
	if err != nil {
		return HistoryReport{}, err
	}
	records, err := journal.Load(def.VersionDataPath)
	if err != nil {
		return HistoryReport{}, err
	}
	return HistoryReport{
		Ref:     def.Ref,
		Journal: def.VersionDataPath,
		Entries: historyEntries(records),
	}, nil
}

func historyEntries(records []journal.Record) []HistoryEntry {
	byName := map[string]journal.Record{}
	for _, r := range records {
		byName[r.Name] = r
	}
	entries := make([]HistoryEntry, 0, len(byName))
	for name, r := range byName {
		e := HistoryEntry{Name: name, Message: scriptMessage(r.Content)}
		if sc, ok := engine.ParseScript(r.Content); ok {
			e.Revision = sc.Revision
			e.DownRevisions = sc.DownRevisions
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return orderHistory(entries)
}

// orderHistory walks from each head down its revision chain; scripts that
// no chain reaches follow in name order.
func orderHistory(entries []HistoryEntry) []HistoryEntry {
	byRev := map[string]int{}
	revised := map[string]bool{}
	for i, e := range entries {
		if e.Revision != "" {
			byRev[e.Revision] = i
		}
		for _, d := range e.DownRevisions {
			revised[d] = true
		}
	}
	for i := range entries {
		entries[i].Head = entries[i].Revision != "" && !revised[entries[i].Revision]
	}

	visited := make([]bool, len(entries))
	out := make([]HistoryEntry, 0, len(entries))
	var walk func(i int)
	walk = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true
		out = append(out, entries[i])
		for _, d := range entries[i].DownRevisions {
			if j, ok := byRev[d]; ok {
				walk(j)
			}
		}
	}
	for i := range entries {
		if entries[i].Head {
			walk(i)
		}
	}
	for i := range entries {
		walk(i)
	}
	return out
}

// scriptMessage returns the first line of a script's module docstring.
func scriptMessage(content string) string {
	rest, ok := strings.CutPrefix(strings.TrimLeft(content, " \t\r\n"), `"""`)
	if !ok {
		return ""
	}
	line, _, _ := strings.Cut(rest, "\n")
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), `"""`))
}
