package store

import "time"

const StateVersion = 1

type State struct {
	Version  int            `toml:"version"`
	Journals []JournalState `toml:"journals"`
}

// JournalState is what phantom last wrote to a journal.
type JournalState struct {
	Path      string    `toml:"path"`
	Digest    string    `toml:"digest"`
	Records   int       `toml:"records"`
	UpdatedAt time.Time `toml:"updated_at"`
}
