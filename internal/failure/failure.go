// Package failure classifies the errors phantom surfaces to its callers.
package failure

import "errors"

type Kind string

const (
	KindCorruptJournal   Kind = "corrupt_journal"
	KindStagingSetup     Kind = "staging_setup"
	KindEngine           Kind = "engine"
	KindConfigResolution Kind = "config_resolution"
	KindJournalWrite     Kind = "journal_write"
)

type classifiedError struct {
	kind  Kind
	code  string
	hint  string
	cause error
}

func (e *classifiedError) Error() string {
	if e.cause == nil {
		return "unknown error"
	}
	if e.code == "" {
		return e.cause.Error()
	}
	return e.code + ": " + e.cause.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

// Wrap attaches a kind, a stable code and an optional operator hint to cause.
// A nil cause yields nil.
func Wrap(cause error, kind Kind, code, hint string) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{kind: kind, code: code, hint: hint, cause: cause}
}

// KindOf returns the outermost kind attached to err, or "" for plain errors.
func KindOf(err error) Kind {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.kind
	}
	return ""
}

func CodeOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.code
	}
	return ""
}

func HintOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.hint
	}
	return ""
}

// Is reports whether err carries kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var classified *classifiedError
		if !errors.As(err, &classified) {
			return false
		}
		if classified.kind == kind {
			return true
		}
		err = classified.cause
	}
	return false
}
