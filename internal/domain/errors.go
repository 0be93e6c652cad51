package domain

import "errors"

// Error taxonomy shared across adapters. Adapters wrap these sentinels so
// callers can classify failures with errors.Is without knowing which
// implementation produced them.
var (
	// ErrTransientFetch marks a network or HTTP failure that may succeed on
	// a later run.
	ErrTransientFetch = errors.New("transient fetch failure")
	// ErrParse marks a page or feed whose expected structure is missing.
	ErrParse = errors.New("parse failure")
	// ErrStorageConflict marks an upsert race that could not be resolved
	// even after the update retry.
	ErrStorageConflict = errors.New("storage conflict")
	// ErrFatalSource marks a source that could not be reached at all.
	ErrFatalSource = errors.New("source unavailable")
)
