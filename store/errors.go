package store

import "errors"

var (
	// ErrConcurrencyConflict indicates the task collection was rewritten after
	// the revision passed to UpdateMany was read.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrBlankCategoryName rejects the reserved empty category name.
	ErrBlankCategoryName = errors.New("category name is blank")
	// ErrUnknownCategory reports a category id that names no category.
	ErrUnknownCategory = errors.New("unknown category")
)
