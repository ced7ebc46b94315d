package postwatch

import "errors"

var (
	// ErrInvalidSelector is returned when a start request carries an empty
	// or malformed selector.
	ErrInvalidSelector = errors.New("postwatch: invalid selector")

	// ErrAlreadyActive is returned by Start while a collection session is
	// already running.
	ErrAlreadyActive = errors.New("postwatch: collection already active")

	// ErrNothingToExport is returned by ExportCSV when no records have been
	// collected yet.
	ErrNothingToExport = errors.New("postwatch: nothing to export")
)
