package derive

import (
	derrors "github.com/vango-dev/derive/internal/errors"
)

// Sentinel errors, matched with errors.Is against the panics and reports the
// engine produces.
var (
	// ErrReadOnly is raised when SetState is called on a derived store.
	ErrReadOnly = derrors.New("E001")

	// ErrDerivationPanic wraps a panic raised by a derivation function.
	ErrDerivationPanic = derrors.New("E002")

	// ErrCycle is raised when a derived store reads itself while computing.
	ErrCycle = derrors.New("E003")

	// ErrAccessorClosed is raised when an accessor is used after its pass.
	ErrAccessorClosed = derrors.New("E004")

	// ErrInvalidOption is raised for options that do not fit the store.
	ErrInvalidOption = derrors.New("E005")
)
