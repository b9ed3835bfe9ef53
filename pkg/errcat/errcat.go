// Package errcat categorizes the errors surfaced by the block storage
// engine so callers can match on the failure class instead of on
// individual sentinel errors.
//
// Every expected validation failure in the engine is a sentinel error
// created with Sentinel, which pins it to exactly one Category. Callers
// keep the usual errors.Is matching against the sentinel; additionally
// CategoryOf recovers the class through any number of %w wraps.
package errcat

import (
	"errors"
)

// Category is the failure class of an engine error.
type Category int

const (
	// Unknown marks errors that did not originate from a categorized
	// sentinel, e.g. wrapped I/O errors from the store backend.
	Unknown Category = iota
	// Structural covers malformed lengths and formats: header parse
	// failures, bad hex strings, magnet URL errors.
	Structural
	// Crypto covers key format, signature and AEAD authentication
	// failures.
	Crypto
	// Capacity covers data exceeding block or header capacity and
	// recipient count limits.
	Capacity
	// Consistency covers checksum and count mismatches between a header
	// and the content it addresses.
	Consistency
	// Recovery covers insufficient redundancy to reconstruct a block.
	Recovery
)

func (c Category) String() string {
	switch c {
	case Structural:
		return "structural"
	case Crypto:
		return "crypto"
	case Capacity:
		return "capacity"
	case Consistency:
		return "consistency"
	case Recovery:
		return "recovery"
	default:
		return "unknown"
	}
}

// Error couples an error with its Category. It is normally created via
// Sentinel and matched via errors.Is on the sentinel or CategoryOf on
// the class.
type Error struct {
	Category Category
	Err      error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Sentinel returns a new categorized sentinel error. The result is
// comparable by identity, so errors.Is works on values wrapped with
// fmt.Errorf("%w: ...", sentinel).
func Sentinel(c Category, msg string) error {
	return &Error{Category: c, Err: errors.New(msg)}
}

// Wrap attaches a category to an existing error.
func Wrap(c Category, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Category: c, Err: err}
}

// CategoryOf returns the category of the first categorized error in the
// chain, or Unknown.
func CategoryOf(err error) Category {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Category
	}
	return Unknown
}

// Is reports whether err belongs to the given category.
func Is(err error, c Category) bool {
	return CategoryOf(err) == c
}
