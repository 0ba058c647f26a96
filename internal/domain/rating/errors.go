package rating

import "errors"

var (
	// ErrInvalidOutcome is returned for an outcome outside AWins, BWins, Draw.
	ErrInvalidOutcome = errors.New("invalid outcome")
	// ErrNumericDomain is returned when an input or result is NaN or infinite.
	ErrNumericDomain = errors.New("numeric domain error")
)
