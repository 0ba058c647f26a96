package model

import "errors"

// ErrInvalidSettings reports a settings value outside its allowed range.
var ErrInvalidSettings = errors.New("invalid settings")
