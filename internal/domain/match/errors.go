package match

import "errors"

// ErrMatchNotReportable is returned when a result is reported for a bye or
// for a match that is no longer pending.
var ErrMatchNotReportable = errors.New("match not reportable")
