package worker

import "errors"

// Sentinel kinds for worker errors.
var (
	ErrShutdownTimeout = errors.New("worker shutdown timed out")
	ErrPermanent       = errors.New("permanent job failure")
)

// Permanent marks err as not worth retrying. The job goes straight to the
// dead-letter handler.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrPermanent, err)
}
