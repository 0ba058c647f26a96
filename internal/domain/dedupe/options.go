package dedupe

// Option configures a Deduper.
type Option func(*inMemoryDeduper)

// WithMaxSize bounds how many report IDs are remembered. Once full, the oldest
// ID is forgotten first. A value <= 0 keeps every ID.
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryDeduper) {
		d.maxSize = maxSize
	}
}
