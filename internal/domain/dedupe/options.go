package dedupe

import "time"

// Option configures a Memory deduper.
type Option func(*Memory)

// WithMaxSize bounds the number of held keys. Zero or less means unbounded.
func WithMaxSize(maxSize int) Option {
	return func(d *Memory) {
		d.maxSize = maxSize
	}
}

// WithTTL sets how long a claimed key is held.
func WithTTL(ttl time.Duration) Option {
	return func(d *Memory) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Memory) {
		if now != nil {
			d.now = now
		}
	}
}
