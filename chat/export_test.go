package chat

import "time"

// WithClock sets the clock and ID source used for synthesized messages.
func WithClock(now func() time.Time, newID func() string) Option {
	return func(l *Loop) {
		l.now = now
		l.newID = newID
	}
}
