package intelligence

import (
	"time"

	applogger "PlantDex/pkg/logger"
)

type options struct {
	log *applogger.Logger
	now func() time.Time
}

// Option configures an engine component.
type Option func(*options)

// WithLogger sets the component logger.
func WithLogger(l *applogger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock overrides the wall clock used for LastUpdated stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		log: applogger.NewNop(),
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
