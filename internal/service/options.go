package service

import (
	"github.com/rs/zerolog"

	"github.com/example/projectcontrols/internal/observability"
)

// DefaultMaxRetries bounds how often a mutation re-reads the current
// version after losing a race.
const DefaultMaxRetries = 3

// Option configures a service.
type Option func(*serviceOptions)

type serviceOptions struct {
	logger     zerolog.Logger
	metrics    *observability.Metrics
	maxRetries int
	detector   ConflictDetector
}

func newServiceOptions(opts []Option) serviceOptions {
	o := serviceOptions{
		logger:     zerolog.Nop(),
		maxRetries: DefaultMaxRetries,
		detector:   VersionConflictDetector{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *serviceOptions) {
		o.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *serviceOptions) {
		o.metrics = m
	}
}

// WithMaxRetries sets the retry budget for lost version races.
func WithMaxRetries(n int) Option {
	return func(o *serviceOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithConflictDetector sets the merge conflict heuristic.
func WithConflictDetector(d ConflictDetector) Option {
	return func(o *serviceOptions) {
		if d != nil {
			o.detector = d
		}
	}
}
