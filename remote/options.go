package remote

import (
	"time"

	"github.com/eclab/mason-sub011/internal/logger"
	"github.com/eclab/mason-sub011/internal/metrics"
	"github.com/eclab/mason-sub011/types"
)

// DefaultTimeout bounds one remote request/reply when no timeout is set.
const DefaultTimeout = 5 * time.Second

// DefaultSubjectPrefix prefixes the subjects remote servers listen on.
const DefaultSubjectPrefix = "mason.remote"

// Option configures servers and resolvers.
type Option func(*options)

type options struct {
	logger  types.Logger
	metrics types.MetricsCollector
	timeout time.Duration
	prefix  string
}

// WithLogger sets the logger.
func WithLogger(l types.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTimeout bounds each remote call. It only applies when the caller's
// context has no earlier deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithSubjectPrefix sets the subject prefix servers listen under. Runs
// sharing a NATS server need distinct prefixes.
func WithSubjectPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{
		logger:  logger.NewNop(),
		metrics: metrics.NewNop(),
		timeout: DefaultTimeout,
		prefix:  DefaultSubjectPrefix,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}
