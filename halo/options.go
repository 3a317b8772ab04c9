package halo

import (
	"github.com/eclab/mason-sub011/internal/logger"
	"github.com/eclab/mason-sub011/internal/metrics"
	"github.com/eclab/mason-sub011/types"
)

// Option configures a field with optional dependencies.
type Option func(*fieldOptions)

type fieldOptions struct {
	logger  types.Logger
	metrics types.MetricsCollector
}

// WithLogger sets a logger.
func WithLogger(l types.Logger) Option {
	return func(o *fieldOptions) {
		o.logger = l
	}
}

// WithMetrics sets a metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(o *fieldOptions) {
		o.metrics = m
	}
}

func applyOptions(opts []Option) fieldOptions {
	o := fieldOptions{
		logger:  logger.NewNop(),
		metrics: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}
