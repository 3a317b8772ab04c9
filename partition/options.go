package partition

import (
	"github.com/eclab/mason-sub011/internal/logger"
	"github.com/eclab/mason-sub011/internal/metrics"
	"github.com/eclab/mason-sub011/types"
)

// Option configures a Manager with optional dependencies.
type Option func(*managerOptions)

type managerOptions struct {
	logger    types.Logger
	metrics   types.MetricsCollector
	observers []types.RebalanceObserver
}

// WithLogger sets a logger.
//
// Example:
//
//	mgr, err := partition.NewManager(cfg, world, partition.WithLogger(logging.NewSlogDefault()))
func WithLogger(l types.Logger) Option {
	return func(o *managerOptions) {
		o.logger = l
	}
}

// WithMetrics sets a metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(o *managerOptions) {
		o.metrics = m
	}
}

// WithObserver registers a rebalance observer at construction time. It is
// equivalent to calling RegisterObserver before the first rebalance.
func WithObserver(obs types.RebalanceObserver) Option {
	return func(o *managerOptions) {
		o.observers = append(o.observers, obs)
	}
}

func applyOptions(opts []Option) managerOptions {
	o := managerOptions{
		logger:  logger.NewNop(),
		metrics: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}
