package mason

import (
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/eclab/mason-sub011/internal/logging"
	"github.com/eclab/mason-sub011/internal/metrics"
)

// Option configures a Node with optional dependencies.
type Option func(*nodeOptions)

type nodeOptions struct {
	hooks   *Hooks
	metrics MetricsCollector
	logger  Logger
	nc      *nats.Conn
}

// WithHooks sets lifecycle event hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for NewNode
//
// Example:
//
//	hooks := &mason.Hooks{
//	    OnRebalanced: func(ctx context.Context, level, version int) error {
//	        log.Printf("level %d balanced, topology v%d", level, version)
//	        return nil
//	    },
//	}
//	node, err := mason.NewNode(ctx, cfg, world, mason.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *nodeOptions) {
		o.hooks = hooks
	}
}

// WithMetrics sets a metrics collector shared by the node's partition
// manager, fields and remote clients.
//
// Example:
//
//	m := mason.NewPrometheusMetrics(prometheus.DefaultRegisterer, "sim")
//	node, err := mason.NewNode(ctx, cfg, world, mason.WithMetrics(m))
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *nodeOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Example:
//
//	node, err := mason.NewNode(ctx, cfg, world, mason.WithLogger(mason.NewSlogLogger(slog.Default())))
func WithLogger(logger Logger) Option {
	return func(o *nodeOptions) {
		o.logger = logger
	}
}

// WithNATS enables remote writes over nc. Fields created with NewField and
// NewAgentField are then served on NATS and resolve remote owners through
// the endpoint registry. Without it, writes to non-local points fail with
// ErrNoRemote.
func WithNATS(nc *nats.Conn) Option {
	return func(o *nodeOptions) {
		o.nc = nc
	}
}

// NewSlogLogger adapts a slog logger.
func NewSlogLogger(l *slog.Logger) Logger {
	return logging.NewSlog(l)
}

// NewPrometheusMetrics returns a collector registering its metrics with reg
// under namespace.
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) MetricsCollector {
	return metrics.NewPrometheus(reg, namespace)
}
