package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/eclab/mason-sub011/types"
)

// ErrRejected is returned when the owner refused a write for a reason other
// than an invalid location or configuration.
var ErrRejected = errors.New("remote write rejected")

// Reply codes. An empty code means the write was queued.
const (
	codeBadRequest      = "bad_request"
	codeInvalidLocation = "invalid_location"
	codeInvalidConfig   = "invalid_config"
	codeRejected        = "rejected"
)

type reply struct {
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, types.ErrInvalidLocation):
		return codeInvalidLocation
	case errors.Is(err, types.ErrInvalidConfig):
		return codeInvalidConfig
	default:
		return codeRejected
	}
}

func (r reply) err() error {
	switch r.Code {
	case "":
		return nil
	case codeInvalidLocation:
		return fmt.Errorf("%w: %s", types.ErrInvalidLocation, r.Error)
	case codeInvalidConfig:
		return fmt.Errorf("%w: %s", types.ErrInvalidConfig, r.Error)
	default:
		return fmt.Errorf("%w: %s: %s", ErrRejected, r.Code, r.Error)
	}
}

// Subject returns the subject rank serves field on under prefix.
func Subject(prefix, field string, rank int) string {
	return prefix + "." + field + "." + strconv.Itoa(rank)
}

// Server answers remote writes for one field of one process by handing them
// to the field's executor.
//
// Lifecycle:
//   - Serve subscribes and then registers the subject
//   - Requests are handled on NATS goroutines; the executor must be goroutine-safe
//   - Close deregisters and unsubscribes
type Server[T types.Object] struct {
	registry *Registry
	sub      *nats.Subscription
	field    string
	rank     int
	subject  string
	exec     types.RemoteExecutor[T]
	logger   types.Logger
}

// Serve starts serving remote writes for field on rank and publishes the
// endpoint in the registry bucket kv.
//
// Parameters:
//   - ctx: Bounds the registry write
//   - nc: Connected NATS client
//   - kv: Endpoint registry bucket shared by the run
//   - field: Field name, identical on every process
//   - rank: The serving process's rank
//   - exec: Receives the decoded writes, typically a *halo.Field
//
// Returns:
//   - *Server[T]: The running server
//   - error: Subscription or registry failure
//
// Example:
//
//	srv, err := remote.Serve[*Walker](ctx, nc, kv, "agents", mgr.Rank(), field)
//	if err != nil {
//	    return err
//	}
//	defer srv.Close(context.Background())
func Serve[T types.Object](
	ctx context.Context,
	nc *nats.Conn,
	kv jetstream.KeyValue,
	field string,
	rank int,
	exec types.RemoteExecutor[T],
	opts ...Option,
) (*Server[T], error) {
	if nc == nil || kv == nil || exec == nil {
		return nil, fmt.Errorf("%w: remote server for %q needs a connection, a registry and an executor", types.ErrInvalidConfig, field)
	}
	if field == "" {
		return nil, fmt.Errorf("%w: field name is required", types.ErrInvalidConfig)
	}

	o := applyOptions(opts)
	s := &Server[T]{
		registry: NewRegistry(kv),
		field:    field,
		rank:     rank,
		subject:  Subject(o.prefix, field, rank),
		exec:     exec,
		logger:   o.logger,
	}

	sub, err := nc.Subscribe(s.subject, s.handle)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe %s: %w", s.subject, err)
	}
	s.sub = sub
	if err := nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("failed to flush subscription %s: %w", s.subject, err)
	}

	if err := s.registry.Register(ctx, field, rank, s.subject); err != nil {
		_ = sub.Unsubscribe()
		return nil, err
	}
	s.logger.Debug("remote server started", "field", field, "rank", rank, "subject", s.subject)

	return s, nil
}

// Subject returns the subject the server listens on.
func (s *Server[T]) Subject() string {
	return s.subject
}

func (s *Server[T]) handle(msg *nats.Msg) {
	var rep reply

	var op types.RemoteOp[T]
	if err := json.Unmarshal(msg.Data, &op); err != nil {
		rep = reply{Code: codeBadRequest, Error: err.Error()}
	} else if err := s.exec.Enqueue(op); err != nil {
		rep = reply{Code: errorCode(err), Error: err.Error()}
		s.logger.Warn("remote write refused", "field", s.field, "rank", s.rank, "op", op.Kind.String(), "point", op.Point, "error", err)
	}

	data, err := json.Marshal(rep)
	if err != nil {
		s.logger.Error("failed to encode reply", "field", s.field, "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to send reply", "field", s.field, "rank", s.rank, "error", err)
	}
}

// Close deregisters the endpoint and stops serving.
func (s *Server[T]) Close(ctx context.Context) error {
	return errors.Join(
		s.registry.Deregister(ctx, s.field, s.rank),
		s.sub.Unsubscribe(),
	)
}
