package comm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/eclab/mason-sub011/types"
)

// Envelope headers carried on every NATS message. The payload is the raw
// message body.
const (
	headerComm = "Mason-Comm"
	headerKind = "Mason-Kind"
	headerSeq  = "Mason-Seq"
	headerSrc  = "Mason-Src"
	headerSum  = "Mason-Sum"
)

const readyRetryInterval = 20 * time.Millisecond

type natsTransport struct {
	nc     *nats.Conn
	prefix string
	subs   []*nats.Subscription
}

func rankSubject(prefix string, rank int) string {
	return prefix + ".rank." + strconv.Itoa(rank)
}

func readySubject(prefix string, rank int) string {
	return prefix + ".ready." + strconv.Itoa(rank)
}

func (t *natsTransport) Send(_ context.Context, dst int, env Envelope) error {
	msg := nats.NewMsg(rankSubject(t.prefix, dst))
	msg.Header.Set(headerComm, env.Comm)
	msg.Header.Set(headerKind, string(env.Kind))
	msg.Header.Set(headerSeq, strconv.FormatUint(env.Seq, 10))
	msg.Header.Set(headerSrc, strconv.Itoa(env.Src))
	msg.Header.Set(headerSum, strconv.FormatUint(env.Sum, 16))
	msg.Data = env.Payload

	return t.nc.PublishMsg(msg)
}

func (t *natsTransport) Close() error {
	var errs []error
	for _, sub := range t.subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func parseEnvelope(msg *nats.Msg) (Envelope, error) {
	seq, err := strconv.ParseUint(msg.Header.Get(headerSeq), 10, 64)
	if err != nil {
		return Envelope{}, fmt.Errorf("bad %s header: %w", headerSeq, err)
	}
	src, err := strconv.Atoi(msg.Header.Get(headerSrc))
	if err != nil {
		return Envelope{}, fmt.Errorf("bad %s header: %w", headerSrc, err)
	}
	sum, err := strconv.ParseUint(msg.Header.Get(headerSum), 16, 64)
	if err != nil {
		return Envelope{}, fmt.Errorf("bad %s header: %w", headerSum, err)
	}
	kind := msg.Header.Get(headerKind)
	if len(kind) != 1 {
		return Envelope{}, fmt.Errorf("bad %s header %q", headerKind, kind)
	}

	return Envelope{
		Comm:    msg.Header.Get(headerComm),
		Kind:    kind[0],
		Seq:     seq,
		Src:     src,
		Sum:     sum,
		Payload: msg.Data,
	}, nil
}

// NewNATS creates the root communicator of rank in a run of size processes
// connected through nc. Every rank of the run must use the same subject
// prefix.
//
// Core NATS drops messages published before the receiver subscribes, so
// NewNATS subscribes first and then blocks until every other rank answers a
// readiness probe. All ranks must therefore be started concurrently.
//
// Parameters:
//   - ctx: Bounds the readiness wait
//   - nc: Connected NATS client
//   - prefix: Subject prefix shared by the run, e.g. "mason.run42"
//   - rank: This process's rank in [0, size)
//   - size: Number of processes in the run
//
// Returns:
//   - *Comm: The root communicator
//   - error: Subscription failure or ctx expiry while waiting for peers
func NewNATS(ctx context.Context, nc *nats.Conn, prefix string, rank, size int, opts ...Option) (*Comm, error) {
	if nc == nil {
		return nil, fmt.Errorf("%w: NATS connection is required", types.ErrInvalidConfig)
	}
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("%w: rank %d outside [0, %d)", types.ErrInvalidRank, rank, size)
	}

	o := applyOptions(opts)
	box := newMailbox()
	t := &natsTransport{nc: nc, prefix: prefix}

	dataSub, err := nc.Subscribe(rankSubject(prefix, rank), func(msg *nats.Msg) {
		env, err := parseEnvelope(msg)
		if err != nil {
			o.logger.Error("dropping malformed envelope", "subject", msg.Subject, "error", err)
			return
		}
		box.deliver(env)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe rank %d: %w", rank, err)
	}
	t.subs = append(t.subs, dataSub)

	readySub, err := nc.Subscribe(readySubject(prefix, rank), func(msg *nats.Msg) {
		_ = msg.Respond(nil)
	})
	if err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("subscribe readiness for rank %d: %w", rank, err)
	}
	t.subs = append(t.subs, readySub)

	if err := nc.Flush(); err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("flush subscriptions: %w", err)
	}

	if err := waitForPeers(ctx, nc, prefix, rank, size); err != nil {
		_ = t.Close()
		return nil, err
	}
	o.logger.Debug("communicator ready", "rank", rank, "size", size, "prefix", prefix)

	members := make([]int, size)
	for i := range members {
		members[i] = i
	}
	ep := &endpoint{rank: rank, transport: t, box: box, logger: o.logger, metrics: o.metrics}

	return newComm("world", rank, members, ep), nil
}

func waitForPeers(ctx context.Context, nc *nats.Conn, prefix string, rank, size int) error {
	for peer := range size {
		if peer == rank {
			continue
		}
		for {
			probeCtx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
			_, err := nc.RequestWithContext(probeCtx, readySubject(prefix, peer), nil)
			cancel()
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return fmt.Errorf("%w: rank %d not ready: %w", types.ErrUnreachable, peer, ctx.Err())
			}

			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: rank %d not ready: %w", types.ErrUnreachable, peer, ctx.Err())
			case <-time.After(readyRetryInterval):
			}
		}
	}

	return nil
}
