package comm

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/zeebo/xxh3"

	"github.com/eclab/mason-sub011/types"
)

// Envelope is one message on the wire.
//
// Messages are matched to receives by (Comm, Kind, Seq, Src), never by
// arrival order, so transports are free to reorder deliveries.
type Envelope struct {
	Comm    string
	Kind    byte
	Seq     uint64
	Src     int
	Sum     uint64
	Payload []byte
}

const (
	kindCollective byte = 'c'
	kindP2P        byte = 'p'
)

func (e Envelope) key() string {
	return slotKey(e.Comm, e.Kind, e.Seq, e.Src)
}

func slotKey(comm string, kind byte, seq uint64, src int) string {
	var b strings.Builder
	b.Grow(len(comm) + 24)
	b.WriteString(comm)
	b.WriteByte('|')
	b.WriteByte(kind)
	b.WriteByte('|')
	b.WriteString(strconv.FormatUint(seq, 10))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(src))

	return b.String()
}

func seal(env Envelope) Envelope {
	env.Sum = xxh3.Hash(env.Payload)

	return env
}

type delivery struct {
	data []byte
	err  error
}

// mailbox holds messages delivered to one process until they are received.
//
// Every slot key is used by exactly one message, so each slot is a channel
// with capacity one created by whichever side arrives first.
type mailbox struct {
	slots  *xsync.Map[string, chan delivery]
	closed chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		slots:  xsync.NewMap[string, chan delivery](),
		closed: make(chan struct{}),
	}
}

func (m *mailbox) slot(key string) chan delivery {
	ch, _ := m.slots.LoadOrStore(key, make(chan delivery, 1))

	return ch
}

// deliver verifies env and stores it for the matching receive.
func (m *mailbox) deliver(env Envelope) {
	d := delivery{data: env.Payload}
	if sum := xxh3.Hash(env.Payload); sum != env.Sum {
		d = delivery{err: fmt.Errorf("%w: message %s from rank %d", types.ErrChecksumMismatch, env.key(), env.Src)}
	}

	select {
	case m.slot(env.key()) <- d:
	default:
		// a duplicate delivery of an already buffered message; keep the first
	}
}

// take waits for the message stored under key.
func (m *mailbox) take(ctx context.Context, key string) ([]byte, error) {
	ch := m.slot(key)
	select {
	case d := <-ch:
		m.slots.Delete(key)
		return d.data, d.err
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for %s: %w", key, ctx.Err())
	case <-m.closed:
		return nil, types.ErrCommClosed
	}
}

func (m *mailbox) close() {
	select {
	case <-m.closed:
	default:
		close(m.closed)
	}
}
