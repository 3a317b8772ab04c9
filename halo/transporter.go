package halo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/eclab/mason-sub011/geom"
	"github.com/eclab/mason-sub011/types"
)

// Migration is an agent in transit to the process owning To, with the
// scheduling metadata the destination re-registers it with.
type Migration[A types.Agent] struct {
	To       geom.Point     `json:"to"`
	Agent    A              `json:"agent"`
	Schedule types.Schedule `json:"schedule"`
}

// Transporter batches outgoing agent migrations per destination and
// delivers them in one world all-to-all round per Flush.
type Transporter[A types.Agent] struct {
	field   string
	world   types.Communicator
	outbox  [][]Migration[A]
	pending int

	logger  types.Logger
	metrics types.MetricsCollector
}

// NewTransporter creates a transporter for the named field over world.
func NewTransporter[A types.Agent](field string, world types.Communicator, opts ...Option) *Transporter[A] {
	o := applyOptions(opts)

	return &Transporter[A]{
		field:   field,
		world:   world,
		outbox:  make([][]Migration[A], world.Size()),
		logger:  o.logger,
		metrics: o.metrics,
	}
}

// Migrate queues m for delivery to rank at the next Flush.
func (t *Transporter[A]) Migrate(rank int, m Migration[A]) error {
	if rank < 0 || rank >= len(t.outbox) {
		return fmt.Errorf("%w: migration to rank %d of %d", types.ErrInvalidRank, rank, len(t.outbox))
	}
	t.outbox[rank] = append(t.outbox[rank], m)
	t.pending++

	return nil
}

// Pending returns the number of queued migrations.
func (t *Transporter[A]) Pending() int {
	return t.pending
}

// Flush delivers every queued migration and returns the migrations sent to
// the calling process, ordered by source rank. Flush is a world collective;
// every process calls it even with nothing queued.
func (t *Transporter[A]) Flush(ctx context.Context) ([]Migration[A], error) {
	parts := make([][]byte, len(t.outbox))
	for rank, batch := range t.outbox {
		if len(batch) == 0 {
			continue
		}
		data, err := json.Marshal(batch)
		if err != nil {
			return nil, fmt.Errorf("field %q: failed to encode migrations for rank %d: %w", t.field, rank, err)
		}
		parts[rank] = data
	}
	sent := t.pending

	got, err := t.world.AllToAll(ctx, parts)
	if err != nil {
		return nil, fmt.Errorf("field %q: migration exchange failed: %w", t.field, err)
	}
	for rank := range t.outbox {
		t.outbox[rank] = nil
	}
	t.pending = 0

	var arrivals []Migration[A]
	for rank, data := range got {
		if len(data) == 0 {
			continue
		}
		var batch []Migration[A]
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("field %q: failed to decode migrations from rank %d: %w", t.field, rank, err)
		}
		arrivals = append(arrivals, batch...)
	}

	t.metrics.RecordMigration(t.field, sent, len(arrivals))
	if sent > 0 || len(arrivals) > 0 {
		t.logger.Debug("agents migrated", "field", t.field, "rank", t.world.Rank(), "sent", sent, "received", len(arrivals))
	}

	return arrivals, nil
}
