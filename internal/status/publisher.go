// Package status publishes each process's view of the partition to a
// JetStream KV bucket, so operators and tools can see which process owns
// which region without joining the run.
//
// Keys have the form "<prefix>.<rank>". Values are JSON Status records.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/eclab/mason-sub011/geom"
)

// Status is one process's published view.
type Status struct {
	Rank    int         `json:"rank"`
	State   string      `json:"state"`
	Region  geom.Region `json:"region"`
	Version int         `json:"version"`
	Steps   int         `json:"steps"`
	Load    float64     `json:"load"`
	Updated time.Time   `json:"updated"`
}

// Publisher writes the status of one rank.
type Publisher struct {
	kv     jetstream.KeyValue
	prefix string
	rank   int
}

// New creates a publisher for rank.
//
// Example:
//
//	p := status.New(kv, "diffusion", rank)
//	err := p.Publish(ctx, status.Status{State: "Ready", Region: mgr.LocalRegion()})
func New(kv jetstream.KeyValue, prefix string, rank int) *Publisher {
	return &Publisher{kv: kv, prefix: prefix, rank: rank}
}

// Publish writes s under the publisher's key. Rank and Updated are set by
// the publisher.
func (p *Publisher) Publish(ctx context.Context, s Status) error {
	s.Rank = p.rank
	s.Updated = time.Now().UTC()

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode status of rank %d: %w", p.rank, err)
	}
	if _, err := p.kv.Put(ctx, key(p.prefix, p.rank), data); err != nil {
		return fmt.Errorf("failed to publish status of rank %d: %w", p.rank, err)
	}

	return nil
}

// Delete removes the published status.
func (p *Publisher) Delete(ctx context.Context) error {
	err := p.kv.Delete(ctx, key(p.prefix, p.rank))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete status of rank %d: %w", p.rank, err)
	}

	return nil
}

// List returns every status published under prefix, ordered by rank.
func List(ctx context.Context, kv jetstream.KeyValue, prefix string) ([]Status, error) {
	lister, err := kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list status keys: %w", err)
	}
	defer lister.Stop() //nolint:errcheck // listing is complete or abandoned

	var out []Status
	for k := range lister.Keys() {
		if !strings.HasPrefix(k, prefix+".") {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimPrefix(k, prefix+".")); err != nil {
			continue
		}

		entry, err := kv.Get(ctx, k)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read status %s: %w", k, err)
		}

		var s Status
		if err := json.Unmarshal(entry.Value(), &s); err != nil {
			return nil, fmt.Errorf("failed to decode status %s: %w", k, err)
		}
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b Status) int { return a.Rank - b.Rank })

	return out, nil
}

func key(prefix string, rank int) string {
	return prefix + "." + strconv.Itoa(rank)
}
