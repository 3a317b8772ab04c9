package comm

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/eclab/mason-sub011/types"
)

// Barrier blocks until every member has entered the barrier.
//
// Members report to rank 0, which releases everyone once all have arrived.
func (c *Comm) Barrier(ctx context.Context) error {
	defer c.observe("barrier", time.Now())
	seq := c.next()

	if c.rank != 0 {
		if err := c.send(ctx, 0, kindCollective, seq, nil); err != nil {
			return err
		}
		_, err := c.recv(ctx, 0, kindCollective, seq)

		return err
	}

	for r := 1; r < c.Size(); r++ {
		if _, err := c.recv(ctx, r, kindCollective, seq); err != nil {
			return err
		}
	}
	for r := 1; r < c.Size(); r++ {
		if err := c.send(ctx, r, kindCollective, seq, nil); err != nil {
			return err
		}
	}

	return nil
}

// Bcast distributes root's data to every member.
func (c *Comm) Bcast(ctx context.Context, root int, data []byte) ([]byte, error) {
	if err := c.checkRank(root); err != nil {
		return nil, err
	}
	defer c.observe("bcast", time.Now())
	seq := c.next()

	if c.rank != root {
		return c.recv(ctx, root, kindCollective, seq)
	}
	for r := range c.Size() {
		if r == root {
			continue
		}
		if err := c.send(ctx, r, kindCollective, seq, data); err != nil {
			return nil, err
		}
	}

	return data, nil
}

// Gather collects every member's data at root, ordered by rank.
func (c *Comm) Gather(ctx context.Context, root int, data []byte) ([][]byte, error) {
	if err := c.checkRank(root); err != nil {
		return nil, err
	}
	defer c.observe("gather", time.Now())
	seq := c.next()

	if c.rank != root {
		return nil, c.send(ctx, root, kindCollective, seq, data)
	}

	out := make([][]byte, c.Size())
	for r := range c.Size() {
		if r == root {
			out[r] = data
			continue
		}
		part, err := c.recv(ctx, r, kindCollective, seq)
		if err != nil {
			return nil, err
		}
		out[r] = part
	}

	return out, nil
}

// Scatter sends parts[i] from root to member i.
func (c *Comm) Scatter(ctx context.Context, root int, parts [][]byte) ([]byte, error) {
	if err := c.checkRank(root); err != nil {
		return nil, err
	}
	defer c.observe("scatter", time.Now())
	seq := c.next()

	if c.rank != root {
		return c.recv(ctx, root, kindCollective, seq)
	}
	if len(parts) != c.Size() {
		return nil, fmt.Errorf("%w: scatter got %d parts for %d members", types.ErrPartsMismatch, len(parts), c.Size())
	}
	for r := range c.Size() {
		if r == root {
			continue
		}
		if err := c.send(ctx, r, kindCollective, seq, parts[r]); err != nil {
			return nil, err
		}
	}

	return parts[root], nil
}

// AllGather returns every member's data on every member, ordered by rank.
func (c *Comm) AllGather(ctx context.Context, data []byte) ([][]byte, error) {
	defer c.observe("all_gather", time.Now())
	seq := c.next()

	for r := range c.Size() {
		if r == c.rank {
			continue
		}
		if err := c.send(ctx, r, kindCollective, seq, data); err != nil {
			return nil, err
		}
	}

	out := make([][]byte, c.Size())
	for r := range c.Size() {
		if r == c.rank {
			out[r] = data
			continue
		}
		part, err := c.recv(ctx, r, kindCollective, seq)
		if err != nil {
			return nil, err
		}
		out[r] = part
	}

	return out, nil
}

// AllToAll sends parts[i] to member i and returns the parts received, indexed
// by source rank.
func (c *Comm) AllToAll(ctx context.Context, parts [][]byte) ([][]byte, error) {
	if len(parts) != c.Size() {
		return nil, fmt.Errorf("%w: all-to-all got %d parts for %d members", types.ErrPartsMismatch, len(parts), c.Size())
	}
	defer c.observe("all_to_all", time.Now())
	seq := c.next()

	for r := range c.Size() {
		if r == c.rank {
			continue
		}
		if err := c.send(ctx, r, kindCollective, seq, parts[r]); err != nil {
			return nil, err
		}
	}

	out := make([][]byte, c.Size())
	for r := range c.Size() {
		if r == c.rank {
			out[r] = parts[r]
			continue
		}
		part, err := c.recv(ctx, r, kindCollective, seq)
		if err != nil {
			return nil, err
		}
		out[r] = part
	}

	return out, nil
}

// ReduceSum sums vals element-wise at root. All members must pass vectors of
// the same length.
func (c *Comm) ReduceSum(ctx context.Context, root int, vals []float64) ([]float64, error) {
	parts, err := c.Gather(ctx, root, encodeFloats(vals))
	if err != nil || c.rank != root {
		return nil, err
	}

	sum := make([]float64, len(vals))
	for r, part := range parts {
		v, err := decodeFloats(part)
		if err != nil {
			return nil, fmt.Errorf("reduce from rank %d: %w", r, err)
		}
		if len(v) != len(sum) {
			return nil, fmt.Errorf("%w: rank %d sent %d values, want %d", types.ErrPartsMismatch, r, len(v), len(sum))
		}
		for i := range sum {
			sum[i] += v[i]
		}
	}

	return sum, nil
}

func encodeFloats(vals []float64) []byte {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}

	return buf
}

func decodeFloats(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("float payload of %d bytes is not a multiple of 8", len(buf))
	}
	vals := make([]float64, len(buf)/8)
	for i := range vals {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}

	return vals, nil
}
