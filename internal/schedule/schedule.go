// Package schedule provides a minimal discrete-event scheduler implementing
// types.Scheduler, used by the examples, the node driver tests and the halo
// tests.
package schedule

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/eclab/mason-sub011/types"
)

// Scheduler runs steppable activities in time order. Activities due at the
// same time run by ascending ordering, then in scheduling order.
//
// Scheduler is not safe for concurrent use.
type Scheduler struct {
	time  float64
	seq   uint64
	queue events
}

// Compile-time assertion that Scheduler implements types.Scheduler.
var _ types.Scheduler = (*Scheduler)(nil)

// New creates a scheduler at time 0.
func New() *Scheduler {
	return &Scheduler{}
}

type event struct {
	time     float64
	ordering int
	seq      uint64
	activity types.Steppable
	interval float64
	stop     *stopper
}

type stopper struct {
	stopped bool
}

func (s *stopper) Stop() {
	s.stopped = true
}

type events []*event

func (e events) Len() int { return len(e) }

func (e events) Less(i, j int) bool {
	if e[i].time != e[j].time {
		return e[i].time < e[j].time
	}
	if e[i].ordering != e[j].ordering {
		return e[i].ordering < e[j].ordering
	}

	return e[i].seq < e[j].seq
}

func (e events) Swap(i, j int) { e[i], e[j] = e[j], e[i] }

func (e *events) Push(x any) { *e = append(*e, x.(*event)) }

func (e *events) Pop() any {
	old := *e
	n := len(old)
	ev := old[n-1]
	*e = old[:n-1]

	return ev
}

// Time returns the time of the last step.
func (s *Scheduler) Time() float64 {
	return s.time
}

// Len returns the number of pending activations.
func (s *Scheduler) Len() int {
	return len(s.queue)
}

// ScheduleOnce runs a once, one time unit after the current time.
func (s *Scheduler) ScheduleOnce(a types.Steppable) error {
	return s.ScheduleOnceAt(s.time+1, 0, a)
}

// ScheduleOnceAt runs a once at t.
func (s *Scheduler) ScheduleOnceAt(t float64, ordering int, a types.Steppable) error {
	return s.push(t, ordering, a, 0, nil)
}

// ScheduleRepeating runs a at t and then every interval until stopped.
func (s *Scheduler) ScheduleRepeating(t float64, ordering int, a types.Steppable, interval float64) (types.Stopper, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: repeat interval must be positive, got %v", types.ErrInvalidConfig, interval)
	}
	st := &stopper{}
	if err := s.push(t, ordering, a, interval, st); err != nil {
		return nil, err
	}

	return st, nil
}

func (s *Scheduler) push(t float64, ordering int, a types.Steppable, interval float64, st *stopper) error {
	if t < s.time {
		return fmt.Errorf("%w: time %v is before current time %v", types.ErrInvalidConfig, t, s.time)
	}
	s.seq++
	heap.Push(&s.queue, &event{time: t, ordering: ordering, seq: s.seq, activity: a, interval: interval, stop: st})

	return nil
}

// Step advances to the earliest pending time and runs every activity due
// then. It reports false when nothing is pending.
func (s *Scheduler) Step(ctx context.Context) (bool, error) {
	if len(s.queue) == 0 {
		return false, nil
	}
	s.time = s.queue[0].time

	var due []*event
	for len(s.queue) > 0 && s.queue[0].time == s.time {
		due = append(due, heap.Pop(&s.queue).(*event))
	}
	for _, ev := range due {
		if ev.stop != nil && ev.stop.stopped {
			continue
		}
		if err := ev.activity.Step(ctx); err != nil {
			return true, err
		}
		if ev.interval > 0 && !ev.stop.stopped {
			s.seq++
			ev.time += ev.interval
			ev.seq = s.seq
			heap.Push(&s.queue, ev)
		}
	}

	return true, nil
}
