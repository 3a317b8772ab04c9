package halo

import (
	"context"
	"fmt"

	"github.com/eclab/mason-sub011/geom"
	"github.com/eclab/mason-sub011/partition"
	"github.com/eclab/mason-sub011/types"
)

// AgentField is a halo field whose objects are also scheduled. An agent is
// stored and scheduled only by the process owning its location; agents
// crossing a process boundary travel through the field's Transporter
// together with their scheduling metadata.
type AgentField[A types.Agent] struct {
	*Field[A]

	scheduler   types.Scheduler
	transporter *Transporter[A]
	entries     map[int64]*entry[A]

	// locations of local agents captured at PreCommit
	located map[int64]geom.Point
}

// entry is the activity handed to the scheduler for one agent. A stopped
// entry skips its agent, which lets a process cancel an agent it no longer
// owns even when the scheduler has no cancellation for one-shot activities.
type entry[A types.Agent] struct {
	agent    A
	schedule types.Schedule
	stopper  types.Stopper
	stopped  bool
	done     bool
}

func (e *entry[A]) Step(ctx context.Context) error {
	if e.stopped {
		return nil
	}
	if !e.schedule.Repeating() {
		e.done = true
	}

	return e.agent.Step(ctx)
}

func (e *entry[A]) stop() {
	e.stopped = true
	if e.stopper != nil {
		e.stopper.Stop()
	}
}

// Compile-time assertion that AgentField implements RebalanceObserver.
var _ types.RebalanceObserver = (*AgentField[types.Agent])(nil)

// NewAgentField creates an agent field and registers it with the manager as a
// rebalance observer.
func NewAgentField[A types.Agent](
	name string,
	mgr *partition.Manager,
	storage types.Storage[A],
	scheduler types.Scheduler,
	opts ...Option,
) (*AgentField[A], error) {
	if scheduler == nil {
		return nil, fmt.Errorf("%w: agent field %q needs a scheduler", types.ErrInvalidConfig, name)
	}
	f, err := newField(name, mgr, storage, opts...)
	if err != nil {
		return nil, err
	}

	af := &AgentField[A]{
		Field:       f,
		scheduler:   scheduler,
		transporter: NewTransporter[A](name, mgr.World(), opts...),
		entries:     make(map[int64]*entry[A]),
	}
	mgr.RegisterObserver(af)

	return af, nil
}

// Transporter returns the field's transporter.
func (f *AgentField[A]) Transporter() *Transporter[A] {
	return f.transporter
}

// Scheduled returns the schedule of a locally scheduled agent. A one-shot
// agent that has already stepped is no longer scheduled.
func (f *AgentField[A]) Scheduled(id int64) (types.Schedule, bool) {
	e, ok := f.entries[id]
	if !ok || e.stopped || e.done {
		return types.Schedule{}, false
	}

	return e.schedule, true
}

// AddAgent places agent at p and schedules it with sched. If p is owned by
// another process the agent migrates there at the next Sync.
func (f *AgentField[A]) AddAgent(ctx context.Context, p geom.Point, agent A, sched types.Schedule) error {
	p = f.wrap(p)
	if !f.local.Contains(p) {
		return f.migrate(p, agent, sched)
	}

	f.markDirty()
	if err := f.storage.SetLocation(agent, p); err != nil {
		return err
	}

	return f.schedule(agent, sched)
}

// MoveAgent moves a locally owned agent and schedules it once for the next
// step, at the destination if it is owned by another process. A repeating
// agent moving locally keeps its schedule.
//
// Returns an error wrapping types.ErrInvalidLocation if from is not local.
func (f *AgentField[A]) MoveAgent(ctx context.Context, from, to geom.Point, agent A) error {
	sched := types.Once()
	if e, ok := f.entries[agent.ObjectID()]; ok && e.schedule.Repeating() && !e.stopped {
		if f.IsLocal(to) {
			if !f.IsLocal(from) {
				return fmt.Errorf("%w: agent %d moved from %v, not owned by rank %d",
					types.ErrInvalidLocation, agent.ObjectID(), from, f.mgr.Rank())
			}
			f.markDirty()

			return f.storage.SetLocation(agent, f.wrap(to))
		}
		sched = types.Schedule{
			Time:     f.scheduler.Time() + e.schedule.Interval,
			Ordering: e.schedule.Ordering,
			Interval: e.schedule.Interval,
		}
	}

	return f.MoveAgentAt(ctx, from, to, agent, sched)
}

// MoveAgentAt moves a locally owned agent and schedules it with sched,
// replacing any previous schedule.
//
// Returns an error wrapping types.ErrInvalidLocation if from is not local.
func (f *AgentField[A]) MoveAgentAt(ctx context.Context, from, to geom.Point, agent A, sched types.Schedule) error {
	if !f.IsLocal(from) {
		return fmt.Errorf("%w: agent %d moved from %v, not owned by rank %d",
			types.ErrInvalidLocation, agent.ObjectID(), from, f.mgr.Rank())
	}

	f.markDirty()
	f.storage.RemoveObject(agent)
	f.StopAgent(agent)

	return f.AddAgent(ctx, to, agent, sched)
}

// StopAgent cancels the local schedule of agent. It reports whether the agent
// still had a pending activity.
func (f *AgentField[A]) StopAgent(agent A) bool {
	e, ok := f.entries[agent.ObjectID()]
	if !ok {
		return false
	}
	pending := !e.stopped && !e.done
	e.stop()
	delete(f.entries, agent.ObjectID())

	return pending
}

// RemoveAgent stops agent and removes it from local storage.
func (f *AgentField[A]) RemoveAgent(agent A) {
	f.StopAgent(agent)
	if f.storage.RemoveObject(agent) {
		f.markDirty()
	}
}

// Sync delivers queued migrations and integrates the agents that arrived:
// each is stored at its destination point and scheduled. An arrival whose
// point is no longer local is forwarded to its current owner at the next Sync.
//
// Sync is a world collective.
func (f *AgentField[A]) Sync(ctx context.Context) error {
	arrivals, err := f.transporter.Flush(ctx)
	if err != nil {
		return err
	}

	for _, m := range arrivals {
		if err := f.AddAgent(ctx, m.To, m.Agent, m.Schedule); err != nil {
			return fmt.Errorf("field %q: failed to integrate agent %d: %w", f.name, m.Agent.ObjectID(), err)
		}
	}

	return nil
}

// PreCommit applies queued remote writes, records where every locally
// scheduled agent sits before the partition changes, then collects the group
// storage.
func (f *AgentField[A]) PreCommit(ctx context.Context, level int) error {
	if _, err := f.ApplyRemote(); err != nil {
		return err
	}
	f.located = f.storage.ObjectsIn(f.local)

	return f.Field.PreCommit(ctx, level)
}

// PostCommit reloads the field, redistributes storage and hands every
// scheduled agent that is no longer local to the transporter. The storage
// copy already reached the new owner; the migration carries its schedule.
func (f *AgentField[A]) PostCommit(ctx context.Context, level int) error {
	located := f.located
	f.located = nil
	if err := f.Field.PostCommit(ctx, level); err != nil {
		return err
	}

	moved := 0
	for id, e := range f.entries {
		if e.done || e.stopped {
			delete(f.entries, id)
			continue
		}
		p, ok := located[id]
		if !ok || f.local.Contains(p) {
			continue
		}
		e.stop()
		delete(f.entries, id)

		sched := e.schedule
		if sched.Repeating() {
			sched.Time = f.scheduler.Time() + sched.Interval
		}
		if err := f.migrate(p, e.agent, sched); err != nil {
			return err
		}
		moved++
	}

	if moved > 0 {
		f.logger.Info("agents displaced by rebalance", "field", f.name, "rank", f.mgr.Rank(), "level", level, "count", moved)
	}

	return nil
}

func (f *AgentField[A]) migrate(p geom.Point, agent A, sched types.Schedule) error {
	rank, err := f.mgr.RankOf(p)
	if err != nil {
		return err
	}

	return f.transporter.Migrate(rank, Migration[A]{To: p, Agent: agent, Schedule: sched})
}

func (f *AgentField[A]) schedule(agent A, sched types.Schedule) error {
	if old, ok := f.entries[agent.ObjectID()]; ok {
		old.stop()
	}

	e := &entry[A]{agent: agent, schedule: sched}
	var err error
	switch {
	case sched.Repeating():
		// a repeating agent due at the next step starts one time unit from now
		t := sched.Time
		if t == types.NextStep {
			t = f.scheduler.Time() + 1
		}
		e.stopper, err = f.scheduler.ScheduleRepeating(t, sched.Ordering, e, sched.Interval)
	case sched.Time == types.NextStep:
		err = f.scheduler.ScheduleOnce(e)
	default:
		err = f.scheduler.ScheduleOnceAt(sched.Time, sched.Ordering, e)
	}
	if err != nil {
		return fmt.Errorf("field %q: failed to schedule agent %d: %w", f.name, agent.ObjectID(), err)
	}
	f.entries[agent.ObjectID()] = e

	return nil
}
