package types

import "context"

// NextStep is the Schedule time meaning "the scheduler's next step".
const NextStep = -1.0

// Steppable is an activity that a Scheduler can run.
type Steppable interface {
	Step(ctx context.Context) error
}

// Agent is an object that can be both stored in a field and scheduled.
type Agent interface {
	Object
	Steppable
}

// Stopper cancels a repeating activity.
type Stopper interface {
	Stop()
}

// Schedule is the scheduling metadata carried with a migrating agent.
type Schedule struct {
	// Time is the next activation time, or NextStep.
	Time float64 `json:"time"`

	// Ordering breaks ties between activities scheduled for the same time.
	Ordering int `json:"ordering"`

	// Interval is the repeat interval. Zero means the agent runs once.
	Interval float64 `json:"interval,omitempty"`
}

// Once returns a schedule that runs an agent once at the next step.
func Once() Schedule {
	return Schedule{Time: NextStep}
}

// Repeating reports whether the schedule repeats.
func (s Schedule) Repeating() bool {
	return s.Interval > 0
}

// Scheduler holds and advances steppable activity. It is an external
// collaborator of the halo layer.
type Scheduler interface {
	// Time returns the current simulation time.
	Time() float64

	// ScheduleOnce runs s once at the next step.
	ScheduleOnce(s Steppable) error

	// ScheduleOnceAt runs s once at time t with the given ordering.
	ScheduleOnceAt(t float64, ordering int, s Steppable) error

	// ScheduleRepeating runs s at t and every interval thereafter until stopped.
	ScheduleRepeating(t float64, ordering int, s Steppable, interval float64) (Stopper, error)
}
