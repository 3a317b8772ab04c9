package mason

import (
	"github.com/eclab/mason-sub011/geom"
	"github.com/eclab/mason-sub011/types"
)

// Re-export types from the types and geom packages.
//
// Internal packages depend on types and geom only, never on the root
// package, so the aliases give users mason.Point, mason.Logger and so on
// without an import cycle.
type (
	Point      = geom.Point
	Region     = geom.Region
	FieldState = types.FieldState
	NodeState  = types.NodeState
	Schedule   = types.Schedule
)

// Re-export interfaces from the types package for convenience.
type (
	Object           = types.Object
	Agent            = types.Agent
	Communicator     = types.Communicator
	MetricsCollector = types.MetricsCollector
	Logger           = types.Logger
	Hooks            = types.Hooks
)

// Re-export state constants.
const (
	FieldUnsynchronized = types.FieldUnsynchronized
	FieldSynchronized   = types.FieldSynchronized

	NodeInit      = types.NodeInit
	NodeReady     = types.NodeReady
	NodeSyncing   = types.NodeSyncing
	NodeBalancing = types.NodeBalancing
	NodeClosed    = types.NodeClosed
)

// Storage is the storage contract of a halo field.
type Storage[T Object] = types.Storage[T]
