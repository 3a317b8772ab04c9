package mason

import "github.com/eclab/mason-sub011/types"

// Sentinel errors re-exported from the types package for errors.Is checks
// without importing it.
var (
	ErrConfiguration     = types.ErrConfiguration
	ErrInvalidConfig     = types.ErrInvalidConfig
	ErrGeometry          = types.ErrGeometry
	ErrCapacity          = types.ErrCapacity
	ErrInvalidLocation   = types.ErrInvalidLocation
	ErrUnreachable       = types.ErrUnreachable
	ErrNoRemote          = types.ErrNoRemote
	ErrNotInitialized    = types.ErrNotInitialized
	ErrInvalidRank       = types.ErrInvalidRank
	ErrCommClosed        = types.ErrCommClosed
	ErrNodeClosed        = types.ErrNodeClosed
	ErrInvalidTransition = types.ErrInvalidTransition
)
