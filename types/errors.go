package types

import (
	"errors"
	"fmt"

	"github.com/eclab/mason-sub011/geom"
)

// Sentinel errors for the partitioning and halo engine.
//
// These errors provide type-safe error checking using errors.Is().
// Components wrap them with context using fmt.Errorf("%s: %w", msg, err).
//
// None of these conditions is recoverable by a single process: the run
// driver is expected to abort the whole distributed run.

// Taxonomy errors.
var (
	// ErrConfiguration is returned when the process count, field size or area
	// of interest cannot support the requested decomposition.
	ErrConfiguration = errors.New("configuration error")

	// ErrGeometry is returned when a geometric precondition is violated, such as
	// intersecting disjoint regions or splitting at a point outside a region.
	ErrGeometry = geom.ErrGeometry

	// ErrCapacity is returned when the partition-id pool is exhausted.
	ErrCapacity = errors.New("partition id pool exhausted")

	// ErrInvalidLocation is returned when an operation requires a locally owned
	// point or agent and the target is not local.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrUnreachable is returned when a remote process cannot be contacted.
	ErrUnreachable = errors.New("remote process unreachable")
)

// Configuration errors.
var (
	// ErrInvalidConfig is returned when a configuration value is malformed.
	ErrInvalidConfig = fmt.Errorf("%w: invalid configuration", ErrConfiguration)

	// ErrNotInitialized is returned when an operation needs an initialized partition.
	ErrNotInitialized = errors.New("partition not initialized")
)

// Communication errors.
var (
	// ErrNotMember is returned when a process requests a group it does not belong to.
	ErrNotMember = errors.New("process is not a member of the communicator")

	// ErrChecksumMismatch is returned when a received payload fails verification.
	ErrChecksumMismatch = errors.New("payload checksum mismatch")

	// ErrCommClosed is returned when a communicator is used after Close.
	ErrCommClosed = errors.New("communicator closed")

	// ErrInvalidRank is returned when a rank is outside the communicator.
	ErrInvalidRank = errors.New("invalid rank")

	// ErrPartsMismatch is returned when a collective receives the wrong number of parts.
	ErrPartsMismatch = errors.New("number of parts does not match communicator size")
)

// Field errors.
var (
	// ErrNoRemote is returned when a non-local write is attempted on a field
	// without a remote resolver.
	ErrNoRemote = fmt.Errorf("%w: no remote resolver configured", ErrUnreachable)
)

// Node errors.
var (
	// ErrNodeClosed is returned when a closed node is driven.
	ErrNodeClosed = errors.New("node closed")

	// ErrInvalidTransition is returned when an operation is attempted in a
	// node state that does not allow it, such as a nested synchronization.
	ErrInvalidTransition = errors.New("invalid node state transition")
)
