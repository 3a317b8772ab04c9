// Package types provides core type definitions and interfaces shared by the
// partitioning, communication and halo packages.
//
// Keeping these types in a separate package avoids import cycles between the
// root package and its implementations.
//
// Key types:
//   - Communicator, NeighborCommunicator: message-passing substrate
//   - Storage, Object: local per-process field storage
//   - Scheduler, Steppable, Agent, Schedule: scheduling collaborator
//   - RebalanceObserver: pre/post-commit notification around rebalancing
//   - RemoteOp, RemoteHandle, RemoteResolver: writes routed to other processes
//   - Logger, MetricsCollector: observability
package types
