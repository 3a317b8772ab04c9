// Package mason runs a spatial simulation field across a set of processes.
//
// The field, an integer grid in D dimensions, optionally toroidal, is split by
// a partition tree into one rectangular region per process. Each process stores
// its region plus a halo of width AreaOfInterest and refreshes the halo from
// its neighbors at explicit synchronization points. Agents move between
// processes with their schedules, and a load balancer periodically shifts the
// tree's split origins toward the load-weighted centroid of each group.
//
// # Quick Start
//
// Four processes over NATS, one per host:
//
//	cfg := mason.DefaultConfig()
//	node, err := mason.Connect(ctx, cfg, nc, rank)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close(context.Background())
//
//	sched := schedule.New()
//	walkers, err := mason.NewAgentField[*Walker](ctx, node, "walkers",
//	    storage.NewObjectGrid[*Walker](node.LocalRegion()), sched)
//
//	for range steps {
//	    sched.Step(ctx)
//	    node.Step(ctx, load())
//	}
//
// In tests the same code runs in one process on comm.NewLocalCluster with
// NewNode instead of Connect.
//
// # Architecture
//
//   - geom: points and half-open regions
//   - partition: the replicated partition tree, groups and neighbor topology
//   - comm: point-to-point messaging and collectives, in-process or over NATS
//   - halo: halo fields, agent fields and the agent transporter
//   - remote: request/reply writes into storage owned by another process
//   - storage: the default grid storage
//
// A node moves through:
//
//	Init → Ready ⇄ Syncing
//	       Ready ⇄ Balancing
//	any → Closed
//
// Every Sync, Balance and Step is collective: all processes call them in the
// same order or the run stalls.
package mason
