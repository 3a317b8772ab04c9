// Package testing provides helpers for exercising distributed runs inside a
// single test binary.
//
// Key utilities:
//   - StartEmbeddedNATS: in-process NATS server with JetStream
//   - Connect, ConnectRanks: extra client connections, one per simulated process
//   - CreateJetStreamKV: in-memory KV bucket
//   - RunRanks: drive one goroutine per rank with a shared deadline
//
// Example usage:
//
//	import (
//	    "testing"
//	    masontest "github.com/eclab/mason-sub011/testing"
//	)
//
//	func TestExchange(t *testing.T) {
//	    _, nc := masontest.StartEmbeddedNATS(t)
//	    ...
//	}
package testing
