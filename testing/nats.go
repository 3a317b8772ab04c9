package testing

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// StartEmbeddedNATS starts a JetStream-enabled NATS server on a random local
// port and returns it with one connected client. Both are shut down on
// cleanup.
//
// Example:
//
//	func TestHaloOverNATS(t *testing.T) {
//	    ns, _ := masontest.StartEmbeddedNATS(t)
//	    conns := masontest.ConnectRanks(t, ns, 4)
//	    ...
//	}
func StartEmbeddedNATS(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	if err != nil {
		t.Fatalf("embedded NATS server: %v", err)
	}
	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("embedded NATS server did not accept connections within 5s")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	return ns, Connect(t, ns)
}

// Connect opens one more client connection to ns, closed on cleanup.
func Connect(t *testing.T, ns *server.Server) *nats.Conn {
	t.Helper()

	nc, err := nats.Connect(ns.ClientURL(),
		nats.Name(t.Name()),
		nats.Timeout(2*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(3),
	)
	if err != nil {
		t.Fatalf("connect to embedded NATS server: %v", err)
	}
	t.Cleanup(nc.Close)

	return nc
}

// ConnectRanks opens one connection per rank, so every simulated process
// owns its subscriptions the way separate hosts would.
func ConnectRanks(t *testing.T, ns *server.Server, size int) []*nats.Conn {
	t.Helper()

	conns := make([]*nats.Conn, size)
	for r := range conns {
		conns[r] = Connect(t, ns)
	}

	return conns
}

// CreateJetStreamKV creates an in-memory KV bucket keeping one revision per
// key.
func CreateJetStreamKV(t *testing.T, nc *nats.Conn, bucket string) jetstream.KeyValue {
	t.Helper()

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("jetstream: %v", err)
	}

	kv, err := js.CreateKeyValue(t.Context(), jetstream.KeyValueConfig{
		Bucket:   bucket,
		History:  1,
		Storage:  jetstream.MemoryStorage,
		Replicas: 1,
	})
	if err != nil {
		t.Fatalf("create KV bucket %s: %v", bucket, err)
	}

	return kv
}
