package testing

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// StartEmbeddedNATS starts an embedded NATS server with JetStream enabled for testing.
//
// The server runs in-process on a random port and stores data in a temporary
// directory that is removed when the test completes. The server and the returned
// connection are shut down via t.Cleanup.
//
// Parameters:
//   - t: Testing context for logging and cleanup
//
// Returns:
//   - *server.Server: The embedded NATS server instance
//   - *nats.Conn: Connected NATS client (closed automatically on test completion)
//
// Example:
//
//	func TestMyComponent(t *testing.T) {
//	    _, nc := fabrictest.StartEmbeddedNATS(t)
//	    // Use nc for your tests
//	}
func StartEmbeddedNATS(t testing.TB) (*server.Server, *nats.Conn) {
	t.Helper()

	ns := startServer(t, &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
	})

	nc, err := nats.Connect(ns.ClientURL(),
		nats.Timeout(2*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(50*time.Millisecond),
	)
	if err != nil {
		ns.Shutdown()
		t.Fatalf("Failed to connect to embedded NATS server: %v", err)
	}

	t.Cleanup(func() {
		nc.Close()
	})

	return ns, nc
}

// RestartEmbeddedNATS shuts ns down if it is still running and starts a new
// server on the same port and store directory. Connections returned by
// StartEmbeddedNATS reconnect to it; file-backed buckets survive the restart,
// memory-backed ones do not.
//
// Example:
//
//	srv, nc := fabrictest.StartEmbeddedNATS(t)
//	srv.Shutdown()
//	// observe the outage
//	srv = fabrictest.RestartEmbeddedNATS(t, srv)
func RestartEmbeddedNATS(t testing.TB, ns *server.Server) *server.Server {
	t.Helper()

	v, ok := serverOptions.Load(ns)
	if !ok {
		t.Fatal("RestartEmbeddedNATS: server was not started by StartEmbeddedNATS")
	}
	ns.Shutdown()
	ns.WaitForShutdown()

	opts := *v.(*server.Options)

	return startServer(t, &opts)
}

// serverOptions keeps the resolved options of every started server for restarts.
var serverOptions sync.Map

func startServer(t testing.TB, opts *server.Options) *server.Server {
	t.Helper()

	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("Failed to create embedded NATS server: %v", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("Embedded NATS server not ready within timeout")
	}

	// pin the port picked for Port: -1 so a restart binds the same one
	resolved := *opts
	resolved.Port = ns.Addr().(*net.TCPAddr).Port
	serverOptions.Store(ns, &resolved)

	t.Cleanup(func() {
		serverOptions.Delete(ns)
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	return ns
}

// JetStream returns a JetStream context for nc, failing the test on error.
func JetStream(t testing.TB, nc *nats.Conn) jetstream.JetStream {
	t.Helper()

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("Failed to get JetStream context: %v", err)
	}

	return js
}

// CreateJetStreamKV creates a persistent in-memory KV bucket for testing.
//
// Entries in the bucket never expire, matching the registry bucket that holds
// worker node records and partition definitions.
//
// Example:
//
//	kv := fabrictest.CreateJetStreamKV(t, nc, "fabric-registry")
//	_, err := kv.Put(ctx, "partitions.orders.p1", []byte(`{}`))
func CreateJetStreamKV(t testing.TB, nc *nats.Conn, bucketName string) jetstream.KeyValue {
	t.Helper()

	return CreateJetStreamKVWithTTL(t, nc, bucketName, 0)
}

// CreateJetStreamKVWithTTL creates an in-memory KV bucket whose entries expire
// after ttl, matching the membership bucket. A zero ttl disables expiry.
func CreateJetStreamKVWithTTL(t testing.TB, nc *nats.Conn, bucketName string, ttl time.Duration) jetstream.KeyValue {
	t.Helper()

	js := JetStream(t, nc)
	kv, err := js.CreateKeyValue(t.Context(), jetstream.KeyValueConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Test KV bucket: %s", bucketName),
		TTL:         ttl,
		History:     1,
		Storage:     jetstream.MemoryStorage,
		Replicas:    1,
	})
	if err != nil {
		t.Fatalf("Failed to create KV bucket %s: %v", bucketName, err)
	}

	return kv
}
