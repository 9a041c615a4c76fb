// Package testing provides test utilities for the fabric library.
//
// This package offers helpers for setting up test environments, particularly
// embedded NATS servers for integration testing, plus in-memory fakes of the
// fabric SPIs. It follows Go's convention of providing testing utilities in a
// dedicated package (similar to net/http/httptest).
//
// Key utilities:
//   - StartEmbeddedNATS: Single NATS server with JetStream
//   - CreateJetStreamKV, CreateJetStreamKVWithTTL: KV bucket creation
//   - FakeGroup: in-memory types.Group with manual event firing
//   - RecordingWriter: in-memory types.AssignmentWriter with failure injection
//
// Example usage:
//
//	import (
//	    "testing"
//	    fabrictest "github.com/arloliu/fabric/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    _, nc := fabrictest.StartEmbeddedNATS(t)
//	    // Use nc for your tests
//	}
package testing
