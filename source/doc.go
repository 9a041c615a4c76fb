// Package source provides built-in partition source implementations.
//
// Partition sources discover available partitions for assignment.
// The package includes:
//
//   - Static: In-memory list, changed with Update
//   - KV: Child keys of a prefix in a NATS KV bucket, each holding a JSON object
//
// Custom sources can be implemented by satisfying the types.PartitionSource interface.
package source
