// Package listener provides the built-in partition listeners.
//
// A partition listener does the per-partition work of a task worker. The task
// manager hands it the partitions removed from and added to the worker's
// assignment. Built-in listeners, selected by type tag with New:
//
//   - "log": records started partitions and logs every transition
//   - "template": renders the task definition per partition and stores each
//     rendered unit in a KV bucket
//   - "consumer": keeps one durable JetStream consumer per worker whose filter
//     subjects are the started partitions
package listener
