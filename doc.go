// Package fabric coordinates task workers and service endpoints over NATS
// JetStream Key-Value.
//
// Workers of a task register in a watched group. The group master assigns the
// task's partitions to the registered workers with a balancing policy and
// writes one worker node record per worker; each worker watches its own
// record and starts or stops partitions on its PartitionListener as the
// record changes. Service endpoints registered in a group are selected with
// a load-balance strategy (package loadbalance) and failed over with a
// target selector (package selector).
//
// # Quick Start
//
//	cfg := fabric.DefaultConfig()
//	cfg.TaskID = "orders"
//	cfg.Policy = policy.TypeConsistentHash
//
//	src := source.NewStatic([]fabric.Partition{{ID: "p1"}, {ID: "p2"}})
//	mgr, err := fabric.NewTaskManager(&cfg, nc, src, fabric.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := mgr.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Stop(context.Background())
//
// # Architecture
//
// A TaskManager moves through a single state progression:
//
//	Created → Started → Stopped
//
// Group, partition source and own-record notifications are queued onto one
// executor goroutine. Rebalance requests are dropped when the queue is full,
// since any queued rebalance recomputes the complete assignment from the
// current partitions and members. Assignment changes are never dropped.
//
// The assignment is recomputed from scratch on every rebalance and is a
// total function of the sorted partition and member ids, so every master
// computes the same result for the same inputs.
//
// See cmd/fabric-task for a runnable worker configured from YAML.
package fabric
