// Package group implements group membership on NATS JetStream KV.
//
// A group is a key prefix in a TTL bucket. Each joined member owns one key
// below "<group>.members" that its process keeps alive by rewriting it; the
// member with the lease under "<group>.leader" is the group's master.
//
// Observation combines a KV watcher with periodic polling (see internal/watch),
// and every listener event is delivered from the single monitor goroutine.
//
// Basic usage:
//
//	kv, _ := kvutil.EnsureBucket(ctx, js, kvutil.MembershipBucket("fabric-members", 6*time.Second), 3)
//	g := group.New(kv, keys.TaskGroup("orders"), group.Config{TTL: 6 * time.Second}, group.WithLogger(logger))
//	remove := g.AddListener(types.GroupListenerFunc(func(e types.GroupEvent) { ... }))
//	defer remove()
//	_ = g.Start(ctx)
//	m, err := g.Join(ctx, "w1", payload)
package group
