// Package heartbeat keeps ephemeral group member registrations alive in NATS KV.
//
// A member registration is a JSON envelope (types.Member) stored under
// {group}.members.{id} in a bucket configured with a TTL. The Publisher creates
// it atomically, so at most one live registration per member ID exists, and
// rewrites it on every tick. A process that crashes stops ticking and its
// registration disappears when the TTL elapses.
//
// # Lifecycle
//
//  1. New(kv, key, member, interval)
//  2. Start(ctx): atomic create, fails with types.ErrMemberExists when another
//     session holds the ID
//  3. Update(ctx, payload): synchronous payload replacement
//  4. Stop(): stops ticking and deletes the registration
//
// # Recovery
//
// When a refresh finds the key gone (expired while the store was unreachable),
// the registration is re-created under the same session. When it finds a
// registration owned by another session, the refresh fails with
// types.ErrMemberExists and keeps failing until that registration goes away.
//
// The result of every background refresh is reported to the callback set with
// SetOnResult, which the group uses to track connectivity.
package heartbeat
