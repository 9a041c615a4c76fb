// Package loadbalance selects service endpoints from a group's members.
//
// Every member of a service group publishes its endpoint URI as payload. A
// strategy keeps the list of alternate addresses in sync with the group,
// rebuilding it from the group snapshot on every group event, and picks the
// next address from it without touching the store.
//
// Strategies:
//   - Random ("random"): uniform choice per call
//   - FirstOne ("first-one"): always the first member in membership order,
//     for active/standby deployments
//   - RoundRobin ("round-robin"): cycles through the list
package loadbalance
