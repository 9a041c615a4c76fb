package kvutil

import "strings"

// Separator is the token separator of NATS KV keys.
const Separator = "."

// Keys builds registry keys below a fixed root namespace.
//
// Layout:
//
//	<root>.registry.clusters.task.<task>                  task worker group
//	<root>.registry.clusters.task.<task>.members.<id>     member registration
//	<root>.registry.clusters.task.<task>.leader           group mastership lease
//	<root>.registry.containers.task.<container>.<task>    worker node record
//	<root>.registry.ids                                   container id pool
type Keys struct {
	Root string
}

// TaskGroup returns the group prefix of a task's workers.
func (k Keys) TaskGroup(taskID string) string {
	return Join(k.Root, "registry", "clusters", "task", taskID)
}

// ServiceGroup returns the group prefix of a load-balanced service.
func (k Keys) ServiceGroup(service string) string {
	return Join(k.Root, "registry", "clusters", "service", service)
}

// WorkerNode returns the key of a worker node record.
func (k Keys) WorkerNode(containerID, taskID string) string {
	return Join(k.Root, "registry", "containers", "task", containerID, taskID)
}

// ContainerIDs returns the prefix of the stable container id pool.
func (k Keys) ContainerIDs() string {
	return Join(k.Root, "registry", "ids")
}

// MemberKey returns the key of member id within group.
func MemberKey(group, id string) string {
	return Join(group, "members", id)
}

// MembersPattern returns the watch pattern matching every member of group.
func MembersPattern(group string) string {
	return Join(group, "members", "*")
}

// GroupPattern returns the watch pattern matching every key of group.
func GroupPattern(group string) string {
	return Join(group, ">")
}

// LeaderKey returns the mastership lease key of group.
func LeaderKey(group string) string {
	return Join(group, "leader")
}

// Join concatenates non-empty tokens with the key separator.
func Join(tokens ...string) string {
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t != "" {
			parts = append(parts, t)
		}
	}

	return strings.Join(parts, Separator)
}

// LastToken returns the final token of key.
func LastToken(key string) string {
	if i := strings.LastIndex(key, Separator); i >= 0 {
		return key[i+1:]
	}

	return key
}

// ChildOf reports whether key is a direct child of prefix and returns the child token.
func ChildOf(prefix, key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, prefix+Separator)
	if !ok || rest == "" || strings.Contains(rest, Separator) {
		return "", false
	}

	return rest, true
}
