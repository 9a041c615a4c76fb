package logging

import "github.com/arloliu/fabric/types"

// scoped prepends a fixed set of key-value pairs to every entry.
type scoped struct {
	base   types.Logger
	fields []any
}

// With returns a logger that adds keysAndValues to every entry written to l.
//
// Components use it to pin their task, group or member identifiers once, so
// every warning and error carries them.
//
// Example:
//
//	log := logging.With(logger, "task", cfg.TaskID, "member", containerID)
//	log.Warn("assignment write failed", "error", err)
func With(l types.Logger, keysAndValues ...any) types.Logger {
	l = OrNop(l)
	if len(keysAndValues) == 0 {
		return l
	}

	if s, ok := l.(*scoped); ok {
		fields := make([]any, 0, len(s.fields)+len(keysAndValues))
		fields = append(fields, s.fields...)
		fields = append(fields, keysAndValues...)

		return &scoped{base: s.base, fields: fields}
	}

	return &scoped{base: l, fields: append([]any(nil), keysAndValues...)}
}

func (s *scoped) merge(kv []any) []any {
	out := make([]any, 0, len(s.fields)+len(kv))
	out = append(out, s.fields...)

	return append(out, kv...)
}

func (s *scoped) Debug(msg string, kv ...any) { s.base.Debug(msg, s.merge(kv)...) }
func (s *scoped) Info(msg string, kv ...any)  { s.base.Info(msg, s.merge(kv)...) }
func (s *scoped) Warn(msg string, kv ...any)  { s.base.Warn(msg, s.merge(kv)...) }
func (s *scoped) Error(msg string, kv ...any) { s.base.Error(msg, s.merge(kv)...) }
func (s *scoped) Fatal(msg string, kv ...any) { s.base.Fatal(msg, s.merge(kv)...) }
