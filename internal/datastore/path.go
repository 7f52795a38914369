package datastore

import (
	"fmt"
	"strings"
)

// Step is one segment of a parsed path: a node name plus, for a keyed list
// instance, the key=value predicates that select one instance (e.g.
// `interface[name='eth0']`).
type Step struct {
	Module string // only set on the first step, e.g. "test-module"
	Name   string
	Keys   map[string]string
}

// ParsePath parses a schema-aware path expression of the restricted form
// this engine supports: `/module:container/list[key='val']/leaf`. This is
// deliberately not general XPath — spec.md's Non-goals exclude "arbitrary
// query languages beyond schema-aware path expressions", and this is that
// expression language.
func ParsePath(path string) ([]Step, error) {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return nil, fmt.Errorf("datastore: empty path")
	}
	parts := strings.Split(trimmed, "/")

	steps := make([]Step, 0, len(parts))
	for i, part := range parts {
		step, err := parseStep(part)
		if err != nil {
			return nil, fmt.Errorf("datastore: path %q: %w", path, err)
		}
		if i == 0 {
			name := step.Name
			if idx := strings.Index(name, ":"); idx >= 0 {
				step.Module = name[:idx]
				step.Name = name[idx+1:]
			} else {
				return nil, fmt.Errorf("datastore: path %q: first segment must be module-qualified", path)
			}
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func parseStep(part string) (Step, error) {
	open := strings.IndexByte(part, '[')
	if open < 0 {
		return Step{Name: part}, nil
	}
	if !strings.HasSuffix(part, "]") {
		return Step{}, fmt.Errorf("malformed predicate in segment %q", part)
	}
	name := part[:open]
	predicates := part[open+1 : len(part)-1]

	keys := make(map[string]string)
	for _, pred := range strings.Split(predicates, "][") {
		eq := strings.IndexByte(pred, '=')
		if eq < 0 {
			return Step{}, fmt.Errorf("malformed predicate %q in segment %q", pred, part)
		}
		key := strings.TrimSpace(pred[:eq])
		val := strings.TrimSpace(pred[eq+1:])
		val = strings.Trim(val, `'"`)
		keys[key] = val
	}
	return Step{Name: name, Keys: keys}, nil
}

// JoinPath renders steps back to their canonical path form, used when
// tagging errors with the faulting path (§7).
func JoinPath(steps []Step) string {
	var b strings.Builder
	for i, s := range steps {
		b.WriteByte('/')
		if i == 0 && s.Module != "" {
			b.WriteString(s.Module)
			b.WriteByte(':')
		}
		b.WriteString(s.Name)
		for _, k := range sortedKeys(s.Keys) {
			fmt.Fprintf(&b, "[%s='%s']", k, s.Keys[k])
		}
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Small N (list key tuples are rarely more than 2-3 deep); insertion
	// sort keeps this dependency-free and deterministic for path rendering.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
