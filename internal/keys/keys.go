// Package keys builds the namespaced keys used by remote backing stores.
package keys

import (
	"strings"
)

// Separator defines the delimiter used between key segments.
const Separator = "::"

const (
	itemSegment = "item"
	refSegment  = "ref"
)

// Builder produces keys scoped to one namespace.
type Builder struct {
	namespace string
}

// New returns a Builder for namespace. An empty namespace yields unscoped keys.
func New(namespace string) Builder {
	return Builder{namespace: namespace}
}

// Namespace returns the namespace of the builder.
func (b Builder) Namespace() string { return b.namespace }

// Item returns the key holding the payload of item id.
func (b Builder) Item(id string) string {
	return b.join(itemSegment, id)
}

// Ref returns the key holding the set of item ids associated with refID.
func (b Builder) Ref(refID string) string {
	return b.join(refSegment, refID)
}

// ItemPattern returns a glob matching every item key of the namespace.
func (b Builder) ItemPattern() string {
	return escapeGlob(b.join(itemSegment, "")) + "*"
}

// ItemID extracts the id from an item key. ok is false when key is not an
// item key of this namespace.
func (b Builder) ItemID(key string) (id string, ok bool) {
	prefix := b.join(itemSegment, "")
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	return strings.TrimPrefix(key, prefix), true
}

func (b Builder) join(kind, id string) string {
	if b.namespace == "" {
		return Join(kind, id)
	}
	return Join(b.namespace, kind, id)
}

// Join concatenates segments with Separator.
func Join(segments ...string) string {
	return strings.Join(segments, Separator)
}

// escapeGlob escapes the characters with a meaning in SCAN MATCH patterns.
func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
