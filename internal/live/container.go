// Package live implements the replicated document core: a tree of mutable
// containers owned by a Document, the operation log exchanged between peers,
// shallow/deep subscriptions with per-batch coalescing, and a semantic
// undo/redo history.
package live

import "sort"

// A Value stored in a container is either a scalar (string, number, bool,
// nil), a plain decoded JSON structure, or a nested Container. Containers are
// exclusively owned by their parent; the tree never shares or cycles.

// Container is the shared mutation contract of the two container kinds.
type Container interface {
	// Get returns the value stored under key.
	Get(key string) (any, bool)
	// Set stores value under key. On an attached container this enqueues an
	// operation and fires subscribers; detached containers mutate silently.
	Set(key string, value any)
	// Delete removes key. Removing a missing key is a no-op.
	Delete(key string)
	// Keys returns the container's keys. Map keys come back in insertion
	// order, Object keys sorted.
	Keys() []string
	// ToPlain recursively materializes the container as a plain keyed
	// structure.
	ToPlain() map[string]any

	nodeRef() *node
	each(fn func(key string, value any))
	setRaw(key string, value any)
	deleteRaw(key string) bool
}

// node carries the per-container bookkeeping shared by both kinds. The
// parent link is lookup-only and immutable once attached; ownership always
// flows downward from the Document's root.
type node struct {
	doc       *Document
	parent    Container
	parentKey string
	id        int
}

func (n *node) nodeRef() *node { return n }

// path returns the key path from the root to this container.
func (n *node) path() []string {
	var rev []string
	for cur := n; cur.parent != nil; cur = cur.parent.nodeRef() {
		rev = append(rev, cur.parentKey)
	}
	path := make([]string, len(rev))
	for i, key := range rev {
		path[len(rev)-1-i] = key
	}
	return path
}

// Object is the fixed/open-field record container. Field order is not
// significant.
type Object struct {
	node
	fields map[string]any
}

// NewObject creates a detached record with the given initial fields.
func NewObject(fields map[string]any) *Object {
	o := &Object{fields: make(map[string]any, len(fields))}
	for k, v := range fields {
		o.fields[k] = v
	}
	return o
}

func (o *Object) Get(key string) (any, bool) {
	v, ok := o.fields[key]
	return v, ok
}

func (o *Object) Set(key string, value any) {
	if o.doc == nil {
		o.fields[key] = value
		return
	}
	o.doc.prepareMutate(o)
	o.fields[key] = value
	o.doc.commitMutate(o, OpSet, key, value)
}

func (o *Object) Delete(key string) {
	if o.doc == nil {
		delete(o.fields, key)
		return
	}
	if _, ok := o.fields[key]; !ok {
		return
	}
	o.doc.prepareMutate(o)
	delete(o.fields, key)
	o.doc.commitMutate(o, OpDelete, key, nil)
}

func (o *Object) Keys() []string {
	keys := make([]string, 0, len(o.fields))
	for k := range o.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (o *Object) ToPlain() map[string]any {
	plain := make(map[string]any, len(o.fields))
	for k, v := range o.fields {
		plain[k] = toPlainValue(v)
	}
	return plain
}

func (o *Object) each(fn func(key string, value any)) {
	for _, k := range o.Keys() {
		fn(k, o.fields[k])
	}
}

func (o *Object) setRaw(key string, value any) { o.fields[key] = value }

func (o *Object) deleteRaw(key string) bool {
	if _, ok := o.fields[key]; !ok {
		return false
	}
	delete(o.fields, key)
	return true
}

// Map is the dynamic id-keyed container. Iteration follows insertion order.
type Map struct {
	node
	entries map[string]any
	order   []string
}

// NewMap creates a detached, empty map container.
func NewMap() *Map {
	return &Map{entries: make(map[string]any)}
}

func (m *Map) Get(key string) (any, bool) {
	v, ok := m.entries[key]
	return v, ok
}

func (m *Map) Has(key string) bool {
	_, ok := m.entries[key]
	return ok
}

func (m *Map) Len() int { return len(m.entries) }

func (m *Map) Set(key string, value any) {
	if m.doc == nil {
		m.setRaw(key, value)
		return
	}
	m.doc.prepareMutate(m)
	m.setRaw(key, value)
	m.doc.commitMutate(m, OpSet, key, value)
}

func (m *Map) Delete(key string) {
	if m.doc == nil {
		m.deleteRaw(key)
		return
	}
	if !m.Has(key) {
		return
	}
	m.doc.prepareMutate(m)
	m.deleteRaw(key)
	m.doc.commitMutate(m, OpDelete, key, nil)
}

// ForEach visits entries in insertion order.
func (m *Map) ForEach(fn func(key string, value any)) {
	for _, k := range m.order {
		fn(k, m.entries[k])
	}
}

func (m *Map) Keys() []string {
	keys := make([]string, len(m.order))
	copy(keys, m.order)
	return keys
}

func (m *Map) ToPlain() map[string]any {
	plain := make(map[string]any, len(m.entries))
	for k, v := range m.entries {
		plain[k] = toPlainValue(v)
	}
	return plain
}

func (m *Map) each(fn func(key string, value any)) { m.ForEach(fn) }

func (m *Map) setRaw(key string, value any) {
	if _, ok := m.entries[key]; !ok {
		m.order = append(m.order, key)
	}
	m.entries[key] = value
}

func (m *Map) deleteRaw(key string) bool {
	if _, ok := m.entries[key]; !ok {
		return false
	}
	delete(m.entries, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

// toPlainValue flattens nested containers; scalars and already-plain values
// pass through unchanged.
func toPlainValue(v any) any {
	if c, ok := v.(Container); ok {
		return c.ToPlain()
	}
	return v
}
