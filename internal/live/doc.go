package live

import (
	"encoding/json"
	"fmt"
)

// Document owns a container tree. The tree's lifetime is the document's
// lifetime; containers are attached exactly once when first inserted into a
// parent reachable from the root. A document is not internally thread-safe;
// by contract it is accessed from one serialized sequence only.
type Document struct {
	root      Container
	clock     int64
	nextID    int
	subs      []*subscription
	nextSubID int
	pending   []Op
	history   *History
}

// NewDocument creates a document owning root and attaches the whole tree.
func NewDocument(root Container) *Document {
	d := &Document{root: root}
	d.history = newHistory(d)
	d.attach(root, nil, "")
	return d
}

// Root returns the root container.
func (d *Document) Root() Container { return d.root }

// History returns the document's undo/redo history.
func (d *Document) History() *History { return d.history }

// Clock returns the current local clock value.
func (d *Document) Clock() int64 { return d.clock }

// FlushOps drains the operations produced by local mutations (and by applied
// undo/redo batches) for transmission to peers.
func (d *Document) FlushOps() []Op {
	ops := d.pending
	d.pending = nil
	return ops
}

// nextClock advances and returns the local clock. Local clocks are strictly
// increasing per document and are never rolled back.
func (d *Document) nextClock() int64 {
	d.clock++
	return d.clock
}

// attach wires a container (and, recursively, every container nested inside
// it) into this document. A container already attached keeps its original
// parent: re-parenting is not permitted by contract.
func (d *Document) attach(c Container, parent Container, key string) {
	n := c.nodeRef()
	if n.doc != nil {
		return
	}
	n.doc = d
	n.parent = parent
	n.parentKey = key
	d.nextID++
	n.id = d.nextID
	c.each(func(childKey string, v any) {
		if child, ok := v.(Container); ok {
			d.attach(child, c, childKey)
		}
	})
}

// prepareMutate runs before a local mutation so the history can capture the
// container's pre-change snapshot.
func (d *Document) prepareMutate(c Container) {
	d.history.capture(c)
}

// commitMutate runs after a local mutation: attach any newly inserted
// container, emit the operation with the next clock, close an implicit
// history entry, and fire subscribers for this single call.
func (d *Document) commitMutate(c Container, kind OpKind, key string, value any) {
	if child, ok := value.(Container); ok {
		d.attach(child, c, key)
	}
	op := Op{Kind: kind, Path: c.nodeRef().path(), Key: key, Clock: d.nextClock()}
	if kind == OpSet {
		op.Value = toPlainValue(value)
	}
	d.pending = append(d.pending, op)
	d.history.commit()
	d.notify(map[Container]struct{}{c: {}})
}

// Resolve walks a path from the root to the container it addresses, or nil.
func (d *Document) Resolve(path []string) Container {
	cur := d.root
	for _, key := range path {
		v, ok := cur.Get(key)
		if !ok {
			return nil
		}
		child, ok := v.(Container)
		if !ok {
			return nil
		}
		cur = child
	}
	return cur
}

// ApplyOps applies a batch of remote operations. Each op whose path names a
// missing container is skipped: a single-op no-op, never a batch failure.
// After all ops are applied, every affected subscriber fires exactly once
// regardless of how many ops touched its target or subtree.
func (d *Document) ApplyOps(ops []Op) {
	touched := d.applyBatch(ops)
	d.notify(touched)
}

// ApplyLocalOps applies an op batch produced locally by undo/redo. The
// batching contract is identical to ApplyOps; additionally the batch is
// queued for transmission so peers observe the same change.
func (d *Document) ApplyLocalOps(ops []Op) {
	touched := d.applyBatch(ops)
	d.pending = append(d.pending, ops...)
	d.notify(touched)
}

func (d *Document) applyBatch(ops []Op) map[Container]struct{} {
	touched := make(map[Container]struct{})
	for _, op := range ops {
		target := d.Resolve(op.Path)
		if target == nil {
			continue
		}
		switch op.Kind {
		case OpSet:
			target.setRaw(op.Key, op.Value)
			touched[target] = struct{}{}
		case OpDelete:
			if target.deleteRaw(op.Key) {
				touched[target] = struct{}{}
			}
		}
	}
	return touched
}

// serialized tree encoding: containers become kind-tagged nodes so the two
// variants and the map's insertion order survive the round trip.
const (
	kindObject = "object"
	kindMap    = "map"
)

// Serialize produces a plain nested structure sufficient to rebuild an
// equivalent tree: identical field values and topology, fresh identities.
func (d *Document) Serialize() ([]byte, error) {
	data, err := json.Marshal(encodeValue(d.root))
	if err != nil {
		return nil, fmt.Errorf("serializing document: %w", err)
	}
	return data, nil
}

// Deserialize reconstructs a document from a Serialize blob. The rehydrated
// tree behaves exactly as the original under subsequent operations and
// subscriptions.
func Deserialize(blob []byte) (*Document, error) {
	var decoded any
	if err := json.Unmarshal(blob, &decoded); err != nil {
		return nil, fmt.Errorf("deserializing document: %w", err)
	}
	root, ok := decodeValue(decoded).(Container)
	if !ok {
		return nil, fmt.Errorf("deserializing document: root is not a container")
	}
	return NewDocument(root), nil
}

func encodeValue(v any) any {
	switch c := v.(type) {
	case *Object:
		fields := make(map[string]any, len(c.fields))
		for k, fv := range c.fields {
			fields[k] = encodeValue(fv)
		}
		return map[string]any{"kind": kindObject, "fields": fields}
	case *Map:
		entries := make([]any, 0, len(c.order))
		for _, k := range c.order {
			entries = append(entries, map[string]any{"key": k, "value": encodeValue(c.entries[k])})
		}
		return map[string]any{"kind": kindMap, "entries": entries}
	default:
		return v
	}
}

func decodeValue(v any) any {
	tagged, ok := v.(map[string]any)
	if !ok {
		return v
	}
	switch tagged["kind"] {
	case kindObject:
		obj := NewObject(nil)
		if fields, ok := tagged["fields"].(map[string]any); ok {
			for k, fv := range fields {
				obj.fields[k] = decodeValue(fv)
			}
		}
		return obj
	case kindMap:
		m := NewMap()
		if entries, ok := tagged["entries"].([]any); ok {
			for _, e := range entries {
				entry, ok := e.(map[string]any)
				if !ok {
					continue
				}
				key, _ := entry["key"].(string)
				m.setRaw(key, decodeValue(entry["value"]))
			}
		}
		return m
	default:
		return v
	}
}
