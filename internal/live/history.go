package live

import (
	"log"
	"sort"
	"strings"

	"github.com/wI2L/jsondiff"
)

// EntryKind labels a history entry. Entries are semantic, holding whole
// before/after snapshots rather than raw op logs; the forward and inverse op
// batches are re-derived when the entry is applied.
type EntryKind string

const (
	EntryUpdate EntryKind = "update"
	EntryCreate EntryKind = "create"
	EntryDelete EntryKind = "delete"
)

// Change is one container's before/after snapshot inside an update entry.
type Change struct {
	Path   []string
	Before map[string]any
	After  map[string]any
}

// Entry is one undoable transaction. Update entries hold per-container
// snapshots; Create and Delete entries hold the whole records added to or
// removed from the map container at Path.
type Entry struct {
	Kind    EntryKind
	Changes []Change
	Path    []string
	Objects map[string]map[string]any
}

// History keeps the document's undo and redo stacks. Field changes grouped
// between StartBatch and EndBatch collapse into a single entry; a local
// mutation outside any batch records an implicit one-change entry.
type History struct {
	doc       *Document
	undoStack []*Entry
	redoStack []*Entry
	open      *openBatch
}

type openBatch struct {
	explicit   bool
	containers []Container
	before     []map[string]any
}

func newHistory(doc *Document) *History {
	return &History{doc: doc}
}

// StartBatch opens an explicit batch. Every local mutation until EndBatch
// joins the same entry.
func (h *History) StartBatch() {
	if h.open == nil {
		h.open = &openBatch{explicit: true}
	}
}

// EndBatch closes the open explicit batch into one entry.
func (h *History) EndBatch() {
	if h.open != nil && h.open.explicit {
		h.finalize()
	}
}

// capture snapshots a container before its first mutation in the current
// batch, opening an implicit batch if none is active.
func (h *History) capture(c Container) {
	if h.open == nil {
		h.open = &openBatch{}
	}
	for _, seen := range h.open.containers {
		if seen == c {
			return
		}
	}
	h.open.containers = append(h.open.containers, c)
	h.open.before = append(h.open.before, c.ToPlain())
}

// commit closes an implicit batch after the single mutation that opened it.
func (h *History) commit() {
	if h.open != nil && !h.open.explicit {
		h.finalize()
	}
}

func (h *History) finalize() {
	batch := h.open
	h.open = nil
	if len(batch.containers) == 0 {
		return
	}
	entry := &Entry{Kind: EntryUpdate}
	for i, c := range batch.containers {
		entry.Changes = append(entry.Changes, Change{
			Path:   c.nodeRef().path(),
			Before: batch.before[i],
			After:  c.ToPlain(),
		})
	}
	h.push(entry)
}

// RecordCreate records the creation of whole records in the map at path.
func (h *History) RecordCreate(path []string, objects map[string]map[string]any) {
	if len(objects) == 0 {
		return
	}
	h.push(&Entry{Kind: EntryCreate, Path: path, Objects: objects})
}

// RecordDelete records the removal of whole records from the map at path.
func (h *History) RecordDelete(path []string, objects map[string]map[string]any) {
	if len(objects) == 0 {
		return
	}
	h.push(&Entry{Kind: EntryDelete, Path: path, Objects: objects})
}

// push adds an undo entry. Any new transaction invalidates the redo stack.
func (h *History) push(entry *Entry) {
	h.undoStack = append(h.undoStack, entry)
	h.redoStack = nil
}

func (h *History) CanUndo() bool { return len(h.undoStack) > 0 }
func (h *History) CanRedo() bool { return len(h.redoStack) > 0 }

// Undo pops the most recent entry and returns the op batch that reverts it.
// The caller applies the batch with Document.ApplyLocalOps so observers fire
// once for the whole transaction.
func (h *History) Undo() []Op {
	n := len(h.undoStack)
	if n == 0 {
		return nil
	}
	entry := h.undoStack[n-1]
	h.undoStack = h.undoStack[:n-1]
	h.redoStack = append(h.redoStack, entry)
	return h.deriveOps(entry, true)
}

// Redo pops the most recent undone entry and returns the op batch that
// re-applies it.
func (h *History) Redo() []Op {
	n := len(h.redoStack)
	if n == 0 {
		return nil
	}
	entry := h.redoStack[n-1]
	h.redoStack = h.redoStack[:n-1]
	h.undoStack = append(h.undoStack, entry)
	return h.deriveOps(entry, false)
}

// deriveOps turns an entry into a concrete op batch. inverse=true derives
// the ops that revert the entry, inverse=false the ops that re-apply it.
func (h *History) deriveOps(entry *Entry, inverse bool) []Op {
	var ops []Op
	switch entry.Kind {
	case EntryUpdate:
		for _, change := range entry.Changes {
			src, dst := change.Before, change.After
			if inverse {
				src, dst = change.After, change.Before
			}
			ops = append(ops, h.diffOps(src, dst, change.Path)...)
		}
	case EntryCreate:
		ops = append(ops, h.objectOps(entry, inverse)...)
	case EntryDelete:
		ops = append(ops, h.objectOps(entry, !inverse)...)
	}
	return ops
}

// objectOps emits per-record ops for a create/delete entry. remove=true
// deletes the records from the map, remove=false re-sets them.
func (h *History) objectOps(entry *Entry, remove bool) []Op {
	ids := make([]string, 0, len(entry.Objects))
	for id := range entry.Objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	ops := make([]Op, 0, len(ids))
	for _, id := range ids {
		if remove {
			ops = append(ops, Op{Kind: OpDelete, Path: entry.Path, Key: id, Clock: h.doc.nextClock()})
		} else {
			ops = append(ops, Op{Kind: OpSet, Path: entry.Path, Key: id, Value: entry.Objects[id], Clock: h.doc.nextClock()})
		}
	}
	return ops
}

// diffOps derives the field ops transforming src into dst by diffing the two
// snapshots, then mapping each JSON patch operation onto a container op.
func (h *History) diffOps(src, dst map[string]any, base []string) []Op {
	patch, err := jsondiff.Compare(src, dst)
	if err != nil {
		log.Printf("history: snapshot diff failed: %v", err)
		return nil
	}

	var ops []Op
	for _, p := range patch {
		segs := pointerSegments(p.Path)
		if len(segs) == 0 {
			continue
		}
		key := segs[len(segs)-1]
		path := append(append([]string{}, base...), segs[:len(segs)-1]...)
		switch p.Type {
		case "add", "replace":
			ops = append(ops, Op{Kind: OpSet, Path: path, Key: key, Value: p.Value, Clock: h.doc.nextClock()})
		case "remove":
			ops = append(ops, Op{Kind: OpDelete, Path: path, Key: key, Clock: h.doc.nextClock()})
		}
	}
	return ops
}

// pointerSegments splits a JSON pointer into unescaped path segments.
func pointerSegments(pointer string) []string {
	if pointer == "" || pointer == "/" {
		return nil
	}
	parts := strings.Split(strings.TrimPrefix(pointer, "/"), "/")
	for i, part := range parts {
		part = strings.ReplaceAll(part, "~1", "/")
		parts[i] = strings.ReplaceAll(part, "~0", "~")
	}
	return parts
}
