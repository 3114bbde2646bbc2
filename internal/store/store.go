// Package store is the delegated persistence boundary for board records and
// frames. The live session never depends on the store for correctness: every
// store failure is reported to the caller, logged there as a warning, and the
// in-memory room state stays authoritative.
package store

import (
	"context"
	"sort"
	"sync"

	"liveboard/pkg/wire"
)

// Store persists one row per record keyed by id, upserted on create/update
// and removed on delete, plus the frame list loaded once at room cold start.
type Store interface {
	LoadObjects(ctx context.Context, boardID string) ([]wire.BoardObject, error)
	UpsertObject(ctx context.Context, boardID string, obj wire.BoardObject) error
	DeleteObject(ctx context.Context, boardID, objectID string) error

	LoadFrames(ctx context.Context, boardID string) ([]wire.Frame, error)
	UpsertFrame(ctx context.Context, boardID string, frame wire.Frame) error
	DeleteFrame(ctx context.Context, boardID, frameID string) error
}

// Memory is an in-process Store used by tests and by rooms running without a
// configured database.
type Memory struct {
	mu      sync.Mutex
	objects map[string]map[string]wire.BoardObject
	frames  map[string]map[string]wire.Frame
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string]map[string]wire.BoardObject),
		frames:  make(map[string]map[string]wire.Frame),
	}
}

func (m *Memory) LoadObjects(_ context.Context, boardID string) ([]wire.BoardObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := make([]wire.BoardObject, 0, len(m.objects[boardID]))
	for _, obj := range m.objects[boardID] {
		rows = append(rows, obj)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

func (m *Memory) UpsertObject(_ context.Context, boardID string, obj wire.BoardObject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects[boardID] == nil {
		m.objects[boardID] = make(map[string]wire.BoardObject)
	}
	m.objects[boardID][obj.ID] = obj
	return nil
}

func (m *Memory) DeleteObject(_ context.Context, boardID, objectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects[boardID], objectID)
	return nil
}

func (m *Memory) LoadFrames(_ context.Context, boardID string) ([]wire.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := make([]wire.Frame, 0, len(m.frames[boardID]))
	for _, f := range m.frames[boardID] {
		rows = append(rows, f)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Index < rows[j].Index })
	return rows, nil
}

func (m *Memory) UpsertFrame(_ context.Context, boardID string, frame wire.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frames[boardID] == nil {
		m.frames[boardID] = make(map[string]wire.Frame)
	}
	m.frames[boardID][frame.ID] = frame
	return nil
}

func (m *Memory) DeleteFrame(_ context.Context, boardID, frameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.frames[boardID], frameID)
	return nil
}

// HasObject reports whether a record row exists. Test helper.
func (m *Memory) HasObject(boardID, objectID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[boardID][objectID]
	return ok
}
