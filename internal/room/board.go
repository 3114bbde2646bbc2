package room

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"time"

	"liveboard/internal/store"
	"liveboard/pkg/wire"
)

// cursorColors is the palette users are assigned from, keyed by a stable
// hash of the user id so a user keeps their color across reconnects.
var cursorColors = []string{
	"#ef4444", "#f97316", "#eab308", "#22c55e",
	"#3b82f6", "#8b5cf6", "#ec4899", "#14b8a6",
}

// ColorFor returns the presence color for a user id.
func ColorFor(userID string) string {
	h := hashCode(userID)
	if h < 0 {
		h = -h
	}
	return cursorColors[h%len(cursorColors)]
}

// hashCode is the 32-bit string hash the web clients already use for color
// assignment; kept identical so both sides agree on colors.
func hashCode(s string) int {
	var h int32
	for _, r := range s {
		h = (h << 5) - h + int32(r)
	}
	return int(h)
}

const persistTimeout = 5 * time.Second

// Board is the record-synchronization actor for one room: the id-keyed
// object map, the sorted frame list, and the connection registry. All state
// is mutated from a single event loop; concurrent clients are serialized by
// the inbox channel rather than by locks.
type Board struct {
	room    *Room
	objects map[string]wire.BoardObject
	frames  []wire.Frame
	st      store.Store
	bridge  *Bridge
	inbox   chan boardEvent
}

type boardEventKind int

const (
	evJoin boardEventKind = iota
	evLeave
	evMessage
	evRemote
	evActions
	evSnapshot
)

type boardEvent struct {
	kind    boardEventKind
	connID  string
	conn    Conn
	user    wire.PresenceUser
	data    []byte
	actions []wire.Action
	reply   chan boardReply
}

type boardReply struct {
	objects   []wire.BoardObject
	frames    []wire.Frame
	processed int
}

// NewBoard creates a board for one room. A nil store disables persistence; a
// nil bridge disables cross-instance relay.
func NewBoard(id string, st store.Store, bridge *Bridge) *Board {
	return &Board{
		room:    NewRoom(id),
		objects: make(map[string]wire.BoardObject),
		st:      st,
		bridge:  bridge,
		inbox:   make(chan boardEvent, 64),
	}
}

// Run loads persisted state and serves the event loop until ctx is
// cancelled. It must be called exactly once, on its own goroutine.
func (b *Board) Run(ctx context.Context) {
	b.loadState(ctx)
	if b.bridge != nil {
		b.bridge.Subscribe(ctx, b.room.ID(), func(payload []byte) {
			select {
			case b.inbox <- boardEvent{kind: evRemote, data: payload}:
			case <-ctx.Done():
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.inbox:
			switch ev.kind {
			case evJoin:
				b.handleJoin(ev.connID, ev.conn, ev.user)
			case evLeave:
				b.handleLeave(ev.connID)
			case evMessage:
				b.handleMessage(ev.connID, ev.data)
			case evRemote:
				b.handleRemote(ev.data)
			case evActions:
				ev.reply <- boardReply{processed: b.applyActions(ev.actions)}
			case evSnapshot:
				ev.reply <- boardReply{objects: b.objectList(), frames: b.frameList()}
			}
		}
	}
}

// Join registers a new connection with the board loop.
func (b *Board) Join(connID string, conn Conn, user wire.PresenceUser) {
	b.inbox <- boardEvent{kind: evJoin, connID: connID, conn: conn, user: user}
}

// Leave removes a connection.
func (b *Board) Leave(connID string) {
	b.inbox <- boardEvent{kind: evLeave, connID: connID}
}

// Deliver hands one inbound client message to the board loop. Messages from
// one connection are applied in delivery order.
func (b *Board) Deliver(connID string, data []byte) {
	b.inbox <- boardEvent{kind: evMessage, connID: connID, data: data}
}

// Actions applies an HTTP action batch on the board loop and returns the
// number of processed actions.
func (b *Board) Actions(actions []wire.Action) int {
	reply := make(chan boardReply, 1)
	b.inbox <- boardEvent{kind: evActions, actions: actions, reply: reply}
	return (<-reply).processed
}

// Snapshot returns the current record set and frame list.
func (b *Board) Snapshot() ([]wire.BoardObject, []wire.Frame) {
	reply := make(chan boardReply, 1)
	b.inbox <- boardEvent{kind: evSnapshot, reply: reply}
	r := <-reply
	return r.objects, r.frames
}

// loadState performs the cold-start load. An empty or unconfigured store
// yields a single default frame at index 0.
func (b *Board) loadState(ctx context.Context) {
	if b.st != nil {
		loadCtx, cancel := context.WithTimeout(ctx, persistTimeout)
		defer cancel()

		objects, err := b.st.LoadObjects(loadCtx, b.room.ID())
		if err != nil {
			log.Printf("board %s: loading objects: %v", b.room.ID(), err)
		}
		for _, obj := range objects {
			b.objects[obj.ID] = obj
		}

		frames, err := b.st.LoadFrames(loadCtx, b.room.ID())
		if err != nil {
			log.Printf("board %s: loading frames: %v", b.room.ID(), err)
		}
		b.frames = frames
	}
	if len(b.frames) == 0 {
		b.frames = []wire.Frame{{ID: "frame-0", Index: 0, Label: "Frame 1"}}
	}
	b.sortFrames()
}

func (b *Board) handleJoin(connID string, conn Conn, user wire.PresenceUser) {
	b.room.AddConnection(connID, conn, user)
	log.Printf("board %s: %s (%s) joined as %s", b.room.ID(), user.DisplayName, user.UserID, connID)

	b.sendTo(connID, wire.Message{Type: wire.TypeSync, Objects: b.objectList()})
	b.sendTo(connID, wire.Message{Type: wire.TypeFrameSync, Frames: b.frameList()})
	b.room.Broadcast(b.room.PresenceMessage())
}

func (b *Board) handleLeave(connID string) {
	user, ok := b.room.RemoveConnection(connID)
	if !ok {
		return
	}
	log.Printf("board %s: %s (%s) left", b.room.ID(), user.DisplayName, user.UserID)
	b.room.Broadcast(b.room.PresenceMessage())
}

// handleMessage applies one client message. Malformed payloads and unknown
// types are dropped; nothing here can wedge the room.
func (b *Board) handleMessage(senderID string, data []byte) {
	var msg wire.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("board %s: dropping malformed message from %s: %v", b.room.ID(), senderID, err)
		return
	}

	switch msg.Type {
	case wire.TypeCursorUpdate:
		b.handleCursor(senderID, msg)
	case wire.TypeObjectCreate:
		if msg.Object == nil {
			return
		}
		b.createObject(*msg.Object, nil)
	case wire.TypeObjectUpdate:
		if msg.Object == nil {
			return
		}
		b.updateObject(*msg.Object, msg.Ephemeral, []string{senderID})
	case wire.TypeObjectDelete:
		if msg.ObjectID == "" {
			return
		}
		b.deleteObject(msg.ObjectID, nil)
	case wire.TypeFrameCreate:
		if msg.Frame == nil {
			return
		}
		b.createFrame(*msg.Frame, []string{senderID})
	case wire.TypeFrameDelete:
		if msg.FrameID == "" {
			return
		}
		b.deleteFrame(msg.FrameID)
	}
}

func (b *Board) handleCursor(senderID string, msg wire.Message) {
	user, ok := b.room.User(senderID)
	if !ok {
		return
	}
	out := wire.Message{
		Type: wire.TypeCursorUpdate,
		Cursor: &wire.CursorData{
			UserID:        user.UserID,
			DisplayName:   user.DisplayName,
			Color:         user.Color,
			X:             msg.X,
			Y:             msg.Y,
			LastUpdate:    time.Now().UnixMilli(),
			ViewportX:     msg.ViewportX,
			ViewportY:     msg.ViewportY,
			ViewportScale: msg.ViewportScale,
		},
	}
	// Cursor positions are ephemeral: relayed, never persisted.
	b.broadcast(out, senderID)
}

// createObject applies an unconditional create and broadcasts it to every
// connection, the originator included.
func (b *Board) createObject(obj wire.BoardObject, exclude []string) {
	b.objects[obj.ID] = obj
	b.broadcast(wire.Message{Type: wire.TypeObjectCreate, Object: &obj}, exclude...)
	b.persistObject(obj)
}

// updateObject applies the last-writer-wins rule: the update is accepted iff
// its updated_at is not earlier than the stored record's (a missing record
// accepts). Rejected updates are dropped silently with no broadcast.
func (b *Board) updateObject(obj wire.BoardObject, ephemeral bool, exclude []string) {
	if existing, ok := b.objects[obj.ID]; ok && obj.UpdatedAt < existing.UpdatedAt {
		return
	}
	b.objects[obj.ID] = obj
	b.broadcast(wire.Message{Type: wire.TypeObjectUpdate, Object: &obj, Ephemeral: ephemeral}, exclude...)
	if !ephemeral {
		b.persistObject(obj)
	}
}

// deleteObject applies an unconditional delete and broadcasts it to every
// connection.
func (b *Board) deleteObject(objectID string, exclude []string) {
	delete(b.objects, objectID)
	b.broadcast(wire.Message{Type: wire.TypeObjectDelete, ObjectID: objectID}, exclude...)
	b.unpersistObject(objectID)
}

func (b *Board) createFrame(frame wire.Frame, exclude []string) {
	b.frames = append(b.frames, frame)
	b.sortFrames()
	b.broadcast(wire.Message{Type: wire.TypeFrameCreate, Frame: &frame}, exclude...)
	if b.st != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := b.st.UpsertFrame(ctx, b.room.ID(), frame); err != nil {
			log.Printf("board %s: persisting frame %s: %v", b.room.ID(), frame.ID, err)
		}
	}
}

// deleteFrame removes a frame and cascades over its contents. Unknown frame
// ids, and boards with fewer than two frames, are a whole no-op: nothing
// removed, nothing broadcast. The removed ids ride on the broadcast so peers
// apply the identical removal without recomputing geometry; removal is
// final, so re-creating a frame at the same index never resurrects records.
func (b *Board) deleteFrame(frameID string) {
	if len(b.frames) < 2 {
		return
	}
	idx := -1
	for i, f := range b.frames {
		if f.ID == frameID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	frame := b.frames[idx]

	deletedIDs := cascadeDelete(b.objects, frame)
	for _, id := range deletedIDs {
		delete(b.objects, id)
	}
	b.frames = append(b.frames[:idx], b.frames[idx+1:]...)

	b.broadcast(wire.Message{
		Type:             wire.TypeFrameDelete,
		FrameID:          frameID,
		DeletedObjectIDs: deletedIDs,
	})

	for _, id := range deletedIDs {
		b.unpersistObject(id)
	}
	if b.st != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := b.st.DeleteFrame(ctx, b.room.ID(), frameID); err != nil {
			log.Printf("board %s: deleting frame %s: %v", b.room.ID(), frameID, err)
		}
	}
}

// applyActions applies an HTTP action batch with the same rules as the
// websocket path. There is no sending connection, so nothing is excluded
// from the broadcasts.
func (b *Board) applyActions(actions []wire.Action) int {
	processed := 0
	for _, action := range actions {
		switch action.Type {
		case "create":
			if action.Object == nil {
				continue
			}
			b.createObject(*action.Object, nil)
		case "update":
			if action.Object == nil {
				continue
			}
			b.updateObject(*action.Object, false, nil)
		case "delete":
			if action.ObjectID == "" {
				continue
			}
			b.deleteObject(action.ObjectID, nil)
		default:
			continue
		}
		processed++
	}
	return processed
}

// handleRemote applies a payload relayed from another server instance: the
// state effect is applied without re-persisting or re-publishing (the origin
// instance owns both), then the payload is forwarded to local connections.
func (b *Board) handleRemote(data []byte) {
	var msg wire.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("board %s: dropping malformed relay payload: %v", b.room.ID(), err)
		return
	}

	switch msg.Type {
	case wire.TypeObjectCreate, wire.TypeObjectUpdate:
		if msg.Object == nil {
			return
		}
		if msg.Type == wire.TypeObjectUpdate {
			if existing, ok := b.objects[msg.Object.ID]; ok && msg.Object.UpdatedAt < existing.UpdatedAt {
				return
			}
		}
		b.objects[msg.Object.ID] = *msg.Object
	case wire.TypeObjectDelete:
		delete(b.objects, msg.ObjectID)
	case wire.TypeFrameCreate:
		if msg.Frame == nil {
			return
		}
		b.frames = append(b.frames, *msg.Frame)
		b.sortFrames()
	case wire.TypeFrameDelete:
		for _, id := range msg.DeletedObjectIDs {
			delete(b.objects, id)
		}
		for i, f := range b.frames {
			if f.ID == msg.FrameID {
				b.frames = append(b.frames[:i], b.frames[i+1:]...)
				break
			}
		}
	case wire.TypeCursorUpdate:
		// relay only
	default:
		return
	}
	b.room.Broadcast(data)
}

// broadcast serializes a message, delivers it locally, and publishes it to
// the relay so sibling instances converge.
func (b *Board) broadcast(msg wire.Message, exclude ...string) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("board %s: encoding %s broadcast: %v", b.room.ID(), msg.Type, err)
		return
	}
	b.room.Broadcast(data, exclude...)
	if b.bridge != nil {
		b.bridge.Publish(context.Background(), b.room.ID(), data)
	}
}

func (b *Board) sendTo(connID string, msg wire.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("board %s: encoding %s payload: %v", b.room.ID(), msg.Type, err)
		return
	}
	b.room.Send(connID, data)
}

func (b *Board) persistObject(obj wire.BoardObject) {
	if b.st == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := b.st.UpsertObject(ctx, b.room.ID(), obj); err != nil {
		log.Printf("board %s: persisting object %s: %v", b.room.ID(), obj.ID, err)
	}
}

func (b *Board) unpersistObject(objectID string) {
	if b.st == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := b.st.DeleteObject(ctx, b.room.ID(), objectID); err != nil {
		log.Printf("board %s: deleting object %s: %v", b.room.ID(), objectID, err)
	}
}

func (b *Board) objectList() []wire.BoardObject {
	list := make([]wire.BoardObject, 0, len(b.objects))
	for _, obj := range b.objects {
		list = append(list, obj)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

func (b *Board) frameList() []wire.Frame {
	list := make([]wire.Frame, len(b.frames))
	copy(list, b.frames)
	return list
}

func (b *Board) sortFrames() {
	sort.SliceStable(b.frames, func(i, j int) bool { return b.frames[i].Index < b.frames[j].Index })
}
