package room

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveboard/internal/store"
	"liveboard/pkg/wire"
)

func newTestBoard(t *testing.T, mem *store.Memory) *Board {
	t.Helper()
	b := NewBoard("board-1", mem, nil)
	b.loadState(context.Background())
	return b
}

func joinConn(t *testing.T, b *Board, connID string) *fakeConn {
	t.Helper()
	c := &fakeConn{}
	b.handleJoin(connID, c, testUser(connID))
	return c
}

func encode(t *testing.T, msg wire.Message) []byte {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return data
}

func lastMessage(t *testing.T, c *fakeConn) wire.Message {
	t.Helper()
	msgs := c.messages(t)
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

func TestJoinSendsStateAndPresence(t *testing.T) {
	b := newTestBoard(t, store.NewMemory())
	b.objects["obj-1"] = wire.BoardObject{ID: "obj-1", Type: "rectangle"}

	first := joinConn(t, b, "c1")
	msgs := first.messages(t)
	require.Len(t, msgs, 3)
	assert.Equal(t, wire.TypeSync, msgs[0].Type)
	require.Len(t, msgs[0].Objects, 1)
	assert.Equal(t, "obj-1", msgs[0].Objects[0].ID)
	assert.Equal(t, wire.TypeFrameSync, msgs[1].Type)
	require.Len(t, msgs[1].Frames, 1, "cold start yields the default frame")
	assert.Equal(t, 0, msgs[1].Frames[0].Index)
	assert.Equal(t, wire.TypePresence, msgs[2].Type)

	second := joinConn(t, b, "c2")
	presence := lastMessage(t, second)
	assert.Equal(t, wire.TypePresence, presence.Type)
	assert.Len(t, presence.Users, 2)

	// The earlier connection sees the updated roster too.
	presence = lastMessage(t, first)
	assert.Equal(t, wire.TypePresence, presence.Type)
	assert.Len(t, presence.Users, 2)
}

func TestLeaveBroadcastsShrunkRoster(t *testing.T) {
	b := newTestBoard(t, store.NewMemory())
	c1 := joinConn(t, b, "c1")
	joinConn(t, b, "c2")

	b.handleLeave("c2")
	presence := lastMessage(t, c1)
	assert.Equal(t, wire.TypePresence, presence.Type)
	require.Len(t, presence.Users, 1)
	assert.Equal(t, "c1", presence.Users[0].UserID)

	sent := len(c1.sent)
	b.handleLeave("ghost")
	assert.Len(t, c1.sent, sent, "unknown connection leaves silently")
}

func TestCreateBroadcastsToEveryone(t *testing.T) {
	mem := store.NewMemory()
	b := newTestBoard(t, mem)
	sender := joinConn(t, b, "c1")
	peer := joinConn(t, b, "c2")

	obj := wire.BoardObject{ID: "obj-1", Type: "rectangle", X: 10, UpdatedAt: "2026-08-30T10:00:00Z"}
	b.handleMessage("c1", encode(t, wire.Message{Type: wire.TypeObjectCreate, Object: &obj}))

	assert.Equal(t, wire.TypeObjectCreate, lastMessage(t, sender).Type, "creates echo back to the sender")
	assert.Equal(t, wire.TypeObjectCreate, lastMessage(t, peer).Type)
	assert.True(t, mem.HasObject("board-1", "obj-1"))
}

func TestUpdateLastWriterWins(t *testing.T) {
	mem := store.NewMemory()
	b := newTestBoard(t, mem)
	sender := joinConn(t, b, "c1")
	peer := joinConn(t, b, "c2")

	b.objects["obj-1"] = wire.BoardObject{ID: "obj-1", Type: "rectangle", X: 1, UpdatedAt: "2026-08-30T10:00:05Z"}
	peerSent := len(peer.sent)

	// Older timestamp: rejected, no broadcast, nothing persisted.
	stale := wire.BoardObject{ID: "obj-1", Type: "rectangle", X: 99, UpdatedAt: "2026-08-30T10:00:01Z"}
	b.handleMessage("c1", encode(t, wire.Message{Type: wire.TypeObjectUpdate, Object: &stale}))
	assert.Equal(t, 1.0, b.objects["obj-1"].X)
	assert.Len(t, peer.sent, peerSent)

	// Equal timestamp: accepted.
	tie := wire.BoardObject{ID: "obj-1", Type: "rectangle", X: 50, UpdatedAt: "2026-08-30T10:00:05Z"}
	b.handleMessage("c1", encode(t, wire.Message{Type: wire.TypeObjectUpdate, Object: &tie}))
	assert.Equal(t, 50.0, b.objects["obj-1"].X)

	// Newer timestamp: accepted, broadcast excludes the sender.
	senderSent := len(sender.sent)
	fresh := wire.BoardObject{ID: "obj-1", Type: "rectangle", X: 70, UpdatedAt: "2026-08-30T10:00:09Z"}
	b.handleMessage("c1", encode(t, wire.Message{Type: wire.TypeObjectUpdate, Object: &fresh}))
	assert.Equal(t, 70.0, b.objects["obj-1"].X)
	assert.Len(t, sender.sent, senderSent, "updates do not echo to the sender")
	assert.Equal(t, wire.TypeObjectUpdate, lastMessage(t, peer).Type)
	assert.True(t, mem.HasObject("board-1", "obj-1"))

	// Updates to unknown records are accepted outright.
	novel := wire.BoardObject{ID: "obj-2", Type: "ellipse", UpdatedAt: "2026-08-30T09:00:00Z"}
	b.handleMessage("c1", encode(t, wire.Message{Type: wire.TypeObjectUpdate, Object: &novel}))
	assert.Contains(t, b.objects, "obj-2")
}

func TestEphemeralUpdateSkipsPersistence(t *testing.T) {
	mem := store.NewMemory()
	b := newTestBoard(t, mem)
	joinConn(t, b, "c1")
	peer := joinConn(t, b, "c2")

	drag := wire.BoardObject{ID: "obj-1", Type: "sticky", X: 5, UpdatedAt: "2026-08-30T10:00:00Z"}
	b.handleMessage("c1", encode(t, wire.Message{Type: wire.TypeObjectUpdate, Object: &drag, Ephemeral: true}))

	assert.Equal(t, 5.0, b.objects["obj-1"].X, "ephemeral updates still mutate live state")
	msg := lastMessage(t, peer)
	assert.True(t, msg.Ephemeral, "the flag rides along to peers")
	assert.False(t, mem.HasObject("board-1", "obj-1"))
}

func TestDeleteBroadcastsToEveryone(t *testing.T) {
	mem := store.NewMemory()
	b := newTestBoard(t, mem)
	b.createObject(wire.BoardObject{ID: "obj-1", Type: "rectangle"}, nil)
	sender := joinConn(t, b, "c1")

	b.handleMessage("c1", encode(t, wire.Message{Type: wire.TypeObjectDelete, ObjectID: "obj-1"}))

	assert.NotContains(t, b.objects, "obj-1")
	msg := lastMessage(t, sender)
	assert.Equal(t, wire.TypeObjectDelete, msg.Type, "deletes echo back to the sender")
	assert.Equal(t, "obj-1", msg.ObjectID)
	assert.False(t, mem.HasObject("board-1", "obj-1"))
}

func TestCursorIsStampedAndExcludesSender(t *testing.T) {
	b := newTestBoard(t, store.NewMemory())
	sender := joinConn(t, b, "c1")
	peer := joinConn(t, b, "c2")
	senderSent := len(sender.sent)

	before := time.Now().UnixMilli()
	b.handleMessage("c1", encode(t, wire.Message{Type: wire.TypeCursorUpdate, X: 120, Y: 80, ViewportScale: 1.5}))

	assert.Len(t, sender.sent, senderSent)
	msg := lastMessage(t, peer)
	require.NotNil(t, msg.Cursor)
	assert.Equal(t, "c1", msg.Cursor.UserID)
	assert.Equal(t, ColorFor("c1"), msg.Cursor.Color)
	assert.Equal(t, 120.0, msg.Cursor.X)
	assert.Equal(t, 1.5, msg.Cursor.ViewportScale)
	assert.GreaterOrEqual(t, msg.Cursor.LastUpdate, before, "timestamp is server-assigned")
}

func TestMalformedAndUnknownMessagesDropped(t *testing.T) {
	b := newTestBoard(t, store.NewMemory())
	peer := joinConn(t, b, "c1")
	sent := len(peer.sent)

	b.handleMessage("c1", []byte(`{not json`))
	b.handleMessage("c1", []byte(`{"type":"mystery:op"}`))
	b.handleMessage("c1", encode(t, wire.Message{Type: wire.TypeObjectCreate})) // missing object
	b.handleMessage("c1", encode(t, wire.Message{Type: wire.TypeObjectDelete})) // missing id

	assert.Len(t, peer.sent, sent, "bad input never reaches peers")
	assert.Empty(t, b.objects)
}

func TestFrameCreateSortsAndExcludesSender(t *testing.T) {
	mem := store.NewMemory()
	b := newTestBoard(t, mem)
	sender := joinConn(t, b, "c1")
	peer := joinConn(t, b, "c2")
	senderSent := len(sender.sent)

	b.handleMessage("c1", encode(t, wire.Message{Type: wire.TypeFrameCreate, Frame: &wire.Frame{ID: "frame-2", Index: 2}}))
	b.handleMessage("c1", encode(t, wire.Message{Type: wire.TypeFrameCreate, Frame: &wire.Frame{ID: "frame-1", Index: 1}}))

	require.Len(t, b.frames, 3)
	assert.Equal(t, []string{"frame-0", "frame-1", "frame-2"}, []string{b.frames[0].ID, b.frames[1].ID, b.frames[2].ID})
	assert.Len(t, sender.sent, senderSent)
	assert.Equal(t, wire.TypeFrameCreate, lastMessage(t, peer).Type)

	frames, err := mem.LoadFrames(context.Background(), "board-1")
	require.NoError(t, err)
	assert.Len(t, frames, 2, "the default frame is synthesized, not persisted")
}

func TestDeleteLastFrameIsRefused(t *testing.T) {
	b := newTestBoard(t, store.NewMemory())
	peer := joinConn(t, b, "c1")
	b.objects["obj-1"] = wire.BoardObject{ID: "obj-1", Type: "rectangle"}
	sent := len(peer.sent)

	b.handleMessage("c1", encode(t, wire.Message{Type: wire.TypeFrameDelete, FrameID: "frame-0"}))

	assert.Len(t, b.frames, 1)
	assert.Contains(t, b.objects, "obj-1", "a refused delete removes nothing")
	assert.Len(t, peer.sent, sent)
}

func TestDeleteUnknownFrameIsNoOp(t *testing.T) {
	b := newTestBoard(t, store.NewMemory())
	b.createFrame(wire.Frame{ID: "frame-1", Index: 1}, nil)
	peer := joinConn(t, b, "c1")
	sent := len(peer.sent)

	b.handleMessage("c1", encode(t, wire.Message{Type: wire.TypeFrameDelete, FrameID: "frame-99"}))

	assert.Len(t, b.frames, 2)
	assert.Len(t, peer.sent, sent)
}

func TestFrameDeleteCascadesAndBroadcastsToEveryone(t *testing.T) {
	mem := store.NewMemory()
	b := newTestBoard(t, mem)
	b.createFrame(wire.Frame{ID: "frame-1", Index: 1}, nil)

	inside := wire.BoardObject{ID: "obj-in", Type: "rectangle", X: 2300, Y: 0, Width: 100, Height: 100}
	outside := wire.BoardObject{ID: "obj-out", Type: "rectangle", X: 0, Y: 0, Width: 100, Height: 100}
	b.createObject(inside, nil)
	b.createObject(outside, nil)

	sender := joinConn(t, b, "c1")

	b.handleMessage("c1", encode(t, wire.Message{Type: wire.TypeFrameDelete, FrameID: "frame-1"}))

	msg := lastMessage(t, sender)
	assert.Equal(t, wire.TypeFrameDelete, msg.Type, "frame deletes echo back to the sender")
	assert.Equal(t, "frame-1", msg.FrameID)
	assert.Equal(t, []string{"obj-in"}, msg.DeletedObjectIDs)

	assert.NotContains(t, b.objects, "obj-in")
	assert.Contains(t, b.objects, "obj-out")
	require.Len(t, b.frames, 1)
	assert.Equal(t, "frame-0", b.frames[0].ID)
	assert.False(t, mem.HasObject("board-1", "obj-in"))
	assert.True(t, mem.HasObject("board-1", "obj-out"))
}

func TestActionBatchFollowsWebsocketRules(t *testing.T) {
	mem := store.NewMemory()
	b := newTestBoard(t, mem)
	peer := joinConn(t, b, "c1")

	b.objects["obj-keep"] = wire.BoardObject{ID: "obj-keep", Type: "rectangle", X: 1, UpdatedAt: "2026-08-30T10:00:05Z"}

	processed := b.applyActions([]wire.Action{
		{Type: "create", Object: &wire.BoardObject{ID: "obj-new", Type: "sticky", UpdatedAt: "2026-08-30T10:00:00Z"}},
		{Type: "update", Object: &wire.BoardObject{ID: "obj-keep", Type: "rectangle", X: 9, UpdatedAt: "2026-08-30T09:00:00Z"}},
		{Type: "delete", ObjectID: "obj-new"},
		{Type: "update"}, // missing object
		{Type: "rename"}, // unknown type
	})

	assert.Equal(t, 3, processed, "malformed entries are skipped, not counted")
	assert.Equal(t, 1.0, b.objects["obj-keep"].X, "stale updates lose inside batches too")
	assert.NotContains(t, b.objects, "obj-new")
	// Every applied action reached connected clients.
	types := make([]string, 0, len(peer.sent))
	for _, msg := range peer.messages(t) {
		types = append(types, msg.Type)
	}
	assert.Contains(t, types, wire.TypeObjectCreate)
	assert.Contains(t, types, wire.TypeObjectDelete)
}

func TestRemoteRelayAppliesWithoutRepersisting(t *testing.T) {
	mem := store.NewMemory()
	b := newTestBoard(t, mem)
	peer := joinConn(t, b, "c1")

	obj := wire.BoardObject{ID: "obj-1", Type: "rectangle", X: 4, UpdatedAt: "2026-08-30T10:00:00Z"}
	b.handleRemote(encode(t, wire.Message{Type: wire.TypeObjectCreate, Object: &obj}))

	assert.Equal(t, 4.0, b.objects["obj-1"].X)
	assert.Equal(t, wire.TypeObjectCreate, lastMessage(t, peer).Type, "relayed payloads reach local clients")
	assert.False(t, mem.HasObject("board-1", "obj-1"), "the origin instance owns persistence")

	// Relayed stale updates lose the same way local ones do.
	stale := wire.BoardObject{ID: "obj-1", Type: "rectangle", X: 99, UpdatedAt: "2026-08-30T09:00:00Z"}
	b.handleRemote(encode(t, wire.Message{Type: wire.TypeObjectUpdate, Object: &stale}))
	assert.Equal(t, 4.0, b.objects["obj-1"].X)
}

func TestBoardLoopServesSnapshotsAndActions(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.UpsertObject(context.Background(), "board-1", wire.BoardObject{ID: "obj-1", Type: "rectangle"}))

	b := NewBoard("board-1", mem, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	processed := b.Actions([]wire.Action{
		{Type: "create", Object: &wire.BoardObject{ID: "obj-2", Type: "line", UpdatedAt: "2026-08-30T10:00:00Z"}},
	})
	assert.Equal(t, 1, processed)

	objects, frames := b.Snapshot()
	require.Len(t, objects, 2)
	assert.Equal(t, "obj-1", objects[0].ID, "snapshot is id-sorted")
	assert.Equal(t, "obj-2", objects[1].ID)
	require.Len(t, frames, 1)
	assert.Equal(t, 0, frames[0].Index)
}

func TestLoadStateUsesPersistedFrames(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.UpsertFrame(ctx, "board-1", wire.Frame{ID: "frame-1", Index: 1}))
	require.NoError(t, mem.UpsertFrame(ctx, "board-1", wire.Frame{ID: "frame-0", Index: 0}))

	b := NewBoard("board-1", mem, nil)
	b.loadState(ctx)

	require.Len(t, b.frames, 2)
	assert.Equal(t, "frame-0", b.frames[0].ID)
	assert.Equal(t, "frame-1", b.frames[1].ID)
}
