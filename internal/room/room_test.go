package room

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveboard/pkg/wire"
)

// fakeConn records everything sent to it.
type fakeConn struct {
	sent    [][]byte
	closed  bool
	sendErr error
}

func (c *fakeConn) Send(data []byte) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeConn) Open() bool { return !c.closed }

func (c *fakeConn) messages(t *testing.T) []wire.Message {
	t.Helper()
	out := make([]wire.Message, 0, len(c.sent))
	for _, data := range c.sent {
		var msg wire.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		out = append(out, msg)
	}
	return out
}

func testUser(id string) wire.PresenceUser {
	return wire.PresenceUser{UserID: id, DisplayName: "user " + id, Color: ColorFor(id), ConnectedAt: 1}
}

func TestRoomRosterFollowsConnections(t *testing.T) {
	r := NewRoom("room-1")
	assert.Equal(t, 0, r.Size())

	for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		r.AddConnection(id, &fakeConn{}, testUser(id))
	}
	assert.Equal(t, 5, r.Size())
	assert.Len(t, r.Users(), 5)
	assert.Equal(t, "c1", r.Users()[0].UserID, "roster follows connection order")

	var roster wire.Message
	require.NoError(t, json.Unmarshal(r.PresenceMessage(), &roster))
	assert.Len(t, roster.Users, 5)

	user, ok := r.RemoveConnection("c3")
	require.True(t, ok)
	assert.Equal(t, "c3", user.UserID)
	assert.Equal(t, 4, r.Size())

	require.NoError(t, json.Unmarshal(r.PresenceMessage(), &roster))
	assert.Len(t, roster.Users, 4, "the cached payload is rebuilt, not served stale")

	ids := make([]string, 0, 4)
	for _, u := range r.Users() {
		ids = append(ids, u.UserID)
	}
	assert.Equal(t, []string{"c1", "c2", "c4", "c5"}, ids)

	_, ok = r.RemoveConnection("c3")
	assert.False(t, ok, "removing twice is a no-op")
}

func TestPresenceMessageRebuiltOnTopologyChange(t *testing.T) {
	r := NewRoom("room-1")
	r.AddConnection("c1", &fakeConn{}, testUser("c1"))

	first := r.PresenceMessage()
	var msg wire.Message
	require.NoError(t, json.Unmarshal(first, &msg))
	assert.Equal(t, wire.TypePresence, msg.Type)
	require.Len(t, msg.Users, 1)

	// Same topology, same cached bytes.
	assert.Equal(t, first, r.PresenceMessage())

	r.AddConnection("c2", &fakeConn{}, testUser("c2"))
	second := r.PresenceMessage()
	require.NoError(t, json.Unmarshal(second, &msg))
	assert.Len(t, msg.Users, 2)

	r.RemoveConnection("c1")
	third := r.PresenceMessage()
	require.NoError(t, json.Unmarshal(third, &msg))
	require.Len(t, msg.Users, 1)
	assert.Equal(t, "c2", msg.Users[0].UserID)
}

func TestBroadcastExcludesSender(t *testing.T) {
	r := NewRoom("room-1")
	conns := map[string]*fakeConn{}
	for _, id := range []string{"c1", "c2", "c3"} {
		c := &fakeConn{}
		conns[id] = c
		r.AddConnection(id, c, testUser(id))
	}

	r.Broadcast([]byte(`{"type":"object:update"}`), "c2")

	assert.Len(t, conns["c1"].sent, 1)
	assert.Empty(t, conns["c2"].sent)
	assert.Len(t, conns["c3"].sent, 1)
}

func TestBroadcastSkipsClosedAndSurvivesSendFailure(t *testing.T) {
	r := NewRoom("room-1")
	closed := &fakeConn{closed: true}
	failing := &fakeConn{sendErr: errors.New("broken pipe")}
	healthy := &fakeConn{}
	r.AddConnection("closed", closed, testUser("closed"))
	r.AddConnection("failing", failing, testUser("failing"))
	r.AddConnection("healthy", healthy, testUser("healthy"))

	r.Broadcast([]byte(`{"type":"presence"}`))

	assert.Empty(t, closed.sent)
	assert.Len(t, healthy.sent, 1, "a failing peer does not abort the loop")
}

func TestSendTargetsOneConnection(t *testing.T) {
	r := NewRoom("room-1")
	c1 := &fakeConn{}
	c2 := &fakeConn{}
	r.AddConnection("c1", c1, testUser("c1"))
	r.AddConnection("c2", c2, testUser("c2"))

	r.Send("c1", []byte(`{"type":"sync"}`))
	assert.Len(t, c1.sent, 1)
	assert.Empty(t, c2.sent)

	r.Send("ghost", []byte(`{}`)) // unknown connection, no-op
	c1.closed = true
	r.Send("c1", []byte(`{}`))
	assert.Len(t, c1.sent, 1, "closed connections receive nothing")
}

func TestColorAssignmentIsStable(t *testing.T) {
	a := ColorFor("user-42")
	assert.Equal(t, a, ColorFor("user-42"))
	assert.Contains(t, cursorColors, a)
	assert.Contains(t, cursorColors, ColorFor(""), "empty id still maps into the palette")
}
