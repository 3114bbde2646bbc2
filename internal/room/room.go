// Package room implements the server-side session layer: per-room connection
// and presence bookkeeping, broadcast with sender exclusion, the board
// record-synchronization rules (last-writer-wins updates, cascade deletion of
// frame contents), and the HTTP/websocket surface.
package room

import (
	"encoding/json"
	"log"

	"liveboard/pkg/wire"
)

// Conn is the transport handle of one client connection. Send failures are
// the caller's signal to skip the connection, never to abort a broadcast.
type Conn interface {
	Send(data []byte) error
	Open() bool
}

type connection struct {
	conn Conn
	user wire.PresenceUser
}

// Room tracks the connections of one session and the cached presence
// payload. A Room is owned by a single board loop and holds no locks of its
// own; all mutation happens on that one sequence.
type Room struct {
	id            string
	conns         map[string]*connection
	order         []string
	presenceCache []byte
}

// NewRoom creates an empty room.
func NewRoom(id string) *Room {
	return &Room{id: id, conns: make(map[string]*connection)}
}

// ID returns the room id.
func (r *Room) ID() string { return r.id }

// Size returns the number of registered connections.
func (r *Room) Size() int { return len(r.conns) }

// AddConnection registers a connection and invalidates the cached presence
// payload.
func (r *Room) AddConnection(id string, conn Conn, user wire.PresenceUser) {
	if _, ok := r.conns[id]; !ok {
		r.order = append(r.order, id)
	}
	r.conns[id] = &connection{conn: conn, user: user}
	r.presenceCache = nil
}

// RemoveConnection unregisters a connection, returning its user. Unknown ids
// are a no-op.
func (r *Room) RemoveConnection(id string) (wire.PresenceUser, bool) {
	c, ok := r.conns[id]
	if !ok {
		return wire.PresenceUser{}, false
	}
	delete(r.conns, id)
	for i, connID := range r.order {
		if connID == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.presenceCache = nil
	return c.user, true
}

// User returns the presence entry of a connection.
func (r *Room) User(id string) (wire.PresenceUser, bool) {
	c, ok := r.conns[id]
	if !ok {
		return wire.PresenceUser{}, false
	}
	return c.user, true
}

// Users returns the roster in connection order.
func (r *Room) Users() []wire.PresenceUser {
	users := make([]wire.PresenceUser, 0, len(r.order))
	for _, id := range r.order {
		users = append(users, r.conns[id].user)
	}
	return users
}

// PresenceMessage returns the serialized presence payload. The payload is a
// derived value: invalidated on every topology change and rebuilt lazily on
// the next read.
func (r *Room) PresenceMessage() []byte {
	if r.presenceCache == nil {
		data, err := json.Marshal(wire.Message{Type: wire.TypePresence, Users: r.Users()})
		if err != nil {
			log.Printf("room %s: building presence payload: %v", r.id, err)
			return nil
		}
		r.presenceCache = data
	}
	return r.presenceCache
}

// Broadcast delivers data to every open connection except the excluded ids.
// Connections whose transport is not open are skipped and per-connection
// send failures are swallowed so one bad socket cannot abort the loop.
func (r *Room) Broadcast(data []byte, excludeIDs ...string) {
	var excluded map[string]struct{}
	if len(excludeIDs) > 0 {
		excluded = make(map[string]struct{}, len(excludeIDs))
		for _, id := range excludeIDs {
			excluded[id] = struct{}{}
		}
	}
	for _, id := range r.order {
		if _, skip := excluded[id]; skip {
			continue
		}
		c := r.conns[id]
		if !c.conn.Open() {
			continue
		}
		if err := c.conn.Send(data); err != nil {
			log.Printf("room %s: send to %s failed: %v", r.id, id, err)
		}
	}
}

// Send delivers data to exactly one connection; unknown or closed
// connections are a no-op.
func (r *Room) Send(id string, data []byte) {
	c, ok := r.conns[id]
	if !ok || !c.conn.Open() {
		return
	}
	if err := c.conn.Send(data); err != nil {
		log.Printf("room %s: send to %s failed: %v", r.id, id, err)
	}
}
