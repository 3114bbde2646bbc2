package wire

import (
	"encoding/json"
)

// Point is a single vertex of a line record.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Points is the vertex list of a line record. Clients historically sent it
// either as a JSON array or as a JSON-encoded string, so unmarshalling
// accepts both forms. It always marshals back as an array.
type Points []Point

// UnmarshalJSON accepts `[{"x":..},..]` as well as `"[{\"x\":..},..]"`.
func (p *Points) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*p = nil
		return nil
	}
	if data[0] == '"' {
		var encoded string
		if err := json.Unmarshal(data, &encoded); err != nil {
			return err
		}
		if encoded == "" {
			*p = nil
			return nil
		}
		var pts []Point
		if err := json.Unmarshal([]byte(encoded), &pts); err != nil {
			// Tolerate a corrupt embedded encoding: the record simply has
			// no usable points, matching client behavior.
			*p = nil
			return nil
		}
		*p = pts
		return nil
	}
	var pts []Point
	if err := json.Unmarshal(data, &pts); err != nil {
		return err
	}
	*p = pts
	return nil
}

// BoardObject is one record on the board. UpdatedAt is an ISO-8601 timestamp
// compared lexically for last-writer-wins resolution. Line records carry
// Points and optional non-owning references to their endpoint records.
type BoardObject struct {
	ID            string  `json:"id"`
	BoardID       string  `json:"board_id,omitempty"`
	Type          string  `json:"type"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Width         float64 `json:"width"`
	Height        float64 `json:"height"`
	Rotation      float64 `json:"rotation,omitempty"`
	Color         string  `json:"color,omitempty"`
	Text          string  `json:"text,omitempty"`
	ZIndex        int     `json:"z_index,omitempty"`
	CreatedBy     string  `json:"created_by,omitempty"`
	UpdatedAt     string  `json:"updated_at"`
	Points        Points  `json:"points,omitempty"`
	StartObjectID string  `json:"start_object_id,omitempty"`
	EndObjectID   string  `json:"end_object_id,omitempty"`
}

// IsLine reports whether the record is a line-type record.
func (o *BoardObject) IsLine() bool { return o.Type == "line" }

// Frame is a spatial container; its index determines its rectangle on the
// board via the frame origin function.
type Frame struct {
	ID      string `json:"id"`
	BoardID string `json:"board_id,omitempty"`
	Index   int    `json:"index"`
	Label   string `json:"label,omitempty"`
}

// PresenceUser is one entry of the live room roster.
type PresenceUser struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Color       string `json:"color"`
	ConnectedAt int64  `json:"connectedAt"`
}

// CursorData is a server-stamped cursor position relayed to peers.
type CursorData struct {
	UserID        string  `json:"userId"`
	DisplayName   string  `json:"displayName"`
	Color         string  `json:"color"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	LastUpdate    int64   `json:"lastUpdate"`
	ViewportX     float64 `json:"viewportX,omitempty"`
	ViewportY     float64 `json:"viewportY,omitempty"`
	ViewportScale float64 `json:"viewportScale,omitempty"`
}

// Message kinds exchanged over a room connection.
const (
	TypePresence     = "presence"
	TypeSync         = "sync"
	TypeFrameSync    = "frame:sync"
	TypeCursorUpdate = "cursor:update"
	TypeObjectCreate = "object:create"
	TypeObjectUpdate = "object:update"
	TypeObjectDelete = "object:delete"
	TypeFrameCreate  = "frame:create"
	TypeFrameDelete  = "frame:delete"
)

// Message is the envelope for every client and server message. Only the
// fields relevant to Type are populated.
type Message struct {
	Type string `json:"type"`

	// presence
	Users []PresenceUser `json:"users,omitempty"`

	// sync / frame:sync
	Objects []BoardObject `json:"objects,omitempty"`
	Frames  []Frame       `json:"frames,omitempty"`

	// cursor:update (client form carries X/Y, server form carries Cursor)
	X             float64     `json:"x,omitempty"`
	Y             float64     `json:"y,omitempty"`
	ViewportX     float64     `json:"viewportX,omitempty"`
	ViewportY     float64     `json:"viewportY,omitempty"`
	ViewportScale float64     `json:"viewportScale,omitempty"`
	Cursor        *CursorData `json:"cursor,omitempty"`

	// object:create / object:update / object:delete
	Object    *BoardObject `json:"object,omitempty"`
	ObjectID  string       `json:"objectId,omitempty"`
	Ephemeral bool         `json:"ephemeral,omitempty"`

	// frame:create / frame:delete
	Frame            *Frame   `json:"frame,omitempty"`
	FrameID          string   `json:"frameId,omitempty"`
	DeletedObjectIDs []string `json:"deletedObjectIds,omitempty"`
}

// Action is one entry of an HTTP action batch.
type Action struct {
	Type     string       `json:"type"` // create | update | delete
	Object   *BoardObject `json:"object,omitempty"`
	ObjectID string       `json:"objectId,omitempty"`
}

// ActionBatch is the body of a record-mutation POST.
type ActionBatch struct {
	Actions []Action `json:"actions"`
}
