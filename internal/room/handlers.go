package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"liveboard/internal/config"
	"liveboard/internal/store"
	"liveboard/pkg/wire"
)

// Server owns the board registry and the HTTP/websocket surface. Boards are
// created on first use and run until the server context is cancelled; the
// registry is the only cross-room shared state and the only place a lock is
// needed.
type Server struct {
	cfg      *config.Config
	st       store.Store
	bridge   *Bridge
	ctx      context.Context
	upgrader websocket.Upgrader

	mu     sync.Mutex
	boards map[string]*Board
}

// NewServer creates the room server. st and bridge may be nil (persistence
// and cross-instance relay disabled, respectively).
func NewServer(ctx context.Context, cfg *config.Config, st store.Store, bridge *Bridge) *Server {
	return &Server{
		cfg:    cfg,
		st:     st,
		bridge: bridge,
		ctx:    ctx,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		boards: make(map[string]*Board),
	}
}

// Routes builds the HTTP router.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	if s.cfg.CORS.Enabled {
		r.Use(s.corsMiddleware)
	}
	r.HandleFunc("/rooms/{room}/ws", s.handleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{room}", s.handleSnapshot).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/rooms/{room}", s.handleActions).Methods(http.MethodPost)
	return r
}

// board returns the running board for a room id, starting it on first use.
func (s *Server) board(roomID string) *Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.boards[roomID]; ok {
		return b
	}
	b := NewBoard(roomID, s.st, s.bridge)
	s.boards[roomID] = b
	go b.Run(s.ctx)
	return b
}

// handleWebSocket upgrades the connection, registers it with the room's
// board, and pumps inbound messages into the board loop until the client
// disconnects. All writes to the socket happen on the board loop, so the
// single-writer requirement of the websocket package holds.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["room"]

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("room %s: websocket upgrade failed: %v", roomID, err)
		return
	}

	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = uuid.NewString()
	}
	displayName := r.URL.Query().Get("displayName")
	if displayName == "" {
		displayName = "Anonymous"
	}

	connID := ulid.Make().String()
	user := wire.PresenceUser{
		UserID:      userID,
		DisplayName: displayName,
		Color:       ColorFor(userID),
		ConnectedAt: time.Now().UnixMilli(),
	}

	ws := &wsConn{conn: conn}
	board := s.board(roomID)
	board.Join(connID, ws, user)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		board.Deliver(connID, data)
	}

	ws.closed.Store(true)
	board.Leave(connID)
	conn.Close()
}

// handleSnapshot returns the current {objects, frames} view of a room.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	objects, frames := s.board(mux.Vars(r)["room"]).Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"objects": objects,
		"frames":  frames,
	})
}

// handleActions applies a bearer-token-guarded batch of record actions with
// the same rules as the websocket path.
func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	secret := s.cfg.Secret()
	if secret == "" {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "shared secret not configured"})
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+secret {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}

	var batch wire.ActionBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("invalid body: %v", err)})
		return
	}

	processed := s.board(mux.Vars(r)["room"]).Actions(batch.Actions)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "processed": processed})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORS.AllowOrigins)
		w.Header().Set("Access-Control-Allow-Methods", s.cfg.CORS.AllowMethods)
		w.Header().Set("Access-Control-Allow-Headers", s.cfg.CORS.AllowHeaders)
		if s.cfg.CORS.AllowCredentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", s.cfg.CORS.MaxAge))
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("writing response: %v", err)
	}
}

// wsConn adapts a websocket connection to the Conn interface. The closed
// flag is flipped by the read pump on disconnect so in-flight broadcasts
// skip the connection instead of writing to a dead socket.
type wsConn struct {
	conn   *websocket.Conn
	closed atomic.Bool
}

func (w *wsConn) Send(data []byte) error {
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) Open() bool { return !w.closed.Load() }
