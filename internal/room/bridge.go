package room

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Bridge relays board broadcasts between server instances over Redis
// pub/sub, so two processes hosting the same room converge. Every payload is
// tagged with the publishing instance's id; an instance ignores its own
// publications. The bridge is a resilience layer only; a room on a single
// instance behaves identically without it.
type Bridge struct {
	rdb        *redis.Client
	instanceID string
}

type relayEnvelope struct {
	Src     string          `json:"src"`
	Payload json.RawMessage `json:"payload"`
}

// NewBridge wraps a connected Redis client.
func NewBridge(rdb *redis.Client) *Bridge {
	return &Bridge{rdb: rdb, instanceID: uuid.NewString()}
}

func relayChannel(roomID string) string { return "board:" + roomID }

// Publish sends a broadcast payload to sibling instances. Publish failures
// are logged and otherwise ignored: local room state stays authoritative.
func (br *Bridge) Publish(ctx context.Context, roomID string, payload []byte) {
	env, err := json.Marshal(relayEnvelope{Src: br.instanceID, Payload: payload})
	if err != nil {
		log.Printf("bridge: encoding relay envelope for %s: %v", roomID, err)
		return
	}
	if err := br.rdb.Publish(ctx, relayChannel(roomID), env).Err(); err != nil {
		log.Printf("bridge: publishing to %s: %v", relayChannel(roomID), err)
	}
}

// Subscribe starts a goroutine forwarding payloads published by other
// instances for roomID to fn, until ctx is cancelled.
func (br *Bridge) Subscribe(ctx context.Context, roomID string, fn func(payload []byte)) {
	pubsub := br.rdb.Subscribe(ctx, relayChannel(roomID))
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env relayEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					log.Printf("bridge: dropping malformed relay envelope on %s: %v", msg.Channel, err)
					continue
				}
				if env.Src == br.instanceID {
					continue
				}
				fn(env.Payload)
			}
		}
	}()
}
