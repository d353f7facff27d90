package server

import (
	"log"
	"net/http"
	"time"

	godebug "github.com/Shyp/go-debug"
	metrics "github.com/Shyp/go-simple-metrics"
	"github.com/gorilla/websocket"
	"github.com/reika0717/sparql-proxy/queue"
)

var liveDebug = godebug.Debug("sparql-proxy:live")

const writeWait = 10 * time.Second
const pingPeriod = 30 * time.Second

var upgrader = websocket.Upgrader{
	// The admin cookie is the access control; the dashboard may be
	// served from another origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// A liveMessage is one JSON frame from an admin client.
type liveMessage struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// stateFrame wraps a queue snapshot for the wire.
type stateFrame struct {
	Type string `json:"type"`
	queue.State
}

// GET /live
//
// Upgrades to a websocket that pushes a queue snapshot on every
// transition and accepts purge_cache / cancel_job frames. Connections
// without the admin cookie are refused before the upgrade.
func (s *server) handleLive(w http.ResponseWriter, r *http.Request) {
	if !s.isAdmin(r) {
		forbidden(w, new403(r))
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("live: upgrade failed: %s", err)
		return
	}
	go metrics.Increment("live.connect")
	liveDebug("admin connected from %s", r.RemoteAddr)

	states := s.Queue.Subscribe()
	done := make(chan struct{})
	go s.pushStates(conn, states, done)

	defer close(done)
	defer s.Queue.Unsubscribe(states)
	for {
		var msg liveMessage
		if err := conn.ReadJSON(&msg); err != nil {
			liveDebug("read: %s", err)
			return
		}
		switch msg.Type {
		case "purge_cache":
			if err := s.Store.Purge(); err != nil {
				log.Printf("live: purge failed: %s", err)
				go metrics.Increment("live.purge.error")
			} else {
				go metrics.Increment("live.purge")
			}
		case "cancel_job":
			if s.Queue.Cancel(msg.ID) {
				go metrics.Increment("live.cancel")
			}
		default:
			liveDebug("unknown message type %q", msg.Type)
		}
	}
}

// pushStates owns all writes to the connection: the initial snapshot,
// transition events, and keepalive pings.
func (s *server) pushStates(conn *websocket.Conn, states chan queue.State, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer conn.Close()
	if err := writeState(conn, s.Queue.State()); err != nil {
		return
	}
	for {
		select {
		case state := <-states:
			if err := writeState(conn, state); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func writeState(conn *websocket.Conn, state queue.State) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(stateFrame{Type: "state", State: state})
}
