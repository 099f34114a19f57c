package observer

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/bts-go/chaincore/pkg/chain/block"
	"github.com/bts-go/chaincore/pkg/chain/state"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsMessage is the envelope broadcast to every connected client.
type wsMessage struct {
	Channel string      `json:"channel"`
	Data    interface{} `json:"data"`
}

// Hub is a websocket transport for the observer bus: every connected
// client receives every block_applied/state_changed notification as a
// JSON envelope. Grounded directly on the teacher's api.Hub
// (pkg/api/websocket.go) register/unregister/broadcast channel triad.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan wsMessage
	register   chan *client
	unregister chan *client
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	id     string
	remote string
}

// NewHub creates a websocket hub implementing block.Observer.
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan wsMessage, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			log.Printf("[observer] client connected: %s (%s) (total: %d)", c.id, c.remote, len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				log.Printf("[observer] client disconnected: %s (%s) (total: %d)", c.id, c.remote, len(h.clients))
			}

		case msg := <-h.broadcast:
			payload, err := json.Marshal(msg)
			if err != nil {
				log.Printf("[observer] marshal error: %v", err)
				continue
			}
			for c := range h.clients {
				select {
				case c.send <- payload:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
		}
	}
}

// BlockApplied implements block.Observer, broadcasting a "blocks"
// channel message (spec §4.I "block_applied(summary)").
func (h *Hub) BlockApplied(summary block.BlockSummary) {
	h.broadcast <- wsMessage{Channel: "blocks", Data: summary}
}

// StateChanged implements block.Observer, broadcasting a "reorgs"
// channel message (spec §4.I "state_changed(undo_state)").
func (h *Hub) StateChanged(undo *state.UndoState) {
	h.broadcast <- wsMessage{Channel: "reorgs", Data: undo}
}

// ServeHTTP upgrades the connection and starts its read/write pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[observer] upgrade error: %v", err)
		return
	}
	// id is a per-connection identifier independent of the remote
	// address, so two subscribers behind the same NAT/proxy (a common
	// shape for block-feed consumers) are still distinguishable in
	// hub logs and future per-client disconnect/ack messages.
	c := &client{conn: conn, send: make(chan []byte, 256), id: uuid.NewString(), remote: conn.RemoteAddr().String()}
	h.register <- c
	go c.writePump()
	go c.readPump(h)
}

func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// NewHTTPHandler wires the hub's websocket endpoint and a health check
// behind CORS, mirroring the teacher's api.Server.setupRoutes/Start
// (pkg/api/server.go) but scoped to this node's observer feed only —
// market/account queries are served by pkg/boundary's Go accessors,
// not over HTTP.
func NewHTTPHandler(h *Hub) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/ws", h.ServeHTTP)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	})
	return c.Handler(router)
}

var _ block.Observer = (*Hub)(nil)
