package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"tunitrip/internal/projection"
	"tunitrip/internal/search"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingEvery    = 30 * time.Second
)

// liveMessage is one websocket update. The first message after connecting
// lists every visible marker as created.
type liveMessage struct {
	At      time.Time           `json:"at"`
	Created []projection.Marker `json:"created"`
	Moved   []projection.Marker `json:"moved"`
	Removed []string            `json:"removed"`
}

// Hub fans projection frames out to websocket clients. Each client keeps
// its own tracker so it only receives changes within its filter.
type Hub struct {
	srv      *Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	last    *projection.Frame

	done      chan struct{}
	closeOnce sync.Once
}

type client struct {
	query   *search.Query
	frames  chan projection.Frame
	tracker *projection.Tracker
}

func newHub(s *Server) *Hub {
	return &Hub{
		srv: s,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
		done:    make(chan struct{}),
	}
}

// Consume records the frame and hands it to every client. A client still
// busy with an older frame gets the newer one in its place.
func (h *Hub) Consume(f projection.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &f
	for c := range h.clients {
		c.offer(f)
	}
}

func (c *client) offer(f projection.Frame) {
	select {
	case c.frames <- f:
		return
	default:
	}
	select {
	case <-c.frames:
	default:
	}
	select {
	case c.frames <- f:
	default:
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close tells every client to disconnect.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.offer(*h.last)
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// ServeWS upgrades the request and streams marker diffs until the client
// goes away. Search parameters in the URL filter the markers.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q, err := h.srv.liveQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	c := &client{
		query:   q,
		frames:  make(chan projection.Frame, 1),
		tracker: projection.NewTracker(),
	}
	h.register(c)
	defer h.unregister(c)
	if m := h.srv.metrics; m != nil {
		m.WSClientsAdd(1)
		defer m.WSClientsAdd(-1)
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(1 << 10)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			// Clients do not send anything meaningful; reading drives
			// pong and close handling.
			if _, _, err := conn.NextReader(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket read: %v", err)
				}
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingEvery)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return
		case <-h.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteTimeout))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case f := <-c.frames:
			diff := c.tracker.Apply(h.srv.filterMarkers(f.Markers, f.Snapshot, c.query))
			if diff.Empty() {
				continue
			}
			b, err := json.Marshal(liveMessage{At: f.At, Created: diff.Created, Moved: diff.Moved, Removed: diff.Removed})
			if err != nil {
				log.Printf("encode live message: %v", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}
