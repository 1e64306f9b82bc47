// Package viewer is the remote visualization backend. Browsers subscribe to
// a frame stream and steer the robot through a JSON-RPC control service.
package viewer

import (
	"encoding/json"
	"log"
	"net/http"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	xws "golang.org/x/net/websocket"

	"github.com/nobonobo/rigsim/assets"
	"github.com/nobonobo/rigsim/driver"
	"github.com/nobonobo/rigsim/mechanism"
	"github.com/nobonobo/rigsim/protocol"
	"github.com/nobonobo/rigsim/schedule"
)

const sendQueue = 16

var _ driver.Visualizer = (*Hub)(nil)

type message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans rendered frames out to stream clients and collects steering input.
type Hub struct {
	sync.RWMutex
	Scene    *assets.Model // optional meshes bound by body or group name
	upgrader websocket.Upgrader
	clients  map[string]*client
	scene    *protocol.Scene
	latest   *protocol.Frame
	input    schedule.Latch
	dropped  atomic.Int64
	closed   bool
	rpc      *rpc.Server
}

// NewHub ...
func NewHub(idle time.Duration) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: map[string]*client{},
		rpc:     rpc.NewServer(),
	}
	if err := h.rpc.RegisterName("Control", NewControl(h, idle)); err != nil {
		panic(err)
	}
	return h
}

// BindAssets prepares the scene description sent to every new client.
func (h *Hub) BindAssets(m *mechanism.Mechanism) error {
	meshes := map[string]string{}
	for _, b := range assets.Bind(m, h.Scene) {
		meshes[m.Body(b.Body).Name] = b.Model.Name
	}
	h.Lock()
	h.scene = protocol.NewScene(m, meshes)
	h.Unlock()
	return nil
}

// RenderFrame publishes the snapshot without waiting for slow clients; a
// client whose queue is full misses the frame.
func (h *Hub) RenderFrame(s *driver.Snapshot) error {
	f := protocol.NewFrame(s)
	b, err := json.Marshal(message{Type: "frame", Data: f})
	if err != nil {
		return err
	}
	h.Lock()
	h.latest = f
	closed := h.closed
	h.Unlock()
	if closed {
		return driver.ErrStop
	}
	h.RLock()
	defer h.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// PollInput returns the latest steering command.
func (h *Hub) PollInput() (schedule.Direction, bool) {
	return h.input.Direction(0)
}

// Steer latches a direction for the next tick.
func (h *Hub) Steer(d schedule.Direction) { h.input.Set(d) }

// Latest returns the last rendered frame, or nil.
func (h *Hub) Latest() *protocol.Frame {
	h.RLock()
	defer h.RUnlock()
	return h.latest
}

// Clients ...
func (h *Hub) Clients() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.clients)
}

// Dropped counts frames skipped for slow clients.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// ServeStream upgrades the request and streams frames until the client
// goes away.
func (h *Hub) ServeStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("viewer: upgrade:", err)
		return
	}
	id := ulid.Make().String()
	c := &client{conn: conn, send: make(chan []byte, sendQueue)}
	h.Lock()
	if h.closed {
		h.Unlock()
		conn.Close()
		return
	}
	if h.scene != nil {
		b, err := json.Marshal(message{Type: "scene", Data: h.scene})
		if err == nil {
			c.send <- b
		}
	}
	h.clients[id] = c
	h.Unlock()
	log.Println("viewer: connect:", id, r.RemoteAddr)

	go c.write()
	defer h.drop(id)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) write() {
	defer c.conn.Close()
	for b := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) drop(id string) {
	h.Lock()
	defer h.Unlock()
	if c, ok := h.clients[id]; ok {
		close(c.send)
		delete(h.clients, id)
		log.Println("viewer: disconnect:", id)
	}
}

// serveRPC runs the control service on a golang.org/x/net/websocket
// connection.
func (h *Hub) serveRPC(ws *xws.Conn) {
	log.Println("viewer: control connect:", ws.Request().RemoteAddr)
	defer log.Println("viewer: control disconnect:", ws.Request().RemoteAddr)
	h.rpc.ServeCodec(jsonrpc.NewServerCodec(ws))
}

// Handler mounts /ws (control), /stream (frames) and, when static is not
// empty, a file server for the browser client.
func (h *Hub) Handler(static string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", xws.Handler(h.serveRPC))
	mux.HandleFunc("/stream", h.ServeStream)
	if static != "" {
		mux.Handle("/", http.FileServer(http.Dir(static)))
	}
	return mux
}

// Close disconnects every stream client. The next RenderFrame returns
// driver.ErrStop.
func (h *Hub) Close() error {
	h.Lock()
	defer h.Unlock()
	h.closed = true
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
	return nil
}
