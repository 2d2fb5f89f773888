package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nandanugg/geotrack/module/core/domain"
)

const sendBuffer = 64

var ErrTooManyConnections = errors.New("too many websocket connections")

// Op names sent to map clients.
const (
	OpSnapshot     = "snapshot"
	OpMoveCamera   = "move_camera"
	OpDrawCircle   = "draw_circle"
	OpRemoveCircle = "remove_circle"
	OpPlaceMarker  = "place_marker"
	OpRemoveMarker = "remove_marker"
)

type Message struct {
	Op           string           `json:"op"`
	ID           string           `json:"id,omitempty"`
	Latitude     float64          `json:"latitude,omitempty"`
	Longitude    float64          `json:"longitude,omitempty"`
	RadiusMeters float64          `json:"radius_meters,omitempty"`
	Title        string           `json:"title,omitempty"`
	Snapshot     *SnapshotPayload `json:"snapshot,omitempty"`
}

type SnapshotPayload struct {
	Camera  *Message  `json:"camera,omitempty"`
	Circles []Message `json:"circles"`
	Markers []Message `json:"markers"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Broadcaster is a map surface whose draw operations are pushed to every
// connected websocket client. New clients receive the current scene first.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	maxConns int
	logger   *slog.Logger

	sceneMu sync.Mutex
	camera  *Message
	circles map[string]Message
	markers map[string]Message
}

func NewBroadcaster(maxConns int, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		clients:  make(map[*client]bool),
		maxConns: maxConns,
		logger:   logger,
		circles:  make(map[string]Message),
		markers:  make(map[string]Message),
	}
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	data, err := json.Marshal(Message{Op: OpSnapshot, Snapshot: b.snapshot()})
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		return nil, ErrTooManyConnections
	}
	c := newClient(conn)
	b.clients[c] = true
	c.send <- data
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) MoveCamera(p domain.GeoPoint) {
	msg := Message{Op: OpMoveCamera, Latitude: p.Lat, Longitude: p.Lon}
	b.sceneMu.Lock()
	b.camera = &msg
	b.sceneMu.Unlock()
	b.broadcast(msg)
}

func (b *Broadcaster) DrawCircle(id string, center domain.GeoPoint, radiusMeters float64) {
	msg := Message{Op: OpDrawCircle, ID: id, Latitude: center.Lat, Longitude: center.Lon, RadiusMeters: radiusMeters}
	b.sceneMu.Lock()
	b.circles[id] = msg
	b.sceneMu.Unlock()
	b.broadcast(msg)
}

func (b *Broadcaster) RemoveCircle(id string) {
	b.sceneMu.Lock()
	delete(b.circles, id)
	b.sceneMu.Unlock()
	b.broadcast(Message{Op: OpRemoveCircle, ID: id})
}

func (b *Broadcaster) PlaceMarker(id string, p domain.GeoPoint, title string) {
	msg := Message{Op: OpPlaceMarker, ID: id, Latitude: p.Lat, Longitude: p.Lon, Title: title}
	b.sceneMu.Lock()
	b.markers[id] = msg
	b.sceneMu.Unlock()
	b.broadcast(msg)
}

func (b *Broadcaster) RemoveMarker(id string) {
	b.sceneMu.Lock()
	delete(b.markers, id)
	b.sceneMu.Unlock()
	b.broadcast(Message{Op: OpRemoveMarker, ID: id})
}

func (b *Broadcaster) snapshot() *SnapshotPayload {
	b.sceneMu.Lock()
	defer b.sceneMu.Unlock()

	snap := &SnapshotPayload{
		Circles: make([]Message, 0, len(b.circles)),
		Markers: make([]Message, 0, len(b.markers)),
	}
	if b.camera != nil {
		cam := *b.camera
		snap.Camera = &cam
	}
	for _, m := range b.circles {
		snap.Circles = append(snap.Circles, m)
	}
	for _, m := range b.markers {
		snap.Markers = append(snap.Markers, m)
	}
	sort.Slice(snap.Circles, func(i, j int) bool { return snap.Circles[i].ID < snap.Circles[j].ID })
	sort.Slice(snap.Markers, func(i, j int) bool { return snap.Markers[i].ID < snap.Markers[j].ID })
	return snap
}

func (b *Broadcaster) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("broadcast marshal error", "error", err)
		return
	}

	var slow []*client
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		b.logger.Warn("ws client too slow, disconnecting")
		b.RemoveClient(c)
	}
}

// Handler upgrades GET /ws and keeps the client registered until it
// disconnects.
type Handler struct {
	broadcaster *Broadcaster
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

func NewHandler(b *Broadcaster, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		broadcaster: b,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (h *Handler) Register(r *gin.RouterGroup) {
	r.GET("/ws", h.Serve)
}

func (h *Handler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade error", "error", err)
		return
	}

	cl, err := h.broadcaster.AddClient(conn)
	if err != nil {
		h.logger.Warn("ws client rejected", "remote", c.Request.RemoteAddr, "error", err)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		conn.Close()
		return
	}
	h.logger.Info("ws client connected", "remote", c.Request.RemoteAddr)

	defer func() {
		h.broadcaster.RemoveClient(cl)
		h.logger.Info("ws client disconnected", "remote", c.Request.RemoteAddr)
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
