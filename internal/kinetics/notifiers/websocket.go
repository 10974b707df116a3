package notifiers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/daniacca/stochkin/internal/kinetics"
	"github.com/gorilla/websocket"
)

const TypeWebSocket = "websocket"

const (
	wsWriteWait   = 10 * time.Second
	wsEnqueueWait = time.Second
)

// wsClient is one subscriber. A non-empty runID restricts it to the events
// of that run.
type wsClient struct {
	conn  *websocket.Conn
	runID kinetics.RunID
}

// WebSocketOptions tunes a websocket notifier.
type WebSocketOptions struct {
	Filter EventFilter
	// AllowedOrigins lists the Origin values accepted on upgrade. Empty
	// keeps the same-origin check; "*" accepts any origin.
	AllowedOrigins []string
}

// WebSocketNotifier fans run events out to every connected websocket
// client. Clients subscribe through ServeHTTP.
type WebSocketNotifier struct {
	id       string
	upgrader websocket.Upgrader
	filter   EventFilter

	mu      sync.RWMutex
	clients map[*websocket.Conn]*wsClient

	broadcast chan kinetics.RunEvent
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewWebSocketNotifier(id string, opts WebSocketOptions) *WebSocketNotifier {
	wsn := &WebSocketNotifier{
		id:        id,
		filter:    opts.Filter,
		clients:   make(map[*websocket.Conn]*wsClient),
		broadcast: make(chan kinetics.RunEvent, 256),
		done:      make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if len(opts.AllowedOrigins) > 0 {
		wsn.upgrader.CheckOrigin = originChecker(opts.AllowedOrigins)
	}
	wsn.wg.Add(1)
	go wsn.run()
	return wsn
}

// originChecker accepts requests without an Origin header, and those whose
// origin (scheme://host) or host appears in allowed.
func originChecker(allowed []string) func(*http.Request) bool {
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, a := range allowed {
			if strings.EqualFold(a, origin) || strings.EqualFold(a, u.Host) {
				return true
			}
		}
		return false
	}
}

func (wsn *WebSocketNotifier) ID() string   { return wsn.id }
func (wsn *WebSocketNotifier) Type() string { return TypeWebSocket }

// ClientCount returns the number of connected clients.
func (wsn *WebSocketNotifier) ClientCount() int {
	wsn.mu.RLock()
	defer wsn.mu.RUnlock()
	return len(wsn.clients)
}

// ServeHTTP upgrades the request and keeps the connection subscribed until
// the client goes away. The optional run_id query parameter filters events.
func (wsn *WebSocketNotifier) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := wsn.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}
	client := &wsClient{conn: conn, runID: kinetics.RunID(r.URL.Query().Get("run_id"))}
	if !wsn.register(client) {
		conn.Close()
		return
	}
	defer wsn.unregister(conn)

	// Drain reads so control frames are handled and closes are noticed.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (wsn *WebSocketNotifier) register(c *wsClient) bool {
	wsn.mu.Lock()
	defer wsn.mu.Unlock()
	select {
	case <-wsn.done:
		return false
	default:
	}
	wsn.clients[c.conn] = c
	return true
}

func (wsn *WebSocketNotifier) unregister(conn *websocket.Conn) {
	wsn.mu.Lock()
	if _, ok := wsn.clients[conn]; ok {
		delete(wsn.clients, conn)
		conn.Close()
	}
	wsn.mu.Unlock()
}

// Notify queues the event for broadcast unless the filter rejects it.
func (wsn *WebSocketNotifier) Notify(ctx context.Context, event kinetics.RunEvent) error {
	if !wsn.filter.Match(event) {
		return nil
	}
	select {
	case <-wsn.done:
		return fmt.Errorf("websocket notifier %s is closed", wsn.id)
	default:
	}
	select {
	case wsn.broadcast <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wsEnqueueWait):
		return fmt.Errorf("websocket notifier %s: broadcast queue full", wsn.id)
	}
}

func (wsn *WebSocketNotifier) run() {
	defer wsn.wg.Done()
	for {
		select {
		case <-wsn.done:
			return
		case event := <-wsn.broadcast:
			wsn.send(event)
		}
	}
}

func (wsn *WebSocketNotifier) send(event kinetics.RunEvent) {
	payload, err := event.JSON()
	if err != nil {
		return
	}

	wsn.mu.RLock()
	targets := make([]*wsClient, 0, len(wsn.clients))
	for _, c := range wsn.clients {
		if c.runID == "" || c.runID == event.RunID {
			targets = append(targets, c)
		}
	}
	wsn.mu.RUnlock()

	for _, c := range targets {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			wsn.unregister(c.conn)
		}
	}
}

// Close disconnects every client and stops the broadcaster. Events still
// queued are dropped.
func (wsn *WebSocketNotifier) Close() error {
	wsn.closeOnce.Do(func() {
		wsn.mu.Lock()
		close(wsn.done)
		for conn := range wsn.clients {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "notifier closed"),
				time.Now().Add(time.Second))
			conn.Close()
			delete(wsn.clients, conn)
		}
		wsn.mu.Unlock()
		wsn.wg.Wait()
	})
	return nil
}
