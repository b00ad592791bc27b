package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	broadcastBuffer = 256
	writeTimeout    = 5 * time.Second
)

// WebSocketTransport broadcasts every sent value as JSON to all clients
// connected on /ws. Slow consumers lose messages rather than stall jobs.
type WebSocketTransport struct {
	addr      string
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan any
	server    *http.Server
	listener  net.Listener
	dropped   atomic.Uint64
	closeOnce sync.Once
	done      chan struct{}
}

// NewWebSocketTransport prepares a transport listening on addr. The
// broadcast loop runs immediately; call Start to accept connections or
// mount Handler on an existing server.
func NewWebSocketTransport(addr string) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan any, broadcastBuffer),
		done:      make(chan struct{}),
	}
	go wst.handleBroadcasts()
	return wst
}

// Handler returns the upgrade handler.
func (wst *WebSocketTransport) Handler() http.Handler {
	return http.HandlerFunc(wst.handleWebSocket)
}

// Start binds the listener and serves /ws in the background.
func (wst *WebSocketTransport) Start() error {
	ln, err := net.Listen("tcp", wst.addr)
	if err != nil {
		return fmt.Errorf("websocket listen on %s: %w", wst.addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/ws", wst.Handler())
	wst.listener = ln
	wst.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Infof("WebSocket server listening on %s", ln.Addr())
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("WebSocket server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address after Start, or the configured one.
func (wst *WebSocketTransport) Addr() string {
	if wst.listener != nil {
		return wst.listener.Addr().String()
	}
	return wst.addr
}

// ClientCount returns the number of connected clients.
func (wst *WebSocketTransport) ClientCount() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// Dropped returns how many messages were discarded on a full buffer.
func (wst *WebSocketTransport) Dropped() uint64 { return wst.dropped.Load() }

func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("WebSocket upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = true
	n := len(wst.clients)
	wst.clientsMu.Unlock()
	logger.Debugf("WebSocket client connected, total: %d", n)

	// Clients never send; the read only detects the close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.drop(conn)
				return
			}
		}
	}()
}

func (wst *WebSocketTransport) drop(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	n := len(wst.clients)
	wst.clientsMu.Unlock()
	if ok {
		conn.Close()
		logger.Debugf("WebSocket client disconnected, total: %d", n)
	}
}

func (wst *WebSocketTransport) handleBroadcasts() {
	for {
		select {
		case data := <-wst.broadcast:
			wst.clientsMu.Lock()
			for client := range wst.clients {
				client.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := client.WriteJSON(data); err != nil {
					logger.Warnf("WebSocket send failed, dropping client: %v", err)
					client.Close()
					delete(wst.clients, client)
				}
			}
			wst.clientsMu.Unlock()
		case <-wst.done:
			return
		}
	}
}

// Send queues data for broadcast. It never blocks.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case <-wst.done:
		return net.ErrClosed
	default:
	}
	select {
	case wst.broadcast <- data:
	default:
		wst.dropped.Add(1)
	}
	return nil
}

// Close disconnects all clients and shuts the server down.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		close(wst.done)

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.Close()
		}
		wst.clients = make(map[*websocket.Conn]bool)
		wst.clientsMu.Unlock()

		if wst.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			err = wst.server.Shutdown(ctx)
		}
	})
	return err
}

var _ Transport = (*WebSocketTransport)(nil)
