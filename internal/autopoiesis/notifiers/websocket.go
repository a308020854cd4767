package notifiers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/protocell/autopoiesim/internal/autopoiesis"
)

// WebSocketNotifier broadcasts tick events to all connected websocket
// clients. A single goroutine owns registration, unregistration and fan-out,
// so connection writes never race.
type WebSocketNotifier struct {
	id         string
	mu         sync.RWMutex
	clients    map[*websocket.Conn]bool
	upgrader   websocket.Upgrader
	broadcast  chan autopoiesis.TickEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	wg         sync.WaitGroup
}

// NewWebSocketNotifier creates the notifier and starts its broadcaster.
func NewWebSocketNotifier(id string) *WebSocketNotifier {
	n := &WebSocketNotifier{
		id:         id,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan autopoiesis.TickEvent, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	n.wg.Add(1)
	go n.run()
	return n
}

// ID returns the notifier id.
func (n *WebSocketNotifier) ID() string { return n.id }

// Type returns "websocket".
func (n *WebSocketNotifier) Type() string { return "websocket" }

// Upgrader returns the upgrader HTTP handlers use to accept clients.
func (n *WebSocketNotifier) Upgrader() websocket.Upgrader { return n.upgrader }

// RegisterClient hands a freshly upgraded connection to the broadcaster.
func (n *WebSocketNotifier) RegisterClient(conn *websocket.Conn) {
	select {
	case n.register <- conn:
	case <-n.done:
	}
}

// UnregisterClient removes a connection and closes it.
func (n *WebSocketNotifier) UnregisterClient(conn *websocket.Conn) {
	select {
	case n.unregister <- conn:
	case <-n.done:
	}
}

// Notify queues the event for broadcast to every connected client.
func (n *WebSocketNotifier) Notify(ctx context.Context, event autopoiesis.TickEvent) error {
	select {
	case n.broadcast <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Second):
		return fmt.Errorf("broadcast queue full")
	}
}

func (n *WebSocketNotifier) run() {
	defer n.wg.Done()
	for {
		select {
		case <-n.done:
			return

		case conn := <-n.register:
			if conn == nil {
				continue
			}
			n.mu.Lock()
			n.clients[conn] = true
			n.mu.Unlock()

		case conn := <-n.unregister:
			if conn == nil {
				continue
			}
			n.mu.Lock()
			if _, ok := n.clients[conn]; ok {
				delete(n.clients, conn)
				conn.Close()
			}
			n.mu.Unlock()

		case event, ok := <-n.broadcast:
			if !ok {
				return
			}
			payload, err := event.JSON()
			if err != nil {
				continue
			}
			n.fanOut(payload)
		}
	}
}

func (n *WebSocketNotifier) fanOut(payload []byte) {
	n.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(n.clients))
	for conn := range n.clients {
		conns = append(conns, conn)
	}
	n.mu.RUnlock()

	var failed []*websocket.Conn
	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			failed = append(failed, conn)
		}
	}
	if len(failed) > 0 {
		n.mu.Lock()
		for _, conn := range failed {
			delete(n.clients, conn)
		}
		n.mu.Unlock()
	}
}

// Close disconnects all clients and stops the broadcaster.
func (n *WebSocketNotifier) Close() error {
	close(n.done)

	n.mu.Lock()
	for conn := range n.clients {
		conn.Close()
		delete(n.clients, conn)
	}
	n.mu.Unlock()

	n.wg.Wait()
	return nil
}
