package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"git.0xdad.com/tblyler/lifespan/agent"
	"git.0xdad.com/tblyler/lifespan/notify"
)

const clientBuffer = 64

// Client is a connected page
type Client struct {
	ID   string
	Send chan []byte
}

// Hub fans relayed agent messages out to every connected page
type Hub struct {
	log *log.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub creates an empty hub
func NewHub(l *log.Logger) *Hub {
	return &Hub{
		log:     l,
		clients: make(map[*Client]struct{}),
	}
}

// Register a client
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = struct{}{}
}

// Unregister a client and close its Send channel
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	close(client.Send)
}

// Broadcast m to every client. Clients with a full buffer miss it.
func (h *Hub) Broadcast(m agent.Message) {
	data, err := json.Marshal(m)
	if err != nil {
		h.log.Error("failed to marshal relay message", "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.Send <- data:
		default:
			h.log.Debug("relay dropped for slow client", "client", client.ID, "type", m.Kind)
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Relay broadcasts messages until relays is closed or ctx is done
func (h *Hub) Relay(ctx context.Context, relays <-chan agent.Message) {
	for {
		select {
		case <-ctx.Done():
			return

		case m, ok := <-relays:
			if !ok {
				return
			}

			h.Broadcast(m)
		}
	}
}

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleConnect upgrades the request to a WebSocket and relays agent
// messages to it. Pages may report notification actions over the socket.
func (s *Server) handleConnect(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:   uuid.New().String(),
		Send: make(chan []byte, clientBuffer),
	}

	s.hub.Register(client)
	s.log.Debug("client connected", "client", client.ID)

	go s.writePump(client, ws)
	go s.readPump(client, ws)

	return nil
}

func (s *Server) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		s.hub.Unregister(client)
		ws.Close()
		s.log.Debug("client disconnected", "client", client.ID)
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var m agent.Message
		if err := json.Unmarshal(data, &m); err != nil {
			continue
		}

		s.handleClientMessage(client, m)
	}
}

func (s *Server) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for data := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (s *Server) handleClientMessage(client *Client, m agent.Message) {
	switch m.Kind {
	case agent.KindPing:
		if err := s.agent.Ping(context.Background()); err != nil {
			s.log.Debug("ping from client failed", "client", client.ID, "err", err)
			return
		}

		data, err := json.Marshal(agent.Message{Kind: agent.KindPong, At: s.now()})
		if err != nil {
			return
		}

		s.hub.mu.RLock()
		defer s.hub.mu.RUnlock()

		if _, ok := s.hub.clients[client]; ok {
			select {
			case client.Send <- data:
			default:
			}
		}

	case agent.KindAction:
		action, err := notify.ParseAction(string(m.Action))
		if err != nil {
			s.log.Debug("ignoring client action", "client", client.ID, "err", err)
			return
		}

		if err := s.agent.Report(context.Background(), m.Tag, action, m.ReminderID); err != nil {
			s.log.Warn("failed to report client action", "client", client.ID, "tag", m.Tag, "err", err)
		}
	}
}
