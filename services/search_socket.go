package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"goldenbookAPI/internal/discovery"
	"goldenbookAPI/internal/types/establishment"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 1024

	handoffTimeout = 10 * time.Second
)

// SearchMessage is what the app sends over the live search socket.
type SearchMessage struct {
	Action string `json:"action"`
	Query  string `json:"query"`
}

type searchReply struct {
	Action      string                                `json:"action"`
	Query       string                                `json:"query,omitempty"`
	Suggestions []establishment.EstablishmentResponse `json:"suggestions,omitempty"`
	Total       int                                   `json:"total"`
	Visible     bool                                  `json:"visible"`
	SessionID   string                                `json:"session_id,omitempty"`
	State       discovery.State                       `json:"state,omitempty"`
	Error       string                                `json:"error,omitempty"`
}

// SearchClient binds one websocket to a search controller over a session's
// loaded set. Reads drive the controller; replies go out through Send.
type SearchClient struct {
	Conn   *websocket.Conn
	Send   chan []byte
	Search *discovery.SearchController

	service *DiscoveryService

	mu     sync.Mutex
	closed bool
}

// NewSearchClient loads the session if needed and wires a controller whose
// delayed hide is pushed to the client.
func (s *DiscoveryService) NewSearchClient(ctx context.Context, sessionID string, conn *websocket.Conn) (*SearchClient, error) {
	c := &SearchClient{
		Conn:    conn,
		Send:    make(chan []byte, 32),
		service: s,
	}

	search, _, err := s.NewSearch(ctx, sessionID, discovery.WithHideHook(c.pushState))
	if err != nil {
		return nil, err
	}
	c.Search = search
	return c, nil
}

func (c *SearchClient) ReadPump() {
	defer func() {
		c.Search.Stop()
		c.closeSend()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Debug("Search socket closed unexpectedly")
			}
			return
		}

		var msg SearchMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.push(searchReply{Action: "error", Error: "invalid message"})
			continue
		}
		c.Handle(msg)
	}
}

// Handle applies one client message to the controller.
func (c *SearchClient) Handle(msg SearchMessage) {
	switch msg.Action {
	case "query":
		c.Search.SetQuery(msg.Query)
		c.pushState()
	case "focus":
		c.Search.Focus()
		c.pushState()
	case "blur":
		c.Search.Blur()
	case "show_all":
		if msg.Query != "" {
			c.Search.SetQuery(msg.Query)
		}
		handoff, err := c.Search.ShowAll()
		if err != nil {
			c.push(searchReply{Action: "error", Error: err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), handoffTimeout)
		defer cancel()

		view, err := c.service.Handoff(ctx, handoff)
		reply := searchReply{Action: "handoff", Query: handoff.Query}
		if view != nil {
			reply.SessionID = view.SessionID
			reply.State = view.State
		}
		if err != nil {
			reply.Error = "failed to load establishments"
		}
		c.push(reply)
	default:
		c.push(searchReply{Action: "error", Error: "unknown action"})
	}
}

// WritePump handles messages going TO the app
func (c *SearchClient) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *SearchClient) pushState() {
	c.push(searchReply{
		Action:      "suggestions",
		Query:       c.Search.Query(),
		Suggestions: establishment.Responses(c.Search.Suggestions()),
		Total:       len(c.Search.Results()),
		Visible:     c.Search.PanelVisible(),
	})
}

// push never blocks the read loop or the blur timer; a client too slow to
// drain its buffer loses intermediate states.
func (c *SearchClient) push(reply searchReply) {
	data, err := json.Marshal(reply)
	if err != nil {
		log.WithError(err).Error("Failed to marshal search reply")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Debug("Search socket send buffer full, dropping reply")
	}
}

func (c *SearchClient) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}
