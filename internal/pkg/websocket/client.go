package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/yigit/coursereg/internal/app/models/dto"
	"github.com/yigit/coursereg/internal/app/services"
	"github.com/yigit/coursereg/internal/middleware"
	"github.com/yigit/coursereg/internal/pkg/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4 * 1024

	// Time allowed for an action requested over the socket
	actionTimeout = 15 * time.Second
)

// ResultData reports the outcome of an action requested over the socket.
type ResultData struct {
	Action   string           `json:"action"`
	CourseID string           `json:"courseId,omitempty"`
	OK       bool             `json:"ok"`
	Error    *dto.ErrorDetail `json:"error,omitempty"`
}

// Client is a middleman between the websocket connection and one student's
// registration session
type Client struct {
	hub *Hub

	// The WebSocket connection
	conn *websocket.Conn

	// Buffered channel of outbound action results
	send chan []byte

	// Student the connection belongs to
	studentID string

	service services.RegistrationService

	// stop ends the snapshot watch
	stop func()

	done      chan struct{}
	closeOnce sync.Once

	// Logger instance
	logger zerolog.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, studentID string, service services.RegistrationService, stop func(), lgr zerolog.Logger) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 16),
		studentID: studentID,
		service:   service,
		stop:      stop,
		done:      make(chan struct{}),
		logger:    logger.WithStudent(lgr, studentID),
	}
}

func (c *Client) remoteAddr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// shutdown stops the watch and tells writePump to close the connection.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.stop != nil {
			c.stop()
		}
	})
}

// readPump reads action requests from the websocket connection
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info().Msg("WebSocket closed normally")
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("Unexpected WebSocket close")
			} else {
				c.logger.Debug().Err(err).Msg("WebSocket read error")
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to unmarshal client message")
			continue
		}
		c.handle(msg)
	}
}

// handle runs one client action. The resulting state reaches the client
// through the watch; only the outcome is replied.
func (c *Client) handle(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	var err error
	switch msg.Type {
	case MessageRegister:
		_, _, err = c.service.Register(ctx, c.studentID, msg.CourseID)
	case MessageCancel:
		_, err = c.service.Cancel(ctx, c.studentID, msg.CourseID)
	case MessageRefresh:
		_, err = c.service.Refresh(ctx, c.studentID)
	default:
		c.logger.Debug().Str("type", msg.Type).Msg("Ignoring unknown message type")
		return
	}

	result := ResultData{Action: msg.Type, CourseID: msg.CourseID, OK: err == nil}
	if err != nil {
		_, result.Error = middleware.ErrorStatus(err)
	}
	data, mErr := json.Marshal(Message{Type: MessageResult, CourseID: msg.CourseID, Data: result})
	if mErr != nil {
		c.logger.Error().Err(mErr).Msg("Failed to marshal action result")
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn().Msg("Dropping action result for slow client")
	}
}

// writePump pushes snapshots and action results to the websocket connection
func (c *Client) writePump(updates <-chan services.Snapshot) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	var lastVersion uint64
	sent := false
	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				c.writeClose()
				return
			}
			// Snapshots from concurrent state changes can arrive out of order.
			if sent && snap.Version <= lastVersion {
				continue
			}
			lastVersion, sent = snap.Version, true
			data, err := json.Marshal(Message{Type: MessageState, Data: dto.NewStateResponse(snap)})
			if err != nil {
				c.logger.Error().Err(err).Msg("Failed to marshal snapshot")
				continue
			}
			if err := c.write(data); err != nil {
				return
			}
		case data := <-c.send:
			if err := c.write(data); err != nil {
				return
			}
		case <-c.done:
			c.writeClose()
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) writeClose() {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// NewUpgrader returns an upgrader accepting the given browser origins. An
// empty list or "*" accepts any origin.
func NewUpgrader(origins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(allowed) == 0 || allowed["*"] || allowed[origin]
		},
	}
}
