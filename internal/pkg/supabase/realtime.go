package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/yigit/coursereg/internal/pkg/helpers"
)

const (
	// Time allowed to write a frame to the server
	writeWait = 10 * time.Second

	// Time allowed for the join reply
	joinTimeout = 10 * time.Second

	// DefaultHeartbeat is the Phoenix heartbeat period expected by Realtime.
	DefaultHeartbeat = 30 * time.Second
)

// Phoenix channel events
const (
	eventJoin            = "phx_join"
	eventLeave           = "phx_leave"
	eventReply           = "phx_reply"
	eventError           = "phx_error"
	eventClose           = "phx_close"
	eventHeartbeat       = "heartbeat"
	eventPostgresChanges = "postgres_changes"
	topicPhoenix         = "phoenix"
)

// ChangeFilter selects the row changes a channel receives. Event is one of
// "*", "INSERT", "UPDATE", "DELETE".
type ChangeFilter struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

// Change is one row change delivered on a channel.
type Change struct {
	Schema string
	Table  string
	Type   string
}

type message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
	JoinRef string          `json:"join_ref,omitempty"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changePayload struct {
	Data struct {
		Schema    string `json:"schema"`
		Table     string `json:"table"`
		Type      string `json:"type"`
		EventType string `json:"eventType"`
	} `json:"data"`
}

// Realtime subscribes to database changes over the Realtime websocket.
type Realtime struct {
	endpoint  string
	key       string
	dialer    *websocket.Dialer
	heartbeat time.Duration
	backoff   helpers.BackoffConfig
	logger    zerolog.Logger
	ref       atomic.Uint64
}

// Realtime returns a change feed client for the project.
func (c *Client) Realtime(logger zerolog.Logger) *Realtime {
	return &Realtime{
		endpoint:  c.realtimeURL(),
		key:       c.key,
		dialer:    websocket.DefaultDialer,
		heartbeat: DefaultHeartbeat,
		backoff:   helpers.DefaultBackoff,
		logger:    logger.With().Str("component", "realtime").Logger(),
	}
}

// SetHeartbeat changes the heartbeat period.
func (r *Realtime) SetHeartbeat(d time.Duration) {
	if d > 0 {
		r.heartbeat = d
	}
}

// SetBackoff changes the reconnect schedule.
func (r *Realtime) SetBackoff(cfg helpers.BackoffConfig) {
	r.backoff = cfg
}

func (r *Realtime) nextRef() string {
	return strconv.FormatUint(r.ref.Add(1), 10)
}

// Run joins topic with the given filters and calls onChange for every change
// until ctx is cancelled, reconnecting with backoff when the socket drops.
// onJoined, if set, runs after every successful join.
func (r *Realtime) Run(ctx context.Context, topic string, filters []ChangeFilter, onChange func(Change), onJoined func()) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	attempt := 0
	for {
		err := r.session(ctx, topic, filters, onChange, func() {
			attempt = 0
			if onJoined != nil {
				onJoined()
			}
		})
		if ctx.Err() != nil {
			return
		}

		attempt++
		delay := helpers.NextBackoffDelay(r.backoff, attempt, rng)
		r.logger.Warn().Err(err).Str("topic", topic).Dur("retryIn", delay).Msg("Realtime channel dropped")
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (r *Realtime) session(ctx context.Context, topic string, filters []ChangeFilter, onChange func(Change), onJoined func()) error {
	conn, _, err := r.dialer.DialContext(ctx, r.endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to dial realtime: %w", err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(m message) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(m)
	}

	joinRef := r.nextRef()
	joinPayload, err := json.Marshal(map[string]any{
		"config": map[string]any{
			"broadcast":        map[string]any{"self": false},
			"presence":         map[string]any{"key": ""},
			"postgres_changes": filters,
		},
		"access_token": r.key,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal join payload: %w", err)
	}
	if err := send(message{Topic: topic, Event: eventJoin, Payload: joinPayload, Ref: joinRef, JoinRef: joinRef}); err != nil {
		return fmt.Errorf("failed to send join: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(joinTimeout))
	if err := awaitJoin(conn, topic, joinRef); err != nil {
		return err
	}
	conn.SetReadDeadline(time.Time{})
	r.logger.Info().Str("topic", topic).Msg("Realtime channel joined")
	onJoined()

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(r.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = send(message{Topic: topic, Event: eventLeave, Payload: json.RawMessage("{}"), Ref: r.nextRef(), JoinRef: joinRef})
				conn.Close()
				return
			case <-ticker.C:
				if err := send(message{Topic: topicPhoenix, Event: eventHeartbeat, Payload: json.RawMessage("{}"), Ref: r.nextRef()}); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("realtime read failed: %w", err)
		}
		if msg.Topic != topic {
			continue
		}
		switch msg.Event {
		case eventPostgresChanges:
			var p changePayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				r.logger.Warn().Err(err).Msg("Ignoring malformed realtime change")
				continue
			}
			typ := p.Data.Type
			if typ == "" {
				typ = p.Data.EventType
			}
			onChange(Change{Schema: p.Data.Schema, Table: p.Data.Table, Type: typ})
		case eventError, eventClose:
			return fmt.Errorf("realtime channel %s: %s", topic, msg.Event)
		}
	}
}

// awaitJoin reads until the reply to joinRef arrives.
func awaitJoin(conn *websocket.Conn, topic, joinRef string) error {
	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("failed waiting for join reply: %w", err)
		}
		if msg.Topic != topic || msg.Event != eventReply || msg.Ref != joinRef {
			continue
		}
		var reply replyPayload
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			return fmt.Errorf("malformed join reply: %w", err)
		}
		if reply.Status != "ok" {
			return errors.New("realtime join rejected: " + string(reply.Response))
		}
		return nil
	}
}
