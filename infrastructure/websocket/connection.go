// Package websocket adapts gorilla websocket connections to chat sessions.
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"market-chat/contract"
	"market-chat/domain"
	"market-chat/domain/event"
	"market-chat/errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

const (
	writeWait           = 10 * time.Second
	defaultPingInterval = 30 * time.Second
)

type Options struct {
	BufferSize    int
	PingInterval  time.Duration
	MaxFrameBytes int64
}

// Connection is one authenticated websocket session. Outbound events go
// through a bounded queue drained by a single writer goroutine, so a slow
// client fills its own queue and never blocks the room that feeds it.
type Connection struct {
	id           string
	participant  domain.ParticipantID
	ws           *websocket.Conn
	log          *slog.Logger
	outbound     chan event.DomainEvent
	done         chan struct{}
	closeOnce    sync.Once
	pingInterval time.Duration

	mu        sync.Mutex
	rooms     map[domain.ConversationKey]struct{}
	callbacks []func()
	closed    bool
}

var _ contract.Connection = (*Connection)(nil)

func NewConnection(ws *websocket.Conn, participant domain.ParticipantID, log *slog.Logger, opts Options) *Connection {
	c := &Connection{
		id:           uuid.NewString(),
		participant:  participant,
		ws:           ws,
		outbound:     make(chan event.DomainEvent, max(opts.BufferSize, 1)),
		done:         make(chan struct{}),
		pingInterval: lo.Ternary(opts.PingInterval > 0, opts.PingInterval, defaultPingInterval),
		rooms:        make(map[domain.ConversationKey]struct{}),
	}
	c.log = log.With("participant", participant, "connection_id", c.id)

	if opts.MaxFrameBytes > 0 {
		ws.SetReadLimit(opts.MaxFrameBytes)
	}
	_ = ws.SetReadDeadline(time.Now().Add(c.pongWait()))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(c.pongWait()))
	})
	return c
}

func (c *Connection) ID() string                        { return c.id }
func (c *Connection) Participant() domain.ParticipantID { return c.participant }

// Send queues an event for the writer. It fails once the connection is
// closed, or when the queue stays full until ctx ends.
func (c *Connection) Send(ctx context.Context, e event.DomainEvent) error {
	select {
	case <-c.done:
		return errors.ErrConnectionClosed
	default:
	}
	select {
	case c.outbound <- e:
		return nil
	case <-c.done:
		return errors.ErrConnectionClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", errors.ErrSlowConsumer, ctx.Err())
	}
}

// OnDisconnect registers a callback run exactly once when the connection
// closes, whoever closes it. On an already closed connection it runs at once.
func (c *Connection) OnDisconnect(fn func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		fn()
		return
	}
	c.callbacks = append(c.callbacks, fn)
	c.mu.Unlock()
}

func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.ws.Close()

		c.mu.Lock()
		c.closed = true
		callbacks := c.callbacks
		c.callbacks = nil
		c.mu.Unlock()
		for _, fn := range callbacks {
			fn()
		}
		c.log.Debug("Connection closed")
	})
	return err
}

func (c *Connection) Done() <-chan struct{} { return c.done }

func (c *Connection) Track(key domain.ConversationKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[key]; ok {
		return false
	}
	c.rooms[key] = struct{}{}
	return true
}

func (c *Connection) Untrack(key domain.ConversationKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, key)
}

func (c *Connection) Rooms() []domain.ConversationKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo.Keys(c.rooms)
}

// ReadFrame blocks for the next inbound frame. Errors are transport errors
// only, the frame content is left to DecodeEnvelope.
func (c *Connection) ReadFrame() ([]byte, error) {
	_, raw, err := c.ws.ReadMessage()
	return raw, err
}

// WritePump drains the outbound queue and keeps the peer alive with pings.
// It is the only goroutine writing data frames and closes the connection
// on the first write error.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case e := <-c.outbound:
			env, err := Encode(e)
			if err != nil {
				c.log.Error("Dropping unencodable event", "event", e.Type(), "error", err)
				continue
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(env); err != nil {
				c.log.Debug("Write failed, closing connection", "error", err)
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.log.Debug("Ping failed, closing connection", "error", err)
				_ = c.Close()
				return
			}
		}
	}
}

// pongWait leaves room for one missed ping before the read deadline expires.
func (c *Connection) pongWait() time.Duration {
	return c.pingInterval * 2
}
