// Package server exposes chat sessions over websocket.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"market-chat/auth"
	"market-chat/contract"
	"market-chat/domain"
	"market-chat/domain/event"
	"market-chat/errors"
	chatws "market-chat/infrastructure/websocket"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const defaultReplyTimeout = time.Second

type Config struct {
	Connection      chatws.Options
	ReplyTimeout    time.Duration
	EventsPerSecond float64
	EventsBurst     int
	CheckOrigin     func(r *http.Request) bool
}

// ChatServer upgrades authenticated requests and runs one read loop per
// session. Every inbound frame is turned into a command for the coordinator,
// and every command gets exactly one reply frame, except typing which only
// replies on error.
type ChatServer struct {
	log         *slog.Logger
	coordinator contract.ICoordinator
	upgrader    websocket.Upgrader
	cfg         Config

	mu          sync.Mutex
	connections map[string]*chatws.Connection
}

func NewChatServer(log *slog.Logger, coordinator contract.ICoordinator, cfg Config) *ChatServer {
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = defaultReplyTimeout
	}
	return &ChatServer{
		log:         log,
		coordinator: coordinator,
		cfg:         cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     cfg.CheckOrigin,
		},
		connections: make(map[string]*chatws.Connection),
	}
}

func (s *ChatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	participant, ok := auth.ParticipantFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("Websocket upgrade failed", "participant", participant, "error", err)
		return
	}

	conn := chatws.NewConnection(ws, participant, s.log, s.cfg.Connection)
	s.track(conn)
	// Presence is registered before the cleanup hook so a session closed in
	// between, by CloseAll, still unregisters.
	s.coordinator.HandleConnect(conn)
	conn.OnDisconnect(func() {
		s.untrack(conn)
		s.coordinator.HandleDisconnect(conn)
	})
	go conn.WritePump()

	s.readLoop(conn)
}

// CloseAll ends every live session, used on shutdown since hijacked
// connections are invisible to http.Server.Shutdown.
func (s *ChatServer) CloseAll() {
	s.mu.Lock()
	conns := make([]*chatws.Connection, 0, len(s.connections))
	for _, c := range s.connections {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	s.log.Info("All websocket sessions closed", "count", len(conns))
}

func (s *ChatServer) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}

func (s *ChatServer) track(c *chatws.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[c.ID()] = c
}

func (s *ChatServer) untrack(c *chatws.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, c.ID())
}

func (s *ChatServer) readLoop(conn *chatws.Connection) {
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-conn.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(s.cfg.EventsPerSecond), max(s.cfg.EventsBurst, 1))
	for {
		raw, err := conn.ReadFrame()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("Read failed", "participant", conn.Participant(), "error", err)
			}
			return
		}
		env, err := chatws.DecodeEnvelope(raw)
		if !limiter.Allow() {
			// Typing indicators are dropped silently when flooding
			if err != nil || env.Type != chatws.TypingType {
				s.reply(conn, failure(env.RequestID, errors.ErrRateLimited))
			}
			continue
		}
		if err != nil {
			s.log.Debug("Malformed frame rejected", "participant", conn.Participant(), "error", err)
			s.reply(conn, failure("", err))
			continue
		}
		s.dispatch(ctx, conn, env)
	}
}

func (s *ChatServer) dispatch(ctx context.Context, conn *chatws.Connection, env chatws.Envelope) {
	self := conn.Participant()
	if err := auth.Validate(env); err != nil {
		s.reply(conn, failure(env.RequestID, malformed(err)))
		return
	}

	switch env.Type {
	case chatws.JoinRoomType:
		req, err := decode[chatws.JoinRoomRequest](env)
		if err == nil {
			err = claims(self, req.ParticipantA)
		}
		if err != nil {
			s.reply(conn, failure(env.RequestID, err))
			return
		}
		peer := domain.ParticipantID(req.Peer)
		key, err := s.coordinator.HandleJoinRoom(ctx, domain.JoinRoomCommand{ParticipantA: self, ParticipantB: peer}, conn)
		if err != nil {
			s.reply(conn, failure(env.RequestID, err))
			return
		}
		s.reply(conn, event.Joined{RequestID: env.RequestID, Room: key, Peer: peer, PeerOnline: s.coordinator.IsOnline(peer)})

	case chatws.SendMessageType:
		req, err := decode[chatws.SendMessageRequest](env)
		if err == nil {
			err = claims(self, req.Sender)
		}
		if err != nil {
			s.reply(conn, failure(env.RequestID, err))
			return
		}
		message, err := s.coordinator.HandleSend(ctx, domain.SendMessageCommand{
			Sender:   self,
			Receiver: domain.ParticipantID(req.To),
			Body:     domain.Body{Text: req.Text, AudioRef: req.AudioRef},
		})
		if err != nil {
			s.reply(conn, failure(env.RequestID, err))
			return
		}
		s.reply(conn, event.Ack{RequestID: env.RequestID, MessageID: message.ID, CreatedAt: message.CreatedAt})

	case chatws.TypingType:
		req, err := decode[chatws.TypingRequest](env)
		if err == nil {
			err = claims(self, req.Sender)
		}
		if err == nil {
			err = s.coordinator.HandleTyping(ctx, domain.TypingCommand{Sender: self, Receiver: domain.ParticipantID(req.To)})
		}
		if err != nil {
			s.reply(conn, failure(env.RequestID, err))
		}

	case chatws.MarkAsReadType:
		req, err := decode[chatws.MarkAsReadRequest](env)
		if err != nil {
			s.reply(conn, failure(env.RequestID, err))
			return
		}
		message, err := s.coordinator.HandleMarkRead(ctx, domain.MarkReadCommand{MessageID: req.MessageID, Reader: self})
		if err != nil {
			s.reply(conn, failure(env.RequestID, err))
			return
		}
		s.reply(conn, event.Ack{RequestID: env.RequestID, MessageID: message.ID, CreatedAt: message.CreatedAt})

	default:
		s.reply(conn, failure(env.RequestID, errors.ErrUnknownEvent))
	}
}

// decode rejects payloads that do not parse or fail their checks as
// invalid messages, the session stays open.
func decode[T any](env chatws.Envelope) (T, error) {
	req, err := chatws.Decode[T](env)
	if err == nil {
		err = auth.Validate(req)
	}
	if err != nil {
		return req, malformed(err)
	}
	return req, nil
}

func malformed(err error) error {
	return fmt.Errorf("%w: %w", errors.ErrInvalidMessage, err)
}

// claims refuses a request naming another participant as its issuer.
func claims(self domain.ParticipantID, issuer string) error {
	if issuer != "" && domain.ParticipantID(issuer) != self {
		return fmt.Errorf("%w: %s cannot act as %s", errors.ErrForbidden, self, issuer)
	}
	return nil
}

// reply answers the issuing session only. A session that cannot take its
// own reply in time is closed.
func (s *ChatServer) reply(conn *chatws.Connection, e event.DomainEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ReplyTimeout)
	defer cancel()
	if err := conn.Send(ctx, e); err != nil {
		if !stderrors.Is(err, errors.ErrConnectionClosed) {
			s.log.Warn("Reply not delivered, closing session", "participant", conn.Participant(), "error", err)
			_ = conn.Close()
		}
	}
}

func failure(requestID string, err error) event.Failure {
	code := errors.Code(err)
	message := err.Error()
	if code == "internal" || code == "persistence_error" {
		message = "internal error, please retry"
	}
	return event.Failure{RequestID: requestID, Code: code, Message: message}
}
