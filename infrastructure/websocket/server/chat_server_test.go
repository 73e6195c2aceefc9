package server

import (
	"encoding/json"
	"log/slog"
	"market-chat/auth"
	"market-chat/domain"
	chatws "market-chat/infrastructure/websocket"
	"market-chat/repositories"
	"market-chat/runtime"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

const secret = "a_long_enough_test_secret_for_hs256"

type testServer struct {
	url      string
	verifier *auth.Verifier
	chat     *ChatServer
	presence *runtime.PresenceRegistry
}

func newTestServer(t *testing.T, eventsPerSecond float64, burst int) *testServer {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	presence := runtime.NewPresenceRegistry(4, nil)
	router := runtime.NewRoomRouter(log, 4, 200*time.Millisecond, nil)
	coordinator := runtime.NewCoordinator(log,
		repositories.NewMessageRepository(db, log, lo.ToPtr(50)),
		presence, router,
		make(chan domain.Notification, 100), nil,
		runtime.NotifySubscription, 200, nil)
	chat := NewChatServer(log, coordinator, Config{
		Connection:      chatws.Options{BufferSize: 16, PingInterval: time.Second, MaxFrameBytes: 4096},
		ReplyTimeout:    200 * time.Millisecond,
		EventsPerSecond: eventsPerSecond,
		EventsBurst:     burst,
	})
	verifier := auth.NewVerifier(secret)
	handler := auth.Middleware(verifier, func(w http.ResponseWriter, err error) {
		http.Error(w, err.Error(), http.StatusUnauthorized)
	})(chat)

	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		chat.CloseAll()
		srv.Close()
	})
	return &testServer{
		url:      "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		verifier: verifier,
		chat:     chat,
		presence: presence,
	}
}

func (s *testServer) dial(t *testing.T, p domain.ParticipantID) *websocket.Conn {
	t.Helper()
	token, err := s.verifier.GenerateToken(p, time.Hour)
	require.NoError(t, err)
	ws, _, err := websocket.DefaultDialer.Dial(s.url+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func write(t *testing.T, ws *websocket.Conn, typ, requestID, data string) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(chatws.Envelope{Type: typ, RequestID: requestID, Data: json.RawMessage(data)}))
}

// readUntil skips frames until one of the wanted type shows up.
func readUntil(t *testing.T, ws *websocket.Conn, typ string) chatws.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env chatws.Envelope
		require.NoError(t, ws.ReadJSON(&env))
		if env.Type == typ {
			return env
		}
	}
}

func TestChatServer_Send_And_Receive(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, 100, 100)
	alice := srv.dial(t, "alice")
	bob := srv.dial(t, "bob")

	// Given both joined their shared room
	write(t, alice, "joinRoom", "j-1", `{"peer":"bob"}`)
	joined := readUntil(t, alice, "joined")
	req.Equal("j-1", joined.RequestID)
	req.JSONEq(`{"conversation":"alice|bob","peer":"bob","peerOnline":true}`, string(joined.Data))
	write(t, bob, "joinRoom", "j-2", `{"peer":"alice"}`)
	readUntil(t, bob, "joined")

	// When alice sends a message
	write(t, alice, "sendMessage", "s-1", `{"to":"bob","text":"is it still for sale?"}`)

	// Then alice gets an ack and bob the message
	ack := readUntil(t, alice, "ack")
	req.Equal("s-1", ack.RequestID)
	message := readUntil(t, bob, "message")
	var payload struct {
		ID     string `json:"id"`
		Sender string `json:"sender"`
		Text   string `json:"text"`
	}
	req.NoError(json.Unmarshal(message.Data, &payload))
	req.Equal("alice", payload.Sender)
	req.Equal("is it still for sale?", payload.Text)

	// When bob marks it read, alice gets the receipt
	write(t, bob, "markAsRead", "r-1", `{"messageId":"`+payload.ID+`"}`)
	readUntil(t, bob, "ack")
	read := readUntil(t, alice, "read")
	req.Contains(string(read.Data), `"reader":"bob"`)
}

func TestChatServer_Errors(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, 100, 100)
	alice := srv.dial(t, "alice")

	tests := []struct {
		typ  string
		data string
		code string
	}{
		{"shout", `{}`, "unknown_event"},
		{"sendMessage", `{"to":"bob"}`, "invalid_message"},
		{"sendMessage", `{"text":"hi"}`, "invalid_message"},
		{"sendMessage", `{"to":"bob","text":"hi","audioRef":5}`, "invalid_message"},
		{"joinRoom", `{"peer":"bad|peer"}`, "invalid_participant"},
		{"sendMessage", `{"sender":"mallory","to":"bob","text":"hi"}`, "forbidden"},
		{"markAsRead", `{"messageId":"6f1c1d0e-2b7a-4a8e-9a64-0c8d5f0b1e2a"}`, "not_found"},
	}
	for i, tt := range tests {
		requestID := string(rune('a' + i))
		write(t, alice, tt.typ, requestID, tt.data)
		failure := readUntil(t, alice, "error")
		req.Equal(requestID, failure.RequestID, tt.typ)
		req.Contains(string(failure.Data), `"code":"`+tt.code+`"`, tt.typ)
	}
}

func TestChatServer_Malformed_Frame_Keeps_Session(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, 100, 100)
	alice := srv.dial(t, "alice")
	write(t, alice, "joinRoom", "j-1", `{"peer":"bob"}`)
	readUntil(t, alice, "joined")

	frames := []string{
		`not json`,
		`{"type":5,"data":{}}`,
		`{"type":"sendMessage","data":"oops"}`,
	}
	for _, frame := range frames {
		// When a frame that is not a valid envelope arrives
		req.NoError(alice.WriteMessage(websocket.TextMessage, []byte(frame)))

		// Then an error reply comes back and the session stays up
		failure := readUntil(t, alice, "error")
		req.Contains(string(failure.Data), `"code":"invalid_message"`, frame)
		req.True(srv.presence.IsOnline("alice"), frame)
	}

	// And the session keeps serving requests
	write(t, alice, "joinRoom", "j-2", `{"peer":"carol"}`)
	joined := readUntil(t, alice, "joined")
	req.Equal("j-2", joined.RequestID)
	req.Equal(1, srv.chat.Sessions())
}

func TestChatServer_Rate_Limited(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, 0.001, 1)
	alice := srv.dial(t, "alice")

	// Given the only token of the bucket is spent on a join
	write(t, alice, "joinRoom", "j-1", `{"peer":"bob"}`)
	readUntil(t, alice, "joined")

	// When flooding, typing is dropped silently and messages are refused
	write(t, alice, "typing", "t-1", `{"to":"bob"}`)
	write(t, alice, "sendMessage", "s-1", `{"to":"bob","text":"spam"}`)

	failure := readUntil(t, alice, "error")
	req.Equal("s-1", failure.RequestID)
	req.Contains(string(failure.Data), `"code":"rate_limited"`)
}

func TestChatServer_Disconnect_Cleans_Presence(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, 100, 100)
	bob := srv.dial(t, "bob")
	write(t, bob, "joinRoom", "j-1", `{"peer":"alice"}`)
	readUntil(t, bob, "joined")
	req.True(srv.presence.IsOnline("bob"))

	// When bob's socket goes away
	req.NoError(bob.Close())

	// Then the server notices and bob is offline
	req.Eventually(func() bool {
		return !srv.presence.IsOnline("bob") && srv.chat.Sessions() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChatServer_Rejects_Missing_Token(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, 100, 100)

	_, resp, err := websocket.DefaultDialer.Dial(srv.url, nil)

	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}
