package rest

import (
	"encoding/json"
	"log/slog"
	"market-chat/auth"
	"market-chat/domain"
	"market-chat/errors"
	"market-chat/mocks"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newRouter(t *testing.T) (http.Handler, *mocks.MockIChatService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	chat := mocks.NewMockIChatService(ctrl)
	verifier := mocks.NewMockIVerifier(ctrl)
	verifier.EXPECT().Verify("bob-token").Return(domain.ParticipantID("bob"), nil).AnyTimes()
	verifier.EXPECT().Verify(gomock.Not("bob-token")).Return(domain.ParticipantID(""), errors.ErrUnauthenticated).AnyTimes()

	router := NewRouter(Dependencies{
		Log:      logs.GetLoggerFromLevel(slog.LevelDebug),
		Chat:     chat,
		Verifier: verifier,
		WebSocket: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := auth.ParticipantFromContext(r.Context())
			_, _ = w.Write([]byte(p))
		}),
		AllowedOrigins: []string{"*"},
	})
	return router, chat
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	r.Header.Set("Authorization", "Bearer bob-token")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestRouter_History(t *testing.T) {
	req := require.New(t)
	router, chat := newRouter(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	id := uuid.New()

	// Given one stored page and an older one behind the cursor
	chat.EXPECT().
		History(gomock.Any(), domain.ParticipantID("bob"), domain.ParticipantID("alice"), lo.ToPtr("c1")).
		Return([]domain.Message{{
			ID:           id,
			Conversation: "alice|bob",
			Sender:       "alice",
			Receiver:     "bob",
			Body:         domain.Body{Text: "hi"},
			CreatedAt:    at,
		}}, lo.ToPtr("c2"), nil)

	// When bob reads the conversation with alice
	w := do(router, http.MethodGet, "/conversations/alice/messages?cursor=c1", "")

	// Then the page is returned with the next cursor
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{"messages":[{"id":"`+id.String()+`","conversation":"alice|bob","sender":"alice","receiver":"bob","text":"hi","createdAt":"2024-05-01T12:00:00Z","read":false}],"nextCursor":"c2"}`, w.Body.String())
}

func TestRouter_Search(t *testing.T) {
	router, chat := newRouter(t)

	t.Run("forwards terms and limit", func(t *testing.T) {
		req := require.New(t)
		chat.EXPECT().
			Search(gomock.Any(), domain.ParticipantID("bob"), domain.ParticipantID("alice"), "red bike", 5).
			Return(nil, nil)

		w := do(router, http.MethodGet, "/conversations/alice/search?q=red+bike&limit=5", "")

		req.Equal(http.StatusOK, w.Code)
		req.JSONEq(`{"messages":[]}`, w.Body.String())
	})

	t.Run("rejects a malformed limit", func(t *testing.T) {
		req := require.New(t)

		w := do(router, http.MethodGet, "/conversations/alice/search?q=bike&limit=ten", "")

		req.Equal(http.StatusBadRequest, w.Code)
		req.Contains(w.Body.String(), `"code":"invalid_request"`)
	})

	t.Run("masks persistence failures", func(t *testing.T) {
		req := require.New(t)
		chat.EXPECT().Search(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, errors.ErrPersistence)

		w := do(router, http.MethodGet, "/conversations/alice/search?q=bike", "")

		req.Equal(http.StatusServiceUnavailable, w.Code)
		var body errorResponse
		req.NoError(json.Unmarshal(w.Body.Bytes(), &body))
		req.Equal("persistence_error", body.Code)
		req.Equal("Service Unavailable", body.Message)
	})
}

func TestRouter_PutContact(t *testing.T) {
	router, chat := newRouter(t)

	t.Run("stores the address", func(t *testing.T) {
		req := require.New(t)
		chat.EXPECT().PutContact(domain.ParticipantID("bob"), auth.ContactRequest{Email: "bob@example.com"}).Return(nil)

		w := do(router, http.MethodPut, "/me/contact", `{"email":"bob@example.com"}`)

		req.Equal(http.StatusNoContent, w.Code)
	})

	t.Run("rejects a broken body", func(t *testing.T) {
		req := require.New(t)

		w := do(router, http.MethodPut, "/me/contact", `{"email":`)

		req.Equal(http.StatusBadRequest, w.Code)
	})
}

func TestRouter_Auth(t *testing.T) {
	req := require.New(t)
	router, _ := newRouter(t)

	// Health is public
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	req.Equal(http.StatusOK, w.Code)

	// Everything else needs a valid token
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conversations/alice/messages?token=stolen", nil))
	req.Equal(http.StatusUnauthorized, w.Code)
	req.Contains(w.Body.String(), `"code":"unauthenticated"`)

	// The websocket endpoint sees the verified participant
	w = do(router, http.MethodGet, "/ws", "")
	req.Equal(http.StatusOK, w.Code)
	req.Equal("bob", w.Body.String())
}
