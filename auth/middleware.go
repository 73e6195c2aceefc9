package auth

import (
	"context"
	"market-chat/contract"
	"market-chat/domain"
	"net/http"
	"strings"
)

type contextKey string

const participantKey contextKey = "participant"

// Paths served without a token.
var publicPaths = map[string]struct{}{
	"/healthz": {},
	"/metrics": {},
}

// Middleware authenticates every HTTP request, websocket upgrades included,
// and stores the verified participant in the request context.
// Browsers cannot set headers on a websocket handshake, so the token is also
// accepted from the "token" query parameter.
func Middleware(verifier contract.IVerifier, onError func(w http.ResponseWriter, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := publicPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			participant, err := verifier.Verify(TokenFromRequest(r))
			if err != nil {
				onError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithParticipant(r.Context(), participant)))
		})
	}
}

func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

func WithParticipant(ctx context.Context, p domain.ParticipantID) context.Context {
	return context.WithValue(ctx, participantKey, p)
}

func ParticipantFromContext(ctx context.Context) (domain.ParticipantID, bool) {
	p, ok := ctx.Value(participantKey).(domain.ParticipantID)
	return p, ok
}
