package rest

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"market-chat/auth"
	"market-chat/domain"
	"market-chat/errors"
	"market-chat/services"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

const maxBodyBytes = 4 << 10

type handlers struct {
	log  *slog.Logger
	chat services.IChatService
}

type messageView struct {
	ID           string     `json:"id"`
	Conversation string     `json:"conversation"`
	Sender       string     `json:"sender"`
	Receiver     string     `json:"receiver"`
	Text         string     `json:"text,omitempty"`
	AudioRef     string     `json:"audioRef,omitempty"`
	Lang         string     `json:"lang,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	Read         bool       `json:"read"`
	ReadAt       *time.Time `json:"readAt,omitempty"`
}

type historyResponse struct {
	Messages   []messageView `json:"messages"`
	NextCursor *string       `json:"nextCursor,omitempty"`
}

type searchResponse struct {
	Messages []messageView `json:"messages"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toView(m domain.Message, _ int) messageView {
	view := messageView{
		ID:           m.ID.String(),
		Conversation: m.Conversation.String(),
		Sender:       m.Sender.String(),
		Receiver:     m.Receiver.String(),
		Text:         m.Body.Text,
		AudioRef:     m.Body.AudioRef,
		Lang:         m.Lang,
		CreatedAt:    m.CreatedAt,
		Read:         m.Read,
	}
	if m.Read {
		view.ReadAt = lo.ToPtr(m.ReadAt)
	}
	return view
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	self, ok := auth.ParticipantFromContext(r.Context())
	if !ok {
		h.writeError(w, errors.ErrUnauthenticated)
		return
	}
	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}

	messages, next, err := h.chat.History(r.Context(), self, domain.ParticipantID(chi.URLParam(r, "peer")), cursor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Messages: lo.Map(messages, toView), NextCursor: next})
}

func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	self, ok := auth.ParticipantFromContext(r.Context())
	if !ok {
		h.writeError(w, errors.ErrUnauthenticated)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, fmt.Errorf("%w: limit %q", errors.ErrInvalidRequest, raw))
			return
		}
		limit = n
	}

	messages, err := h.chat.Search(r.Context(), self, domain.ParticipantID(chi.URLParam(r, "peer")), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Messages: lo.Map(messages, toView)})
}

func (h *handlers) putContact(w http.ResponseWriter, r *http.Request) {
	self, ok := auth.ParticipantFromContext(r.Context())
	if !ok {
		h.writeError(w, errors.ErrUnauthenticated)
		return
	}
	var req auth.ContactRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err))
		return
	}
	if err := h.chat.PutContact(self, req); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps err to its status and wire code. Internal details never
// leave the process.
func (h *handlers) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "error", err)
		message = http.StatusText(status)
	}
	code := errors.Code(err)
	if stderrors.Is(err, errors.ErrUnauthenticated) {
		message = "missing or invalid token"
	}
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
