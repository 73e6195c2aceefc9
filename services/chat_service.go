//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks

// Package services is the request/response surface of the chat node, used
// by the HTTP handlers. Live traffic goes through the websocket sessions.
package services

import (
	"context"
	"market-chat/auth"
	"market-chat/contract"
	"market-chat/domain"
	"market-chat/repositories"
	"strings"
)

type IChatService interface {
	History(ctx context.Context, self, peer domain.ParticipantID, cursor *string) ([]domain.Message, *string, error)
	Search(ctx context.Context, self, peer domain.ParticipantID, terms string, limit int) ([]domain.Message, error)
	PutContact(self domain.ParticipantID, req auth.ContactRequest) error
}

type ChatService struct {
	coordinator contract.ICoordinator
	contacts    repositories.IContactRepository
}

func NewChatService(coordinator contract.ICoordinator, contacts repositories.IContactRepository) *ChatService {
	return &ChatService{coordinator: coordinator, contacts: contacts}
}

func (s *ChatService) History(ctx context.Context, self, peer domain.ParticipantID, cursor *string) ([]domain.Message, *string, error) {
	return s.coordinator.History(ctx, domain.GetMessagesCommand{Self: self, Peer: peer, Cursor: cursor})
}

func (s *ChatService) Search(ctx context.Context, self, peer domain.ParticipantID, terms string, limit int) ([]domain.Message, error) {
	return s.coordinator.Search(ctx, domain.SearchCommand{Self: self, Peer: peer, Terms: terms, Limit: limit})
}

// PutContact stores the notification address of the caller, lower-cased.
func (s *ChatService) PutContact(self domain.ParticipantID, req auth.ContactRequest) error {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := auth.ValidateContact(req); err != nil {
		return err
	}
	if err := self.Validate(); err != nil {
		return err
	}
	return s.contacts.PutContact(self, req.Email)
}
