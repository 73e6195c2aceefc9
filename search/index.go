// Package search keeps a full-text index of text messages, one bluge
// document per message, queried one conversation at a time.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"market-chat/contract"
	"market-chat/domain"
	"market-chat/domain/event"
	"strings"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

const (
	fieldConversation = "conversation"
	fieldSender       = "sender"
	fieldContent      = "content"
	fieldLang         = "lang"
	fieldAt           = "at"
)

type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

var _ contract.IMessageIndex = (*MessageIndex)(nil)

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

// Open creates or reopens the on-disk index at path.
func Open(path string) (*bluge.Writer, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	return writer, nil
}

// Index adds a message to the index. Audio messages carry no text and are skipped.
func (i *MessageIndex) Index(_ context.Context, m event.MessageSent) error {
	if strings.TrimSpace(m.Text) == "" {
		return nil
	}
	doc := bluge.NewDocument(m.ID.String()).
		AddField(bluge.NewKeywordField(fieldConversation, string(m.Room))).
		AddField(bluge.NewKeywordField(fieldSender, string(m.Sender)).StoreValue()).
		AddField(bluge.NewTextField(fieldContent, m.Text)).
		AddField(bluge.NewKeywordField(fieldLang, m.Lang)).
		AddField(bluge.NewDateTimeField(fieldAt, m.CreatedAt).Sortable().StoreValue())
	return i.writer.Update(doc.ID(), doc)
}

// Search returns the ids of the messages of one conversation matching every
// term, newest first.
func (i *MessageIndex) Search(ctx context.Context, key domain.ConversationKey, terms string, limit int) ([]uuid.UUID, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(string(key)).SetField(fieldConversation)).
		AddMust(bluge.NewMatchQuery(terms).SetField(fieldContent).SetOperator(bluge.MatchQueryOperatorAnd))
	request := bluge.NewTopNSearch(limit, query).SortBy([]string{"-" + fieldAt})

	matches, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	match, err := matches.Next()
	for err == nil && match != nil {
		var visitErr error
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field != "_id" {
				return true
			}
			id, parseErr := uuid.Parse(string(value))
			if parseErr != nil {
				visitErr = parseErr
				return false
			}
			ids = append(ids, id)
			return false
		})
		if err == nil {
			err = visitErr
		}
		if err != nil {
			break
		}
		match, err = matches.Next()
	}
	if err != nil {
		return nil, err
	}
	i.log.Debug("Search done", "conversation", key, "terms", terms, "hits", len(ids))
	return ids, nil
}
