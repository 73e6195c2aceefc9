package sink

import (
	"context"
	"fmt"
	"log/slog"
	"market-chat/domain/event"
)

type Indexer interface {
	Index(ctx context.Context, m event.MessageSent) error
}

// IndexSink feeds persisted messages to the full-text index.
type IndexSink struct {
	indexer Indexer
	log     *slog.Logger
}

func NewIndexSink(indexer Indexer, log *slog.Logger) IndexSink {
	return IndexSink{indexer: indexer, log: log}
}

func (s IndexSink) Consume(ctx context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessageSent:
		return s.indexer.Index(ctx, evt)
	default:
		s.log.Debug(fmt.Sprintf("Not indexed event : %v", evt.Type()))
		return nil
	}
}
