package workers

import (
	"context"
	"log/slog"
	"market-chat/contract"
	"market-chat/domain/event"
	"sync"
	"time"
)

// EventFanout hands every domain event to the permanent sinks of the node
// (search index, metrics). It is best effort: a sink that errors or exceeds
// sinkTimeout loses that event and nothing else. Live delivery to clients
// never goes through here.
type EventFanout struct {
	log          *slog.Logger
	domainEvents <-chan event.DomainEvent
	sinks        []contract.EventSink
	sinkTimeout  time.Duration
}

func NewEventFanout(log *slog.Logger, domainEvents <-chan event.DomainEvent, sinkTimeout time.Duration, sinks ...contract.EventSink) *EventFanout {
	if sinkTimeout <= 0 {
		sinkTimeout = time.Second
	}
	return &EventFanout{
		log:          log,
		domainEvents: domainEvents,
		sinks:        sinks,
		sinkTimeout:  sinkTimeout,
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt, ok := <-w.domainEvents:
			if !ok {
				return nil
			}
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		}
	}
}

// Fanout runs every sink concurrently and waits for all of them, so events
// reach a given sink in the order they were published.
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	var wg sync.WaitGroup
	for _, sink := range w.sinks {
		wg.Add(1)
		go func(s contract.EventSink) {
			defer wg.Done()
			sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
			defer cancel()
			if err := s.Consume(sinkCtx, evt); err != nil {
				w.log.Warn("Sink failed to consume event", "event", evt.Type(), "error", err)
			}
		}(sink)
	}
	wg.Wait()
}
