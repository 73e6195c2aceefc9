package workers

import (
	"context"
	stderrors "errors"
	"log/slog"
	"market-chat/contract"
	"market-chat/domain"
	"market-chat/errors"
	"market-chat/observability"
	"market-chat/repositories"
	"time"
)

const defaultNotificationTimeout = 5 * time.Second

// NotificationWorker drains the notification queue filled by the coordinator.
// Several of them may share one queue. Failures are logged and counted, the
// message itself stays stored and is never retried from here.
type NotificationWorker struct {
	log           *slog.Logger
	notifications <-chan domain.Notification
	contacts      repositories.IContactRepository
	notifier      contract.INotifier
	timeout       time.Duration
	metrics       *observability.Metrics
}

func NewNotificationWorker(log *slog.Logger,
	notifications <-chan domain.Notification,
	contacts repositories.IContactRepository,
	notifier contract.INotifier,
	timeout time.Duration,
	metrics *observability.Metrics) *NotificationWorker {
	if timeout <= 0 {
		timeout = defaultNotificationTimeout
	}
	return &NotificationWorker{
		log:           log,
		notifications: notifications,
		contacts:      contacts,
		notifier:      notifier,
		timeout:       timeout,
		metrics:       metrics,
	}
}

func (w *NotificationWorker) Run(ctx context.Context) error {
	for {
		select {
		case n, ok := <-w.notifications:
			if !ok {
				return nil
			}
			w.Deliver(ctx, n)
		case <-ctx.Done():
			return nil
		}
	}
}

// Deliver resolves the receiver's address and calls the gateway once.
func (w *NotificationWorker) Deliver(ctx context.Context, n domain.Notification) {
	address, err := w.contacts.GetContact(n.To)
	if stderrors.Is(err, errors.ErrNotFound) {
		w.metrics.Notification("no_contact")
		w.log.Debug("No contact address, skipping notification", "to", n.To, "message_id", n.MessageID)
		return
	}
	if err != nil {
		w.metrics.Notification("failed")
		w.log.Warn("Contact lookup failed", "to", n.To, "error", err)
		return
	}

	notifyCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := w.notifier.Notify(notifyCtx, address, n); err != nil {
		w.metrics.Notification("failed")
		w.log.Warn("Notification failed",
			"to", n.To,
			"message_id", n.MessageID,
			"error", stderrors.Join(errors.ErrNotificationFailure, err))
		return
	}
	w.metrics.Notification("sent")
	w.log.Debug("Notification sent", "to", n.To, "message_id", n.MessageID)
}
