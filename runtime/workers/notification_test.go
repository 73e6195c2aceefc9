package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"market-chat/domain"
	chaterrors "market-chat/errors"
	"market-chat/mocks"
	"market-chat/observability"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newNotification() domain.Notification {
	return domain.Notification{
		MessageID: uuid.New(),
		From:      "alice",
		To:        "bob",
		Preview:   "are you there?",
		CreatedAt: time.Now().UTC(),
	}
}

func TestNotificationWorker_Deliver(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	n := newNotification()

	tests := []struct {
		name  string
		given func(contacts *mocks.MockIContactRepository, notifier *mocks.MockINotifier)
	}{
		{
			name: "sent",
			given: func(contacts *mocks.MockIContactRepository, notifier *mocks.MockINotifier) {
				contacts.EXPECT().GetContact(domain.ParticipantID("bob")).Return("bob@example.com", nil)
				notifier.EXPECT().Notify(gomock.Any(), "bob@example.com", n).Return(nil).Times(1)
			},
		},
		{
			name: "no contact",
			given: func(contacts *mocks.MockIContactRepository, notifier *mocks.MockINotifier) {
				contacts.EXPECT().GetContact(domain.ParticipantID("bob")).
					Return("", fmt.Errorf("%w: contact bob", chaterrors.ErrNotFound))
				notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
		},
		{
			name: "gateway down",
			given: func(contacts *mocks.MockIContactRepository, notifier *mocks.MockINotifier) {
				contacts.EXPECT().GetContact(domain.ParticipantID("bob")).Return("bob@example.com", nil)
				notifier.EXPECT().Notify(gomock.Any(), "bob@example.com", n).Return(errors.New("smtp: 421")).Times(1)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			contacts := mocks.NewMockIContactRepository(ctrl)
			notifier := mocks.NewMockINotifier(ctrl)
			tt.given(contacts, notifier)

			worker := NewNotificationWorker(log, nil, contacts, notifier, time.Second, nil)
			worker.Deliver(context.Background(), n)
		})
	}
}

func TestNotificationWorker_Run_Honours_Timeout(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctrl := gomock.NewController(t)
	contacts := mocks.NewMockIContactRepository(ctrl)
	notifier := mocks.NewMockINotifier(ctrl)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	queue := make(chan domain.Notification, 1)

	contacts.EXPECT().GetContact(gomock.Any()).Return("bob@example.com", nil)
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, address string, n domain.Notification) error {
			<-ctx.Done()
			return ctx.Err()
		}).Times(1)

	queue <- newNotification()
	close(queue)

	start := time.Now()
	err := NewNotificationWorker(log, queue, contacts, notifier, 20*time.Millisecond, metrics).Run(context.Background())

	req.NoError(err)
	req.Less(time.Since(start), 500*time.Millisecond)
}
