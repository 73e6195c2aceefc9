package notification

import (
	"context"
	"errors"
	"log/slog"
	"market-chat/domain"
	chaterrors "market-chat/errors"
	"net/smtp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newGateway(send func(string, smtp.Auth, string, []string, []byte) error) *SMTPGateway {
	g := NewSMTPGateway(logs.GetLoggerFromLevel(slog.LevelDebug), SMTPConfig{
		Host: "mail.local",
		Port: 2525,
		From: "chat@market.local",
	})
	g.send = send
	return g
}

func TestSMTPGateway_Notify(t *testing.T) {
	req := require.New(t)
	var (
		gotAddr string
		gotTo   []string
		gotBody string
	)
	g := newGateway(func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotBody = addr, to, string(msg)
		return nil
	})

	err := g.Notify(context.Background(), "bob@example.com", domain.Notification{
		MessageID: uuid.New(),
		From:      "alice",
		To:        "bob",
		Preview:   "is the bike still for sale?",
		CreatedAt: time.Now(),
	})

	req.NoError(err)
	req.Equal("mail.local:2525", gotAddr)
	req.Equal([]string{"bob@example.com"}, gotTo)
	req.Contains(gotBody, "Subject: New message from alice")
	req.Contains(gotBody, "is the bike still for sale?")
}

func TestSMTPGateway_Notify_Failures(t *testing.T) {
	req := require.New(t)

	failing := newGateway(func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("421 service not available")
	})
	err := failing.Notify(context.Background(), "bob@example.com", domain.Notification{})
	req.ErrorIs(err, chaterrors.ErrNotificationFailure)

	hanging := newGateway(func(string, smtp.Auth, string, []string, []byte) error {
		time.Sleep(time.Second)
		return nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = hanging.Notify(ctx, "bob@example.com", domain.Notification{})
	req.ErrorIs(err, chaterrors.ErrNotificationFailure)
}
