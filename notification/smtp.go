// Package notification holds the out-of-band gateways used to reach a
// participant who missed a message live.
package notification

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"market-chat/domain"
	"market-chat/errors"
	"net"
	"net/smtp"
	"strconv"
	"time"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPGateway mails a short notice for each missed message.
type SMTPGateway struct {
	log  *slog.Logger
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPGateway(log *slog.Logger, cfg SMTPConfig) *SMTPGateway {
	return &SMTPGateway{log: log, cfg: cfg, send: smtp.SendMail}
}

// Notify sends one mail. smtp.SendMail has no context support, so the call
// runs aside and ctx only bounds how long the worker waits for it.
func (g *SMTPGateway) Notify(ctx context.Context, address string, n domain.Notification) error {
	var auth smtp.Auth
	if g.cfg.Username != "" {
		auth = smtp.PlainAuth("", g.cfg.Username, g.cfg.Password, g.cfg.Host)
	}
	addr := net.JoinHostPort(g.cfg.Host, strconv.Itoa(g.cfg.Port))
	body := render(g.cfg.From, address, n)

	done := make(chan error, 1)
	go func() {
		done <- g.send(addr, auth, g.cfg.From, []string{address}, body)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %v", errors.ErrNotificationFailure, err)
		}
		g.log.Debug("Notification mail sent", "address", address, "message_id", n.MessageID)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", errors.ErrNotificationFailure, ctx.Err())
	}
}

func render(from, to string, n domain.Notification) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: New message from %s\r\n", n.From)
	fmt.Fprintf(&b, "Date: %s\r\n", n.CreatedAt.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "%s wrote to you:\r\n\r\n%s\r\n", n.From, n.Preview)
	return b.Bytes()
}
