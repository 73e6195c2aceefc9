// Package internal holds the process configuration of the chat server.
package internal

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
)

type Config struct {
	Host                 string        `env:"HOST,default=localhost"`
	Port                 int           `env:"PORT,default=8080"`
	GrpcPort             int           `env:"GRPC_PORT,default=9090"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath        string        `env:"BLUGE_FILEPATH,required=true"`
	JWTSecret            string        `env:"JWT_SECRET,required=true"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	BufferSize           int           `env:"BUFFER_SIZE,default=1024"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=500ms"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	NotificationWorkers  int           `env:"NOTIFICATION_WORKERS,default=2"`
	NotificationTimeout  time.Duration `env:"NOTIFICATION_TIMEOUT,default=5s"`
	NotifyPolicy         string        `env:"NOTIFY_POLICY,default=subscription"`
	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,default=2000"`
	LimitMessages        *int          `env:"LIMIT_MESSAGES"`
	PingInterval         time.Duration `env:"PING_INTERVAL,default=30s"`
	MaxFrameBytes        int64         `env:"MAX_FRAME_BYTES,default=16384"`
	EventsPerSecond      float64       `env:"EVENTS_PER_SECOND,default=10"`
	EventsBurst          int           `env:"EVENTS_BURST,default=20"`
	CensoredWordsPath    string        `env:"CENSORED_WORDS_PATH"`
	CharReplacement      string        `env:"CHARACTER_REPLACEMENT,default=*"`
	SMTPHost             string        `env:"SMTP_HOST"`
	SMTPPort             int           `env:"SMTP_PORT,default=587"`
	SMTPUsername         string        `env:"SMTP_USERNAME"`
	SMTPPassword         string        `env:"SMTP_PASSWORD"`
	SMTPFrom             string        `env:"SMTP_FROM,default=no-reply@market-chat.local"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=15s"`
	AllowedOrigins       string        `env:"ALLOWED_ORIGINS,default=*"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}

// PageLimit is LIMIT_MESSAGES, nil when unset. Zero or negative values are
// refused, a page must hold at least one message.
func (c Config) PageLimit() (*int, error) {
	if c.LimitMessages != nil && *c.LimitMessages <= 0 {
		return nil, fmt.Errorf("LIMIT_MESSAGES must be positive, got %d", *c.LimitMessages)
	}
	return c.LimitMessages, nil
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	return lo.FilterMap(strings.Split(c.AllowedOrigins, ","), func(s string, _ int) (string, bool) {
		s = strings.TrimSpace(s)
		return s, s != ""
	})
}

// CheckOrigin accepts websocket handshakes from the configured origins.
// Requests without an Origin header do not come from a browser and pass.
func (c Config) CheckOrigin() func(r *http.Request) bool {
	origins := c.Origins()
	if lo.Contains(origins, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return lo.Contains(origins, u.Scheme+"://"+u.Host)
	}
}
