package internal

import (
	"net/http/httptest"
	"testing"

	"github.com/Netflix/go-env"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	req := require.New(t)
	var cfg Config

	_, err := env.UnmarshalFromEnviron(&cfg)
	req.Error(err, "required variables are missing")

	t.Setenv("BADGER_FILEPATH", "/tmp/badger")
	t.Setenv("BLUGE_FILEPATH", "/tmp/bluge")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("LIMIT_MESSAGES", "25")
	_, err = env.UnmarshalFromEnviron(&cfg)

	req.NoError(err)
	req.Equal(8080, cfg.Port)
	req.Equal("subscription", cfg.NotifyPolicy)
	req.Equal(25, *cfg.LimitMessages)
	req.Equal([]string{"*"}, cfg.Origins())
}

func TestConfig_PageLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit *int
		fails bool
	}{
		{name: "unset"},
		{name: "positive", limit: lo.ToPtr(50)},
		{name: "zero", limit: lo.ToPtr(0), fails: true},
		{name: "negative", limit: lo.ToPtr(-3), fails: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			limit, err := Config{LimitMessages: tt.limit}.PageLimit()
			if tt.fails {
				req.Error(err)
				return
			}
			req.NoError(err)
			req.Equal(tt.limit, limit)
		})
	}
}

func TestCharacterRune(t *testing.T) {
	req := require.New(t)

	r, err := CharacterRune("#")
	req.NoError(err)
	req.Equal('#', r)

	_, err = CharacterRune("**")
	req.Error(err)
}

func TestConfig_CheckOrigin(t *testing.T) {
	req := require.New(t)
	check := Config{AllowedOrigins: "https://market.example, http://localhost:3000"}.CheckOrigin()

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://market.example", true},
		{"http://localhost:3000", true},
		{"https://evil.example", false},
		{"", true},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		req.Equal(tt.want, check(r), tt.origin)
	}
}
