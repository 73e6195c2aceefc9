package auth

import (
	"fmt"
	"market-chat/contract"
	"market-chat/domain"
	"market-chat/errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "market-chat"

// Claims is the payload of a chat access token. The participant identity
// travels in the standard subject claim.
type Claims struct {
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens signed with the shared secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

var _ contract.IVerifier = (*Verifier)(nil)

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// GenerateToken signs a token for a participant. The chat node itself only
// verifies tokens, this is used by tooling and tests.
func (v *Verifier) GenerateToken(participant domain.ParticipantID, ttl time.Duration) (string, error) {
	if err := participant.Validate(); err != nil {
		return "", err
	}
	now := v.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   participant.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	return v.sign(claims)
}

func (v *Verifier) sign(claims *Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Verify parses the token, checks signature, algorithm and expiry, and
// returns the participant it was issued for.
func (v *Verifier) Verify(tokenString string) (domain.ParticipantID, error) {
	if tokenString == "" {
		return "", fmt.Errorf("%w: missing token", errors.ErrUnauthenticated)
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrUnauthenticated, err)
	}
	if !token.Valid {
		return "", fmt.Errorf("%w: %v", errors.ErrUnauthenticated, jwt.ErrSignatureInvalid)
	}

	participant := domain.ParticipantID(claims.Subject)
	if err := participant.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrUnauthenticated, err)
	}
	return participant, nil
}
