// Package auth handles sessions, passwords and external sign-in for Pollar.
//
// SESSION FLOW:
//  1. A user signs up, logs in with a password, or comes back from an OAuth
//     provider (/auth/{provider}/callback).
//  2. The server issues a signed JWT and stores it in the HttpOnly "token"
//     cookie. API clients may send it as "Authorization: Bearer <jwt>".
//  3. RequireAuth validates the token on every protected request and puts
//     the user ID in the request context.
//
// Sessions are stateless: logout just clears the cookie. The token carries
// only the user ID and expiry, so a plan change is visible on the very next
// request because the plan is always read from the database.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/juju/clock"
	"github.com/sakif/pollar/internal/apperror"
)

const issuer = "pollar"

// DefaultSessionTTL is how long a session token stays valid.
const DefaultSessionTTL = 30 * 24 * time.Hour

// TokenService signs and verifies session tokens with an HMAC secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// Claims is what a valid token tells us.
type Claims struct {
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewTokenService creates a TokenService. A zero ttl means DefaultSessionTTL.
// The secret should be at least 32 bytes of random data in production:
//
//	JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration, clk clock.Clock) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, clock: clk}, nil
}

// TTL returns the configured session lifetime. Handlers use it for the
// cookie Max-Age so cookie and token expire together.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a new HS256 session token for userID.
func (s *TokenService) Issue(userID string) (string, time.Time, error) {
	return s.issue(userID, s.ttl)
}

func (s *TokenService) issue(userID string, ttl time.Duration) (string, time.Time, error) {
	now := s.clock.Now()
	expires := now.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
		Issuer:    issuer,
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, expires, nil
}

// Validate parses and verifies a session token.
//
// Checked by the jwt library: signature, expiry (against our clock),
// issuer, and the algorithm. Pinning the algorithm with WithValidMethods
// blocks the "alg: none" confusion attack.
//
// Every failure is an ErrUnauthorized AppError.
func (s *TokenService) Validate(tokenStr string) (*Claims, error) {
	var rc jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&rc,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, unauthorized("Session expired", err)
		}
		return nil, unauthorized("Invalid session token", err)
	}
	if !token.Valid || rc.Subject == "" || rc.ExpiresAt == nil {
		return nil, unauthorized("Invalid session token", nil)
	}

	return &Claims{UserID: rc.Subject, ExpiresAt: rc.ExpiresAt.Time}, nil
}

func unauthorized(message string, cause error) error {
	return &apperror.AppError{Err: apperror.ErrUnauthorized, Message: message, Cause: cause}
}
