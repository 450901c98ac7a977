package auth

import (
	"errors"
	"fmt"

	"github.com/sakif/pollar/internal/apperror"
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the work factor used when none is configured.
//
// Set the cost so hashing takes roughly 200-300ms on production hardware.
// Lower makes offline cracking cheap; higher makes login slow under load.
const DefaultBcryptCost = 12

// MaxPasswordBytes is bcrypt's input limit. Longer input would be silently
// truncated, so it is rejected instead.
const MaxPasswordBytes = 72

// PasswordService hashes and verifies passwords with bcrypt.
//
// bcrypt salts every hash and stores salt and cost inside the output:
//
//	$2a$12$<22-char salt><31-char hash>
//
// so a single column holds everything needed to verify later.
type PasswordService struct {
	cost int
	// dummy is compared against when the account does not exist, so
	// "no such user" and "wrong password" take the same time.
	dummy []byte
}

// NewPasswordService creates a PasswordService. Costs outside bcrypt's
// range fall back to DefaultBcryptCost; tests pass bcrypt.MinCost (4).
func NewPasswordService(cost int) *PasswordService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("pollar-timing-equaliser"), cost)
	return &PasswordService{cost: cost, dummy: dummy}
}

// Hash hashes plaintext. It refuses input over MaxPasswordBytes.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", MaxPasswordBytes))
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil when plaintext matches hash. An empty hash (an
// OAuth-only account) never matches, but still costs one bcrypt compare.
func (p *PasswordService) Verify(hash, plaintext string) error {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(p.dummy, []byte(plaintext))
		return errors.New("auth: account has no password")
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return errors.New("auth: invalid password")
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
