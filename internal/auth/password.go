// Password hashing.
//
// WHY BCRYPT?
// bcrypt is deliberately slow, which makes guessing passwords offline
// expensive. Each hash gets its own random salt, stored inside the output, so
// two users with the same password end up with different hashes and no
// separate salt column is needed. Fast digests such as MD5 or SHA-256 are
// unsuitable here.
//
// Hash format (the full output of bcrypt.GenerateFromPassword):
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (12 rounds: 2^12 iterations)
//	 version
//
// Accounts created through GitHub sign-in have no password hash at all and
// can only log in through GitHub.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor used in production.
//
// COST TUNING:
// Pick the cost so one hash takes roughly 200 to 300ms on production
// hardware. Lower makes cracking cheap. Higher makes login sluggish and lets
// a burst of sign-ins pin the CPU. Cost 12 sits around 250ms on a modern
// server.
const defaultCost = 12

// MaxPasswordBytes is bcrypt's input limit. Longer passwords would be
// silently truncated, so Hash rejects them instead.
const MaxPasswordBytes = 72

// ErrPasswordMismatch is returned by Verify when the password is wrong.
var ErrPasswordMismatch = errors.New("auth: invalid password")

// PasswordService provides salted bcrypt hashing and verification. The cost is
// a field so tests can run at bcrypt.MinCost.
type PasswordService struct {
	cost int
}

func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest creates a PasswordService with the given cost.
// Do NOT use in production.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash returns a self-describing bcrypt hash ($2a$<cost>$<salt><hash>).
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordBytes)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify checks plaintext against a stored hash.
//
// bcrypt.CompareHashAndPassword compares in constant time, so response
// timing does not reveal how much of a guess was right. Login returns the
// same "Invalid credentials" for a wrong password and an unknown email.
//
// An empty hash (accounts created through GitHub sign-in) never matches.
func (p *PasswordService) Verify(hash, plaintext string) error {
	if hash == "" {
		return ErrPasswordMismatch
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
