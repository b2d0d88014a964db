// Package auth issues and verifies session tokens, hashes passwords and
// guards HTTP routes.
//
// SESSION FLOW:
//  1. A user registers, logs in or finishes GitHub sign-in.
//  2. The server signs a JWT for the user's internal id and sets it as the
//     HttpOnly "token" cookie. Register and login also return it in the
//     JSON body; the GitHub callback only redirects.
//  3. On later calls RequireAuth looks for "Authorization: Bearer <token>"
//     first and falls back to the cookie.
//  4. The token is verified, the user is loaded, and inactive accounts are
//     turned away before the handler runs.
//  5. Logout clears the cookie. Tokens already handed out stay valid until
//     they expire.
//
// WHY JWT?
// The session is stateless. Everything the server needs (user id, issuer,
// expiry) lives inside the signed token, so verifying it costs one HMAC and
// no table lookup. Nobody can change the payload without the secret.
//
// JWT STRUCTURE (three base64url parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header:    {"alg":"HS256","typ":"JWT"}
//	- Payload:   {"sub":"<user id>","iss":"codemind","iat":...,"exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, JWT_SECRET)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is how long an issued session stays valid.
//
// There are no refresh tokens. A session lasts 30 days and the user logs in
// again afterwards. The session cookie expires at the same moment.
const TokenTTL = 30 * 24 * time.Hour

const issuer = "codemind"

var (
	// ErrTokenExpired is returned by Validate for a well-signed token past its expiry.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrInvalidToken covers bad signatures, wrong algorithms and malformed tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret used for both signing and verifying. Rotating
// JWT_SECRET logs every user out, since old signatures stop matching.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// Production secrets should be at least 32 random bytes.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// claims is the JWT payload. Only the registered claims are used: "sub" holds
// the internal user id and "iss" pins tokens to this service.
type claims struct {
	jwt.RegisteredClaims
}

// Generate signs a session token for userID valid for TokenTTL.
//
// Signing algorithm: HS256 (HMAC-SHA256). It is symmetric, so the key that
// signs is the key that verifies. That fits a single API process; a fleet
// that must verify without holding the secret would move to RS256.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.GenerateWithDuration(userID, TokenTTL)
}

// GenerateWithDuration signs a token with a custom lifetime. A negative
// duration yields an already-expired token, which tests rely on.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("auth: user id must not be empty")
	}
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token and returns its subject.
//
// ALGORITHM CONFUSION:
// The header's "alg" field is chosen by whoever built the token. Trusting it
// lets an attacker send "alg":"none" with no signature, or claim RS256 and
// have a public key treated as an HMAC secret. The key func refuses
// anything that is not HMAC, and WithValidMethods narrows that to HS256.
//
// The issuer must be "codemind" and "exp" must be present. Failures wrap
// ErrTokenExpired or ErrInvalidToken; the middleware answers both with 401.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("%w: bad claims", ErrInvalidToken)
	}
	if c.Subject == "" {
		return "", fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return c.Subject, nil
}
