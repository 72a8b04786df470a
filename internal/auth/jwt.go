// Package auth decodes the opaque credential carried by incoming
// connections. Token issuance lives in the account subsystem; this side
// only verifies.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrAuthFailure is returned for any credential that does not decode to
// a valid user: bad signature, expired, malformed, unknown key id.
var ErrAuthFailure = errors.New("authentication failed")

// TokenManager verifies JWT credentials issued by the account
// subsystem. It supports a map of signing keys addressed by "kid" so
// the issuer can rotate keys without invalidating live sessions.
type TokenManager struct {
	keys      map[string]string // kid -> HMAC secret
	activeKid string            // key used when signing (tests, tooling)
	duration  time.Duration
}

// Claims is the credential payload: the authenticated user id plus the
// registered expiry/issued-at fields.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// NewTokenManager returns a manager with a single unnamed key.
func NewTokenManager(secretKey string, duration time.Duration) *TokenManager {
	return &TokenManager{
		keys:      map[string]string{"": secretKey},
		activeKid: "",
		duration:  duration,
	}
}

// NewTokenManagerFromKeys returns a manager holding several keys so
// tokens signed under an older kid keep verifying during rotation.
func NewTokenManagerFromKeys(keys map[string]string, activeKid string, duration time.Duration) *TokenManager {
	return &TokenManager{keys: keys, activeKid: activeKid, duration: duration}
}

// Generate issues a signed token for a user. The production issuer is
// the account subsystem; this exists for tests and local tooling.
func (m *TokenManager) Generate(userID int64) (string, time.Time, error) {
	expiresAt := time.Now().Add(m.duration)

	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if m.activeKid != "" {
		token.Header["kid"] = m.activeKid
	}

	secret, ok := m.keys[m.activeKid]
	if !ok {
		return "", time.Time{}, fmt.Errorf("no signing key for kid %q", m.activeKid)
	}

	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// Decode parses and validates a raw credential and returns its claims.
// Every failure mode collapses into ErrAuthFailure so callers close the
// connection with a single authentication-failure code.
func (m *TokenManager) Decode(raw string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		secret, ok := m.keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailure, err)
	}
	if !token.Valid {
		return nil, ErrAuthFailure
	}
	if claims.UserID <= 0 {
		return nil, fmt.Errorf("%w: missing user id", ErrAuthFailure)
	}
	return claims, nil
}
