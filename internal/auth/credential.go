package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/alyanaluz/gatekeeper/internal/domain/entities"
)

var (
	ErrInvalidCredential = errors.New("invalid credential")
	ErrExpiredCredential = errors.New("credential expired")
	ErrSecretTooShort    = errors.New("credential signing secret must be at least 32 bytes")
)

// minSecretLen is the minimum entropy accepted for the signing secret
const minSecretLen = 32

// Claims is the payload embedded in a session credential. The credential is
// a bearer token: possession implies the right to assert Identity until the
// expiry, and there is no revocation list. The lifetime bounds the blast
// radius of a leaked credential.
type Claims struct {
	Identity string `json:"identity"`
	jwt.RegisteredClaims
}

// CredentialManager issues and verifies signed session credentials
type CredentialManager struct {
	secret   []byte
	lifetime time.Duration
}

// NewCredentialManager creates a credential manager. The secret must carry
// at least 32 bytes; rotating it invalidates all outstanding credentials,
// which is acceptable because they are short-lived and reissued at login.
func NewCredentialManager(secret []byte, lifetime time.Duration) (*CredentialManager, error) {
	if len(secret) < minSecretLen {
		return nil, ErrSecretTooShort
	}
	if lifetime <= 0 {
		return nil, fmt.Errorf("credential lifetime must be positive, got %s", lifetime)
	}
	return &CredentialManager{secret: secret, lifetime: lifetime}, nil
}

// Issue builds a signed credential for a normalized identity.
// Pure computation: no store writes, no provider calls.
func (m *CredentialManager) Issue(identity string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.lifetime)

	claims := Claims{
		Identity: entities.NormalizeIdentity(identity),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "gatekeeper",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign credential: %w", err)
	}

	return tokenString, expiresAt, nil
}

// Verify checks the credential's signature and expiry and returns the
// embedded identity. Fails closed: any decode error, tag mismatch, or
// expiry violation yields an error, never a partial identity. The HMAC
// comparison inside the JWT library is constant-time.
func (m *CredentialManager) Verify(credential string) (string, error) {
	if credential == "" {
		return "", ErrInvalidCredential
	}

	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredCredential
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrInvalidCredential
	}

	if claims.Identity == "" {
		return "", ErrInvalidCredential
	}

	return claims.Identity, nil
}

// Lifetime returns the configured credential lifetime
func (m *CredentialManager) Lifetime() time.Duration {
	return m.lifetime
}
