package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims is the payload of both access and refresh tokens; TokenType
// discriminates which (a refresh token presented where an access token
// is expected, or vice versa, is rejected).
type Claims struct {
	UserID    string `json:"sub"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	JTI       string `json:"jti"`
	jwt.RegisteredClaims
}

// Manager issues and verifies HS256-signed access/refresh tokens for one
// signing secret, and derives the deterministic hash refresh tokens are
// stored under (internal/repo/postgres never sees a raw refresh token).
type Manager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewManager(secret string, accessTTL time.Duration, refreshTTL time.Duration) *Manager {
	return &Manager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (m *Manager) newClaims(userID, email, role, tokenType string, ttl time.Duration) (Claims, string, time.Time) {
	now := time.Now().UTC()
	jti := uuid.NewString()
	expiresAt := now.Add(ttl)

	return Claims{
		UserID:    userID,
		Email:     email,
		Role:      role,
		TokenType: tokenType,
		JTI:       jti,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Subject:   userID,
		},
	}, jti, expiresAt
}

// GenerateAccessToken signs a short-lived bearer token carrying the
// caller's identity and role, used on every authed request.
func (m *Manager) GenerateAccessToken(userID, email, role string) (string, error) {
	claims, _, _ := m.newClaims(userID, email, role, tokenTypeAccess, m.accessTTL)
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// GenerateRefreshToken signs a long-lived token and also returns its jti
// and expiry so the caller can persist a RefreshTokenRow alongside the
// HashRefreshToken digest.
func (m *Manager) GenerateRefreshToken(userID, email, role string) (raw string, jti string, expiresAt time.Time, err error) {
	claims, jti, expiresAt := m.newClaims(userID, email, role, tokenTypeRefresh, m.refreshTTL)
	raw, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	return
}

// ParseAndValidate verifies signature and standard claims (expiry, etc)
// without checking TokenType — callers that care which kind of token
// they got use VerifyAccessToken/VerifyRefreshToken instead.
func (m *Manager) ParseAndValidate(tokenStr string) (claims *Claims, err error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func (m *Manager) VerifyAccessToken(tokenStr string) (*Claims, error) {
	claims, err := m.ParseAndValidate(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, errors.New("invalid token type")
	}
	return claims, nil
}

// VerifyRefreshToken additionally requires a jti, since the jti is what
// lets a single refresh token be revoked (internal/repo/postgres keys
// RefreshTokenRow on it) without invalidating every token for the user.
func (m *Manager) VerifyRefreshToken(tokenStr string) (*Claims, error) {
	claims, err := m.ParseAndValidate(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeRefresh {
		return nil, errors.New("invalid token type")
	}
	if claims.JTI == "" {
		return nil, errors.New("missing jti")
	}
	return claims, nil
}

// HashRefreshToken derives the deterministic digest a raw refresh token
// is stored under, keyed by the signing secret so a leaked DB dump alone
// can't be used to forge or match refresh tokens.
func (m *Manager) HashRefreshToken(raw string) string {
	h := hmac.New(sha256.New, m.secret)
	h.Write([]byte(raw))
	return hex.EncodeToString(h.Sum(nil))
}
