package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go-auth-backend/internal/model"
	"go-auth-backend/pkg/apierror"
)

// TokenAuthority issues and verifies signed access tokens and mints opaque
// refresh tokens. The signing secret is injected at construction and is
// read-only afterwards.
type TokenAuthority struct {
	secret    []byte
	accessTTL time.Duration
}

func NewTokenAuthority(secret string, accessTTL time.Duration) (*TokenAuthority, error) {
	if secret == "" {
		return nil, fmt.Errorf("token signing secret is required")
	}
	if accessTTL <= 0 {
		return nil, fmt.Errorf("access token TTL must be positive")
	}

	return &TokenAuthority{secret: []byte(secret), accessTTL: accessTTL}, nil
}

func (a *TokenAuthority) IssueAccess(userID string, email string) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
		"exp":   now.Add(a.accessTTL).Unix(),
	})

	signed, err := token.SignedString(a.secret)
	if err != nil {
		// A signing failure means the authority is misconfigured, not
		// that the caller did anything wrong.
		return "", fmt.Errorf("sign access token: %w", err)
	}

	return signed, nil
}

// VerifyAccess checks signature and expiry only. Ownership and session
// state are the session manager's concern. All failure modes collapse into
// one generic message so callers cannot distinguish malformed from expired
// from unknown.
func (a *TokenAuthority) VerifyAccess(tokenString string) (*model.AuthClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", token.Method.Alg())
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, apierror.Unauthorized("invalid or expired token")
	}

	claimsMap, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apierror.Unauthorized("invalid or expired token")
	}

	claims := &model.AuthClaims{}
	claims.UserID, _ = claimsMap["sub"].(string)
	claims.Email, _ = claimsMap["email"].(string)

	if claims.UserID == "" {
		return nil, apierror.Unauthorized("invalid or expired token")
	}

	return claims, nil
}

// IssueRefresh mints an opaque refresh token. It carries no claims and is
// only ever used as a session store lookup key.
func (a *TokenAuthority) IssueRefresh() string {
	return uuid.NewString()
}

func (a *TokenAuthority) AccessTTL() time.Duration {
	return a.accessTTL
}
