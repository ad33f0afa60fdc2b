package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/go-account-service/config"
	"github.com/FACorreiaa/go-account-service/internal/types"
)

// TokenManager issues and verifies access and refresh JWTs. Each kind has its
// own secret and expiry; both are fixed for the life of the process.
type TokenManager struct {
	cfg config.JWTConfig
	now func() time.Time
}

func NewTokenManager(cfg config.JWTConfig) *TokenManager {
	return &TokenManager{cfg: cfg, now: time.Now}
}

func (m *TokenManager) AccessTokenTTL() time.Duration  { return m.cfg.AccessTokenTTL }
func (m *TokenManager) RefreshTokenTTL() time.Duration { return m.cfg.RefreshTokenTTL }

// IssueAccessToken mints a short-lived token carrying the user's identity.
func (m *TokenManager) IssueAccessToken(user *types.User) (string, error) {
	claims := &types.Claims{
		UserID:           user.ID.String(),
		Username:         user.Username,
		Email:            user.Email,
		Fullname:         user.Fullname,
		TokenType:        types.TokenTypeAccess,
		RegisteredClaims: m.registered(user.ID, m.cfg.AccessTokenTTL),
	}
	return m.sign(claims, m.cfg.AccessTokenSecret)
}

// IssueRefreshToken mints a long-lived token carrying only the user id.
func (m *TokenManager) IssueRefreshToken(userID uuid.UUID) (string, error) {
	claims := &types.Claims{
		UserID:           userID.String(),
		TokenType:        types.TokenTypeRefresh,
		RegisteredClaims: m.registered(userID, m.cfg.RefreshTokenTTL),
	}
	return m.sign(claims, m.cfg.RefreshTokenSecret)
}

// IssueTokenPair mints a fresh access and refresh token for user.
func (m *TokenManager) IssueTokenPair(user *types.User) (*types.TokenPair, error) {
	access, err := m.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	refresh, err := m.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, err
	}
	return &types.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccessToken validates signature, expiry, issuer and token kind.
func (m *TokenManager) VerifyAccessToken(token string) (*types.Claims, error) {
	return m.parse(token, m.cfg.AccessTokenSecret, types.TokenTypeAccess)
}

// VerifyRefreshToken validates a refresh token and recovers the user id.
func (m *TokenManager) VerifyRefreshToken(token string) (uuid.UUID, error) {
	claims, err := m.parse(token, m.cfg.RefreshTokenSecret, types.TokenTypeRefresh)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, types.NewInvalidTokenError("Invalid refresh token", err)
	}
	return id, nil
}

func (m *TokenManager) registered(userID uuid.UUID, ttl time.Duration) jwt.RegisteredClaims {
	now := m.now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(), // keeps tokens minted in the same second distinct
		Issuer:    m.cfg.Issuer,
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (m *TokenManager) sign(claims *types.Claims, secret string) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", claims.TokenType, err)
	}
	return signed, nil
}

func (m *TokenManager) parse(tokenString, secret, tokenType string) (*types.Claims, error) {
	if tokenString == "" {
		return nil, types.NewInvalidTokenError("Unauthorized request", nil)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.cfg.Issuer))
	}

	claims := &types.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, types.NewInvalidTokenError("Token has expired", err)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, types.NewInvalidTokenError("Malformed token", err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, types.NewInvalidTokenError("Invalid token signature", err)
		default:
			return nil, types.NewInvalidTokenError("Invalid "+tokenType+" token", err)
		}
	}
	if !token.Valid || claims.TokenType != tokenType || claims.UserID == "" {
		return nil, types.NewInvalidTokenError("Invalid "+tokenType+" token", nil)
	}
	return claims, nil
}
