package types

import (
	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is the JWT payload for both token kinds. Refresh tokens only carry
// the user id.
type Claims struct {
	UserID    string `json:"uid"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	Fullname  string `json:"fullname,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// LoginRequest accepts either a username or an email.
type LoginRequest struct {
	Username string `json:"username,omitempty" example:"alice"`
	Email    string `json:"email,omitempty" validate:"omitempty,email" example:"a@x.com"`
	Password string `json:"password" validate:"required" example:"secret1"`
}

type LoginParams struct {
	Username string
	Email    string
	Password string
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthSession is the result of a successful login.
type AuthSession struct {
	User *UserResponse `json:"user"`
	TokenPair
}
