package auth

import (
	"net/http"
	"time"

	"github.com/FACorreiaa/go-account-service/config"
	"github.com/FACorreiaa/go-account-service/internal/types"
)

const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// CookieOptions controls how bearer tokens are delivered as cookies.
type CookieOptions struct {
	Secure     bool
	Domain     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func NewCookieOptions(cookie config.CookieConfig, jwtCfg config.JWTConfig) CookieOptions {
	return CookieOptions{
		Secure:     cookie.Secure,
		Domain:     cookie.Domain,
		AccessTTL:  jwtCfg.AccessTokenTTL,
		RefreshTTL: jwtCfg.RefreshTokenTTL,
	}
}

func (o CookieOptions) setTokens(w http.ResponseWriter, pair *types.TokenPair) {
	http.SetCookie(w, o.cookie(AccessTokenCookie, pair.AccessToken, int(o.AccessTTL.Seconds())))
	http.SetCookie(w, o.cookie(RefreshTokenCookie, pair.RefreshToken, int(o.RefreshTTL.Seconds())))
}

func (o CookieOptions) clearTokens(w http.ResponseWriter) {
	http.SetCookie(w, o.cookie(AccessTokenCookie, "", -1))
	http.SetCookie(w, o.cookie(RefreshTokenCookie, "", -1))
}

func (o CookieOptions) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   o.Domain,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   maxAge,
	}
}

func readCookie(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
