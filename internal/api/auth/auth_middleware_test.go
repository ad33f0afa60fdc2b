package auth

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate(t *testing.T) {
	tokens := NewTokenManager(testJWTConfig())
	user := testUser()
	access, err := tokens.IssueAccessToken(user)
	require.NoError(t, err)
	refresh, err := tokens.IssueRefreshToken(user.ID)
	require.NoError(t, err)

	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetUserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := Authenticate(slog.Default(), tokens)(next)

	tests := []struct {
		name       string
		prepare    func(r *http.Request)
		wantStatus int
	}{
		{
			name:       "BearerHeader",
			prepare:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+access) },
			wantStatus: http.StatusNoContent,
		},
		{
			name: "Cookie",
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: access})
			},
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "Missing",
			prepare:    func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "MalformedHeader",
			prepare:    func(r *http.Request) { r.Header.Set("Authorization", "Token "+access) },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "EmptyBearerDoesNotFallBackToCookie",
			prepare: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer ")
				r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: access})
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "RefreshTokenRejected",
			prepare:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+refresh) },
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/current-user", nil)
			tt.prepare(req)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusNoContent {
				assert.Equal(t, user.ID.String(), seen)
			} else {
				assert.Empty(t, seen)
			}
		})
	}
}
