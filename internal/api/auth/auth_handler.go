package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/FACorreiaa/go-account-service/internal/api"
	"github.com/FACorreiaa/go-account-service/internal/types"
)

type AuthHandlerImpl struct {
	authService AuthService
	cookies     CookieOptions
	logger      *slog.Logger
}

func NewAuthHandlerImpl(authService AuthService, cookies CookieOptions, logger *slog.Logger) *AuthHandlerImpl {
	return &AuthHandlerImpl{
		authService: authService,
		cookies:     cookies,
		logger:      logger,
	}
}

// Login godoc
// @Summary      Log in
// @Description  Authenticates with username or email plus password. Tokens are set as cookies and returned in the body.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        credentials body types.LoginRequest true "Login credentials"
// @Success      200 {object} types.ApiResponse{data=types.AuthSession} "Logged in"
// @Failure      400 {object} types.ApiResponse "Invalid input"
// @Failure      401 {object} types.ApiResponse "Invalid credentials"
// @Router       /users/login [post]
func (h *AuthHandlerImpl) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("HandlerImpl", "Login"))

	var req types.LoginRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Failed to decode request", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := api.ValidateStruct(req); err != nil {
		api.WriteError(w, r, h.logger, err)
		return
	}

	session, err := h.authService.Login(ctx, types.LoginParams{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		api.WriteError(w, r, h.logger, err)
		return
	}

	h.cookies.setTokens(w, &session.TokenPair)
	api.WriteSuccess(w, r, http.StatusOK, session, "User logged in successfully")
}

// RefreshSession godoc
// @Summary      Rotate tokens
// @Description  Exchanges the current refresh token (cookie or body) for a new access/refresh pair.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        token body types.RefreshTokenRequest false "Refresh token when not sent as cookie"
// @Success      200 {object} types.ApiResponse{data=types.TokenPair} "Tokens refreshed"
// @Failure      401 {object} types.ApiResponse "Invalid or reused refresh token"
// @Router       /users/refresh-token [post]
func (h *AuthHandlerImpl) RefreshSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("HandlerImpl", "RefreshSession"))

	token := readCookie(r, RefreshTokenCookie)
	// Chunked and HTTP/2 bodies arrive without a Content-Length.
	if token == "" && r.Body != nil && r.Body != http.NoBody {
		var req types.RefreshTokenRequest
		err := api.DecodeJSONBody(w, r, &req)
		switch {
		case errors.Is(err, api.ErrEmptyBody):
		case err != nil:
			l.WarnContext(ctx, "Failed to decode request", slog.Any("error", err))
			api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
			return
		default:
			token = req.RefreshToken
		}
	}

	pair, err := h.authService.RefreshSession(ctx, token)
	if err != nil {
		api.WriteError(w, r, h.logger, err)
		return
	}

	h.cookies.setTokens(w, pair)
	api.WriteSuccess(w, r, http.StatusOK, pair, "Access token refreshed")
}

// Logout godoc
// @Summary      Log out
// @Description  Clears the stored refresh token and both token cookies.
// @Tags         Auth
// @Produce      json
// @Success      200 {object} types.ApiResponse "Logged out"
// @Failure      401 {object} types.ApiResponse "Unauthorized"
// @Security     BearerAuth
// @Router       /users/logout [post]
func (h *AuthHandlerImpl) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userIDStr, ok := GetUserIDFromContext(ctx)
	if !ok || userIDStr == "" {
		api.WriteError(w, r, h.logger, types.NewInvalidTokenError("Authentication required", nil))
		return
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		api.WriteError(w, r, h.logger, types.NewInvalidTokenError("Invalid access token", err))
		return
	}

	if err := h.authService.Logout(ctx, userID); err != nil {
		api.WriteError(w, r, h.logger, err)
		return
	}

	h.cookies.clearTokens(w)
	api.WriteSuccess(w, r, http.StatusOK, struct{}{}, "User logged out")
}
