package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-account-service/app/observability/metrics"
	"github.com/FACorreiaa/go-account-service/internal/types"
)

const invalidCredentialsMessage = "Invalid user credentials"

var _ AuthService = (*AuthServiceImpl)(nil)

// AuthRepo is the slice of the credential store the session protocol needs.
// Lookups return an error wrapping types.ErrNotFound when no user matches.
type AuthRepo interface {
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*types.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*types.User, error)
	SetRefreshToken(ctx context.Context, id uuid.UUID, token *string) error
}

// AuthService drives the session lifecycle: login, refresh rotation, logout.
type AuthService interface {
	Login(ctx context.Context, params types.LoginParams) (*types.AuthSession, error)
	RefreshSession(ctx context.Context, refreshToken string) (*types.TokenPair, error)
	Logout(ctx context.Context, userID uuid.UUID) error
}

type AuthServiceImpl struct {
	logger *slog.Logger
	repo   AuthRepo
	tokens *TokenManager
	hasher PasswordHasher
}

func NewAuthService(repo AuthRepo, tokens *TokenManager, hasher PasswordHasher, logger *slog.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{
		logger: logger,
		repo:   repo,
		tokens: tokens,
		hasher: hasher,
	}
}

// Login checks credentials and opens a new session. An unknown user and a
// wrong password fail identically.
func (s *AuthServiceImpl) Login(ctx context.Context, params types.LoginParams) (*types.AuthSession, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Login")
	defer span.End()
	start := time.Now()
	defer metrics.AuthDuration(ctx, start, "login")

	l := s.logger.With(slog.String("method", "Login"))
	m := metrics.Get()

	username := strings.ToLower(strings.TrimSpace(params.Username))
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if username == "" && email == "" {
		metrics.Outcome(ctx, m.LoginRequestsTotal, "invalid")
		return nil, types.NewValidationError("Username or email is required")
	}
	if params.Password == "" {
		metrics.Outcome(ctx, m.LoginRequestsTotal, "invalid")
		return nil, types.NewValidationError("Password is required")
	}

	user, err := s.repo.FindByUsernameOrEmail(ctx, username, email)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			l.InfoContext(ctx, "Login rejected: unknown user")
			metrics.Outcome(ctx, m.LoginRequestsTotal, "rejected")
			return nil, types.NewInvalidCredentialsError(invalidCredentialsMessage)
		}
		return nil, s.fail(span, types.NewUpstreamError("failed to look up user", err))
	}

	if !s.hasher.Compare(user.PasswordHash, params.Password) {
		l.InfoContext(ctx, "Login rejected: password mismatch", slog.String("userID", user.ID.String()))
		metrics.Outcome(ctx, m.LoginRequestsTotal, "rejected")
		return nil, types.NewInvalidCredentialsError(invalidCredentialsMessage)
	}
	span.SetAttributes(attribute.String("user.id", user.ID.String()))

	pair, err := s.issueAndStore(ctx, user)
	if err != nil {
		return nil, s.fail(span, err)
	}

	l.InfoContext(ctx, "User logged in", slog.String("userID", user.ID.String()))
	metrics.Outcome(ctx, m.LoginRequestsTotal, "success")
	span.SetStatus(codes.Ok, "User logged in")
	return &types.AuthSession{User: user.Projection(), TokenPair: *pair}, nil
}

// RefreshSession exchanges the current refresh token for a new pair. The
// presented token must equal the stored one, so a rotated-out token is dead
// even before it expires.
func (s *AuthServiceImpl) RefreshSession(ctx context.Context, refreshToken string) (*types.TokenPair, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "RefreshSession")
	defer span.End()
	start := time.Now()
	defer metrics.AuthDuration(ctx, start, "refresh")

	l := s.logger.With(slog.String("method", "RefreshSession"))
	m := metrics.Get()

	if refreshToken == "" {
		metrics.Outcome(ctx, m.RefreshRequestsTotal, "rejected")
		return nil, types.NewInvalidTokenError("Unauthorized request", nil)
	}

	userID, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		l.InfoContext(ctx, "Refresh rejected: token verification failed", slog.Any("error", err))
		metrics.Outcome(ctx, m.RefreshRequestsTotal, "rejected")
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", userID.String()))

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			metrics.Outcome(ctx, m.RefreshRequestsTotal, "rejected")
			return nil, types.NewInvalidTokenError("Invalid refresh token", err)
		}
		return nil, s.fail(span, types.NewUpstreamError("failed to load user for refresh", err))
	}

	if user.RefreshToken == nil || subtle.ConstantTimeCompare([]byte(*user.RefreshToken), []byte(refreshToken)) != 1 {
		l.WarnContext(ctx, "Refresh rejected: token does not match stored session", slog.String("userID", userID.String()))
		metrics.Outcome(ctx, m.RefreshRequestsTotal, "reused")
		return nil, types.NewInvalidTokenError("Refresh token is expired or used", nil)
	}

	pair, err := s.issueAndStore(ctx, user)
	if err != nil {
		return nil, s.fail(span, err)
	}

	l.InfoContext(ctx, "Refresh token rotated", slog.String("userID", userID.String()))
	metrics.Outcome(ctx, m.RefreshRequestsTotal, "success")
	span.SetStatus(codes.Ok, "Refresh token rotated")
	return pair, nil
}

// Logout clears the stored refresh token, ending the session.
func (s *AuthServiceImpl) Logout(ctx context.Context, userID uuid.UUID) error {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Logout", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	if err := s.repo.SetRefreshToken(ctx, userID, nil); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return s.fail(span, types.NewInvalidTokenError("Invalid access token", err))
		}
		return s.fail(span, types.NewUpstreamError("failed to clear refresh token", err))
	}

	s.logger.InfoContext(ctx, "User logged out", slog.String("userID", userID.String()))
	metrics.Get().LogoutRequestsTotal.Add(ctx, 1)
	span.SetStatus(codes.Ok, "User logged out")
	return nil
}

// issueAndStore mints a pair and persists the refresh half, replacing any
// previous one. Concurrent callers race last-write-wins.
func (s *AuthServiceImpl) issueAndStore(ctx context.Context, user *types.User) (*types.TokenPair, error) {
	pair, err := s.tokens.IssueTokenPair(user)
	if err != nil {
		return nil, types.NewUpstreamError("failed to generate tokens", err)
	}
	if err := s.repo.SetRefreshToken(ctx, user.ID, &pair.RefreshToken); err != nil {
		return nil, types.NewUpstreamError("failed to store refresh token", err)
	}
	return pair, nil
}

func (s *AuthServiceImpl) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

