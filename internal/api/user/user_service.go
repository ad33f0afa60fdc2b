package user

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/FACorreiaa/go-account-service/app/observability/metrics"
	"github.com/FACorreiaa/go-account-service/internal/api/auth"
	"github.com/FACorreiaa/go-account-service/internal/api/media"
	"github.com/FACorreiaa/go-account-service/internal/types"
)

const currentUserLoadTimeout = 5 * time.Second

// Ensure implementation satisfies the interface
var _ UserService = (*UserServiceImpl)(nil)

// UserService defines the account operations. None of them ever hands the
// password hash or refresh token to the caller's projection.
type UserService interface {
	Register(ctx context.Context, params types.RegisterParams) (*types.User, error)
	GetCurrentUser(ctx context.Context, userID uuid.UUID) (*types.User, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error
	UpdateAccountDetails(ctx context.Context, userID uuid.UUID, params types.UpdateAccountParams) (*types.User, error)
	UpdateAvatar(ctx context.Context, userID uuid.UUID, localPath string) (*types.User, error)
	UpdateCoverImage(ctx context.Context, userID uuid.UUID, localPath string) (*types.User, error)
}

// UserServiceImpl provides the implementation for UserService.
type UserServiceImpl struct {
	logger   *slog.Logger
	repo     UserRepo
	hasher   auth.PasswordHasher
	uploader media.Uploader
	cache    *cache.Cache
	loads    singleflight.Group
}

// NewUserService creates a new user service instance. cacheTTL bounds how
// long a current-user projection may be served without a database read.
func NewUserService(repo UserRepo, hasher auth.PasswordHasher, uploader media.Uploader, cacheTTL time.Duration, logger *slog.Logger) *UserServiceImpl {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &UserServiceImpl{
		logger:   logger,
		repo:     repo,
		hasher:   hasher,
		uploader: uploader,
		cache:    cache.New(cacheTTL, 2*cacheTTL),
	}
}

// Register creates an account. The record is only written once the avatar
// has a stored URL.
func (s *UserServiceImpl) Register(ctx context.Context, params types.RegisterParams) (*types.User, error) {
	ctx, span := otel.Tracer("UserService").Start(ctx, "Register")
	defer span.End()
	start := time.Now()

	l := s.logger.With(slog.String("method", "Register"))
	m := metrics.Get()
	defer metrics.AuthDuration(ctx, start, "register")

	fullname := strings.TrimSpace(params.Fullname)
	username := strings.ToLower(strings.TrimSpace(params.Username))
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if fullname == "" || username == "" || email == "" || strings.TrimSpace(params.Password) == "" {
		metrics.Outcome(ctx, m.RegisterRequestsTotal, "invalid")
		return nil, types.NewValidationError("All fields are required")
	}

	_, err := s.repo.FindByUsernameOrEmail(ctx, username, email)
	switch {
	case err == nil:
		metrics.Outcome(ctx, m.RegisterRequestsTotal, "conflict")
		return nil, types.NewConflictError("User with email or username already exists")
	case !errors.Is(err, types.ErrNotFound):
		return nil, fail(span, types.NewUpstreamError("failed to check existing user", err))
	}

	if params.AvatarPath == "" {
		metrics.Outcome(ctx, m.RegisterRequestsTotal, "invalid")
		return nil, types.NewValidationError("Avatar file is required")
	}
	avatar, err := s.uploader.Upload(ctx, params.AvatarPath)
	if err != nil || avatar.URL == "" {
		l.WarnContext(ctx, "Avatar upload failed", slog.Any("error", err))
		metrics.Outcome(ctx, m.RegisterRequestsTotal, "invalid")
		return nil, types.NewValidationError("Avatar file is required")
	}

	var coverURL string
	if params.CoverImagePath != "" {
		cover, err := s.uploader.Upload(ctx, params.CoverImagePath)
		if err != nil {
			l.WarnContext(ctx, "Cover image upload failed, continuing without it", slog.Any("error", err))
		} else {
			coverURL = cover.URL
		}
	}

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return nil, fail(span, types.NewUpstreamError("failed to hash password", err))
	}

	created, err := s.repo.Create(ctx, types.CreateUserParams{
		Username:      username,
		Email:         email,
		Fullname:      fullname,
		PasswordHash:  hash,
		AvatarURL:     avatar.URL,
		CoverImageURL: coverURL,
	})
	if err != nil {
		if errors.Is(err, types.ErrConflict) {
			metrics.Outcome(ctx, m.RegisterRequestsTotal, "conflict")
			return nil, types.NewConflictError("User with email or username already exists")
		}
		return nil, fail(span, types.NewUpstreamError("Something went wrong while registering user", err))
	}

	user, err := s.repo.FindByID(ctx, created.ID)
	if err != nil {
		return nil, fail(span, types.NewUpstreamError("Something went wrong while registering user", err))
	}

	span.SetAttributes(attribute.String("user.id", user.ID.String()))
	span.SetStatus(codes.Ok, "User registered")
	metrics.Outcome(ctx, m.RegisterRequestsTotal, "success")
	l.InfoContext(ctx, "User registered", slog.String("userID", user.ID.String()))
	return user, nil
}

// GetCurrentUser serves the authenticated user's record, from cache when fresh.
func (s *UserServiceImpl) GetCurrentUser(ctx context.Context, userID uuid.UUID) (*types.User, error) {
	key := userID.String()
	if cached, ok := s.cache.Get(key); ok {
		u := cached.(types.User)
		return &u, nil
	}

	// The load is shared by every waiter, so it must outlive the caller that
	// started it.
	v, err, _ := s.loads.Do(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), currentUserLoadTimeout)
		defer cancel()

		u, err := s.repo.FindByID(loadCtx, userID)
		if err != nil {
			return nil, err
		}
		// A mutation that cached its result during the read is newer.
		if err := s.cache.Add(key, *u, cache.DefaultExpiration); err != nil {
			if cached, ok := s.cache.Get(key); ok {
				return cached, nil
			}
		}
		return *u, nil
	})
	if err != nil {
		return nil, s.mapLookupError(err, "failed to fetch current user")
	}
	u := v.(types.User)
	return &u, nil
}

// ChangePassword replaces the hash only after the old password checks out.
func (s *UserServiceImpl) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	ctx, span := otel.Tracer("UserService").Start(ctx, "ChangePassword", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "ChangePassword"), slog.String("userID", userID.String()))

	if strings.TrimSpace(newPassword) == "" {
		return types.NewValidationError("New password is required")
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return fail(span, s.mapLookupError(err, "failed to load user"))
	}

	if !s.hasher.Compare(user.PasswordHash, oldPassword) {
		l.InfoContext(ctx, "Password change rejected: old password mismatch")
		return types.NewInvalidCredentialsError("Invalid old password")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fail(span, types.NewUpstreamError("failed to hash password", err))
	}
	if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
		return fail(span, s.mapLookupError(err, "failed to update password"))
	}

	s.cache.Delete(userID.String())
	l.InfoContext(ctx, "Password changed")
	span.SetStatus(codes.Ok, "Password changed")
	return nil
}

// UpdateAccountDetails changes fullname and/or email.
func (s *UserServiceImpl) UpdateAccountDetails(ctx context.Context, userID uuid.UUID, params types.UpdateAccountParams) (*types.User, error) {
	ctx, span := otel.Tracer("UserService").Start(ctx, "UpdateAccountDetails", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	fullname := trimmedOrNil(params.Fullname)
	email := trimmedOrNil(params.Email)
	if email != nil {
		lowered := strings.ToLower(*email)
		email = &lowered
	}
	if fullname == nil && email == nil {
		return nil, types.NewValidationError("At least one of fullname or email is required")
	}

	user, err := s.repo.UpdateAccountDetails(ctx, userID, fullname, email)
	if err != nil {
		if errors.Is(err, types.ErrConflict) {
			return nil, types.NewConflictError("Email is already in use")
		}
		return nil, fail(span, s.mapLookupError(err, "failed to update account details"))
	}

	s.cache.SetDefault(userID.String(), *user)
	s.logger.InfoContext(ctx, "Account details updated", slog.String("userID", userID.String()))
	span.SetStatus(codes.Ok, "Account details updated")
	return user, nil
}

func (s *UserServiceImpl) UpdateAvatar(ctx context.Context, userID uuid.UUID, localPath string) (*types.User, error) {
	return s.replaceImage(ctx, userID, localPath, "Avatar", s.repo.UpdateAvatar)
}

func (s *UserServiceImpl) UpdateCoverImage(ctx context.Context, userID uuid.UUID, localPath string) (*types.User, error) {
	return s.replaceImage(ctx, userID, localPath, "Cover image", s.repo.UpdateCoverImage)
}

func (s *UserServiceImpl) replaceImage(
	ctx context.Context,
	userID uuid.UUID,
	localPath, label string,
	persist func(context.Context, uuid.UUID, string) (*types.User, error),
) (*types.User, error) {
	ctx, span := otel.Tracer("UserService").Start(ctx, "Update"+strings.ReplaceAll(label, " ", ""), trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "Update"+strings.ReplaceAll(label, " ", "")), slog.String("userID", userID.String()))

	if localPath == "" {
		return nil, types.NewValidationError(label + " file is missing")
	}

	uploaded, err := s.uploader.Upload(ctx, localPath)
	if err != nil || uploaded.URL == "" {
		l.WarnContext(ctx, "Upload failed", slog.Any("error", err))
		return nil, types.NewValidationError("Error while uploading " + strings.ToLower(label))
	}

	user, err := persist(ctx, userID, uploaded.URL)
	if err != nil {
		return nil, fail(span, s.mapLookupError(err, "failed to update "+strings.ToLower(label)))
	}

	s.cache.SetDefault(userID.String(), *user)
	l.InfoContext(ctx, label+" updated", slog.String("key", uploaded.Key))
	span.SetStatus(codes.Ok, label+" updated")
	return user, nil
}

// mapLookupError treats a vanished user as a dead session.
func (s *UserServiceImpl) mapLookupError(err error, message string) error {
	var apiErr *types.ApiError
	if errors.As(err, &apiErr) {
		return err
	}
	if errors.Is(err, types.ErrNotFound) {
		return types.NewInvalidTokenError("Invalid access token", err)
	}
	return types.NewUpstreamError(message, err)
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
