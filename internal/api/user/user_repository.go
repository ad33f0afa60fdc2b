package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/FACorreiaa/go-account-service/app/observability/metrics"
	"github.com/FACorreiaa/go-account-service/internal/api/auth"
	"github.com/FACorreiaa/go-account-service/internal/types"
)

const uniqueViolation = "23505"

const userColumns = `id, username, email, fullname, password_hash, avatar_url, cover_image_url, refresh_token, created_at, updated_at`

var (
	_ UserRepo      = (*PostgresUserRepo)(nil)
	_ auth.AuthRepo = (*PostgresUserRepo)(nil)
)

// DBTX is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock pools.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepo is the credential store. Missing rows surface as types.ErrNotFound,
// unique-index violations as types.ErrConflict.
type UserRepo interface {
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*types.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*types.User, error)
	Create(ctx context.Context, params types.CreateUserParams) (*types.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	SetRefreshToken(ctx context.Context, id uuid.UUID, token *string) error
	UpdateAccountDetails(ctx context.Context, id uuid.UUID, fullname, email *string) (*types.User, error)
	UpdateAvatar(ctx context.Context, id uuid.UUID, url string) (*types.User, error)
	UpdateCoverImage(ctx context.Context, id uuid.UUID, url string) (*types.User, error)
}

type PostgresUserRepo struct {
	logger *slog.Logger
	db     DBTX
}

func NewPostgresUserRepo(db DBTX, logger *slog.Logger) *PostgresUserRepo {
	return &PostgresUserRepo{
		logger: logger,
		db:     db,
	}
}

// FindByUsernameOrEmail matches either identifier; blank ones are ignored.
func (r *PostgresUserRepo) FindByUsernameOrEmail(ctx context.Context, username, email string) (*types.User, error) {
	defer r.observe(ctx, "find_by_username_or_email", time.Now())
	query := `SELECT ` + userColumns + ` FROM users
		WHERE ($1 <> '' AND username = $1) OR ($2 <> '' AND email = $2)
		LIMIT 1`
	return r.scanOne(ctx, "find user by username or email", r.db.QueryRow(ctx, query, username, email))
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*types.User, error) {
	defer r.observe(ctx, "find_by_id", time.Now())
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(ctx, "find user by id", r.db.QueryRow(ctx, query, id))
}

func (r *PostgresUserRepo) Create(ctx context.Context, params types.CreateUserParams) (*types.User, error) {
	defer r.observe(ctx, "create", time.Now())
	query := `INSERT INTO users (username, email, fullname, password_hash, avatar_url, cover_image_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + userColumns
	return r.scanOne(ctx, "create user", r.db.QueryRow(ctx, query,
		params.Username, params.Email, params.Fullname, params.PasswordHash, params.AvatarURL, params.CoverImageURL))
}

func (r *PostgresUserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	defer r.observe(ctx, "update_password", time.Now())
	return r.execOne(ctx, "update password",
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
}

// SetRefreshToken replaces the stored refresh token; nil clears it.
func (r *PostgresUserRepo) SetRefreshToken(ctx context.Context, id uuid.UUID, token *string) error {
	defer r.observe(ctx, "set_refresh_token", time.Now())
	return r.execOne(ctx, "set refresh token",
		`UPDATE users SET refresh_token = $2 WHERE id = $1`, id, token)
}

// UpdateAccountDetails only touches the non-nil fields.
func (r *PostgresUserRepo) UpdateAccountDetails(ctx context.Context, id uuid.UUID, fullname, email *string) (*types.User, error) {
	defer r.observe(ctx, "update_account_details", time.Now())
	query := `UPDATE users
		SET fullname = COALESCE($2, fullname), email = COALESCE($3, email), updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	return r.scanOne(ctx, "update account details", r.db.QueryRow(ctx, query, id, fullname, email))
}

func (r *PostgresUserRepo) UpdateAvatar(ctx context.Context, id uuid.UUID, url string) (*types.User, error) {
	defer r.observe(ctx, "update_avatar", time.Now())
	query := `UPDATE users SET avatar_url = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + userColumns
	return r.scanOne(ctx, "update avatar", r.db.QueryRow(ctx, query, id, url))
}

func (r *PostgresUserRepo) UpdateCoverImage(ctx context.Context, id uuid.UUID, url string) (*types.User, error) {
	defer r.observe(ctx, "update_cover_image", time.Now())
	query := `UPDATE users SET cover_image_url = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + userColumns
	return r.scanOne(ctx, "update cover image", r.db.QueryRow(ctx, query, id, url))
}

func (r *PostgresUserRepo) scanOne(ctx context.Context, op string, row pgx.Row) (*types.User, error) {
	var u types.User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.Fullname, &u.PasswordHash,
		&u.AvatarURL, &u.CoverImageURL, &u.RefreshToken, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, r.mapError(ctx, op, err)
	}
	return &u, nil
}

func (r *PostgresUserRepo) execOne(ctx context.Context, op, sql string, args ...any) error {
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return r.mapError(ctx, op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, types.ErrNotFound)
	}
	return nil
}

func (r *PostgresUserRepo) mapError(ctx context.Context, op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, types.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, types.ErrConflict)
	}
	r.logger.ErrorContext(ctx, "Database query failed", slog.String("op", op), slog.Any("error", err))
	metrics.Get().DbQueryErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	return fmt.Errorf("%s: %w", op, err)
}

func (r *PostgresUserRepo) observe(ctx context.Context, op string, start time.Time) {
	metrics.Get().DbQueryDurationSeconds.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("op", op)))
}
