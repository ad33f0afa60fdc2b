package database

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-account-service/config"
)

func TestNewDatabaseConfig(t *testing.T) {
	var cfg config.Config
	cfg.Repositories.Postgres.Host = "db"
	cfg.Repositories.Postgres.Port = "5432"
	cfg.Repositories.Postgres.Username = "postgres"
	cfg.Repositories.Postgres.Password = "p@ss"
	cfg.Repositories.Postgres.DB = "accounts"
	cfg.Repositories.Postgres.MAXCONWAITINGTIME = 10

	dbConfig, err := NewDatabaseConfig(&cfg, slog.Default())
	require.NoError(t, err)

	u, err := url.Parse(dbConfig.ConnectionURL)
	require.NoError(t, err)
	assert.Equal(t, "postgresql", u.Scheme)
	assert.Equal(t, "db:5432", u.Host)
	assert.Equal(t, "/accounts", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss", pw)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
	assert.Equal(t, "10", u.Query().Get("connect_timeout"))

	t.Run("MissingHost", func(t *testing.T) {
		_, err := NewDatabaseConfig(&config.Config{}, slog.Default())
		assert.Error(t, err)
	})
}

func TestRunMigrations_RejectsScheme(t *testing.T) {
	err := RunMigrations("mysql://root@localhost/accounts", slog.Default())
	assert.Error(t, err)
}

func TestNewPoolConfig(t *testing.T) {
	const connURL = "postgresql://postgres:postgres@db:5432/accounts?sslmode=disable"

	t.Run("AppliesSettings", func(t *testing.T) {
		cfg, err := NewPoolConfig(connURL, config.PoolConfig{
			MaxConns:        20,
			MinConns:        2,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: time.Minute,
		}, slog.Default())
		require.NoError(t, err)

		assert.Equal(t, int32(20), cfg.MaxConns)
		assert.Equal(t, int32(2), cfg.MinConns)
		assert.Equal(t, time.Hour, cfg.MaxConnLifetime)
		assert.Equal(t, time.Minute, cfg.MaxConnIdleTime)
		assert.NotNil(t, cfg.AfterConnect)
	})

	t.Run("ZeroKeepsDefaults", func(t *testing.T) {
		defaults, err := NewPoolConfig(connURL, config.PoolConfig{}, slog.Default())
		require.NoError(t, err)

		assert.Positive(t, defaults.MaxConns)
		assert.Equal(t, 5*time.Minute, defaults.MaxConnIdleTime)
	})

	t.Run("BadURL", func(t *testing.T) {
		_, err := NewPoolConfig("postgresql://db:notaport/accounts", config.PoolConfig{}, slog.Default())
		assert.Error(t, err)
	})
}

type fakePinger struct {
	failures int
	calls    int
}

func (p *fakePinger) Ping(context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestWaitForDB(t *testing.T) {
	settings := config.PoolConfig{ReadyAttempts: 3, ReadyBackoff: time.Millisecond}

	t.Run("ReadyAfterRetries", func(t *testing.T) {
		p := &fakePinger{failures: 2}

		err := WaitForDB(context.Background(), p, settings, slog.Default())

		assert.NoError(t, err)
		assert.Equal(t, 3, p.calls)
	})

	t.Run("GivesUp", func(t *testing.T) {
		p := &fakePinger{failures: 10}

		err := WaitForDB(context.Background(), p, settings, slog.Default())

		assert.ErrorContains(t, err, "after 3 attempts")
		assert.Equal(t, 3, p.calls)
	})

	t.Run("StopsWhenCancelled", func(t *testing.T) {
		p := &fakePinger{failures: 10}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := WaitForDB(ctx, p, config.PoolConfig{ReadyAttempts: 5, ReadyBackoff: time.Hour}, slog.Default())

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, p.calls)
	})
}
