package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

// JWTConfig holds the two independent signing secret / expiry pairs used for
// access and refresh tokens. Loaded once at startup, never rotated at runtime.
type JWTConfig struct {
	AccessTokenSecret  string        `mapstructure:"accessTokenSecret"`
	AccessTokenTTL     time.Duration `mapstructure:"accessTokenTTL"`
	RefreshTokenSecret string        `mapstructure:"refreshTokenSecret"`
	RefreshTokenTTL    time.Duration `mapstructure:"refreshTokenTTL"`
	Issuer             string        `mapstructure:"issuer"`
}

type CookieConfig struct {
	Secure bool   `mapstructure:"secure"`
	Domain string `mapstructure:"domain"`
}

type StorageConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"accessKeyID"`
	SecretAccessKey string `mapstructure:"secretAccessKey"`
	UsePathStyle    bool   `mapstructure:"usePathStyle"`
	PublicBaseURL   string `mapstructure:"publicBaseURL"`
	TempDir         string `mapstructure:"tempDir"`
	MaxUploadBytes  int64  `mapstructure:"maxUploadBytes"`
}

// PoolConfig sizes the Postgres pool and bounds the startup readiness wait.
type PoolConfig struct {
	MaxConns        int32         `mapstructure:"maxConns"`
	MinConns        int32         `mapstructure:"minConns"`
	MaxConnLifetime time.Duration `mapstructure:"maxConnLifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"maxConnIdleTime"`
	ReadyAttempts   int           `mapstructure:"readyAttempts"`
	ReadyBackoff    time.Duration `mapstructure:"readyBackoff"`
}

type Config struct {
	Mode     string `mapstructure:"mode"`
	Dotenv   string `mapstructure:"dotenv"`
	Handlers struct {
		Prometheus struct {
			Port string `mapstructure:"port"`
		} `mapstructure:"prometheus"`
	} `mapstructure:"handlers"`
	Repositories struct {
		Postgres struct {
			Host              string     `mapstructure:"host"`
			Password          string     `mapstructure:"password"`
			Port              string     `mapstructure:"port"`
			Username          string     `mapstructure:"username"`
			DB                string     `mapstructure:"db"`
			SSLMODE           string     `mapstructure:"SSLMODE"`
			MAXCONWAITINGTIME int        `mapstructure:"MAXCONWAITINGTIME"`
			Pool              PoolConfig `mapstructure:"pool"`
		} `mapstructure:"postgres"`
	} `mapstructure:"repositories"`
	Server struct {
		HTTPPort       string        `mapstructure:"HTTPPort"`
		Timeout        time.Duration `mapstructure:"HTTPTimeout"`
		AllowedOrigins []string      `mapstructure:"allowedOrigins"`
	} `mapstructure:"server"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	Cookie  CookieConfig  `mapstructure:"cookie"`
	Storage StorageConfig `mapstructure:"storage"`
	Cache   struct {
		UserTTL time.Duration `mapstructure:"userTTL"`
	} `mapstructure:"cache"`
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	// Add file-based config paths
	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")
	v.AddConfigPath("/usr/local/bin")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Secrets are expected from the environment, e.g. JWT_ACCESSTOKENSECRET.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err = config.Validate(); err != nil {
		return Config{}, err
	}
	fmt.Println("Successfully loaded app configs...")
	return config, nil
}

// Validate rejects configurations the token lifecycle cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.JWT.AccessTokenSecret == "" {
		errs = append(errs, errors.New("jwt.accessTokenSecret is required"))
	}
	if c.JWT.RefreshTokenSecret == "" {
		errs = append(errs, errors.New("jwt.refreshTokenSecret is required"))
	}
	if c.JWT.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("jwt.accessTokenTTL must be positive"))
	}
	if c.JWT.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("jwt.refreshTokenTTL must be positive"))
	}
	pool := c.Repositories.Postgres.Pool
	if pool.MaxConns > 0 && pool.MinConns > pool.MaxConns {
		errs = append(errs, errors.New("repositories.postgres.pool.minConns must not exceed maxConns"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
