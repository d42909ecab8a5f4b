package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/flowjournal/flowpush/internal/webpush"
)

const (
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"

	// user tokens are HS256 with this secret, so it has to be unguessable
	minJWTSecretLength = 32
)

// Config holds all runtime configuration knobs for the push service.
type Config struct {
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	HTTP struct {
		Addr         string        `mapstructure:"addr"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
		AllowOrigins string        `mapstructure:"allow_origins"`
	} `mapstructure:"http"`
	Storage struct {
		Driver string `mapstructure:"driver"`
		Path   string `mapstructure:"path"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"storage"`
	VAPID struct {
		PublicKey  string        `mapstructure:"public_key"`
		PrivateKey string        `mapstructure:"private_key"`
		Subject    string        `mapstructure:"subject"`
		Expiration time.Duration `mapstructure:"expiration"`
	} `mapstructure:"vapid"`
	Push struct {
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
		TTL            time.Duration `mapstructure:"ttl"`
		Urgency        string        `mapstructure:"urgency"`
		Topic          string        `mapstructure:"topic"`
	} `mapstructure:"push"`
	Auth struct {
		JWTSecret string        `mapstructure:"jwt_secret"`
		Username  string        `mapstructure:"username"`
		Password  string        `mapstructure:"password"`
		TokenTTL  time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`
	RateLimit struct {
		PerMinute int `mapstructure:"per_minute"`
		Burst     int `mapstructure:"burst"`
	} `mapstructure:"ratelimit"`
}

// Load reads the configuration from disk/environment using Viper.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("flowpush")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	// key material is usually provisioned under the bare names too
	_ = v.BindEnv("vapid.public_key", "FLOWPUSH_VAPID_PUBLIC_KEY", "VAPID_PUBLIC_KEY")
	_ = v.BindEnv("vapid.private_key", "FLOWPUSH_VAPID_PRIVATE_KEY", "VAPID_PRIVATE_KEY")

	if err := v.ReadInConfig(); err != nil {
		// env-only deployments have no file
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate reports the first setting that would stop the service from
// delivering. All errors wrap webpush.ErrConfiguration.
func (c *Config) Validate() error {
	if c.VAPID.PublicKey == "" || c.VAPID.PrivateKey == "" {
		return fmt.Errorf("%w: vapid.public_key and vapid.private_key are required", webpush.ErrConfiguration)
	}
	if !strings.HasPrefix(c.VAPID.Subject, "mailto:") && !strings.HasPrefix(c.VAPID.Subject, "https:") {
		return fmt.Errorf("%w: vapid.subject must start with mailto: or https:", webpush.ErrConfiguration)
	}
	if !webpush.Urgency(c.Push.Urgency).Valid() {
		return fmt.Errorf("%w: push.urgency %q is not one of very-low, low, normal, high", webpush.ErrConfiguration, c.Push.Urgency)
	}
	if c.Push.RequestTimeout <= 0 {
		return fmt.Errorf("%w: push.request_timeout must be positive", webpush.ErrConfiguration)
	}
	switch c.Storage.Driver {
	case DriverBolt:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for bolt", webpush.ErrConfiguration)
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("%w: storage.dsn is required for postgres", webpush.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown storage.driver %q", webpush.ErrConfiguration, c.Storage.Driver)
	}
	if len(c.Auth.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("%w: auth.jwt_secret must be at least %d bytes", webpush.ErrConfiguration, minJWTSecretLength)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("http.addr", ":8090")
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.allow_origins", "*")

	v.SetDefault("storage.driver", DriverBolt)
	v.SetDefault("storage.path", "./data/flowpush.db")
	v.SetDefault("storage.dsn", "")

	v.SetDefault("vapid.public_key", "")
	v.SetDefault("vapid.private_key", "")
	v.SetDefault("vapid.subject", "mailto:notifications@flowjournal.app")
	v.SetDefault("vapid.expiration", webpush.DefaultVAPIDExpiration.String())

	v.SetDefault("push.request_timeout", webpush.DefaultRequestTimeout.String())
	v.SetDefault("push.ttl", webpush.DefaultTTL.String())
	v.SetDefault("push.urgency", string(webpush.UrgencyNormal))
	v.SetDefault("push.topic", "")

	// no secret or operator password by default; an empty password disables login
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.username", "admin")
	v.SetDefault("auth.password", "")
	v.SetDefault("auth.token_ttl", "24h")

	v.SetDefault("ratelimit.per_minute", 10)
	v.SetDefault("ratelimit.burst", 3)
}
