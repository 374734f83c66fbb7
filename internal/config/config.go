package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	JobsModeInline   = "inline"
	JobsModeQueue    = "queue"
	JobsModeDisabled = "disabled"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StoreConfig struct {
	Driver  string
	Migrate bool
}

type SecurityConfig struct {
	JWTAccessSecret  string
	JWTRefreshSecret string
	JWTAccessTTL     time.Duration
	JWTRefreshTTL    time.Duration
	BcryptCost       int
	AdminEmail       string
	AdminPassword    string
}

type RateLimitConfig struct {
	Enabled bool
	Limit   int
	Window  time.Duration
}

type JobsConfig struct {
	Mode          string
	SweepSchedule string
	Stream        string
}

type WorkerConfig struct {
	Group         string
	Consumer      string
	ClaimInterval time.Duration
}

type LoggingConfig struct {
	Level string
}

type AppConfig struct {
	Environment      string
	Logging          LoggingConfig
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Store            StoreConfig
	Security         SecurityConfig
	RateLimit        RateLimitConfig
	Jobs             JobsConfig
	Worker           WorkerConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("TEMPLATEDEV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the auth core cannot run with.
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Security.JWTAccessSecret == "" {
		errs = append(errs, errors.New("security.jwtaccesssecret is required"))
	}
	if c.Security.JWTRefreshSecret == "" {
		errs = append(errs, errors.New("security.jwtrefreshsecret is required"))
	}
	if c.Security.JWTAccessSecret != "" && c.Security.JWTAccessSecret == c.Security.JWTRefreshSecret {
		errs = append(errs, errors.New("access and refresh secrets must differ"))
	}
	if c.Security.JWTAccessTTL <= 0 {
		errs = append(errs, errors.New("security.jwtaccessttl must be positive"))
	}
	if c.Security.JWTRefreshTTL <= 0 {
		errs = append(errs, errors.New("security.jwtrefreshttl must be positive"))
	}
	if c.Security.BcryptCost < bcrypt.MinCost || c.Security.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("security.bcryptcost must be within [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost))
	}

	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for the postgres store"))
		}
	case StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Limit <= 0 {
			errs = append(errs, errors.New("ratelimit.limit must be positive"))
		}
		if c.RateLimit.Window <= 0 {
			errs = append(errs, errors.New("ratelimit.window must be positive"))
		}
	}
	if c.Worker.ClaimInterval <= 0 {
		errs = append(errs, errors.New("worker.claiminterval must be positive"))
	}
	if c.Jobs.Mode == JobsModeQueue && c.Jobs.Stream == "" {
		errs = append(errs, errors.New("jobs.stream is required for the queue mode"))
	}

	switch c.Jobs.Mode {
	case JobsModeInline, JobsModeQueue, JobsModeDisabled:
	default:
		errs = append(errs, fmt.Errorf("unknown jobs.mode %q", c.Jobs.Mode))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("logging.level", "")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 3000)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 5)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("store.driver", StoreDriverPostgres)
	v.SetDefault("store.migrate", true)

	v.SetDefault("security.jwtaccesssecret", "")
	v.SetDefault("security.jwtrefreshsecret", "")
	v.SetDefault("security.jwtaccessttl", "15m")
	v.SetDefault("security.jwtrefreshttl", "168h") // 7 days
	v.SetDefault("security.bcryptcost", 10)
	v.SetDefault("security.adminemail", "")
	v.SetDefault("security.adminpassword", "")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.limit", 20)
	v.SetDefault("ratelimit.window", "1m")

	v.SetDefault("jobs.mode", JobsModeInline)
	v.SetDefault("jobs.sweepschedule", "0 0 * * * *") // hourly
	v.SetDefault("jobs.stream", "auth:maintenance")

	v.SetDefault("worker.group", "auth-workers")
	v.SetDefault("worker.consumer", "worker-1")
	v.SetDefault("worker.claiminterval", "30s")

	v.SetDefault("allowcorsorigins", []string{})
}
