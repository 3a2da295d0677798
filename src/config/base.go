package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "GOVDECISIONS"

// Database holds connection settings
type Database struct {
	Driver          string        `yaml:"driver"          envconfig:"DRIVER"`
	DSN             string        `yaml:"dsn"             envconfig:"DSN"`
	MaxOpenConns    int           `yaml:"maxOpenConns"    envconfig:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"maxIdleConns"    envconfig:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime" envconfig:"CONN_MAX_LIFETIME"`
}

// HTTP holds REST surface settings
type HTTP struct {
	Listen             string   `yaml:"listen"             envconfig:"LISTEN"`
	JWTSecret          string   `yaml:"jwtSecret"          envconfig:"JWT_SECRET"`
	CORSOrigins        []string `yaml:"corsOrigins"        envconfig:"CORS_ORIGINS"`
	RateLimitPerMinute int      `yaml:"rateLimitPerMinute" envconfig:"RATE_LIMIT_PER_MINUTE"`
}

type Redis struct {
	URL            string        `yaml:"url"            envconfig:"URL"`
	Stream         string        `yaml:"stream"         envconfig:"STREAM"`
	StreamMaxLen   int64         `yaml:"streamMaxLen"   envconfig:"STREAM_MAX_LEN"`
	MemberCacheTTL time.Duration `yaml:"memberCacheTTL" envconfig:"MEMBER_CACHE_TTL"`
}

type NATS struct {
	URL           string `yaml:"url"           envconfig:"URL"`
	SubjectPrefix string `yaml:"subjectPrefix" envconfig:"SUBJECT_PREFIX"`
}

// Discord holds bot settings. An empty token disables the integration.
type Discord struct {
	Token           string `yaml:"token"           envconfig:"TOKEN"`
	GuildID         string `yaml:"guildId"         envconfig:"GUILD_ID"`
	VoterRoleID     string `yaml:"voterRoleId"     envconfig:"VOTER_ROLE_ID"`
	NotifyChannelID string `yaml:"notifyChannelId" envconfig:"NOTIFY_CHANNEL_ID"`
}

// Engine holds decision lifecycle settings
type Engine struct {
	ApprovalPercentage int           `yaml:"approvalPercentage" envconfig:"APPROVAL_PERCENTAGE"`
	AutoCloseHours     int           `yaml:"autoCloseHours"     envconfig:"AUTO_CLOSE_HOURS"`
	SweepInterval      time.Duration `yaml:"sweepInterval"      envconfig:"SWEEP_INTERVAL"`
	SweepItemTimeout   time.Duration `yaml:"sweepItemTimeout"   envconfig:"SWEEP_ITEM_TIMEOUT"`
	SweepWorkers       int           `yaml:"sweepWorkers"       envconfig:"SWEEP_WORKERS"`
	MaxRetries         int           `yaml:"maxRetries"         envconfig:"MAX_RETRIES"`
	ReconcileMembers   bool          `yaml:"reconcileMembers"   envconfig:"RECONCILE_MEMBERS"`
}

// Config is the full service configuration
type Config struct {
	Database Database `yaml:"database" envconfig:"DATABASE"`
	HTTP     HTTP     `yaml:"http"     envconfig:"HTTP"`
	Redis    Redis    `yaml:"redis"    envconfig:"REDIS"`
	NATS     NATS     `yaml:"nats"     envconfig:"NATS"`
	Discord  Discord  `yaml:"discord"  envconfig:"DISCORD"`
	Engine   Engine   `yaml:"engine"   envconfig:"ENGINE"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Database: Database{
			Driver:          "mysql",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		HTTP: HTTP{
			Listen:             ":8080",
			CORSOrigins:        []string{"*"},
			RateLimitPerMinute: 60,
		},
		Redis: Redis{
			Stream:         "govdecisions.events",
			StreamMaxLen:   10000,
			MemberCacheTTL: time.Minute,
		},
		NATS: NATS{SubjectPrefix: "govdecisions"},
		Engine: Engine{
			ApprovalPercentage: 60,
			AutoCloseHours:     48,
			SweepInterval:      time.Minute,
			SweepItemTimeout:   10 * time.Second,
			SweepWorkers:       4,
			MaxRetries:         3,
		},
	}
}

// Load layers defaults, the optional YAML file and the environment
func Load(file string) (*Config, error) {
	cfg := Default()

	if file != "" {
		buf, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", file, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Database.Driver) {
	case "mysql", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Engine.ApprovalPercentage < 1 || c.Engine.ApprovalPercentage > 100 {
		errs = append(errs, fmt.Errorf("engine.approvalPercentage %d must be 1-100", c.Engine.ApprovalPercentage))
	}
	if c.Engine.AutoCloseHours < 1 {
		errs = append(errs, fmt.Errorf("engine.autoCloseHours %d must be at least 1", c.Engine.AutoCloseHours))
	}
	if c.Engine.SweepInterval < time.Second {
		errs = append(errs, fmt.Errorf("engine.sweepInterval %s is below 1s", c.Engine.SweepInterval))
	}
	if c.Engine.SweepItemTimeout <= 0 {
		errs = append(errs, errors.New("engine.sweepItemTimeout must be positive"))
	}
	if c.Engine.SweepWorkers < 1 {
		errs = append(errs, errors.New("engine.sweepWorkers must be at least 1"))
	}
	if c.Engine.MaxRetries < 0 {
		errs = append(errs, errors.New("engine.maxRetries must not be negative"))
	}
	if c.Discord.Token != "" && c.Discord.GuildID == "" {
		errs = append(errs, errors.New("discord.guildId is required when a token is set"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
