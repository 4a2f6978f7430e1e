package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/db"
	"codejudge/internal/common/mq"
	"codejudge/internal/common/storage"
	"codejudge/internal/judge/model"
	"codejudge/internal/judge/ratelimit"
	"codejudge/internal/judge/sandbox"
	"codejudge/pkg/utils/logger"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr         = "0.0.0.0:8085"
	defaultReadTimeout      = 5 * time.Second
	defaultWriteTimeout     = 2 * time.Minute
	defaultIdleTimeout      = 60 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultProblemTTL       = 5 * time.Minute
	defaultProblemEmptyTTL  = 30 * time.Second
	defaultFirstAcceptTopic = "judge.first_accept"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// DatabaseConfig selects the store. Driver is postgres, mysql or memory.
type DatabaseConfig struct {
	Driver        string `yaml:"driver"`
	db.PoolConfig `yaml:",inline"`
}

// AuthConfig holds JWT settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
	JWTIssuer string `yaml:"jwtIssuer"`
}

// JudgeConfig holds coordinator settings.
type JudgeConfig struct {
	MaxCodeBytes    int           `yaml:"maxCodeBytes"`
	StoreTimeout    time.Duration `yaml:"storeTimeout"`
	PublishTimeout  time.Duration `yaml:"publishTimeout"`
	ArchiveTimeout  time.Duration `yaml:"archiveTimeout"`
	CaseCacheTTL    time.Duration `yaml:"caseCacheTTL"`
	ProblemTTL      time.Duration `yaml:"problemTTL"`
	ProblemEmptyTTL time.Duration `yaml:"problemEmptyTTL"`
	DiagnosticLines int           `yaml:"diagnosticLines"`
	DiagnosticWidth int           `yaml:"diagnosticWidth"`
}

// FirstAcceptConfig controls first-accept signalling.
type FirstAcceptConfig struct {
	Topic         string        `yaml:"topic"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
	SweepGrace    time.Duration `yaml:"sweepGrace"`
	SweepBatch    int           `yaml:"sweepBatch"`
}

// SeedProblem is loaded into the memory store at startup.
type SeedProblem struct {
	Slug        string     `yaml:"slug"`
	Title       string     `yaml:"title"`
	TimeLimitMs int        `yaml:"timeLimitMs"`
	Cases       []SeedCase `yaml:"cases"`
}

// SeedCase is one test case of a seeded problem.
type SeedCase struct {
	Ordinal  int    `yaml:"ordinal"`
	Input    string `yaml:"input"`
	Expected string `yaml:"expected"`
	Sample   bool   `yaml:"sample"`
}

func (p SeedProblem) toModel() (model.Problem, []model.TestCase) {
	cases := make([]model.TestCase, 0, len(p.Cases))
	for _, c := range p.Cases {
		cases = append(cases, model.TestCase{
			Ordinal:        c.Ordinal,
			Input:          c.Input,
			ExpectedOutput: c.Expected,
			IsSample:       c.Sample,
		})
	}
	return model.Problem{Slug: p.Slug, Title: p.Title, TimeLimitMs: p.TimeLimitMs}, cases
}

// AppConfig holds judge-service config.
type AppConfig struct {
	Server      ServerConfig        `yaml:"server"`
	Logger      logger.Config       `yaml:"logger"`
	Database    DatabaseConfig      `yaml:"database"`
	Redis       cache.RedisConfig   `yaml:"redis"`
	Kafka       mq.KafkaConfig      `yaml:"kafka"`
	MinIO       storage.MinIOConfig `yaml:"minio"`
	Sandbox     sandbox.HTTPConfig  `yaml:"sandbox"`
	RateLimit   ratelimit.Config    `yaml:"rateLimit"`
	Auth        AuthConfig          `yaml:"auth"`
	Judge       JudgeConfig         `yaml:"judge"`
	FirstAccept FirstAcceptConfig   `yaml:"firstAccept"`
	Seed        []SeedProblem       `yaml:"seed"`
}

// loadYAML reads path, expands ${VAR} references and decodes it into out.
// A .env file next to the working directory is loaded first when present.
func loadYAML(path string, out interface{}) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env failed: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *AppConfig) applyDefaults() error {
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	switch cfg.Database.Driver {
	case "":
		cfg.Database.Driver = "memory"
	case "memory":
	case string(db.DialectPostgres), string(db.DialectMySQL):
		if cfg.Database.DSN == "" {
			return fmt.Errorf("database dsn is required for driver %s", cfg.Database.Driver)
		}
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if cfg.Sandbox.BaseURL == "" {
		return fmt.Errorf("sandbox baseURL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwtSecret is required")
	}
	if cfg.Redis.Addr != "" {
		applyRedisDefaults(&cfg.Redis)
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Judge.ProblemTTL == 0 {
		cfg.Judge.ProblemTTL = defaultProblemTTL
	}
	if cfg.Judge.ProblemEmptyTTL == 0 {
		cfg.Judge.ProblemEmptyTTL = defaultProblemEmptyTTL
	}
	if cfg.FirstAccept.Topic == "" {
		cfg.FirstAccept.Topic = defaultFirstAcceptTopic
	}
	return nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
}
