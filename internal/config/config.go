package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MJE43/studio-analyzer/internal/analysis"
	"github.com/MJE43/studio-analyzer/internal/script"
)

const (
	addrEnvName       = "STUDIO_ADDR"
	dbEnvName         = "STUDIO_DB"
	tokenEnvName      = "STUDIO_TOKEN"
	forecasterEnvName = "STUDIO_FORECASTER"
	policyEnvName     = "STUDIO_POLICY"
	scriptEnvName     = "STUDIO_SCRIPT"
	logLevelEnvName   = "STUDIO_LOG_LEVEL"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	HistoryLimit   int           `yaml:"history_limit"`
	IngestRate     float64       `yaml:"ingest_rate"`
	IngestBurst    int           `yaml:"ingest_burst"`
	// Token guards mutating routes. It is never read from the YAML file.
	Token string `yaml:"-"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type EngineConfig struct {
	Forecaster     string  `yaml:"forecaster"`
	Policy         string  `yaml:"policy"`
	Script         string  `yaml:"script"`
	Decay          float64 `yaml:"decay"`
	MinProbability float64 `yaml:"min_probability"`
	MinHistory     int     `yaml:"min_history"`
	LongStreak     int     `yaml:"long_streak"`
	CooldownRounds int     `yaml:"cooldown_rounds"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           "127.0.0.1:8077",
			AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
			RequestTimeout: 30 * time.Second,
			HistoryLimit:   90,
			IngestRate:     10,
			IngestBurst:    20,
		},
		Database: DatabaseConfig{Path: "studio.db"},
		Engine: EngineConfig{
			Forecaster:     "blend",
			Policy:         "threshold",
			Decay:          analysis.DefaultDecay,
			MinProbability: 0.34,
			MinHistory:     6,
			LongStreak:     4,
			CooldownRounds: 1,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration from defaults, an optional .env file, an
// optional YAML file and STUDIO_* environment variables, in that order.
// An empty path skips the YAML file; a missing .env is ignored.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	set := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	set(addrEnvName, &c.Server.Addr)
	set(dbEnvName, &c.Database.Path)
	set(tokenEnvName, &c.Server.Token)
	set(forecasterEnvName, &c.Engine.Forecaster)
	set(policyEnvName, &c.Engine.Policy)
	set(scriptEnvName, &c.Engine.Script)
	set(logLevelEnvName, &c.Log.Level)

	if v := os.Getenv("STUDIO_HISTORY_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid STUDIO_HISTORY_LIMIT %q: %w", v, err)
		}
		c.Server.HistoryLimit = n
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	var problems []string

	switch c.Engine.Forecaster {
	case "blend", "card_tier":
	default:
		problems = append(problems, fmt.Sprintf("unknown forecaster %q", c.Engine.Forecaster))
	}
	switch c.Engine.Policy {
	case "threshold", "cooldown":
	case "script":
		if c.Engine.Script == "" {
			problems = append(problems, "policy \"script\" needs engine.script")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown policy %q", c.Engine.Policy))
	}
	if c.Engine.Decay <= 0 {
		problems = append(problems, "engine.decay must be positive")
	}
	if c.Engine.MinProbability < 0 || c.Engine.MinProbability > 1 {
		problems = append(problems, "engine.min_probability must be within [0,1]")
	}
	if c.Engine.MinHistory < 2 {
		problems = append(problems, "engine.min_history must be at least 2")
	}
	if c.Engine.LongStreak < 2 {
		problems = append(problems, "engine.long_streak must be at least 2")
	}
	if c.Engine.CooldownRounds < 0 {
		problems = append(problems, "engine.cooldown_rounds must not be negative")
	}
	if c.Server.IngestRate < 0 || c.Server.IngestBurst < 0 {
		problems = append(problems, "server.ingest_rate and server.ingest_burst must not be negative")
	}
	if c.Server.HistoryLimit <= 0 {
		problems = append(problems, "server.history_limit must be positive")
	}
	if c.Database.Path == "" {
		problems = append(problems, "database.path is empty")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// NewEngine builds the analysis engine the settings describe.
func (c EngineConfig) NewEngine() (*analysis.Engine, error) {
	forecaster, err := c.forecaster()
	if err != nil {
		return nil, err
	}
	policy, err := c.policy()
	if err != nil {
		return nil, err
	}
	return analysis.New(
		analysis.WithDecay(c.Decay),
		analysis.WithForecaster(forecaster),
		analysis.WithPolicy(policy),
	), nil
}

func (c EngineConfig) forecaster() (analysis.Forecaster, error) {
	blend := analysis.NewBlendForecaster(c.Decay)
	switch c.Forecaster {
	case "", "blend":
		return blend, nil
	case "card_tier":
		return analysis.NewCardTierForecaster(blend), nil
	default:
		return nil, fmt.Errorf("unknown forecaster %q", c.Forecaster)
	}
}

func (c EngineConfig) policy() (analysis.Policy, error) {
	switch c.Policy {
	case "", "threshold":
		return &analysis.ThresholdPolicy{MinProbability: c.MinProbability}, nil
	case "cooldown":
		return &analysis.CooldownPolicy{
			MinHistory:     c.MinHistory,
			LongStreak:     c.LongStreak,
			CooldownRounds: c.CooldownRounds,
		}, nil
	case "script":
		p, err := script.LoadFile(c.Script)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown policy %q", c.Policy)
	}
}
