package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const envPrefix = "KEYLEDGER_"

// DatabaseConfig holds the database connection information.
type DatabaseConfig struct {
	Type         string `yaml:"type"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig holds the connection settings for the redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CacheConfig selects and tunes the list cache.
type CacheConfig struct {
	Type  string        `yaml:"type"` // memory, redis or none
	TTL   time.Duration `yaml:"ttl"`
	Redis RedisConfig   `yaml:"redis"`
}

// QuotaConfig controls what happens once a key reaches its monthly limit.
type QuotaConfig struct {
	Enforce bool `yaml:"enforce"`
}

// SummarizerConfig holds the GitHub and Gemini settings for the README summarizer.
type SummarizerConfig struct {
	GeminiAPIKey string `yaml:"gemini_api_key"`
	Model        string `yaml:"model"`
	GithubToken  string `yaml:"github_token"`
	GithubAPIURL string `yaml:"github_api_url"`
}

// Enabled reports whether the summarizer has credentials to run.
func (s SummarizerConfig) Enabled() bool {
	return s.GeminiAPIKey != ""
}

// SchedulerConfig holds cron specs for background jobs.
type SchedulerConfig struct {
	CacheSweep  string `yaml:"cache_sweep"`
	QuotaReport string `yaml:"quota_report"`
}

// Config holds the configuration for the key service.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Cache      CacheConfig      `yaml:"cache"`
	Quota      QuotaConfig      `yaml:"quota"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Port       int              `yaml:"port"`
	Debug      bool             `yaml:"debug"`
}

// LoadConfig reads and parses the configuration file. It returns the config and a potential warning message.
// A missing file is not an error: values may come entirely from the environment or a .env file.
var LoadConfig = func(path string) (*Config, string, error) {
	var config Config
	var warnings []string

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, "", fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, "", fmt.Errorf("failed to read config file: %w", err)
	}

	// .env never overrides variables already set in the process environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, "", fmt.Errorf("failed to load .env file: %w", err)
	}

	if err := applyEnv(&config); err != nil {
		return nil, "", err
	}

	warnings = append(warnings, setDefaults(&config)...)

	if err := config.validate(); err != nil {
		return nil, "", err
	}

	return &config, strings.Join(warnings, "; "), nil
}

func applyEnv(config *Config) error {
	strs := map[string]*string{
		"DATABASE_TYPE":          &config.Database.Type,
		"DATABASE_DSN":           &config.Database.DSN,
		"CACHE_TYPE":             &config.Cache.Type,
		"REDIS_ADDR":             &config.Cache.Redis.Addr,
		"REDIS_PASSWORD":         &config.Cache.Redis.Password,
		"GEMINI_API_KEY":         &config.Summarizer.GeminiAPIKey,
		"GEMINI_MODEL":           &config.Summarizer.Model,
		"GITHUB_TOKEN":           &config.Summarizer.GithubToken,
		"GITHUB_API_URL":         &config.Summarizer.GithubAPIURL,
		"SCHEDULER_CACHE_SWEEP":  &config.Scheduler.CacheSweep,
		"SCHEDULER_QUOTA_REPORT": &config.Scheduler.QuotaReport,
	}
	for name, dst := range strs {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PORT":                    &config.Port,
		"REDIS_DB":                &config.Cache.Redis.DB,
		"DATABASE_MAX_OPEN_CONNS": &config.Database.MaxOpenConns,
	}
	for name, dst := range ints {
		if v := os.Getenv(envPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"DEBUG":         &config.Debug,
		"QUOTA_ENFORCE": &config.Quota.Enforce,
	}
	for name, dst := range bools {
		if v := os.Getenv(envPrefix + name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
			}
			*dst = b
		}
	}

	if v := os.Getenv(envPrefix + "CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sCACHE_TTL: %w", envPrefix, err)
		}
		config.Cache.TTL = d
	}
	return nil
}

func setDefaults(config *Config) []string {
	var warnings []string
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.Cache.Type == "" {
		config.Cache.Type = "memory"
		warnings = append(warnings, "cache.type not set, using in-memory cache")
	}
	if config.Cache.TTL <= 0 {
		config.Cache.TTL = 60 * time.Second
	}
	if config.Cache.Type == "redis" && config.Cache.Redis.Addr == "" {
		config.Cache.Redis.Addr = "localhost:6379"
		warnings = append(warnings, "cache.redis.addr not set, using localhost:6379")
	}
	if config.Summarizer.Model == "" {
		config.Summarizer.Model = "gemini-1.5-flash"
	}
	if config.Summarizer.GithubAPIURL == "" {
		config.Summarizer.GithubAPIURL = "https://api.github.com"
	}
	if config.Scheduler.CacheSweep == "" {
		config.Scheduler.CacheSweep = "@every 1m"
	}
	if config.Scheduler.QuotaReport == "" {
		config.Scheduler.QuotaReport = "@daily"
	}
	return warnings
}

func (c *Config) validate() error {
	if c.Database.Type == "" || c.Database.DSN == "" {
		return fmt.Errorf("database type and dsn must be configured in config.yaml or via environment variables")
	}
	switch c.Cache.Type {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("unsupported cache type: %s", c.Cache.Type)
	}
	return nil
}
