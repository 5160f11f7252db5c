package main

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"chatbot-gateway/internal/logger"
)

const (
	defaultListenAddr      = "localhost:8000"
	defaultLoggingLevel    = logger.LevelInfo
	defaultEnvironment     = logger.EnvProduction
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTTLDays  = 30
	defaultMaxRetries      = 3
	defaultUpstreamTimeout = 30 * time.Second
)

type Config struct {
	// Default logging level
	LogLevel string

	// Environment (dev, prod)
	Environment string

	// Address on which the gateway will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Signing secrets, one per token class
	// A stolen access secret must not be able to mint refresh tokens
	AccessSecret  string
	RefreshSecret string

	// Token lifetimes
	AccessTokenTTL      time.Duration
	RefreshTokenTTLDays int

	// Upstream completion API
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAIVisionModel string
	MaxRetries        int
	UpstreamTimeout   time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:            defaultLoggingLevel,
		Environment:         defaultEnvironment,
		ListenAddr:          defaultListenAddr,
		AccessTokenTTL:      defaultAccessTokenTTL,
		RefreshTokenTTLDays: defaultRefreshTTLDays,
		MaxRetries:          defaultMaxRetries,
		UpstreamTimeout:     defaultUpstreamTimeout,
	}
}

// Validate required secrets
// Secrets have no defaults on purpose, the service must not start without them
func (c *Config) Validate() error {
	if c.AccessSecret == "" || c.RefreshSecret == "" {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must be set")
	}
	if c.AccessSecret == c.RefreshSecret {
		return errors.New("access and refresh secrets must differ")
	}
	if c.DatabaseDSN == "" {
		return errors.New("DATABASE_URI must be set")
	}
	return nil
}

// Load variables from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	setInt := func(o *int) func(value string) {
		return func(value string) {
			if parsed, err := strconv.Atoi(value); err == nil {
				*o = parsed
			}
		}
	}
	setDuration := func(o *time.Duration) func(value string) {
		return func(value string) {
			if parsed, err := time.ParseDuration(value); err == nil {
				*o = parsed
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":            setString(&c.ListenAddr),
		"DATABASE_URI":           setString(&c.DatabaseDSN),
		"LOG_LEVEL":              setString(&c.LogLevel),
		"ENVIRONMENT":            setString(&c.Environment),
		"JWT_ACCESS_SECRET":      setString(&c.AccessSecret),
		"JWT_REFRESH_SECRET":     setString(&c.RefreshSecret),
		"ACCESS_TOKEN_TTL":       setDuration(&c.AccessTokenTTL),
		"REFRESH_TOKEN_TTL_DAYS": setInt(&c.RefreshTokenTTLDays),
		"OPENAI_API_KEY":         setString(&c.OpenAIAPIKey),
		"OPENAI_BASE_URL":        setString(&c.OpenAIBaseURL),
		"OPENAI_MODEL":           setString(&c.OpenAIModel),
		"OPENAI_VISION_MODEL":    setString(&c.OpenAIVisionModel),
		"OPENAI_MAX_RETRIES":     setInt(&c.MaxRetries),
		"OPENAI_REQUEST_TIMEOUT": setDuration(&c.UpstreamTimeout),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("chatgate", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")

	return fs.Parse(args)
}
