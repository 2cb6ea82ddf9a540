package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/storefront/internal/logger"
)

const (
	defaultListenAddr     = "localhost:8000"
	defaultLoggingLevel   = logger.LevelInfo
	defaultEnvironment    = logger.EnvProduction
	defaultAccessTTL      = 15 * time.Minute
	defaultRefreshTTL     = 7 * 24 * time.Hour
	defaultRateLimitRPS   = 1
	defaultRateLimitBurst = 10
	defaultStoreTimeout   = 5 * time.Second
	defaultSweepInterval  = time.Hour
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the storefront service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// JWT tokens are signed with symmetric algorithm, so this key is used for that purpose
	SecretKey string

	// Environment
	Environment string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Origins allowed to make credentialed requests. Empty means no CORS headers at all
	CORSOrigins []string

	// Send auth cookies over https only
	SecureCookies bool

	// Limit for signup, login and refresh per client ip. RPS <= 0 disables limit
	RateLimitRPS   float64
	RateLimitBurst int

	// Max time to wait for database answer on request
	StoreTimeout time.Duration

	// How often expired refresh tokens are deleted
	SweepInterval time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:       defaultLoggingLevel,
		ListenAddr:     defaultListenAddr,
		Environment:    defaultEnvironment,
		AccessTTL:      defaultAccessTTL,
		RefreshTTL:     defaultRefreshTTL,
		SecureCookies:  true,
		RateLimitRPS:   defaultRateLimitRPS,
		RateLimitBurst: defaultRateLimitBurst,
		StoreTimeout:   defaultStoreTimeout,
		SweepInterval:  defaultSweepInterval,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Empty values are skipped below, so option keeps its previous value
	setString := func(o *string) func(string) error {
		return func(value string) error {
			*o = value
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(string) error {
		return func(value string) (err error) {
			*o, err = time.ParseDuration(value)
			return err
		}
	}
	setBool := func(o *bool) func(string) error {
		return func(value string) (err error) {
			*o, err = strconv.ParseBool(value)
			return err
		}
	}
	setInt := func(o *int) func(string) error {
		return func(value string) (err error) {
			*o, err = strconv.Atoi(value)
			return err
		}
	}
	setFloat := func(o *float64) func(string) error {
		return func(value string) (err error) {
			*o, err = strconv.ParseFloat(value, 64)
			return err
		}
	}
	setList := func(o *[]string) func(string) error {
		return func(value string) error {
			*o = splitList(value)
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":      setString(&c.ListenAddr),
		"DATABASE_URI":     setString(&c.DatabaseDSN),
		"SECRET_KEY":       setString(&c.SecretKey),
		"LOG_LEVEL":        setString(&c.LogLevel),
		"ENVIRONMENT":      setString(&c.Environment),
		"ACCESS_TTL":       setDuration(&c.AccessTTL),
		"REFRESH_TTL":      setDuration(&c.RefreshTTL),
		"CORS_ORIGINS":     setList(&c.CORSOrigins),
		"SECURE_COOKIES":   setBool(&c.SecureCookies),
		"RATE_LIMIT_RPS":   setFloat(&c.RateLimitRPS),
		"RATE_LIMIT_BURST": setInt(&c.RateLimitBurst),
		"STORE_TIMEOUT":    setDuration(&c.StoreTimeout),
		"SWEEP_INTERVAL":   setDuration(&c.SweepInterval),
	}

	var errs []error
	for key, parseFn := range envMap {
		value := getenv(key)
		if value == "" {
			continue
		}
		if err := parseFn(value); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("storefront", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTTL, "refresh-ttl", c.RefreshTTL, "Refresh token lifetime")
	fs.StringSliceVar(&c.CORSOrigins, "cors-origins", c.CORSOrigins, "Comma separated origins allowed to call the api")
	fs.BoolVar(&c.SecureCookies, "secure-cookies", c.SecureCookies, "Send auth cookies over https only")
	fs.Float64Var(&c.RateLimitRPS, "rate-limit-rps", c.RateLimitRPS, "Auth requests per second per client, 0 disables limit")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", c.RateLimitBurst, "Auth requests burst per client")
	fs.DurationVar(&c.StoreTimeout, "store-timeout", c.StoreTimeout, "Max time to wait for database on request")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", c.SweepInterval, "How often expired refresh tokens are deleted")

	return fs.Parse(args)
}

func splitList(value string) []string {
	var items []string
	for item := range strings.SplitSeq(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
