/*
Package config loads server settings from the environment.

SOURCES (later wins):
  1. Defaults below
  2. A .env file in the working directory, if present (godotenv; never
     overrides variables already set in the process environment)
  3. Process environment
  4. Command-line flags, applied by cmd/server

VARIABLES:
  LEDGER_HTTP_ADDR         Listen address            (default ":8080")
  LEDGER_DB_PATH           SQLite path or ":memory:" (default "attendance.db")
  LEDGER_ENV               "development" or "production"; production logs JSON
  LEDGER_LOG_LEVEL         debug, info, warn, error  (default "info")
  LEDGER_TIMEZONE          IANA zone deciding calendar days (default "UTC")
  LEDGER_ACCRUAL_INTERVAL  Go duration between scheduled accrual runs;
                           "0" disables the ticker  (default "1h")
  LEDGER_ACCRUAL_WORKERS   Concurrent ledger writes per accrual run (default 8)
  LEDGER_CORS_ORIGINS      Comma-separated allowed origins
*/
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	HTTPAddr        string
	DBPath          string
	Env             string
	LogLevel        slog.Level
	Location        *time.Location
	AccrualInterval time.Duration
	AccrualWorkers  int
	CORSOrigins     []string
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		HTTPAddr:        ":8080",
		DBPath:          "attendance.db",
		Env:             EnvDevelopment,
		LogLevel:        slog.LevelInfo,
		Location:        time.UTC,
		AccrualInterval: time.Hour,
		AccrualWorkers:  8,
	}
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to read .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from a lookup function. Every invalid value is
// reported, not just the first.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	var errs []error

	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("LEDGER_HTTP_ADDR"); ok {
		cfg.HTTPAddr = v
	}
	if v, ok := get("LEDGER_DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v, ok := get("LEDGER_ENV"); ok {
		switch v = strings.ToLower(v); v {
		case EnvDevelopment, EnvProduction:
			cfg.Env = v
		default:
			errs = append(errs, fmt.Errorf("LEDGER_ENV: unknown environment %q", v))
		}
	}
	if v, ok := get("LEDGER_LOG_LEVEL"); ok {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("LEDGER_LOG_LEVEL: %w", err))
		}
	}
	if v, ok := get("LEDGER_TIMEZONE"); ok {
		loc, err := time.LoadLocation(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("LEDGER_TIMEZONE: %w", err))
		} else {
			cfg.Location = loc
		}
	}
	if v, ok := get("LEDGER_ACCRUAL_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("LEDGER_ACCRUAL_INTERVAL: %w", err))
		case d < 0:
			errs = append(errs, fmt.Errorf("LEDGER_ACCRUAL_INTERVAL: must not be negative, got %s", v))
		default:
			cfg.AccrualInterval = d
		}
	}
	if v, ok := get("LEDGER_ACCRUAL_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("LEDGER_ACCRUAL_WORKERS: %w", err))
		case n < 1:
			errs = append(errs, fmt.Errorf("LEDGER_ACCRUAL_WORKERS: must be at least 1, got %d", n))
		default:
			cfg.AccrualWorkers = n
		}
	}
	if v, ok := get("LEDGER_CORS_ORIGINS"); ok {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

// NewLogger builds the process logger: JSON in production, text otherwise.
func (c Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.Env == EnvProduction {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
