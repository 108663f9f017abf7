// Copyright (c) 2024 Neomantra Corp
//
// Package config is the top-level service configuration, loaded from the
// environment, recognizing exactly the keys external parties are expected
// to set: SFTP connection details, the remote root, the poll cadence, the
// database DSN parts, and the log level.

package nsefeed_config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	nsefeed "github.com/nse-cmfeed/nse-cmfeed"
	transport "github.com/nse-cmfeed/nse-cmfeed/transport"
)

const (
	envRemotePath   = "SFTP_REMOTE_PATH"
	envPollInterval = "POLL_INTERVAL_SECONDS"
	envDBHost       = "DB_HOST"
	envDBPort       = "DB_PORT"
	envDBName       = "DB_NAME"
	envDBUsername   = "DB_USERNAME"
	envDBPassword   = "DB_PASSWORD"
	envLogLevel     = "LOG_LEVEL"

	defaultPollIntervalSeconds = 60
)

// Config is the fully-resolved set of knobs main() needs to wire every
// collaborator: a transport.Config for the SFTP client, plus the service's
// own remote root, poll cadence, database DSN, and log level.
type Config struct {
	Transport transport.Config

	RemoteRoot   string
	PollInterval time.Duration

	DB DBConfig

	LogLevel slog.Level
}

// DBConfig is the relational store's connection parameters, arriving as
// discrete DB_HOST/DB_PORT/DB_NAME/DB_USERNAME/DB_PASSWORD keys. Only
// DB_NAME is required (e.g. a SQLite file path, or ":memory:"), and DSN
// builds the string store.NewStore expects from Name alone.
type DBConfig struct {
	Host     string
	Port     int
	Name     string
	Username string
	Password string
}

// DSN renders d into the connection string store.NewStore accepts. The
// store's default driver is SQLite (github.com/mattn/go-sqlite3), whose
// DSN is simply a file path or ":memory:", so Name is used verbatim;
// Host/Port/Username/Password are still recognized from the environment
// for an operator who points database/sql at a server-backed driver
// instead, but the default SQLite path ignores them.
func (d DBConfig) DSN() string {
	return d.Name
}

// FromEnv loads a Config from the process environment, applying the
// documented defaults. Every failure is a config error: an invalid SFTP
// setup from transport.Config.SetFromEnv (no hosts, no username, or
// neither password nor key path), a missing SFTP_REMOTE_PATH or DB_NAME,
// a POLL_INTERVAL_SECONDS that is not a positive integer, or a
// non-integer DB_PORT.
func FromEnv() (*Config, error) {
	cfg := &Config{}

	if err := cfg.Transport.SetFromEnv(); err != nil {
		return nil, err
	}

	cfg.RemoteRoot = os.Getenv(envRemotePath)
	if cfg.RemoteRoot == "" {
		return nil, nsefeed.NewError(nsefeed.ErrorKindConfig, "config.FromEnv", fmt.Errorf("%s is required", envRemotePath))
	}

	cfg.PollInterval = time.Duration(defaultPollIntervalSeconds) * time.Second
	if v := os.Getenv(envPollInterval); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return nil, nsefeed.NewError(nsefeed.ErrorKindConfig, "config.FromEnv", fmt.Errorf("%s must be a positive integer, got %q", envPollInterval, v))
		}
		cfg.PollInterval = time.Duration(secs) * time.Second
	}

	cfg.DB = DBConfig{
		Host:     os.Getenv(envDBHost),
		Name:     os.Getenv(envDBName),
		Username: os.Getenv(envDBUsername),
		Password: os.Getenv(envDBPassword),
	}
	if cfg.DB.Name == "" {
		return nil, nsefeed.NewError(nsefeed.ErrorKindConfig, "config.FromEnv", fmt.Errorf("%s is required", envDBName))
	}
	if v := os.Getenv(envDBPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, nsefeed.NewError(nsefeed.ErrorKindConfig, "config.FromEnv", fmt.Errorf("%s must be an integer, got %q", envDBPort, v))
		}
		cfg.DB.Port = port
	}

	cfg.LogLevel = parseLogLevel(os.Getenv(envLogLevel))

	return cfg, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
