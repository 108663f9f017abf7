// Copyright (c) 2024 Neomantra Corp
//
// Package transport is the remote-file discovery client: list a remote
// directory and fetch a file from it, with multi-host failover. The
// watcher and daily jobs depend only on the Client interface below, not
// on any particular wire protocol.

package nsefeed_transport

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	nsefeed "github.com/nse-cmfeed/nse-cmfeed"
)

// Client lists and fetches files from the exchange's remote drop, however
// it is actually transported.
type Client interface {
	List(ctx context.Context, dir string) ([]string, error)
	Fetch(ctx context.Context, path string) ([]byte, error)
	Close() error
}

// Config holds the connection parameters for an SFTPClient. Key-file
// authentication is preferred over password when both are configured.
type Config struct {
	Logger *slog.Logger

	Hosts    []string
	Port     int
	Username string
	Password string
	KeyPath  string
}

const (
	envHosts    = "SFTP_HOSTS"
	envPort     = "SFTP_PORT"
	envUsername = "SFTP_USER"
	envPassword = "SFTP_PASS"
	envKeyPath  = "KEY_PATH"

	defaultPort = 22
)

// SetFromEnv fills in any zero-valued Config fields from the environment;
// explicitly-set fields on the struct are never overwritten.
func (c *Config) SetFromEnv() error {
	if len(c.Hosts) == 0 {
		if v := os.Getenv(envHosts); v != "" {
			for _, tok := range strings.Split(v, ",") {
				if tok = strings.TrimSpace(tok); tok != "" {
					c.Hosts = append(c.Hosts, tok)
				}
			}
		}
	}
	if c.Port == 0 {
		c.Port = defaultPort
		if v := os.Getenv(envPort); v != "" {
			var p int
			if _, err := fmt.Sscanf(v, "%d", &p); err == nil && p > 0 {
				c.Port = p
			}
		}
	}
	if c.Username == "" {
		c.Username = os.Getenv(envUsername)
	}
	if c.Password == "" {
		c.Password = os.Getenv(envPassword)
	}
	if c.KeyPath == "" {
		c.KeyPath = os.Getenv(envKeyPath)
	}
	return c.validate()
}

func (c *Config) validate() error {
	if len(c.Hosts) == 0 {
		return nsefeed.NewError(nsefeed.ErrorKindConfig, "transport.Config.validate", fmt.Errorf("no SFTP hosts configured"))
	}
	if c.Username == "" {
		return nsefeed.NewError(nsefeed.ErrorKindConfig, "transport.Config.validate", fmt.Errorf("SFTP username is unset"))
	}
	if c.Password == "" && c.KeyPath == "" {
		return nsefeed.NewError(nsefeed.ErrorKindConfig, "transport.Config.validate", nsefeed.ErrNoAuthMethod)
	}
	return nil
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
