// Copyright (c) 2024 Neomantra Corp

package nsefeed_config_test

import (
	"log/slog"
	"testing"
	"time"

	config "github.com/nse-cmfeed/nse-cmfeed/config"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SFTP_HOSTS", "host-a,host-b")
	t.Setenv("SFTP_USER", "cmfeed")
	t.Setenv("SFTP_PASS", "secret")
	t.Setenv("SFTP_REMOTE_PATH", "/NSE/CM")
	t.Setenv("DB_NAME", "nsefeed.db")
}

func TestFromEnvDefaults(t *testing.T) {
	setBaseEnv(t)
	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.PollInterval != 60*time.Second {
		t.Fatalf("PollInterval = %v, want default 60s", cfg.PollInterval)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v, want Info default", cfg.LogLevel)
	}
	if cfg.RemoteRoot != "/NSE/CM" {
		t.Fatalf("RemoteRoot = %q", cfg.RemoteRoot)
	}
	if cfg.DB.DSN() != "nsefeed.db" {
		t.Fatalf("DSN = %q, want bare name with no host set", cfg.DB.DSN())
	}
}

func TestFromEnvMissingRemotePath(t *testing.T) {
	t.Setenv("SFTP_HOSTS", "host-a")
	t.Setenv("SFTP_USER", "cmfeed")
	t.Setenv("SFTP_PASS", "secret")
	t.Setenv("DB_NAME", "nsefeed.db")

	if _, err := config.FromEnv(); err == nil {
		t.Fatal("expected a config error when SFTP_REMOTE_PATH is unset")
	}
}

func TestFromEnvMissingDBName(t *testing.T) {
	t.Setenv("SFTP_HOSTS", "host-a")
	t.Setenv("SFTP_USER", "cmfeed")
	t.Setenv("SFTP_PASS", "secret")
	t.Setenv("SFTP_REMOTE_PATH", "/NSE/CM")

	if _, err := config.FromEnv(); err == nil {
		t.Fatal("expected a config error when DB_NAME is unset")
	}
}

func TestFromEnvCustomPollInterval(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("POLL_INTERVAL_SECONDS", "15")

	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.PollInterval != 15*time.Second {
		t.Fatalf("PollInterval = %v, want 15s", cfg.PollInterval)
	}
}

func TestFromEnvRejectsBadPollInterval(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("POLL_INTERVAL_SECONDS", "not-a-number")

	if _, err := config.FromEnv(); err == nil {
		t.Fatal("expected a config error for a non-numeric poll interval")
	}
}

func TestFromEnvLogLevel(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v, want Debug", cfg.LogLevel)
	}
}

func TestDBConfigDSNIsNameForSQLite(t *testing.T) {
	db := config.DBConfig{Host: "db.internal", Port: 5432, Name: "nsefeed.db", Username: "app", Password: "pw"}
	if got := db.DSN(); got != "nsefeed.db" {
		t.Fatalf("DSN = %q, want %q (SQLite driver ignores host/port/credentials)", got, "nsefeed.db")
	}
}
