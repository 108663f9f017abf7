// Copyright (c) 2024 Neomantra Corp
//
// nsefeed-ingestd is the process entry point: load Config from the
// environment, wire the store/ledger/bus/transport collaborators, and
// run the snapshot watcher and daily jobs until a shutdown signal
// arrives.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	nsefeed "github.com/nse-cmfeed/nse-cmfeed"
	bus "github.com/nse-cmfeed/nse-cmfeed/bus"
	config "github.com/nse-cmfeed/nse-cmfeed/config"
	daily "github.com/nse-cmfeed/nse-cmfeed/daily"
	ledger "github.com/nse-cmfeed/nse-cmfeed/ledger"
	store "github.com/nse-cmfeed/nse-cmfeed/store"
	transport "github.com/nse-cmfeed/nse-cmfeed/transport"
	watcher "github.com/nse-cmfeed/nse-cmfeed/watcher"
)

func main() {
	var showHelp bool
	var busBufferSize int
	pflag.BoolVarP(&showHelp, "help", "h", false, "Show help")
	pflag.IntVarP(&busBufferSize, "bus-buffer", "b", 0, "Per-subscriber bus buffer size (0 = package default)")
	pflag.Parse()

	if showHelp {
		fmt.Fprintf(os.Stdout, "usage: %s [opts]\n\nConfiguration is read from the environment (SFTP_HOSTS, SFTP_USER,\nSFTP_PASS or KEY_PATH, SFTP_REMOTE_PATH, DB_NAME, POLL_INTERVAL_SECONDS,\nLOG_LEVEL).\n\n", os.Args[0])
		pflag.PrintDefaults()
		os.Exit(0)
	}

	if err := run(busBufferSize); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		if kind, ok := nsefeed.KindOf(err); ok && kind == nsefeed.ErrorKindConfig {
			os.Exit(1)
		}
		os.Exit(1)
	}
}

func run(busBufferSize int) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	st, err := store.NewStore(cfg.DB.DSN(), logger)
	if err != nil {
		return err
	}
	defer st.Close()

	led, err := ledger.New(st.DB())
	if err != nil {
		return err
	}
	defer led.Close()

	b := bus.New(busBufferSize, logger)

	sftp, err := transport.NewSFTPClient(cfg.Transport)
	if err != nil {
		return err
	}
	defer sftp.Close()

	w, err := watcher.New(watcher.Config{
		Transport:    sftp,
		Store:        st,
		Ledger:       led,
		Bus:          b,
		Clock:        nsefeed.RealClock{},
		Logger:       logger.With("component", "watcher"),
		RemoteRoot:   cfg.RemoteRoot,
		PollInterval: cfg.PollInterval,
	})
	if err != nil {
		return err
	}

	jobs, err := daily.New(daily.Config{
		Transport:  sftp,
		Store:      st,
		Ledger:     led,
		Bus:        b,
		Clock:      nsefeed.RealClock{},
		Logger:     logger.With("component", "daily"),
		RemoteRoot: cfg.RemoteRoot,
	})
	if err != nil {
		return err
	}
	jobs.Start()
	defer jobs.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("nsefeed-ingestd started", "remote_root", cfg.RemoteRoot, "poll_interval", cfg.PollInterval)
	err = w.Run(ctx)
	if err != nil && ctx.Err() != nil {
		// Context canceled by the shutdown signal is a normal exit, not a
		// failure the caller should report.
		return nil
	}
	return err
}
