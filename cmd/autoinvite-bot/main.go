// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command autoinvite-bot runs one or more Matrix accounts that join every
// room they are invited to, invite their owner, and relay mentions to a
// private control room.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"go.mau.fi/util/exzerolog"

	"github.com/aiku/matrix-autoinvite-bot/pkg/bot"
	"github.com/aiku/matrix-autoinvite-bot/pkg/config"
	"github.com/aiku/matrix-autoinvite-bot/pkg/store"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var verbosity int

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:                   "autoinvite-bot",
		Usage:                  "Join invited Matrix rooms, invite the owner and relay mentions",
		Version:                fmt.Sprintf("%s (commit %s, built %s)", Tag, Commit, BuildTime),
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   "config.yaml",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log more; repeat for trace output",
				Count:   &verbosity,
			},
			&cli.BoolFlag{
				Name:  "generate-config",
				Usage: "Write the example config to the config path and exit",
			},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	configPath := c.String("config")
	if c.Bool("generate-config") {
		written, err := config.WriteExample(configPath)
		if err != nil {
			return err
		}
		if written {
			fmt.Printf("Wrote example config to %s\n", configPath)
		} else {
			fmt.Printf("%s already exists, not overwriting\n", configPath)
		}
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if level, ok := verbosityLevel(verbosity); ok {
		cfg.Logging.MinLevel = &level
	}
	log, err := cfg.Logging.Compile()
	if err != nil {
		return &config.ConfigError{Path: configPath, Err: fmt.Errorf("failed to initialize logger: %w", err)}
	}
	exzerolog.SetupDefaults(log)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	kv, err := store.Open(ctx, cfg.Store, *log)
	if err != nil {
		return &config.ConfigError{Path: configPath, Err: fmt.Errorf("failed to open store: %w", err)}
	}
	defer func() {
		if err := kv.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close store")
		}
	}()

	status := bot.NewStatusRegistry()
	supervisor := bot.NewSupervisor(cfg, kv, status, bot.MatrixLogin, *log)

	if cfg.AdminAPIAddr != "" {
		go func() {
			if err := bot.ServeStatusAPI(ctx, cfg.AdminAPIAddr, status, *log); err != nil {
				log.Error().Err(err).Msg("Status API error")
			}
		}()
	}
	go func() {
		if err := config.Watch(ctx, configPath, *log, supervisor.UpdateSettings); err != nil {
			log.Warn().Err(err).Msg("Config hot reload disabled")
		}
	}()

	log.Info().
		Str("version", Tag).
		Int("accounts", len(cfg.Servers)).
		Msg("Starting")
	for _, res := range supervisor.Run(ctx) {
		if res.Err != nil {
			log.Warn().Err(res.Err).Str("user_id", res.UserID.String()).Msg("Account stopped with error")
		}
	}
	log.Info().Msg("All accounts stopped")
	return nil
}

// verbosityLevel maps the number of -v flags to a minimum log level.
func verbosityLevel(count int) (zerolog.Level, bool) {
	switch {
	case count <= 0:
		return zerolog.NoLevel, false
	case count == 1:
		return zerolog.DebugLevel, true
	default:
		return zerolog.TraceLevel, true
	}
}
