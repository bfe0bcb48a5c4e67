package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"chatgateway/internal/config"
	"chatgateway/internal/gateway"
	providerfactory "chatgateway/internal/provider/factory"
	"chatgateway/internal/registry"
	"chatgateway/internal/server"
	"chatgateway/internal/store"
)

const serveUsage = `Usage:
  chatgateway serve [--config <path>] [--port <port>]

Flags:
  --config string   Path to YAML configuration file (optional, env vars apply on top)
  --port   int      Override server port from configuration`

func serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, serveUsage)
	}

	var cfgPath string
	var overridePort int
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.IntVar(&overridePort, "port", 0, "override server port")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse serve flags: %w", err)
	}

	// A .env file is a local convenience; its absence is not an error.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env file", "err", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if overridePort != 0 {
		if overridePort <= 0 || overridePort > 65535 {
			return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
		}
		cfg.Server.Port = overridePort
	}

	reg := registry.New(registry.Overrides{BaseURLs: cfg.BaseURLOverrides()})

	clients, err := providerfactory.BuildClients(cfg, reg)
	if err != nil {
		return err
	}

	gw := gateway.New(reg, clients)

	var convStore server.ConversationStore
	if cfg.Database.URL != "" {
		db, err := store.Open(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		convStore = store.NewConversationStore(db)
	}

	srv, err := server.New(cfg, gw, convStore)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}
