// Command reelsmithd runs the content pipeline daemon in the foreground.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"reelsmith/internal/config"
	"reelsmith/internal/daemon"
	"reelsmith/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "Path to the configuration file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, os.Stdout); err != nil {
		log.Fatalf("reelsmithd: %v", err)
	}
}

func run(ctx context.Context, configPath string, out io.Writer) error {
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	d, err := daemon.Bootstrap(cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		return err
	}
	if addr := d.APIAddr(); addr != "" {
		fmt.Fprintf(out, "reelsmithd listening on %s\n", addr)
	}

	<-ctx.Done()
	logger.Info("reelsmithd shutting down")
	d.Stop()
	return nil
}
