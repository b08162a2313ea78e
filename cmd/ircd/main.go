package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"pkdindustries/ircd/internal/config"
	"pkdindustries/ircd/internal/core"
	"pkdindustries/ircd/internal/server"
)

const version = "0.3.0"

func main() {
	fmt.Print(server.Banner(version))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:      "ircd",
		Usage:     "a small single server IRC daemon",
		Version:   version,
		ArgsUsage: "[port]",
		Flags:     config.GetFlags(),
		Action:    run,
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *cli.Command) error {
	cfg, err := config.NewConfiguration(c)
	if err != nil {
		return err
	}

	core.InitLogger(cfg.Log.Verbose)
	defer zap.L().Sync()

	if cfg.Log.Verbose {
		cfg.PrintConfig()
	}

	srv, err := server.New(cfg, server.Options{Version: version})
	if err != nil {
		return err
	}
	if err := srv.Run(ctx); err != nil {
		return err
	}
	zap.S().Info("Shutdown complete")
	return nil
}
