// cmd/tracker/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-tracker/internal/config"
	"github.com/rovshanmuradov/solana-tracker/internal/logger"
	"github.com/rovshanmuradov/solana-tracker/internal/tracker"
)

func main() {
	configPath := flag.String("config", "", "path to config file (env vars used when empty)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Development = cfg.DebugLogging

	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	rootLogger := log.WithComponent("main")
	rootLogger.Info("Starting wallet tracker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := tracker.New(cfg, log)
	if err != nil {
		rootLogger.Fatal("Failed to initialize tracker", zap.Error(err))
	}

	if err := svc.Run(ctx); err != nil {
		rootLogger.Fatal("Tracker execution error", zap.Error(err))
	}

	svc.WaitForShutdown()
}
