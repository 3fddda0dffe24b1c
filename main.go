package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/superwasp/vespa/cmd"
	"github.com/superwasp/vespa/internal/conf"
	"github.com/superwasp/vespa/internal/logging"
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		log.Fatalf("error loading configuration: %v", err)
	}

	if settings.Main.Log.Enabled {
		closeLog, err := logging.InitWithFile(settings.Main.Log.Path, settings.Main.Log.MaxSize)
		if err != nil {
			log.Fatalf("error opening log file: %v", err)
		}
		defer closeLog()
	} else {
		logging.Init()
	}

	// Long aggregation and export runs stop cleanly on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Fatal("command failed", "error", err)
	}
}
