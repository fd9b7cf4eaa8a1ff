// Command drasi-server runs the Drasi Server process: it loads a YAML
// configuration file, wires the channel fabric, registry and REST API,
// and serves until it receives SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruokun-niu/drasi-server/internal/config"
	"github.com/ruokun-niu/drasi-server/internal/logging"
	"github.com/ruokun-niu/drasi-server/internal/server"
)

// Exit codes per spec §6.5.
const (
	exitOK            = 0
	exitConfigError   = 2
	exitRuntimeError  = 3
	exitInterrupted   = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "drasi-config.yaml", "path to the YAML configuration file")
	flag.Parse()

	doc, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "drasi-server: %v\n", err)
		return exitConfigError
	}

	log := logging.New(logging.Config{
		Level:  doc.Logging.Level,
		Format: doc.Logging.Format,
		Output: doc.Logging.Output,
	})

	srv := server.New(doc, log)
	if err := srv.LoadComponents(); err != nil {
		log.Named("main").WithField("error", err).Error("failed to load configured components")
		return exitConfigError
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := srv.Run(ctx)

	select {
	case <-ctx.Done():
		if runErr == nil {
			log.Named("main").Info("shutdown complete")
			return exitInterrupted
		}
	default:
	}

	if runErr != nil {
		log.Named("main").WithField("error", runErr).Error("server exited with error")
		return server.ExitCodeFor(runErr)
	}
	return exitOK
}
