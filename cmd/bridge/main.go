// Record bridge server: exposes the genealogy record database to the
// widget's search tool over a small JSON API.
package main

import (
	"context"
	"flag"
	stdlog "log"
	"os/signal"
	"syscall"

	"github.com/nechamalaber-rgb/jewishdata.com/internal/config"
	"github.com/nechamalaber-rgb/jewishdata.com/internal/log"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/bridge"
)

func main() {
	port := flag.String("port", config.DefaultBridgePort, "HTTP listen port")
	seed := flag.Bool("seed", false, "Insert sample records when the table is empty")
	flag.Parse()

	log.Init(config.Env("LOG_LEVEL", "info"))

	databaseURL := config.DatabaseURL()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := bridge.NewPGStore(ctx, databaseURL)
	if err != nil {
		stdlog.Fatalf("store: %v", err)
	}
	defer store.Close()

	if *seed {
		if err := store.Seed(ctx); err != nil {
			stdlog.Fatalf("seed: %v", err)
		}
	}

	server := bridge.NewServer(store, *port)

	go func() {
		<-ctx.Done()
		if err := server.Shutdown(); err != nil {
			log.Warn("shutdown failed", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		stdlog.Fatalf("server: %v", err)
	}
}
