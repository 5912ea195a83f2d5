// Command alternator-topology-probe runs a minimal client against a
// seed node and serves its live topology snapshot and Prometheus
// metrics over HTTP, for operators migrating traffic onto full
// cluster awareness.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/scylladb/alternator-go-client/clientbuilder"
	"github.com/scylladb/alternator-go-client/clientconfig"
)

func main() {
	seed := flag.String("seed", "", "seed node URI, e.g. http://127.0.0.1:8000")
	addr := flag.String("addr", ":9090", "debug HTTP listen address")
	datacenter := flag.String("dc", "", "initial datacenter scope")
	rack := flag.String("rack", "", "initial rack scope (requires -dc)")
	affinity := flag.String("affinity", "none", "key affinity mode: none, read-modify-write, any-write")
	dev := flag.Bool("dev", false, "use a development (console) logger")
	flag.Parse()

	if *seed == "" {
		log.Fatal("alternator-topology-probe: -seed is required")
	}

	logger, err := clientbuilder.ProvideLogger(*dev)
	if err != nil {
		log.Fatalf("alternator-topology-probe: building logger: %v", err)
	}
	defer logger.Sync()

	opts := clientconfig.Options{
		SeedNode:        *seed,
		Datacenter:      *datacenter,
		Rack:            *rack,
		KeyAffinityMode: *affinity,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := clientbuilder.New(ctx, opts, logger)
	if err != nil {
		logger.Fatal("building client", zap.Error(err))
	}

	router := NewRouter(client, logger)
	server := &http.Server{Addr: *addr, Handler: router.Setup()}

	go func() {
		logger.Info("serving debug endpoint", zap.String("addr", *addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("debug server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("debug server shutdown error", zap.Error(err))
	}
	if err := client.Close(shutdownCtx); err != nil {
		logger.Warn("client shutdown error", zap.Error(err))
	}
}
