// Command r-emsd is the orchestrator kernel entrypoint: it loads config,
// wires every grid's supervisor/snapshot store/event log/peripheral bus,
// spawns the controller and supervisor-evaluation tasks, serves Prometheus
// metrics, and shuts down cleanly on signal.
//
// Grounded on control_plane/main.go's wiring style.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Aurora-energy/R-EMS/internal/config"
	"github.com/Aurora-energy/R-EMS/internal/logging"
	"github.com/Aurora-energy/R-EMS/internal/orchestrator"
)

func main() {
	log := logging.FromEnv()

	configPath := os.Getenv("R_EMS_CONFIG")
	if configPath == "" {
		configPath = "r-ems.toml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kernel, err := orchestrator.Start(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start orchestrator kernel")
	}

	metricsAddr := cfg.Orchestrator.MetricsAddr
	if metricsAddr == "" {
		metricsAddr = ":9095"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: metricsAddr, Handler: mux}

	go func() {
		log.Info().Str("addr", metricsAddr).Msg("serving metrics")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server stopped unexpectedly")
		}
	}()

	fmt.Printf("r-emsd: managing %d grid(s) in %s mode\n", len(cfg.Grids), cfg.Orchestrator.Mode)

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)

	kernel.Shutdown()
	log.Info().Msg("orchestrator kernel stopped")
}
