// Command apiserver runs the HTTP ingest and query endpoints: POST
// /user_tags, POST /user_profiles/{cookie}, POST /aggregates.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	as "github.com/aerospike/aerospike-client-go/v7"

	"github.com/Razz4780/allezon/internal/config"
	"github.com/Razz4780/allezon/internal/eventbus"
	"github.com/Razz4780/allezon/internal/httpapi"
	"github.com/Razz4780/allezon/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("config_load_err", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(true, true, true, false); err != nil {
		log.Error("config_invalid", slog.Any("err", err))
		os.Exit(1)
	}

	asClient, err := as.NewClientWithPolicyAndHost(as.NewClientPolicy(), store.Hosts(cfg.AerospikeNodes)...)
	if err != nil {
		log.Error("aerospike_connect_err", slog.Any("err", err))
		os.Exit(1)
	}
	defer asClient.Close()

	base := store.NewAerospikeClient(asClient, cfg.AerospikeNamespace, log.With(slog.String("component", "store")))
	db := store.NewRetryingClient(base, cfg.UpdateRetryLimit)

	producer := eventbus.NewEventProducer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.EnqueueTimeout, cfg.DeliveryTimeout, log.With(slog.String("component", "producer")))
	defer producer.Close()

	handler := httpapi.NewServer(producer, db, log.With(slog.String("component", "http")))

	srv := &http.Server{Addr: cfg.ServerAddr, Handler: handler}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Info("shutdown_signal_received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.UpdateRetryLimit)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http_shutdown_err", slog.Any("err", err))
		}
	}()

	log.Info("apiserver_start", slog.String("addr", cfg.ServerAddr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("apiserver_err", slog.Any("err", err))
		os.Exit(1)
	}
}
