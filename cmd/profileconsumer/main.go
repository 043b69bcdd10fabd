// Command profileconsumer runs the Profile Updater: the single consumer
// group folding user-tag events into each cookie's recent-history record.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	as "github.com/aerospike/aerospike-client-go/v7"

	"github.com/Razz4780/allezon/internal/config"
	"github.com/Razz4780/allezon/internal/eventbus"
	"github.com/Razz4780/allezon/internal/profileupdater"
	"github.com/Razz4780/allezon/internal/store"
)

const groupSuffix = "-profiles"

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("config_load_err", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(false, true, true, false); err != nil {
		log.Error("config_invalid", slog.Any("err", err))
		os.Exit(1)
	}

	asClient, err := as.NewClientWithPolicyAndHost(as.NewClientPolicy(), store.Hosts(cfg.AerospikeNodes)...)
	if err != nil {
		log.Error("aerospike_connect_err", slog.Any("err", err))
		os.Exit(1)
	}
	defer asClient.Close()

	db := store.NewRetryingClient(
		store.NewAerospikeClient(asClient, cfg.AerospikeNamespace, log.With(slog.String("component", "store"))),
		cfg.UpdateRetryLimit,
	)

	stream := eventbus.NewEventStream(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupBase+groupSuffix, log.With(slog.String("component", "stream")))
	defer stream.Close()

	updater := profileupdater.NewUpdater(stream, db, cfg.AggrFlushInterval, log.With(slog.String("component", "updater")))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("profileconsumer_start", slog.String("group", cfg.KafkaGroupBase+groupSuffix))
	if err := updater.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("profileconsumer_err", slog.Any("err", err))
		os.Exit(1)
	}
}
