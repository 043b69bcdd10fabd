// Command aggregationengine runs a single Aggregation Engine instance for
// one filter-projection, selected by the AGGR_PROJECTION env var (0-7).
// Deploy 8 copies, one per projection, to cover the full power set over
// origin/brand_id/category_id. Each instance subscribes to its own
// consumer group and relies on the target topic already existing with the
// deployment's intended partition count — this binary does not provision
// topics.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	as "github.com/aerospike/aerospike-client-go/v7"

	"github.com/Razz4780/allezon/internal/aggregation"
	"github.com/Razz4780/allezon/internal/aggregates"
	"github.com/Razz4780/allezon/internal/config"
	"github.com/Razz4780/allezon/internal/eventbus"
	"github.com/Razz4780/allezon/internal/store"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("config_load_err", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(false, true, true, true); err != nil {
		log.Error("config_invalid", slog.Any("err", err))
		os.Exit(1)
	}

	projection := aggregates.Projections[cfg.AggrProjection]
	groupID := fmt.Sprintf("%s-aggr-%d", cfg.KafkaGroupBase, cfg.AggrProjection)

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

	stream := eventbus.NewEventStream(cfg.KafkaBrokers, cfg.KafkaTopic, groupID, log.With(slog.String("component", "stream")))
	defer stream.Close()

	engine := aggregation.NewEngine(projection, stream, db, cfg.AggrFlushInterval, log.With(
		slog.String("component", "engine"),
		slog.Int("projection", cfg.AggrProjection),
	))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("aggregationengine_start", slog.String("group", groupID), slog.Any("projection", projection))
	if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("aggregationengine_err", slog.Any("err", err))
		os.Exit(1)
	}
}
