// Package config loads the environment-variable configuration shared by
// all three binaries.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable named in the external interface: the store
// address, the event bus address, and the retry/flush cadences.
type Config struct {
	ServerAddr string

	AerospikeNodes     []string
	AerospikeNamespace string

	KafkaBrokers   []string
	KafkaTopic     string
	KafkaGroupBase string

	UpdateRetryLimit  time.Duration
	AggrFlushInterval time.Duration

	// EnqueueTimeout bounds how long Produce waits for queue space before
	// failing the ingest request. DeliveryTimeout is the library-level
	// per-write timeout handed straight to the Kafka writer.
	EnqueueTimeout  time.Duration
	DeliveryTimeout time.Duration

	// AggrProjection selects which of the 8 filter-projections a single
	// cmd/aggregationengine instance runs. Ignored by the other binaries.
	AggrProjection int
}

// Load reads every variable from the process environment, applying the
// documented defaults: aerospike_namespace "allezon", enqueue_timeout_ms 5s
// and delivery_timeout_ms 10s.
func Load() (Config, error) {
	cfg := Config{
		ServerAddr:         os.Getenv("server_addr"),
		AerospikeNamespace: firstNonEmpty(os.Getenv("aerospike_namespace"), "allezon"),
		KafkaTopic:         os.Getenv("kafka_topic"),
		KafkaGroupBase:     os.Getenv("kafka_group_base"),
	}

	if nodes := os.Getenv("aerospike_nodes"); nodes != "" {
		cfg.AerospikeNodes = splitCSV(nodes)
	} else if addr := os.Getenv("aerospike_addr"); addr != "" {
		cfg.AerospikeNodes = []string{addr}
	}

	cfg.KafkaBrokers = splitCSV(os.Getenv("kafka_brokers"))

	if v := os.Getenv("update_retry_limit_ms"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid update_retry_limit_ms %q: %w", v, err)
		}
		cfg.UpdateRetryLimit = time.Duration(ms) * time.Millisecond
	}

	if v := os.Getenv("aggr_flush_interval_ms"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid aggr_flush_interval_ms %q: %w", v, err)
		}
		cfg.AggrFlushInterval = time.Duration(ms) * time.Millisecond
	}

	cfg.EnqueueTimeout = 5 * time.Second
	if v := os.Getenv("enqueue_timeout_ms"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid enqueue_timeout_ms %q: %w", v, err)
		}
		cfg.EnqueueTimeout = time.Duration(ms) * time.Millisecond
	}

	cfg.DeliveryTimeout = 10 * time.Second
	if v := os.Getenv("delivery_timeout_ms"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid delivery_timeout_ms %q: %w", v, err)
		}
		cfg.DeliveryTimeout = time.Duration(ms) * time.Millisecond
	}

	if v := os.Getenv("AGGR_PROJECTION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid AGGR_PROJECTION %q: %w", v, err)
		}
		cfg.AggrProjection = n
	}

	return cfg, nil
}

// Validate checks that every variable required by the given binary kind is
// present, failing fast at startup rather than on first use.
func (c Config) Validate(requireHTTP, requireKafka, requireAerospike, requireAggrProjection bool) error {
	if requireHTTP && c.ServerAddr == "" {
		return fmt.Errorf("server_addr is required")
	}
	if requireAerospike && len(c.AerospikeNodes) == 0 {
		return fmt.Errorf("aerospike_addr or aerospike_nodes is required")
	}
	if requireKafka {
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("kafka_brokers is required")
		}
		if c.KafkaTopic == "" {
			return fmt.Errorf("kafka_topic is required")
		}
		if c.KafkaGroupBase == "" {
			return fmt.Errorf("kafka_group_base is required")
		}
	}
	if c.UpdateRetryLimit <= 0 {
		return fmt.Errorf("update_retry_limit_ms is required and must be positive")
	}
	if c.AggrFlushInterval <= 0 {
		return fmt.Errorf("aggr_flush_interval_ms is required and must be positive")
	}
	if requireAggrProjection && (c.AggrProjection < 0 || c.AggrProjection > 7) {
		return fmt.Errorf("AGGR_PROJECTION must be between 0 and 7, got %d", c.AggrProjection)
	}
	return nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
