/*
 * Copyright 2025 SoundOps.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/soundops/micwatch/pkg/config"
	"github.com/soundops/micwatch/pkg/db"
	"github.com/soundops/micwatch/pkg/events"
	"github.com/soundops/micwatch/pkg/logger"
	"github.com/soundops/micwatch/pkg/registry"
	"github.com/soundops/micwatch/pkg/sync"
	"github.com/soundops/micwatch/pkg/sync/adapters"
	"github.com/soundops/micwatch/pkg/version"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "/etc/micwatch/micwatch.json", "Path to config file")
	flag.Parse()

	ctx := context.Background()

	var cfg sync.Config

	if err := config.NewConfig(nil).LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logCfg := cfg.Logging
	if logCfg == nil {
		logCfg = logger.DefaultConfig()
	}

	mainLogger, err := logger.New(logCfg, "micwatch")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	mainLogger.Info().
		Str("version", version.GetFullVersion()).
		Int("sources", len(cfg.Sources)).
		Msg("Starting micwatch")

	store, err := buildStore(ctx, &cfg, mainLogger)
	if err != nil {
		mainLogger.Fatal().Err(err).Msg("Failed to initialize registry store")
	}

	sink, natsConn := buildSink(ctx, &cfg, mainLogger)
	if natsConn != nil {
		defer natsConn.Close()
	}

	svc, err := sync.New(&cfg, store, sink, adapters.DefaultRegistry(), mainLogger, nil)
	if err != nil {
		mainLogger.Fatal().Err(err).Msg("Failed to create sync service")
	}

	if err := svc.Start(ctx); err != nil {
		mainLogger.Fatal().Err(err).Msg("Failed to start sync service")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	mainLogger.Info().Str("signal", sig.String()).Msg("Shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := svc.Stop(stopCtx); err != nil {
		mainLogger.Error().Err(err).Msg("Shutdown did not complete cleanly")
	}
}

// buildStore selects the Postgres store when a database block is
// configured, the in-memory store otherwise.
func buildStore(ctx context.Context, cfg *sync.Config, mainLogger logger.Logger) (registry.Store, error) {
	if cfg.Database == nil {
		mainLogger.Info().Msg("No database configured, using in-memory registry store")
		return registry.NewMemStore(mainLogger), nil
	}

	pool, err := db.NewPool(ctx, cfg.Database, mainLogger)
	if err != nil {
		return nil, err
	}

	store := db.NewStore(pool, mainLogger)

	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// buildSink connects the JetStream publisher when nats_url is set. A
// missing broker is not fatal; events are dropped through the NopSink
// and the registry still converges.
func buildSink(ctx context.Context, cfg *sync.Config, mainLogger logger.Logger) (sync.EventSink, *nats.Conn) {
	if cfg.NATSURL == "" {
		mainLogger.Info().Msg("No NATS URL configured, device-change events disabled")
		return events.NopSink{}, nil
	}

	publisher, conn, err := events.Connect(ctx, cfg.NATSURL, mainLogger)
	if err != nil {
		mainLogger.Warn().Err(err).Str("nats_url", cfg.NATSURL).
			Msg("Failed to connect event publisher, continuing without events")

		return events.NopSink{}, nil
	}

	return publisher, conn
}
