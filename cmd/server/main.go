// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Mailbridge inbound email service
//
// Entry point for the email-to-message bridge. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Builds the Integration API client, mailer, templates and translations
//  3. Connects to Redis (metadata lock) and PostgreSQL (delivery log) when configured
//  4. Serves the inbound-email webhook and a health/metrics server
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sharebridge/mailbridge/internal/bridge"
	"github.com/sharebridge/mailbridge/internal/config"
	"github.com/sharebridge/mailbridge/internal/deliverylog"
	"github.com/sharebridge/mailbridge/internal/i18n"
	"github.com/sharebridge/mailbridge/internal/lock"
	"github.com/sharebridge/mailbridge/internal/mailer"
	"github.com/sharebridge/mailbridge/internal/render"
	"github.com/sharebridge/mailbridge/internal/sharetribe"
	"github.com/sharebridge/mailbridge/internal/webhook"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting mailbridge inbound email service")
	slog.Info("configuration loaded",
		"marketplace", cfg.Marketplace.Name,
		"integration_api", cfg.Sharetribe.BaseURL,
		"metadata_lock", cfg.MetadataLock.Enabled,
		"delivery_log", cfg.DatabaseURL != "",
		"template_dir", cfg.TemplateDir,
		"locale", cfg.Locale,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Integration API client ---
	creds := sharetribe.OAuthConfig(cfg.Sharetribe.ClientID, cfg.Sharetribe.ClientSecret, cfg.Sharetribe.BaseURL)
	api := sharetribe.NewClient(creds.Client(ctx), cfg.Sharetribe.BaseURL)

	// --- Templates and translations ---
	renderer, err := render.New(cfg.TemplateDir)
	if err != nil {
		slog.Error("failed to load email templates", "error", err)
		os.Exit(1)
	}

	translator, err := i18n.New(cfg.Locale, cfg.TranslationFiles...)
	if err != nil {
		slog.Error("failed to load translations", "error", err)
		os.Exit(1)
	}

	bridgeCfg := bridge.Config{
		API:        api,
		Mailer:     mailer.NewSendGrid(cfg.SendGrid.APIKey, cfg.SendGrid.Host),
		Renderer:   renderer,
		Translator: translator,
		Marketplace: render.Marketplace{
			Name: cfg.Marketplace.Name,
			URL:  cfg.Marketplace.RootURL,
		},
		FromAddress: cfg.SendGrid.FromEmail,
		ReplyTo:     cfg.SendGrid.ReplyTo,
	}

	var checks []healthCheck

	// --- Connect to Redis (metadata lock) ---
	var rdb *redis.Client
	if cfg.MetadataLock.Enabled {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)

		locker := lock.NewLocker(rdb, cfg.MetadataLock.TTL, cfg.MetadataLock.Wait)
		if err := locker.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to Redis", "lock_ttl", cfg.MetadataLock.TTL, "lock_wait", cfg.MetadataLock.Wait)

		bridgeCfg.Locker = locker
		checks = append(checks, healthCheck{name: "redis", ping: locker.Ping})
	}

	// --- Connect to PostgreSQL (delivery log) ---
	var pgPool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pgPool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}

		if err := pgPool.Ping(ctx); err != nil {
			slog.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to PostgreSQL")

		store, err := deliverylog.NewStore(ctx, pgPool)
		if err != nil {
			slog.Error("failed to initialise delivery log", "error", err)
			os.Exit(1)
		}

		bridgeCfg.DeliveryLog = store
		checks = append(checks, healthCheck{name: "postgres", ping: store.Ping})
	}

	// --- Webhook server ---
	handler := webhook.NewHandler(bridge.New(bridgeCfg), cfg.MaxBodyBytes)
	ready, webhookDone, err := webhook.Serve(ctx, cfg.Port, handler)
	if err != nil {
		slog.Error("failed to start webhook server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Health Check Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler(checks))
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.HealthPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel() // Stops the webhook server

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("health server listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	// In-flight webhook requests may be between persist and notify.
	<-webhookDone

	if rdb != nil {
		rdb.Close()
	}
	if pgPool != nil {
		pgPool.Close()
	}

	slog.Info("mailbridge stopped")
}
