// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/saathi-labs/companion-backend/pkg/logging"
	"github.com/saathi-labs/companion-backend/services/backend/auth"
	"github.com/saathi-labs/companion-backend/services/backend/config"
	"github.com/saathi-labs/companion-backend/services/backend/gateway"
	"github.com/saathi-labs/companion-backend/services/backend/handlers"
	"github.com/saathi-labs/companion-backend/services/backend/llm"
	"github.com/saathi-labs/companion-backend/services/backend/observability"
	"github.com/saathi-labs/companion-backend/services/backend/push"
	"github.com/saathi-labs/companion-backend/services/backend/routes"
	"github.com/saathi-labs/companion-backend/services/backend/scheduler"
	"github.com/saathi-labs/companion-backend/services/backend/tenant"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	logger := logging.New(logging.Config{
		Service: "backend",
		LogDir:  cfg.LogDir,
		JSON:    cfg.IsProduction(),
	})
	defer logger.Close()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := tenant.NewRegistry(cfg.MongoURIs, config.DefaultAppID, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := registry.Close(ctx); err != nil {
			logger.Error("tenant shutdown failed", "error", err)
		}
	}()

	tokens := auth.NewManager(cfg.AccessTokenSecret, cfg.RefreshTokenSecret,
		cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	model, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:      cfg.OpenAIKey,
		Model:       cfg.OpenAIModel,
		Temperature: cfg.OpenAITemperature,
		MaxTokens:   cfg.OpenAIMaxTokens,
	})
	if err != nil {
		log.Fatalf("FATAL: could not initialize the LLM client: %v", err)
	}

	var sender push.Sender = push.NopSender{}
	if cfg.PushEndpoint != "" {
		sender = push.NewHTTPSender(cfg.PushEndpoint, cfg.PushServerKey, logger)
		logger.Info("push sender enabled", "endpoint", cfg.PushEndpoint)
	} else {
		logger.Warn("FCM_ENDPOINT not set, push notifications disabled")
	}

	metrics := observability.New()
	hub := gateway.NewHub(logger)
	gw := gateway.New(hub, registry, tokens, model, metrics, logger)

	h := handlers.New(registry, tokens, model, sender, logger, handlers.Config{
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		SecureCookies: cfg.IsProduction(),
	})

	sched := scheduler.New(registry, sender, metrics, logger, cfg.SchedulerTimezone)
	sched.Start()
	defer sched.Stop()

	router := routes.New(routes.Deps{
		Registry:    registry,
		Tokens:      tokens,
		Handlers:    h,
		Gateway:     gw,
		Metrics:     metrics,
		Logger:      logger,
		CORSOrigins: cfg.CORSOrigins,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("backend listening", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
}
