// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads backend configuration from the environment.
//
// A .env file in the working directory is loaded first when present
// (development convenience); real deployments set the variables
// directly. Load never fails on a missing .env file. Validate reports
// every missing required variable by name so a bad deployment fails
// loudly at startup rather than on the first request.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultAppID is the tenant assumed when a request carries no
// X-App-ID header and its token has no app_id claim.
const DefaultAppID = "app1"

// Config holds every tunable the backend reads at startup.
type Config struct {
	// Port is the HTTP listen port.
	Port string

	// Env is "development" or "production". Production switches
	// logging to JSON and Gin to release mode.
	Env string

	// MongoURIs maps app id to its MongoDB connection string.
	// Each tenant gets a fully isolated database.
	MongoURIs map[string]string

	// AccessTokenSecret signs access JWTs (HS256).
	AccessTokenSecret string

	// RefreshTokenSecret signs refresh JWTs (HS256).
	RefreshTokenSecret string

	// AccessTokenTTL is the access token lifetime.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL is the refresh token lifetime.
	RefreshTokenTTL time.Duration

	// OpenAIKey authenticates against the model provider.
	OpenAIKey string

	// OpenAIModel is the chat model name.
	OpenAIModel string

	// OpenAITemperature is the sampling temperature.
	OpenAITemperature float32

	// OpenAIMaxTokens caps completion length.
	OpenAIMaxTokens int

	// SchedulerTimezone is the IANA zone the notification planner
	// computes its evening window in.
	SchedulerTimezone string

	// PushEndpoint is the FCM legacy HTTP endpoint. Empty disables
	// real sends; the no-op sender is used instead.
	PushEndpoint string

	// PushServerKey authorizes push sends.
	PushServerKey string

	// LogDir enables file logging when set.
	LogDir string

	// CORSOrigins lists allowed browser origins, comma separated in env.
	CORSOrigins []string
}

// Load reads the environment (and .env, if present) into a Config.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port: getEnv("PORT", "8000"),
		Env:  getEnv("APP_ENV", "development"),
		MongoURIs: map[string]string{
			"app1": os.Getenv("MONGODB_URI_APP1"),
			"app2": os.Getenv("MONGODB_URI_APP2"),
		},
		AccessTokenSecret:  os.Getenv("ACCESS_TOKEN_SECRET"),
		RefreshTokenSecret: os.Getenv("REFRESH_TOKEN_SECRET"),
		AccessTokenTTL:     getDuration("ACCESS_TOKEN_TTL", 24*time.Hour),
		RefreshTokenTTL:    getDuration("REFRESH_TOKEN_TTL", 10*24*time.Hour),
		OpenAIKey:          os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAITemperature:  getFloat32("OPENAI_TEMPERATURE", 0.2),
		OpenAIMaxTokens:    getInt("OPENAI_MAX_TOKENS", 1000),
		SchedulerTimezone:  getEnv("SCHEDULER_TIMEZONE", "Asia/Kolkata"),
		PushEndpoint:       os.Getenv("FCM_ENDPOINT"),
		PushServerKey:      os.Getenv("FCM_SERVER_KEY"),
		LogDir:             os.Getenv("LOG_DIR"),
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", "*")),
	}
	return cfg
}

// Validate returns an error naming every missing required variable.
func (c *Config) Validate() error {
	var missing []string

	if c.MongoURIs["app1"] == "" {
		missing = append(missing, "MONGODB_URI_APP1")
	}
	if c.MongoURIs["app2"] == "" {
		missing = append(missing, "MONGODB_URI_APP2")
	}
	if c.AccessTokenSecret == "" {
		missing = append(missing, "ACCESS_TOKEN_SECRET")
	}
	if c.RefreshTokenSecret == "" {
		missing = append(missing, "REFRESH_TOKEN_SECRET")
	}
	if c.OpenAIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s",
			strings.Join(missing, ", "))
	}
	return nil
}

// IsProduction reports whether the backend runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
