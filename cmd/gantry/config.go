package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all gantry server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath          string `json:"db_path"`
	LogLevel        string `json:"log_level"`
	MaxSteps        int    `json:"max_steps"`
	ConditionEngine string `json:"condition_engine"`
	Scheduler       bool   `json:"scheduler"`
}

func defaultConfig() Config {
	return Config{
		DBPath:          filepath.Join(gantryDir(), "gantry.db"),
		LogLevel:        "info",
		MaxSteps:        0,
		ConditionEngine: "expr",
		Scheduler:       true,
	}
}

func gantryDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gantry"
	}
	return filepath.Join(home, ".gantry")
}

func settingsPath() string {
	return filepath.Join(gantryDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("GANTRY_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("GANTRY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GANTRY_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSteps = n
		}
	}
	if v := os.Getenv("GANTRY_CONDITION_ENGINE"); v != "" {
		cfg.ConditionEngine = v
	}
	if v := os.Getenv("GANTRY_SCHEDULER"); v != "" {
		cfg.Scheduler = v == "true" || v == "1"
	}

	return cfg
}
