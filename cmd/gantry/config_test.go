package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 0, cfg.MaxSteps)
	assert.Equal(t, "expr", cfg.ConditionEngine)
	assert.True(t, cfg.Scheduler)
	assert.Contains(t, cfg.DBPath, "gantry.db")
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("GANTRY_DB_PATH", "memory")
	t.Setenv("GANTRY_LOG_LEVEL", "debug")
	t.Setenv("GANTRY_MAX_STEPS", "250")
	t.Setenv("GANTRY_CONDITION_ENGINE", "cel")
	t.Setenv("GANTRY_SCHEDULER", "false")

	cfg := loadConfig()
	assert.Equal(t, "memory", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250, cfg.MaxSteps)
	assert.Equal(t, "cel", cfg.ConditionEngine)
	assert.False(t, cfg.Scheduler)
}

func TestLoadConfig_BadMaxStepsIgnored(t *testing.T) {
	t.Setenv("GANTRY_MAX_STEPS", "not-a-number")
	cfg := loadConfig()
	assert.Equal(t, defaultConfig().MaxSteps, cfg.MaxSteps)
}

func TestConditionEngine(t *testing.T) {
	eng, err := conditionEngine("")
	require.NoError(t, err)
	assert.Equal(t, "expr", eng.Name())

	eng, err = conditionEngine("expr")
	require.NoError(t, err)
	assert.Equal(t, "expr", eng.Name())

	eng, err = conditionEngine("cel")
	require.NoError(t, err)
	assert.Equal(t, "cel", eng.Name())

	_, err = conditionEngine("lua")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lua")
}
