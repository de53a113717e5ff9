// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "vision-assistant", cfg.Logger.ServiceName)
	assert.Equal(t, 0.8, cfg.Aligner.Threshold)
	assert.Equal(t, 0.5, cfg.Aligner.SweepMin)
	assert.Equal(t, 1.5, cfg.Aligner.SweepMax)
	assert.Equal(t, 5, cfg.Resolver.ScrollStep)
	assert.Equal(t, 3500, cfg.Resolver.BackToTopClicks)
	assert.Equal(t, 0.95, cfg.Resolver.SimilarityThreshold)
	assert.Equal(t, 500*time.Millisecond, cfg.Resolver.SettleDelay)
	assert.Equal(t, 30, cfg.Resolver.PageScaleCount)
	assert.Equal(t, 3, cfg.CheckLoading.Attempts)
	assert.Equal(t, 2*time.Second, cfg.CheckLoading.InitialDelay)
	assert.Equal(t, 3*time.Second, cfg.CheckLoading.RetryDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.Input.ActionPause)
	assert.Equal(t, "/connect-tool", cfg.Transport.Path)
	assert.Equal(t, 5*time.Second, cfg.Transport.ReconnectDelay)
	assert.Equal(t, []string{"add_new_patient"}, cfg.Templates.Tasks)
	assert.NoError(t, cfg.Validate(), "defaults must validate")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Core Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		require.NoError(t, cfg.Validate())

		badQueue := *cfg
		badQueue.Queue.Workers = 0
		err := badQueue.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "queue.workers must be a positive integer")

		badScreen := *cfg
		badScreen.Screen.Width = 1920
		err = badScreen.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "must be set together")

		badLoading := *cfg
		badLoading.CheckLoading.Attempts = 0
		assert.Error(t, badLoading.Validate())
	})

	t.Run("Aligner Validation", func(t *testing.T) {
		valid := NewDefaultConfig().Aligner
		assert.NoError(t, valid.Validate())

		highThreshold := valid
		highThreshold.Threshold = 1.1
		assert.Error(t, highThreshold.Validate())

		inverted := valid
		inverted.SweepMin, inverted.SweepMax = 1.5, 0.5
		err := inverted.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "sweep range")

		single := valid
		single.SweepCount = 1
		assert.Error(t, single.Validate())
	})

	t.Run("Resolver Validation", func(t *testing.T) {
		valid := NewDefaultConfig().Resolver
		assert.NoError(t, valid.Validate())

		noStep := valid
		noStep.ScrollStep = 0
		err := noStep.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "scroll_step must be a positive integer")

		noFrames := valid
		noFrames.MaxFrames = 1
		assert.Error(t, noFrames.Validate())
	})

	t.Run("Input Validation", func(t *testing.T) {
		valid := NewDefaultConfig().Input
		assert.NoError(t, valid.Validate())

		noBurst := valid
		noBurst.EventBurst = 0
		assert.Error(t, noBurst.Validate())

		unlimited := valid
		unlimited.EventsPerSecond = 0
		unlimited.EventBurst = 0
		assert.NoError(t, unlimited.Validate(), "zero rate disables pacing")
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
aligner:
  threshold: 0.9
resolver:
  scroll_step: 3
  settle_delay: 250ms
screen:
  width: 1440
  height: 900
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, 0.9, cfg.Aligner.Threshold)
		assert.Equal(t, 3, cfg.Resolver.ScrollStep)
		assert.Equal(t, 250*time.Millisecond, cfg.Resolver.SettleDelay)
		assert.Equal(t, 1440, cfg.Screen.Width)
		assert.Equal(t, 900, cfg.Screen.Height)
		// Defaults survive alongside overrides.
		assert.Equal(t, 3500, cfg.Resolver.BackToTopClicks)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("resolver.scroll_step", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "scroll_step must be a positive integer")
	})

	t.Run("Template Root From Environment", func(t *testing.T) {
		t.Setenv(TemplatesEnvVar, "/srv/emr_templates")
		v := viper.New()
		SetDefaults(v)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "/srv/emr_templates", cfg.Templates.Root)
	})
}
