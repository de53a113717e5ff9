// File: internal/config/input_config.go
// InputConfig holds the tunable parameters of the pointer and keyboard
// driver: trajectory shape, event pacing and the fixed pauses the EMR pages
// need between actions.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// InputConfig tunes the OS-level input controller.
type InputConfig struct {
	// Smooth enables animated pointer moves when an action does not say otherwise.
	Smooth bool `mapstructure:"smooth" yaml:"smooth"`
	// EventsPerSecond caps how fast raw events reach the OS. Zero disables the cap.
	EventsPerSecond float64 `mapstructure:"events_per_second" yaml:"events_per_second"`
	EventBurst      int     `mapstructure:"event_burst" yaml:"event_burst"`

	// Fitts's law parameters (milliseconds).
	FittsA float64 `mapstructure:"fitts_a" yaml:"fitts_a"`
	FittsB float64 `mapstructure:"fitts_b" yaml:"fitts_b"`
	// MaxMoveDuration bounds a single animated move.
	MaxMoveDuration time.Duration `mapstructure:"max_move_duration" yaml:"max_move_duration"`
	// PerlinAmplitude is the peak drift, in pixels, applied mid-path.
	PerlinAmplitude float64 `mapstructure:"perlin_amplitude" yaml:"perlin_amplitude"`

	ClickHold   time.Duration `mapstructure:"click_hold" yaml:"click_hold"`
	KeyHold     time.Duration `mapstructure:"key_hold" yaml:"key_hold"`
	ActionPause time.Duration `mapstructure:"action_pause" yaml:"action_pause"`
}

func setInputDefaults(v *viper.Viper) {
	v.SetDefault("input.smooth", true)
	v.SetDefault("input.events_per_second", 500.0)
	v.SetDefault("input.event_burst", 20)
	v.SetDefault("input.fitts_a", 80.0)
	v.SetDefault("input.fitts_b", 90.0)
	v.SetDefault("input.max_move_duration", "800ms")
	v.SetDefault("input.perlin_amplitude", 1.5)
	v.SetDefault("input.click_hold", "30ms")
	v.SetDefault("input.key_hold", "15ms")
	v.SetDefault("input.action_pause", "100ms")
}

// Validate checks the InputConfig settings.
func (i *InputConfig) Validate() error {
	if i.EventsPerSecond < 0 {
		return fmt.Errorf("events_per_second must not be negative")
	}
	if i.EventsPerSecond > 0 && i.EventBurst <= 0 {
		return fmt.Errorf("event_burst must be positive when events_per_second is set")
	}
	if i.FittsA < 0 || i.FittsB < 0 {
		return fmt.Errorf("fitts parameters must not be negative")
	}
	return nil
}
