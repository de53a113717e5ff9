// -- internal/humanoid/humanoid.go --
package humanoid

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"github.com/xkilldash9x/vision-assistant/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Humanoid implements Controller on top of an Executor, shaping pointer
// paths and pacing events the way a person at the keyboard would.
type Humanoid struct {
	cfg      config.InputConfig
	executor Executor
	logger   *zap.Logger
	limiter  *rate.Limiter
	modifier string

	mu          sync.Mutex
	rng         *rand.Rand
	noiseX      *perlin.Perlin
	noiseY      *perlin.Perlin
	heldKeys    map[string]struct{}
	heldButtons map[MouseButton]struct{}
}

var _ Controller = (*Humanoid)(nil)

// Option adjusts a Humanoid at construction.
type Option func(*Humanoid)

// WithModifier overrides the detected shortcut modifier.
func WithModifier(key string) Option {
	return func(h *Humanoid) { h.modifier = key }
}

// WithSeed makes trajectories reproducible.
func WithSeed(seed int64) Option {
	return func(h *Humanoid) { h.seed(seed) }
}

// New creates a Humanoid driving executor.
func New(cfg config.InputConfig, executor Executor, logger *zap.Logger, opts ...Option) *Humanoid {
	limit := rate.Inf
	if cfg.EventsPerSecond > 0 {
		limit = rate.Limit(cfg.EventsPerSecond)
	}
	h := &Humanoid{
		cfg:         cfg,
		executor:    executor,
		logger:      logger.Named("input"),
		limiter:     rate.NewLimiter(limit, max(1, cfg.EventBurst)),
		modifier:    DefaultModifier(),
		heldKeys:    make(map[string]struct{}),
		heldButtons: make(map[MouseButton]struct{}),
	}
	h.seed(time.Now().UnixNano())
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Humanoid) seed(seed int64) {
	// Standard Perlin parameters.
	alpha, beta, n := 2.0, 2.0, int32(3)
	h.rng = rand.New(rand.NewSource(seed))
	h.noiseX = perlin.NewPerlin(alpha, beta, n, seed)
	h.noiseY = perlin.NewPerlin(alpha, beta, n, seed+1)
}

// Modifier implements Controller.
func (h *Humanoid) Modifier() string { return h.modifier }

// event waits for the rate limiter before handing an event to the backend.
func (h *Humanoid) event(ctx context.Context, name string, fn func() error) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return fmt.Errorf("input: %s failed: %w", name, err)
	}
	return nil
}

// Pause implements Controller.
func (h *Humanoid) Pause(ctx context.Context, d time.Duration) error { return h.pause(ctx, d) }

func (h *Humanoid) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return h.executor.Sleep(ctx, d)
}
