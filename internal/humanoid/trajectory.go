package humanoid

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// Vector2D is a point or displacement in screen space.
type Vector2D struct {
	X, Y float64
}

func (v Vector2D) Add(o Vector2D) Vector2D { return Vector2D{v.X + o.X, v.Y + o.Y} }
func (v Vector2D) Sub(o Vector2D) Vector2D { return Vector2D{v.X - o.X, v.Y - o.Y} }
func (v Vector2D) Mul(s float64) Vector2D  { return Vector2D{v.X * s, v.Y * s} }
func (v Vector2D) Mag() float64            { return math.Hypot(v.X, v.Y) }
func (v Vector2D) Dist(o Vector2D) float64 { return v.Sub(o).Mag() }
func (v Vector2D) Perp() Vector2D          { return Vector2D{-v.Y, v.X} }
func (v Vector2D) Round() (x, y int)       { return int(math.Round(v.X)), int(math.Round(v.Y)) }

// Normalize returns the unit vector, or the zero vector for a zero input.
func (v Vector2D) Normalize() Vector2D {
	m := v.Mag()
	if m < 1e-9 {
		return Vector2D{}
	}
	return v.Mul(1 / m)
}

// computeEaseInOutCubic provides a smooth acceleration and deceleration profile for movement.
func computeEaseInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// calculateFittsLaw determines a realistic movement duration based on Fitts's Law,
// capped at the configured maximum.
func (h *Humanoid) calculateFittsLaw(distance float64) time.Duration {
	const W = 30.0 // Assumed default target width (W) in pixels.

	// Index of Difficulty (ID)
	id := math.Log2(1.0 + distance/W)

	h.mu.Lock()
	jitter := h.rng.Float64()*0.3 - 0.15
	h.mu.Unlock()

	// Movement Time (MT) in milliseconds, +/- 15%.
	mt := h.cfg.FittsA + h.cfg.FittsB*id
	mt += mt * jitter

	d := time.Duration(mt * float64(time.Millisecond))
	if h.cfg.MaxMoveDuration > 0 && d > h.cfg.MaxMoveDuration {
		d = h.cfg.MaxMoveDuration
	}
	return d
}

// generateIdealPath creates a cubic Bezier from start to end whose control
// points bow sideways by a random amount.
func (h *Humanoid) generateIdealPath(start, end Vector2D, numSteps int) []Vector2D {
	mainVec := end.Sub(start)
	dist := mainVec.Mag()
	if dist < 1.0 || numSteps <= 1 {
		return []Vector2D{end}
	}

	normal := mainVec.Normalize().Perp()
	h.mu.Lock()
	bow1 := (h.rng.Float64()*2 - 1) * dist * 0.15
	bow2 := (h.rng.Float64()*2 - 1) * dist * 0.10
	h.mu.Unlock()

	p0, p3 := start, end
	p1 := start.Add(mainVec.Mul(1.0 / 3.0)).Add(normal.Mul(bow1))
	p2 := start.Add(mainVec.Mul(2.0 / 3.0)).Add(normal.Mul(bow2))

	path := make([]Vector2D, numSteps)
	for i := 0; i < numSteps; i++ {
		t := float64(i) / float64(numSteps-1)
		omt := 1.0 - t
		omt2 := omt * omt
		omt3 := omt2 * omt
		t2 := t * t
		t3 := t2 * t

		path[i] = p0.Mul(omt3).Add(p1.Mul(3 * omt2 * t)).Add(p2.Mul(3 * omt * t2)).Add(p3.Mul(t3))
	}
	return path
}

// simulateTrajectory moves the pointer along a generated path. The last event
// always lands exactly on end.
func (h *Humanoid) simulateTrajectory(ctx context.Context, start, end Vector2D) error {
	duration := h.calculateFittsLaw(start.Dist(end))
	numSteps := int(duration.Seconds() * 100)
	if numSteps < 2 {
		numSteps = 2
	}
	idealPath := h.generateIdealPath(start, end, numSteps)

	const perlinFrequency = 0.8
	startTime := time.Now()
	lastX, lastY := start.Round()

	for i := 0; i < len(idealPath)-1; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Apply easing to time to simulate acceleration/deceleration.
		t := float64(i) / float64(len(idealPath)-1)
		easedT := computeEaseInOutCubic(t)
		pathIndex := int(easedT * float64(len(idealPath)-1))
		if pathIndex >= len(idealPath) {
			pathIndex = len(idealPath) - 1
		}
		current := idealPath[pathIndex]

		// Drift vanishes at both ends so the path still starts and stops on target.
		taper := math.Sin(math.Pi * t)
		elapsed := time.Since(startTime).Seconds()
		h.mu.Lock()
		drift := Vector2D{
			X: h.noiseX.Noise1D(elapsed*perlinFrequency) * h.cfg.PerlinAmplitude * taper,
			Y: h.noiseY.Noise1D(elapsed*perlinFrequency) * h.cfg.PerlinAmplitude * taper,
		}
		h.mu.Unlock()

		x, y := current.Add(drift).Round()
		if x != lastX || y != lastY {
			if err := h.event(ctx, "mouse move", func() error { return h.executor.MoveMouse(ctx, x, y) }); err != nil {
				if ctx.Err() == nil {
					h.logger.Warn("Failed to dispatch mouse move event", zap.Error(err))
				}
				return err
			}
			lastX, lastY = x, y
		}

		sleepDur := time.Until(startTime.Add(time.Duration(easedT * float64(duration))))
		if sleepDur > 0 {
			if err := h.executor.Sleep(ctx, sleepDur); err != nil {
				return err
			}
		}
	}

	x, y := end.Round()
	return h.event(ctx, "mouse move", func() error { return h.executor.MoveMouse(ctx, x, y) })
}
