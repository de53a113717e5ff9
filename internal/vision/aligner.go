// File: internal/vision/aligner.go
package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/xkilldash9x/vision-assistant/internal/config"
	"go.uber.org/zap"
)

// ErrNoMatch is returned when no candidate scale clears the threshold.
var ErrNoMatch = errors.New("no match above threshold")

// Match is a successful alignment. X and Y are the template centre in OS
// input coordinates.
type Match struct {
	X, Y  int
	Scale float64
	Score float64
}

// AlignRequest describes one alignment. A nil Target means "capture the
// screen now". A positive Scale restricts the search to that scale alone.
type AlignRequest struct {
	TemplatePath string
	Target       *Target
	Scale        float64
}

// Aligner locates templates on screen across zoom levels. The best scale of
// the last successful search is remembered and tried first next time.
type Aligner struct {
	screen Screen
	cfg    config.AlignerConfig
	logger *zap.Logger
	size   image.Point
	sweep  []float64

	mu        sync.Mutex
	templates map[string]*Template
	bestScale float64
	last      Match
}

// NewAligner builds an aligner. The OS screen size comes from override when
// both dimensions are set, otherwise from the screen itself.
func NewAligner(screen Screen, cfg config.AlignerConfig, override config.ScreenConfig, logger *zap.Logger) (*Aligner, error) {
	size := image.Pt(override.Width, override.Height)
	if size.X <= 0 || size.Y <= 0 {
		w, h, err := screen.Size()
		if err != nil {
			return nil, fmt.Errorf("failed to query screen size: %w", err)
		}
		size = image.Pt(w, h)
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("invalid screen size %dx%d", size.X, size.Y)
	}

	return &Aligner{
		screen:    screen,
		cfg:       cfg,
		logger:    logger.Named("aligner"),
		size:      size,
		sweep:     Linspace(cfg.SweepMin, cfg.SweepMax, cfg.SweepCount),
		templates: make(map[string]*Template),
		bestScale: 1.0,
	}, nil
}

// ScreenSize returns the OS input-space dimensions.
func (a *Aligner) ScreenSize() image.Point { return a.size }

// BestScale returns the scale of the most recent successful alignment.
func (a *Aligner) BestScale() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bestScale
}

// LastMatch returns the most recent successful alignment.
func (a *Aligner) LastMatch() Match {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// ResetTemplates drops cached templates, e.g. after switching EMR systems.
func (a *Aligner) ResetTemplates() {
	a.mu.Lock()
	a.templates = make(map[string]*Template)
	a.mu.Unlock()
}

// Template loads path once per session.
func (a *Aligner) Template(path string) (*Template, error) {
	a.mu.Lock()
	t, ok := a.templates[path]
	a.mu.Unlock()
	if ok {
		return t, nil
	}

	t, err := LoadTemplate(path)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.templates[path] = t
	a.mu.Unlock()
	return t, nil
}

// Screenshot captures the full screen in grayscale.
func (a *Aligner) Screenshot(ctx context.Context) (*image.Gray, error) {
	img, err := a.screen.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("screen capture failed: %w", err)
	}
	if img == nil {
		return nil, errors.New("screen capture returned no image")
	}
	return ToGray(img), nil
}

// Align finds the template described by req.
func (a *Aligner) Align(ctx context.Context, req AlignRequest) (Match, error) {
	tmpl, err := a.Template(req.TemplatePath)
	if err != nil {
		return Match{}, err
	}

	target := req.Target
	if target == nil {
		shot, err := a.Screenshot(ctx)
		if err != nil {
			return Match{}, err
		}
		target = NewTarget(shot)
	}

	var (
		scale float64
		best  peak
	)
	if req.Scale > 0 {
		scale = req.Scale
		best, err = a.score(ctx, target, tmpl, scale)
		if err != nil {
			return Match{}, err
		}
		if !best.ok || best.score <= a.cfg.Threshold {
			return Match{}, ErrNoMatch
		}
	} else {
		scale, best, err = a.search(ctx, target, tmpl)
		if err != nil {
			return Match{}, err
		}
	}

	w, h := tmpl.ScaledSize(scale)
	center := image.Pt(best.x+w/2, best.y+h/2)
	p := ImageToScreen(center, target.Size(), a.size)
	m := Match{X: p.X, Y: p.Y, Scale: scale, Score: best.score}

	a.mu.Lock()
	a.bestScale = scale
	a.last = m
	a.mu.Unlock()

	a.logger.Debug("Template aligned",
		zap.String("template", tmpl.Name),
		zap.Float64("scale", scale),
		zap.Float64("score", best.score),
		zap.Int("x", m.X), zap.Int("y", m.Y))
	return m, nil
}

// search walks the scale priority list and returns the first acceptable
// scale, refined to the local optimum on the sweep grid.
func (a *Aligner) search(ctx context.Context, target *Target, tmpl *Template) (float64, peak, error) {
	seen := make(map[float64]peak)
	eval := func(s float64) (peak, error) {
		if p, ok := seen[s]; ok {
			return p, nil
		}
		p, err := a.score(ctx, target, tmpl, s)
		if err != nil {
			return peak{}, err
		}
		seen[s] = p
		return p, nil
	}

	for _, s := range a.candidateScales() {
		p, err := eval(s)
		if err != nil {
			return 0, peak{}, err
		}
		if !p.ok || p.score <= a.cfg.Threshold {
			continue
		}
		if !a.cfg.Refine {
			return s, p, nil
		}
		return a.refine(s, p, eval)
	}
	return 0, peak{}, ErrNoMatch
}

// refine climbs the sweep grid from the accepted scale while the score
// improves, in both directions.
func (a *Aligner) refine(s float64, p peak, eval func(float64) (peak, error)) (float64, peak, error) {
	bestScale, best := s, p
	origin := nearestIndex(a.sweep, s)
	if math.Abs(a.sweep[origin]-s) > 1e-3 {
		q, err := eval(a.sweep[origin])
		if err != nil {
			return 0, peak{}, err
		}
		if q.ok && q.score > best.score {
			bestScale, best = a.sweep[origin], q
		}
	}
	for _, dir := range []int{-1, 1} {
		for i := origin + dir; i >= 0 && i < len(a.sweep); i += dir {
			q, err := eval(a.sweep[i])
			if err != nil {
				return 0, peak{}, err
			}
			if !q.ok || q.score <= best.score {
				break
			}
			bestScale, best = a.sweep[i], q
		}
	}
	return bestScale, best, nil
}

// candidateScales is the search order: cached best, 1.0, then the sweep.
func (a *Aligner) candidateScales() []float64 {
	return Dedupe(append([]float64{a.BestScale(), 1.0}, a.sweep...))
}

func (a *Aligner) score(ctx context.Context, target *Target, tmpl *Template, s float64) (peak, error) {
	if err := ctx.Err(); err != nil {
		return peak{}, err
	}
	return matchKernel(ctx, target, tmpl.kernelAt(s), searchOptions{
		workers:         a.cfg.Workers,
		pyramidPixels:   a.cfg.PyramidMinPixels,
		pyramidTemplate: a.cfg.PyramidMinTemplate,
		candidates:      a.cfg.PyramidCandidates,
	})
}

// Linspace returns n evenly spaced values over [lo, hi].
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}

// Geomspace returns n values spaced evenly on a log scale over [lo, hi].
func Geomspace(lo, hi float64, n int) []float64 {
	if n <= 1 || lo <= 0 || hi <= 0 {
		return []float64{lo}
	}
	out := make([]float64, n)
	llo, lhi := math.Log(lo), math.Log(hi)
	step := (lhi - llo) / float64(n-1)
	for i := range out {
		out[i] = math.Exp(llo + float64(i)*step)
	}
	return out
}

// Dedupe removes scales within 1e-3 of an earlier entry, keeping order.
func Dedupe(scales []float64) []float64 {
	out := make([]float64, 0, len(scales))
	for _, s := range scales {
		dup := false
		for _, o := range out {
			if math.Abs(o-s) < 1e-3 {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, s)
		}
	}
	return out
}

func nearestIndex(grid []float64, s float64) int {
	idx, bestDiff := 0, math.Inf(1)
	for i, g := range grid {
		if d := math.Abs(g - s); d < bestDiff {
			idx, bestDiff = i, d
		}
	}
	return idx
}
