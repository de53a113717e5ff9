// internal/emr/resolver.go
package emr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/xkilldash9x/vision-assistant/internal/config"
	"github.com/xkilldash9x/vision-assistant/internal/humanoid"
	"github.com/xkilldash9x/vision-assistant/internal/vision"
	"go.uber.org/zap"
)

// ScrollFrame is a screenshot paired with the scroll offset, in wheel
// clicks from the top, at which it was taken.
type ScrollFrame struct {
	Image  *image.Gray
	Offset int
}

// FieldCoordinate locates a field: scroll to ScrollOffset, then (X, Y) in
// OS input coordinates.
type FieldCoordinate struct {
	ScrollOffset int
	X, Y         int
}

// Resolver scrolls a page once and locates every field template on it. It
// owns the page's scroll position.
type Resolver struct {
	aligner   *vision.Aligner
	input     humanoid.Controller
	cfg       config.ResolverConfig
	framesDir string
	logger    *zap.Logger

	scrollNow int
}

// NewResolver creates a resolver. framesDir enables the debug frame dump.
func NewResolver(aligner *vision.Aligner, input humanoid.Controller, cfg config.ResolverConfig, framesDir string, logger *zap.Logger) *Resolver {
	return &Resolver{
		aligner:   aligner,
		input:     input,
		cfg:       cfg,
		framesDir: framesDir,
		logger:    logger.Named("resolver"),
	}
}

// ScrollNow is the current offset from the top, in wheel clicks.
func (r *Resolver) ScrollNow() int { return r.scrollNow }

func (r *Resolver) center() (int, int) {
	size := r.aligner.ScreenSize()
	return size.X / 2, size.Y / 2
}

// BackToTop puts the pointer in the middle of the screen and scrolls far
// enough up to reach the top of any page.
func (r *Resolver) BackToTop(ctx context.Context) error {
	x, y := r.center()
	if err := r.input.MoveTo(ctx, x, y, true); err != nil {
		return err
	}
	if err := r.input.Scroll(ctx, r.cfg.BackToTopClicks); err != nil {
		return err
	}
	r.scrollNow = 0
	return nil
}

// ScrollTo brings the page to offset clicks from the top. It is a no-op when
// the page is already there.
func (r *Resolver) ScrollTo(ctx context.Context, offset int) error {
	if offset == r.scrollNow {
		return nil
	}
	if err := r.input.Scroll(ctx, r.cfg.BackToTopClicks); err != nil {
		return err
	}
	if offset > 0 {
		if err := r.input.Scroll(ctx, -offset); err != nil {
			return err
		}
	}
	r.scrollNow = offset
	return nil
}

// CaptureFrames scrolls from the top to the bottom of the page, capturing a
// frame at every step. Scrolling stops once a frame is nearly identical to
// its predecessor; that final frame is kept. Afterwards the page is
// scrolled back up by the distance travelled.
func (r *Resolver) CaptureFrames(ctx context.Context, page string) ([]ScrollFrame, error) {
	if err := r.BackToTop(ctx); err != nil {
		return nil, EMRError("back to top", err)
	}

	shot, err := r.aligner.Screenshot(ctx)
	if err != nil {
		return nil, EMRError("screenshot", err)
	}
	frames := []ScrollFrame{{Image: shot, Offset: 0}}

	total := 0
	for {
		if r.cfg.MaxFrames > 0 && len(frames) >= r.cfg.MaxFrames {
			return nil, EMRError(page, fmt.Errorf("page bottom not reached after %d frames", len(frames)))
		}
		if err := r.input.Scroll(ctx, -r.cfg.ScrollStep); err != nil {
			return nil, EMRError("scroll", err)
		}
		if err := r.input.Pause(ctx, r.cfg.SettleDelay); err != nil {
			return nil, err
		}
		prev := shot
		if shot, err = r.aligner.Screenshot(ctx); err != nil {
			return nil, EMRError("screenshot", err)
		}
		total += r.cfg.ScrollStep
		frames = append(frames, ScrollFrame{Image: shot, Offset: total})

		score := vision.Similarity(prev, shot)
		r.logger.Debug("Scrolling", zap.Int("total", total), zap.Int("step", r.cfg.ScrollStep), zap.Float64("similarity", score))
		if score > r.cfg.SimilarityThreshold {
			break
		}
	}

	if err := r.input.Scroll(ctx, total); err != nil {
		return nil, EMRError("scroll", err)
	}
	r.logger.Info("Page scrolled", zap.String("page", page), zap.Int("frames", len(frames)), zap.Int("total_clicks", total))

	if r.framesDir != "" {
		dir, err := dumpFrames(r.framesDir, page, frames, total)
		if err != nil {
			r.logger.Warn("Failed to save debug screenshots", zap.Error(err))
		} else {
			r.logger.Info("Debug screenshots saved", zap.String("dir", dir), zap.Int("count", len(frames)))
		}
	}
	return frames, nil
}

// pageScales is the candidate list for bulk resolution: 1.0, the cached
// best scale, then a geometric sweep around the best scale.
func (r *Resolver) pageScales() []float64 {
	best := r.aligner.BestScale()
	scales := append([]float64{1.0, best}, vision.Geomspace(best*0.5, best*1.5, r.cfg.PageScaleCount)...)
	return vision.Dedupe(scales)
}

// Resolve locates every template of imagesDir in frames. Templates are tried
// scale by scale, and for each scale frame by frame from the top; the first
// hit wins. Every template must be found.
func (r *Resolver) Resolve(ctx context.Context, imagesDir string, frames []ScrollFrame) (map[string]FieldCoordinate, error) {
	names, err := FieldNames(imagesDir)
	if err != nil {
		return nil, err
	}

	targets := make([]*vision.Target, len(frames))
	for i, f := range frames {
		targets[i] = vision.NewTarget(f.Image)
	}
	scales := r.pageScales()

	coords := make(map[string]FieldCoordinate, len(names))
	var missing []string
	for _, name := range names {
		path := filepath.Join(imagesDir, name+".png")
		found, err := r.resolveOne(ctx, path, scales, frames, targets)
		if err != nil {
			return nil, err
		}
		if found == nil {
			missing = append(missing, name)
			continue
		}
		coords[name] = *found
		r.logger.Debug("Field located", zap.String("field", name),
			zap.Int("scroll", found.ScrollOffset), zap.Int("x", found.X), zap.Int("y", found.Y))
	}

	if len(missing) > 0 {
		return nil, EMRError(filepath.Base(filepath.Dir(imagesDir)),
			fmt.Errorf("can't find all element matches on current page, missing: %s", strings.Join(missing, ", ")))
	}

	if len(names) > 0 {
		if err := r.BackToTop(ctx); err != nil {
			return nil, EMRError("back to top", err)
		}
	}
	return coords, nil
}

func (r *Resolver) resolveOne(ctx context.Context, path string, scales []float64, frames []ScrollFrame, targets []*vision.Target) (*FieldCoordinate, error) {
	for _, s := range scales {
		for i, t := range targets {
			m, err := r.aligner.Align(ctx, vision.AlignRequest{TemplatePath: path, Target: t, Scale: s})
			switch {
			case err == nil:
				return &FieldCoordinate{ScrollOffset: frames[i].Offset, X: m.X, Y: m.Y}, nil
			case errors.Is(err, vision.ErrNoMatch):
				continue
			case ctx.Err() != nil:
				return nil, ctx.Err()
			default:
				return nil, TemplateError(path, err)
			}
		}
	}
	return nil, nil
}
