// File: internal/vision/ncc.go
package vision

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"
)

// peak is one correlation result in target pixel space (top-left corner).
type peak struct {
	x, y  int
	score float64
	ok    bool
}

// better orders peaks by score, then raster position, so results do not
// depend on how the search was split across goroutines.
func (p peak) better(o peak) bool {
	if !o.ok {
		return p.ok
	}
	if !p.ok {
		return false
	}
	if p.score != o.score {
		return p.score > o.score
	}
	if p.y != o.y {
		return p.y < o.y
	}
	return p.x < o.x
}

// searchOptions tune matchKernel.
type searchOptions struct {
	workers         int
	pyramidPixels   int
	pyramidTemplate int
	candidates      int
}

// scoreAt computes TM_CCOEFF_NORMED for the kernel placed at (x, y).
func scoreAt(t *Target, k *kernel, x, y int) float64 {
	var num float64
	for j := 0; j < k.h; j++ {
		row := t.img.Pix[(y+j)*t.img.Stride+x : (y+j)*t.img.Stride+x+k.w]
		kr := k.pix[j*k.w : (j+1)*k.w]
		for i, v := range row {
			num += kr[i] * float64(v)
		}
	}

	n := float64(k.w * k.h)
	s, sq := t.window(x, y, k.w, k.h)
	variance := sq - s*s/n
	if variance <= 1e-6 || k.norm <= 1e-9 {
		return 0
	}
	r := num / (math.Sqrt(variance) * k.norm)
	if r > 1 {
		return 1
	}
	if r < -1 {
		return -1
	}
	return r
}

// matchKernel returns the best placement of k inside t. ok is false when the
// kernel does not fit.
func matchKernel(ctx context.Context, t *Target, k *kernel, opts searchOptions) (peak, error) {
	if k == nil || k.w > t.w || k.h > t.h {
		return peak{}, nil
	}
	t.integrals()

	if opts.pyramidPixels > 0 && t.w*t.h >= opts.pyramidPixels &&
		min(k.w, k.h) >= opts.pyramidTemplate {
		if p, ok, err := matchCoarseToFine(ctx, t, k, opts); err != nil || ok {
			return p, err
		}
	}
	return matchExhaustive(ctx, t, k, 0, 0, t.w-k.w, t.h-k.h, opts.workers)
}

// matchExhaustive scores every placement with top-left in [x0,x1]x[y0,y1].
// Row bands are scored concurrently.
func matchExhaustive(ctx context.Context, t *Target, k *kernel, x0, y0, x1, y1, workers int) (peak, error) {
	rows := y1 - y0 + 1
	if rows <= 0 || x1 < x0 {
		return peak{}, nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > rows {
		workers = rows
	}

	bands := make([]peak, workers)
	g, gctx := errgroup.WithContext(ctx)
	per := (rows + workers - 1) / workers
	for b := 0; b < workers; b++ {
		start := y0 + b*per
		end := min(start+per-1, y1)
		g.Go(func() error {
			var best peak
			for y := start; y <= end; y++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				for x := x0; x <= x1; x++ {
					p := peak{x: x, y: y, score: scoreAt(t, k, x, y), ok: true}
					if p.better(best) {
						best = p
					}
				}
			}
			bands[b] = best
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return peak{}, err
	}

	var best peak
	for _, p := range bands {
		if p.better(best) {
			best = p
		}
	}
	return best, nil
}

// matchCoarseToFine scores the half-resolution pair, keeps the strongest
// separated peaks and rescores a small neighbourhood of each at full
// resolution.
func matchCoarseToFine(ctx context.Context, t *Target, k *kernel, opts searchOptions) (peak, bool, error) {
	ck := k.half()
	ct := t.half()
	if ck == nil || ck.w > ct.w || ck.h > ct.h {
		return peak{}, false, nil
	}
	ct.integrals()

	cw, ch := ct.w-ck.w+1, ct.h-ck.h+1
	scores := make([]float64, cw*ch)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, opts.workers))
	for y := 0; y < ch; y++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for x := 0; x < cw; x++ {
				scores[y*cw+x] = scoreAt(ct, ck, x, y)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return peak{}, false, err
	}

	radius := max(1, min(ck.w, ck.h)/2)
	var best peak
	for _, c := range topPeaks(scores, cw, ch, max(1, opts.candidates), radius) {
		x0 := max(0, 2*c.x-2)
		y0 := max(0, 2*c.y-2)
		x1 := min(t.w-k.w, 2*c.x+2)
		y1 := min(t.h-k.h, 2*c.y+2)
		p, err := matchExhaustive(ctx, t, k, x0, y0, x1, y1, 1)
		if err != nil {
			return peak{}, false, err
		}
		if p.better(best) {
			best = p
		}
	}
	return best, best.ok, nil
}

// topPeaks picks up to n maxima from a score map, suppressing anything
// within radius of an already chosen peak.
func topPeaks(scores []float64, w, h, n, radius int) []peak {
	taken := make([]bool, len(scores))
	var out []peak
	for len(out) < n {
		var best peak
		for i, s := range scores {
			if taken[i] {
				continue
			}
			p := peak{x: i % w, y: i / w, score: s, ok: true}
			if p.better(best) {
				best = p
			}
		}
		if !best.ok {
			break
		}
		out = append(out, best)
		for y := max(0, best.y-radius); y <= min(h-1, best.y+radius); y++ {
			for x := max(0, best.x-radius); x <= min(w-1, best.x+radius); x++ {
				taken[y*w+x] = true
			}
		}
	}
	return out
}
