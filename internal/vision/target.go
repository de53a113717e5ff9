// File: internal/vision/target.go
package vision

import (
	"image"
	"sync"
)

// Target is an image that templates are matched against. Window statistics
// and the half-resolution level are computed on first use and reused across
// every template and scale matched against the same frame.
type Target struct {
	img  *image.Gray
	w, h int

	integralOnce sync.Once
	sum, sqsum   []float64

	halfOnce sync.Once
	halfT    *Target
}

// NewTarget wraps img for matching.
func NewTarget(img *image.Gray) *Target {
	g := ToGray(img)
	return &Target{img: g, w: g.Bounds().Dx(), h: g.Bounds().Dy()}
}

// Image returns the underlying grayscale image.
func (t *Target) Image() *image.Gray { return t.img }

// Size returns the target dimensions.
func (t *Target) Size() image.Point { return image.Pt(t.w, t.h) }

func (t *Target) integrals() {
	t.integralOnce.Do(func() {
		stride := t.w + 1
		t.sum = make([]float64, stride*(t.h+1))
		t.sqsum = make([]float64, stride*(t.h+1))
		for y := 0; y < t.h; y++ {
			var rowSum, rowSq float64
			row := t.img.Pix[y*t.img.Stride : y*t.img.Stride+t.w]
			for x, p := range row {
				v := float64(p)
				rowSum += v
				rowSq += v * v
				i := (y+1)*stride + x + 1
				t.sum[i] = t.sum[i-stride] + rowSum
				t.sqsum[i] = t.sqsum[i-stride] + rowSq
			}
		}
	})
}

// window returns the pixel sum and squared sum of the w x h window at (x, y).
func (t *Target) window(x, y, w, h int) (float64, float64) {
	stride := t.w + 1
	a := y*stride + x
	b := y*stride + x + w
	c := (y+h)*stride + x
	d := (y+h)*stride + x + w
	return t.sum[d] - t.sum[b] - t.sum[c] + t.sum[a],
		t.sqsum[d] - t.sqsum[b] - t.sqsum[c] + t.sqsum[a]
}

func (t *Target) half() *Target {
	t.halfOnce.Do(func() {
		t.halfT = NewTarget(downsample(t.img))
	})
	return t.halfT
}

// downsample halves img with a 2x2 box filter.
func downsample(img *image.Gray) *image.Gray {
	w, h := img.Bounds().Dx()/2, img.Bounds().Dy()/2
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		r0 := img.Pix[(2*y)*img.Stride:]
		r1 := img.Pix[(2*y+1)*img.Stride:]
		for x := 0; x < w; x++ {
			s := int(r0[2*x]) + int(r0[2*x+1]) + int(r1[2*x]) + int(r1[2*x+1])
			dst.Pix[y*dst.Stride+x] = uint8((s + 2) / 4)
		}
	}
	return dst
}
