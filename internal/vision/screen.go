// File: internal/vision/screen.go
package vision

import (
	"context"
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

// Screen is the capture side of the desktop. Capture may return an image at
// a different resolution than Size reports (HiDPI displays); the aligner
// converts between the two spaces.
type Screen interface {
	Capture(ctx context.Context) (image.Image, error)
	Size() (width, height int, err error)
}

// ToGray converts img to an 8-bit grayscale image anchored at the origin.
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) && g.Stride == b.Dx() {
		return g
	}
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return dst
}

// Resize scales src to w x h with bilinear interpolation.
func Resize(src *image.Gray, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}

// ImageToScreen maps a pixel in a capture of size img to OS input space of
// size screen, rounded to the nearest pixel and kept on screen.
func ImageToScreen(p, img, screen image.Point) image.Point {
	sx := float64(img.X) / float64(screen.X)
	sy := float64(img.Y) / float64(screen.Y)
	return image.Pt(
		clampPixel(int(math.Round(float64(p.X)/sx)), screen.X),
		clampPixel(int(math.Round(float64(p.Y)/sy)), screen.Y),
	)
}

func clampPixel(v, size int) int { return max(0, min(v, size-1)) }

// ScreenToImage is the inverse of ImageToScreen, rounded to the nearest pixel.
func ScreenToImage(p, img, screen image.Point) image.Point {
	sx := float64(img.X) / float64(screen.X)
	sy := float64(img.Y) / float64(screen.Y)
	return image.Pt(int(math.Round(float64(p.X)*sx)), int(math.Round(float64(p.Y)*sy)))
}
