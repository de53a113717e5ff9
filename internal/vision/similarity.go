// File: internal/vision/similarity.go
package vision

import (
	"image"
	"math"
)

// Similarity blends four frame comparisons into a score in [0, 1]:
//
//	0.35 * share of pixels differing by less than 10 levels
//	0.35 * whole-frame normalized cross-correlation
//	0.20 * max(0, 256-bin histogram correlation)
//	0.10 * (1 - MSE / 255^2)
//
// Frames of different sizes score 0.
func Similarity(a, b *image.Gray) float64 {
	if a == nil || b == nil {
		return 0
	}
	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	if w != b.Bounds().Dx() || h != b.Bounds().Dy() || w == 0 || h == 0 {
		return 0
	}

	n := float64(w * h)
	var near, sqDiff float64
	var sumA, sumB, sumAA, sumBB, sumAB float64
	var histA, histB [256]float64

	for y := 0; y < h; y++ {
		ra := a.Pix[y*a.Stride : y*a.Stride+w]
		rb := b.Pix[y*b.Stride : y*b.Stride+w]
		for x := range ra {
			va, vb := float64(ra[x]), float64(rb[x])
			d := math.Abs(va - vb)
			if d < 10 {
				near++
			}
			sqDiff += d * d
			sumA += va
			sumB += vb
			sumAA += va * va
			sumBB += vb * vb
			sumAB += va * vb
			histA[ra[x]]++
			histB[rb[x]]++
		}
	}

	pixelRatio := near / n
	mse := sqDiff / n / (255.0 * 255.0)
	ncc := pearson(n, sumA, sumB, sumAA, sumBB, sumAB)
	hist := histogramCorrelation(histA[:], histB[:])

	return 0.35*pixelRatio + 0.35*ncc + 0.2*math.Max(0, hist) + 0.1*(1-mse)
}

// pearson returns the correlation of two samples from their moments. Two
// flat samples correlate fully when they are equal and not at all otherwise.
func pearson(n, sumA, sumB, sumAA, sumBB, sumAB float64) float64 {
	varA := sumAA - sumA*sumA/n
	varB := sumBB - sumB*sumB/n
	if varA <= 1e-9 || varB <= 1e-9 {
		if varA <= 1e-9 && varB <= 1e-9 && math.Abs(sumA-sumB) < 1e-9 {
			return 1
		}
		return 0
	}
	return (sumAB - sumA*sumB/n) / math.Sqrt(varA*varB)
}

func histogramCorrelation(a, b []float64) float64 {
	var meanA, meanB float64
	for i := range a {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= float64(len(a))
	meanB /= float64(len(b))

	var num, da, db float64
	for i := range a {
		x, y := a[i]-meanA, b[i]-meanB
		num += x * y
		da += x * x
		db += y * y
	}
	if da == 0 || db == 0 {
		if da == db {
			return 1
		}
		return 0
	}
	return num / math.Sqrt(da*db)
}
