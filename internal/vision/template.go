// File: internal/vision/template.go
package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
)

// TemplateError reports a template that could not be read or decoded.
type TemplateError struct {
	Path string
	Err  error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %s: %v", e.Path, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// Template is a grayscale reference image of one UI element.
type Template struct {
	Name  string
	Path  string
	Image *image.Gray

	mu     sync.Mutex
	scaled map[float64]*kernel
}

// LoadTemplate reads and decodes a PNG or JPEG template from disk.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &TemplateError{Path: path, Err: err}
	}

	mtype := mimetype.Detect(data)
	if !mtype.Is("image/png") && !mtype.Is("image/jpeg") {
		return nil, &TemplateError{Path: path, Err: fmt.Errorf("unsupported content type %s", mtype.String())}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &TemplateError{Path: path, Err: fmt.Errorf("decode: %w", err)}
	}
	return NewTemplate(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), path, img)
}

// NewTemplate wraps an in-memory image as a template.
func NewTemplate(name, path string, img image.Image) (*Template, error) {
	gray := ToGray(img)
	if gray.Bounds().Dx() <= 0 || gray.Bounds().Dy() <= 0 {
		return nil, &TemplateError{Path: path, Err: fmt.Errorf("empty image")}
	}
	return &Template{Name: name, Path: path, Image: gray, scaled: make(map[float64]*kernel)}, nil
}

// ScaledSize returns the template dimensions at scale s.
func (t *Template) ScaledSize(s float64) (int, int) {
	b := t.Image.Bounds()
	return int(float64(b.Dx()) * s), int(float64(b.Dy()) * s)
}

// kernelAt returns the zero-mean kernel for scale s, or nil if the scaled
// template is empty.
func (t *Template) kernelAt(s float64) *kernel {
	t.mu.Lock()
	defer t.mu.Unlock()
	if k, ok := t.scaled[s]; ok {
		return k
	}
	w, h := t.ScaledSize(s)
	var k *kernel
	if w > 0 && h > 0 {
		img := t.Image
		if w != img.Bounds().Dx() || h != img.Bounds().Dy() {
			img = Resize(t.Image, w, h)
		}
		k = newKernel(img)
	}
	t.scaled[s] = k
	return k
}

// kernel is a template prepared for correlation: pixel values minus their
// mean, and the L2 norm of the result.
type kernel struct {
	w, h int
	pix  []float64
	norm float64
	src  *image.Gray

	once   sync.Once
	coarse *kernel
}

func newKernel(img *image.Gray) *kernel {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	k := &kernel{w: w, h: h, pix: make([]float64, w*h), src: img}

	var sum float64
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for x, v := range row {
			k.pix[y*w+x] = float64(v)
			sum += float64(v)
		}
	}
	mean := sum / float64(w*h)
	var sq float64
	for i := range k.pix {
		k.pix[i] -= mean
		sq += k.pix[i] * k.pix[i]
	}
	k.norm = math.Sqrt(sq)
	return k
}

// half returns the kernel of the template downsampled by two.
func (k *kernel) half() *kernel {
	k.once.Do(func() {
		if k.w >= 2 && k.h >= 2 {
			k.coarse = newKernel(downsample(k.src))
		}
	})
	return k.coarse
}
