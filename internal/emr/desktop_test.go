package emr

import (
	"context"
	"image"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/vision-assistant/internal/humanoid"
)

// virtualDesktop is a browser window showing a tall page through a fixed
// viewport. It implements vision.Screen and humanoid.Executor, so the real
// aligner and input controller can drive it. Time is virtual: Sleep
// returns at once.
type virtualDesktop struct {
	mu         sync.Mutex
	page       *image.Gray
	viewH      int
	pxPerClick int
	offset     int
	x, y       int

	fields    map[string]image.Rectangle
	focused   string
	clipboard string
	held      map[string]bool

	typed     map[string]string
	presses   map[string][]string
	chords    []string
	clicks    []image.Point
	scrolls   []int
	captures  int
	scrollErr error
}

func newVirtualDesktop(t *testing.T, seed int64, w, pageH, viewH int) *virtualDesktop {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	page := image.NewGray(image.Rect(0, 0, w, pageH))
	for i := range page.Pix {
		page.Pix[i] = uint8(rng.Intn(256))
	}
	return &virtualDesktop{
		page:       page,
		viewH:      viewH,
		pxPerClick: 4,
		fields:     make(map[string]image.Rectangle),
		held:       make(map[string]bool),
		typed:      make(map[string]string),
		presses:    make(map[string][]string),
	}
}

// addField registers a named region of the page and writes its template.
func (d *virtualDesktop) addField(t *testing.T, dir, name string, r image.Rectangle) {
	t.Helper()
	d.fields[name] = r
	writeCrop(t, filepath.Join(dir, name+".png"), d.page, r)
}

func writeCrop(t *testing.T, path string, src *image.Gray, r image.Rectangle) {
	t.Helper()
	crop := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		copy(crop.Pix[y*crop.Stride:y*crop.Stride+r.Dx()], src.Pix[(r.Min.Y+y)*src.Stride+r.Min.X:])
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, crop))
	require.NoError(t, f.Close())
}

// writeNoise writes a template that appears nowhere on any page.
func writeNoise(t *testing.T, path string, seed int64, w, h int) {
	t.Helper()
	src := newVirtualDesktop(t, seed, w, h, h).page
	writeCrop(t, path, src, src.Bounds())
}

func (d *virtualDesktop) Capture(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.captures++
	w := d.page.Bounds().Dx()
	view := image.NewGray(image.Rect(0, 0, w, d.viewH))
	copy(view.Pix, d.page.Pix[d.offset*d.page.Stride:(d.offset+d.viewH)*d.page.Stride])
	return view, nil
}

func (d *virtualDesktop) Size() (int, int, error) {
	return d.page.Bounds().Dx(), d.viewH, nil
}

func (d *virtualDesktop) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func (d *virtualDesktop) MoveMouse(_ context.Context, x, y int) error {
	d.mu.Lock()
	d.x, d.y = x, y
	d.mu.Unlock()
	return nil
}

func (d *virtualDesktop) MouseToggle(_ context.Context, _ humanoid.MouseButton, down bool) error {
	if !down {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	p := image.Pt(d.x, d.y+d.offset)
	d.clicks = append(d.clicks, p)
	d.focused = ""
	for name, r := range d.fields {
		if p.In(r) {
			d.focused = name
		}
	}
	return nil
}

func (d *virtualDesktop) KeyToggle(_ context.Context, key string, down bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !down {
		delete(d.held, key)
		return nil
	}
	switch key {
	case "ctrl", "cmd", "shift", "alt":
		d.held[key] = true
		return nil
	}
	chord := key
	if d.held["ctrl"] {
		chord = "ctrl+" + key
	}
	d.chords = append(d.chords, chord)
	switch {
	case chord == "ctrl+v":
		d.typed[d.focused] += d.clipboard
	case chord == key:
		d.presses[d.focused] = append(d.presses[d.focused], key)
	}
	return nil
}

func (d *virtualDesktop) TypeText(_ context.Context, text string) error {
	d.mu.Lock()
	d.typed[d.focused] += text
	d.mu.Unlock()
	return nil
}

func (d *virtualDesktop) SetClipboard(_ context.Context, text string) error {
	d.mu.Lock()
	d.clipboard = text
	d.mu.Unlock()
	return nil
}

func (d *virtualDesktop) ScrollWheel(_ context.Context, clicks int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.scrollErr != nil {
		return d.scrollErr
	}
	d.scrolls = append(d.scrolls, clicks)
	maxOffset := d.page.Bounds().Dy() - d.viewH
	d.offset = min(max(d.offset-clicks*d.pxPerClick, 0), maxOffset)
	return nil
}

func (d *virtualDesktop) Location(context.Context) (int, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.x, d.y, nil
}

func (d *virtualDesktop) downScrolls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.scrolls {
		if s < 0 {
			n++
		}
	}
	return n
}

func (d *virtualDesktop) typedInto(field string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.typed[field]
}

func (d *virtualDesktop) pressedIn(field string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.presses[field]...)
}

func (d *virtualDesktop) chordLog() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return strings.Join(d.chords, " ")
}
