// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/vision-assistant/internal/humanoid"
	"github.com/xkilldash9x/vision-assistant/internal/observability"
	"github.com/xkilldash9x/vision-assistant/internal/vision"
	"go.uber.org/zap"
)

// staticBackend shows the same screen forever and swallows input.
type staticBackend struct {
	screen *image.Gray
}

func (b *staticBackend) Capture(context.Context) (image.Image, error) { return b.screen, nil }
func (b *staticBackend) Size() (int, int, error) {
	r := b.screen.Bounds()
	return r.Dx(), r.Dy(), nil
}
func (b *staticBackend) Sleep(ctx context.Context, d time.Duration) error { return ctx.Err() }
func (b *staticBackend) MoveMouse(context.Context, int, int) error        { return nil }
func (b *staticBackend) MouseToggle(context.Context, humanoid.MouseButton, bool) error {
	return nil
}
func (b *staticBackend) KeyToggle(context.Context, string, bool) error { return nil }
func (b *staticBackend) TypeText(context.Context, string) error        { return nil }
func (b *staticBackend) SetClipboard(context.Context, string) error    { return nil }
func (b *staticBackend) ScrollWheel(context.Context, int) error        { return nil }
func (b *staticBackend) Location(context.Context) (int, int, error)    { return 0, 0, nil }

var fieldRect = image.Rect(10, 10, 34, 26)

const demoConfig = `{
	"pages": {
		"general": {"images": "general/images", "configs": "general/configs"},
		"intake": {"images": "pages/intake/images", "configs": "pages/intake/configs"}
	},
	"tasks": {
		"pause": {"initial_page": "general", "operations": [{"method": "wait", "args": [0]}]}
	}
}`

type env struct {
	dir     string
	cfgFile string
	aborted bool
}

func noiseScreen(w, h int) *image.Gray {
	rng := rand.New(rand.NewSource(3))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	return img
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// setup writes a "demo" EMR tree and a config pointing at it, and swaps the
// desktop backend for a static noise screen.
func setup(t *testing.T, abort bool, extraConfig string) *env {
	t.Helper()
	e := &env{dir: t.TempDir()}
	screen := noiseScreen(200, 120)

	emrRoot := filepath.Join(e.dir, "templates", "demo")
	writeFile(t, filepath.Join(emrRoot, "general", "configs", "config.json"), demoConfig)
	require.NoError(t, os.MkdirAll(filepath.Join(emrRoot, "general", "images"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(emrRoot, "pages", "intake", "configs"), 0o755))

	tmpl := filepath.Join(emrRoot, "pages", "intake", "images", "mrn.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(tmpl), 0o755))
	f, err := os.Create(tmpl)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, vision.ToGray(screen.SubImage(fieldRect))))
	require.NoError(t, f.Close())

	e.cfgFile = filepath.Join(e.dir, "config.yaml")
	writeFile(t, e.cfgFile, fmt.Sprintf(`
logger:
  level: error
  log_file: %s
templates:
  root: %s
  default_emr: demo
aligner:
  sweep_count: 3
  refine: false
  pyramid_min_pixels: 1073741824
  workers: 2
resolver:
  settle_delay: 0s
  page_scale_count: 2
input:
  events_per_second: 0
  action_pause: 0s
%s`, filepath.Join(e.dir, "test.log"), filepath.Join(e.dir, "templates"), extraConfig))

	origBackend, origAbort := newBackend, armAbort
	newBackend = func(*zap.Logger) Backend { return &staticBackend{screen: screen} }
	armAbort = func(ctx context.Context, onAbort func(), logger *zap.Logger) {
		if abort {
			e.aborted = true
			onAbort()
		}
	}
	t.Cleanup(func() {
		newBackend, armAbort = origBackend, origAbort
		observability.ResetForTest()
	})
	return e
}

func (e *env) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", e.cfgFile}, args...))
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestVersion(t *testing.T) {
	t.Run("subcommand", func(t *testing.T) {
		root := NewRootCommand()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs([]string{"version"})
		require.NoError(t, root.Execute())
		assert.Contains(t, out.String(), "vision-assistant Alpha (")
	})

	t.Run("flag", func(t *testing.T) {
		root := NewRootCommand()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs([]string{"--version"})
		require.NoError(t, root.Execute())
		assert.Equal(t, "vision-assistant version Alpha\n", out.String())
	})
}

func TestRun(t *testing.T) {
	e := setup(t, false, "")
	data := filepath.Join(e.dir, "patient.json")
	writeFile(t, data, `{"person_first_name": "Jane", "person_last_name": "Doe"}`)

	out, err := e.execute(t, "run", "pause", "--data", data)
	require.NoError(t, err)
	assert.Contains(t, out, "[standard] Starting task: pause")
	assert.Contains(t, out, "[standard] Executing: wait")
	assert.Contains(t, out, "[standard] Task 'pause' completed successfully")
}

func TestRun_UnknownTaskFails(t *testing.T) {
	e := setup(t, false, "")
	out, err := e.execute(t, "run", "discharge")
	require.ErrorIs(t, err, errTaskFailed)
	assert.Contains(t, out, "[critical] Task execution failed")
	assert.Contains(t, out, "[failed] Task 'discharge' failed")
}

func TestRun_Aborted(t *testing.T) {
	e := setup(t, true, "")
	out, err := e.execute(t, "run", "pause")
	require.NoError(t, err)
	assert.True(t, e.aborted)
	assert.Contains(t, out, "Task aborted.")
	assert.NotContains(t, out, "completed successfully")
}

func TestRun_Errors(t *testing.T) {
	t.Run("unknown EMR system", func(t *testing.T) {
		e := setup(t, false, "")
		_, err := e.execute(t, "run", "pause", "--emr", "nope")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to locate templates for nope")
	})

	t.Run("data file is not an object", func(t *testing.T) {
		e := setup(t, false, "")
		data := filepath.Join(e.dir, "patient.json")
		writeFile(t, data, `["Jane"]`)
		_, err := e.execute(t, "run", "pause", "--data", data)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must hold a JSON object")
	})

	t.Run("missing data file", func(t *testing.T) {
		e := setup(t, false, "")
		_, err := e.execute(t, "run", "pause", "--data", filepath.Join(e.dir, "absent.json"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read data file")
	})

	t.Run("task name required", func(t *testing.T) {
		e := setup(t, false, "")
		_, err := e.execute(t, "run")
		require.Error(t, err)
	})
}

func TestResolve(t *testing.T) {
	e := setup(t, false, "")
	out, err := e.execute(t, "resolve", "intake")
	require.NoError(t, err)
	assert.Contains(t, out, "FIELD  SCROLL  X   Y")
	assert.Contains(t, out, "mrn    0       22  18")
	assert.Contains(t, out, "1 field(s) resolved on intake")
}

func TestResolve_UnknownPage(t *testing.T) {
	e := setup(t, false, "")
	_, err := e.execute(t, "resolve", "billing")
	require.Error(t, err)
}

func TestInvalidConfig(t *testing.T) {
	e := setup(t, false, "queue:\n  size: 0\n")
	_, err := e.execute(t, "run", "pause")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue.size must be a positive integer")
}

func TestReadData(t *testing.T) {
	values, err := readData("")
	require.NoError(t, err)
	assert.Empty(t, values)

	path := filepath.Join(t.TempDir(), "d.json")
	writeFile(t, path, `{"clinical_cpt_codes": [["99213", "Office visit"]], "age": 42}`)
	values, err = readData(path)
	require.NoError(t, err)
	assert.Equal(t, float64(42), values["age"])
	assert.Len(t, values["clinical_cpt_codes"], 1)
}
