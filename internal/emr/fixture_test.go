package emr

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/vision-assistant/internal/config"
	"github.com/xkilldash9x/vision-assistant/internal/emrdata"
	"github.com/xkilldash9x/vision-assistant/internal/humanoid"
	"github.com/xkilldash9x/vision-assistant/internal/vision"
	"go.uber.org/zap/zaptest"
)

// The virtual page is 400px tall behind a 120px viewport; one wheel click
// moves it 4px, so a resolver step of 5 clicks moves 20px.
const (
	pageW = 160
	pageH = 400
	viewH = 120
)

var (
	lastNameRect   = image.Rect(20, 30, 44, 46)
	sexRect        = image.Rect(90, 150, 114, 166)
	cptRect        = image.Rect(40, 330, 64, 346)
	homeRect       = image.Rect(130, 4, 154, 20)
	loadHomeRect   = image.Rect(100, 60, 124, 76)
	patientTabRect = image.Rect(60, 90, 84, 106)
	loadTabRect    = image.Rect(120, 90, 144, 106)
)

const generalConfig = `{
	// Page directories are relative to the EMR root.
	"pages": {
		"general": {"images": "general/images", "configs": "general/configs"},
		"patient_info": {"images": "pages\\patient_info\\images", "configs": "pages/patient_info/configs"}
	},
	"tasks": {
		"fill_patient": {
			"initial_page": "patient_info",
			"operations": [{"method": "execute_page"}]
		},
		"open_patient": {
			"initial_page": "general",
			"operations": [
				{"method": "check_loading", "args": ["load_missing", 2], "kwargs": {"close_window": true}}
			]
		}
	},
	"task_route": {"fill_patient": ["patient_tab"]}
}`

const patientSteps = `{
	"person_last_name": {
		"require_data": ["person_last_name"],
		"actions": [
			["mouse_move"],
			["mouse_click"],
			["keyboard_write", {"data_name": "person_last_name"}]
		]
	},
	"person_sex": {
		"require_data": ["person_sex"],
		"actions": [
			["mouse_move"],
			["mouse_click"],
			["get_selection_options"],
			["keyboard_press", {"data_name": "person_sex"}]
		]
	},
	"clinical_cpt_codes": {
		"require_data": ["clinical_cpt_codes"],
		"actions": [
			["mouse_move"],
			["mouse_click"],
			["loop_tuple_array", {
				"data_name": "clinical_cpt_codes",
				"skip_in_last_loop": 1,
				"loop_actions": [
					["keyboard_write", {"tuple_index": 0, "can_paste": false}],
					["keyboard_press", {"key": "tab"}]
				]
			}]
		]
	}
}`

func patientData() map[string]any {
	return map[string]any{
		emrdata.FirstNameKey: "Jane",
		emrdata.LastNameKey:  "Doe",
		"person_sex":         "female",
		"clinical_cpt_codes": []any{
			[]any{"99213", "Office visit"},
			[]any{"36415", "Venipuncture"},
		},
	}
}

type fixture struct {
	root      string
	desktop   *virtualDesktop
	cfg       *config.Config
	data      *emrdata.Record
	assistant *Assistant
}

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Aligner.SweepCount = 3
	cfg.Aligner.Refine = false
	cfg.Aligner.PyramidMinPixels = 1 << 30
	cfg.Aligner.Workers = 2
	cfg.Resolver.SettleDelay = 0
	cfg.Resolver.PageScaleCount = 2
	cfg.Input.EventsPerSecond = 0
	cfg.Input.ActionPause = 0
	cfg.CheckLoading.InitialDelay = 0
	cfg.CheckLoading.RetryDelay = time.Millisecond
	return cfg
}

// writeLayout builds an EMR template tree whose templates are cut from the
// desktop's page.
func writeLayout(t *testing.T, d *virtualDesktop) string {
	t.Helper()
	root := t.TempDir()
	general := filepath.Join(root, "general")
	pageImages := filepath.Join(root, "pages", "patient_info", "images")
	pageConfigs := filepath.Join(root, "pages", "patient_info", "configs")

	writeFile(t, filepath.Join(general, "configs", "config.json"), generalConfig)
	writeCrop(t, filepath.Join(general, "images", "homepage.png"), d.page, homeRect)
	writeCrop(t, filepath.Join(general, "images", "load_homepage.png"), d.page, loadHomeRect)
	writeCrop(t, filepath.Join(general, "images", "patient_tab.png"), d.page, patientTabRect)
	writeCrop(t, filepath.Join(general, "images", "load_patient_tab.png"), d.page, loadTabRect)
	writeNoise(t, filepath.Join(general, "images", "load_missing.png"), 99, 24, 16)

	d.addField(t, pageImages, "person_last_name", lastNameRect)
	d.addField(t, pageImages, "person_sex", sexRect)
	d.addField(t, pageImages, "clinical_cpt_codes", cptRect)
	writeFile(t, filepath.Join(pageConfigs, "steps.json"), patientSteps)
	writeFile(t, filepath.Join(pageConfigs, "person_sex.json"), `{"male": ["down", 1], "female": ["down", 2]}`)
	return root
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newFixture(t *testing.T, values map[string]any, tweak ...func(*config.Config)) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cfg := testConfig()
	for _, fn := range tweak {
		fn(cfg)
	}

	d := newVirtualDesktop(t, 7, pageW, pageH, viewH)
	root := writeLayout(t, d)

	aligner, err := vision.NewAligner(d, cfg.Aligner, cfg.Screen, logger)
	require.NoError(t, err)
	input := humanoid.New(cfg.Input, d, logger, humanoid.WithSeed(42), humanoid.WithModifier(humanoid.KeyCtrl))
	data := emrdata.New(values)

	a := NewAssistant(cfg, aligner, input, data, logger)
	require.NoError(t, a.LoadEMR(root))
	return &fixture{root: root, desktop: d, cfg: cfg, data: data, assistant: a}
}

func drain(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func messages(events []Event, status Status) []string {
	var out []string
	for _, ev := range events {
		if status == "" || ev.Status == status {
			out = append(out, ev.Message)
		}
	}
	return out
}

func (f *fixture) run(t *testing.T, task string) []Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return drain(f.assistant.Run(ctx, task))
}
