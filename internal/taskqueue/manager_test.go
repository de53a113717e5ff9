package taskqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/vision-assistant/internal/config"
	"github.com/xkilldash9x/vision-assistant/internal/emr"
	"github.com/xkilldash9x/vision-assistant/internal/emrdata"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRunner struct {
	mu     sync.Mutex
	data   *emrdata.Record
	script map[string][]emr.Event
	block  bool
	runs   []string
	loaded []string
	start  chan string

	// watch names a field whose presence is recorded at every run.
	watch   string
	present []bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		data:   emrdata.New(nil),
		script: make(map[string][]emr.Event),
		start:  make(chan string, 16),
	}
}

func (r *fakeRunner) LoadEMR(root string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = append(r.loaded, root)
	return nil
}

func (r *fakeRunner) Data() *emrdata.Record { return r.data }

func (r *fakeRunner) Run(ctx context.Context, task string) <-chan emr.Event {
	r.mu.Lock()
	r.runs = append(r.runs, task)
	if r.watch != "" {
		r.present = append(r.present, r.data.CheckActionData([]string{r.watch}))
	}
	events, block := r.script[task], r.block
	r.mu.Unlock()
	r.start <- task

	ch := make(chan emr.Event)
	go func() {
		defer close(ch)
		if block {
			<-ctx.Done()
			return
		}
		for _, ev := range events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (r *fakeRunner) taskRuns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.runs...)
}

type fakeLocator struct {
	paths map[string]string
}

func (l fakeLocator) EMRPath(system string) (string, error) {
	p, ok := l.paths[system]
	if !ok {
		return "", errors.New("EMR system directory not found: " + system)
	}
	return p, nil
}

type recordingPublisher struct {
	ch chan Response
}

func (p *recordingPublisher) Publish(_ context.Context, r Response) error {
	p.ch <- r
	return nil
}

// until collects responses up to and including the first with status.
func (p *recordingPublisher) until(t *testing.T, status emr.Status) []Response {
	t.Helper()
	var out []Response
	timeout := time.After(5 * time.Second)
	for {
		select {
		case r := <-p.ch:
			out = append(out, r)
			if r.Type == status {
				return out
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s, got %+v", status, out)
		}
	}
}

func actions(rs []Response) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ExecutedAction
	}
	return out
}

type harness struct {
	runner    *fakeRunner
	publisher *recordingPublisher
	manager   *Manager
}

func startManager(t *testing.T, cfg config.QueueConfig, tasks ...string) *harness {
	t.Helper()
	runner := newFakeRunner()
	pub := &recordingPublisher{ch: make(chan Response, 64)}
	locator := fakeLocator{paths: map[string]string{"epic": "/templates/epic"}}
	m, err := New(runner, locator, pub, cfg, "office_ally", tasks, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return &harness{runner: runner, publisher: pub, manager: m}
}

func ok(task string) []emr.Event {
	return []emr.Event{
		{Status: emr.StatusStandard, Message: "Starting task: " + task},
		{Status: emr.StatusStandard, Message: "Task '" + task + "' completed successfully"},
	}
}

func TestManager_RunsTasksPerItem(t *testing.T) {
	h := startManager(t, config.QueueConfig{Size: 4, Workers: 1}, "add_new_patient", "add_new_visit")
	h.runner.script["add_new_patient"] = ok("add_new_patient")
	h.runner.script["add_new_visit"] = ok("add_new_visit")

	_, err := h.manager.Submit([]byte(`{"from_user": "dr_who", "data": {"person_first_name": "Jane", "person_last_name": "Doe"}}`))
	require.NoError(t, err)

	got := h.publisher.until(t, emr.StatusAllDone)
	assert.Equal(t, []string{
		"Starting task: add_new_patient",
		"Task 'add_new_patient' completed successfully",
		"Starting task: add_new_visit",
		"Task 'add_new_visit' completed successfully",
		"Current tasks finished",
		"All tasks finished",
	}, actions(got))
	assert.Equal(t, "Jane Doe", got[0].PatientName)
	assert.Equal(t, "dr_who", got[0].ToUser)
	assert.Equal(t, emr.StatusComplete, got[4].Type)

	v, found := h.runner.data.GetValue("person_last_name")
	assert.True(t, found)
	assert.Equal(t, "Doe", v)
}

func TestManager_ItemsDoNotShareData(t *testing.T) {
	h := startManager(t, config.QueueConfig{Size: 4, Workers: 1}, "add_new_patient")
	h.runner.mu.Lock()
	h.runner.script["add_new_patient"] = ok("add_new_patient")
	h.runner.watch = "clinical_cpt_codes"
	h.runner.mu.Unlock()

	_, err := h.manager.Submit([]byte(`{"from_user": "dr_who", "data": [
		{"person_first_name": "Ann", "person_last_name": "Lee", "clinical_cpt_codes": [["99213", 1]]},
		{"person_first_name": "Bob", "person_last_name": "Ray"}
	]}`))
	require.NoError(t, err)
	got := h.publisher.until(t, emr.StatusAllDone)

	h.runner.mu.Lock()
	present := append([]bool(nil), h.runner.present...)
	h.runner.mu.Unlock()
	assert.Equal(t, []bool{true, false}, present, "the second patient must not inherit the first one's codes")

	_, found := h.runner.data.GetValue("clinical_cpt_codes")
	assert.False(t, found)
	_, found = h.runner.data.GetValue("person_first_name")
	assert.True(t, found)
	assert.Equal(t, "Bob Ray", got[len(got)-2].PatientName)
}

func TestManager_FailedTaskStopsItem(t *testing.T) {
	h := startManager(t, config.QueueConfig{Size: 4, Workers: 1}, "add_new_patient", "add_new_visit")
	h.runner.script["add_new_patient"] = []emr.Event{
		{Status: emr.StatusCritical, Message: "Task execution failed: boom"},
		{Status: emr.StatusFailed, Message: "Task 'add_new_patient' failed", Error: "boom"},
	}
	h.runner.script["add_new_visit"] = ok("add_new_visit")

	_, err := h.manager.Submit([]byte(`{"from_user": "u", "data": [{"person_last_name": "A"}, {"person_last_name": "B"}]}`))
	require.NoError(t, err)

	got := h.publisher.until(t, emr.StatusAllDone)
	assert.Equal(t, []string{"add_new_patient", "add_new_patient"}, h.runner.taskRuns())
	assert.Equal(t, "boom", got[1].Error)
	assert.Equal(t, emr.StatusFailed, got[1].Type)

	var complete int
	for _, r := range got {
		if r.Type == emr.StatusComplete {
			complete++
		}
	}
	assert.Equal(t, 2, complete, "one complete per item")
}

func TestManager_InvalidMessage(t *testing.T) {
	h := startManager(t, config.QueueConfig{Size: 4, Workers: 1}, "add_new_patient")

	_, err := h.manager.Submit([]byte(`{"from_user": "", "data": {"a": 1}}`))
	require.NoError(t, err)

	got := h.publisher.until(t, emr.StatusAllDone)
	require.Len(t, got, 2)
	assert.Equal(t, "Invalid message format", got[0].ExecutedAction)
	assert.Equal(t, emr.StatusCritical, got[0].Type)
	assert.Empty(t, got[0].ToUser)
	assert.Empty(t, h.runner.taskRuns())
}

func TestManager_SelectEMR(t *testing.T) {
	h := startManager(t, config.QueueConfig{Size: 4, Workers: 1}, "add_new_patient")
	h.runner.script["add_new_patient"] = ok("add_new_patient")

	_, err := h.manager.Submit([]byte(`{"from_user": "u", "data": {"selected_emr": "epic", "person_last_name": "Doe"}}`))
	require.NoError(t, err)
	h.publisher.until(t, emr.StatusAllDone)
	assert.Equal(t, "epic", h.manager.EMRSystem())
	assert.Equal(t, []string{"/templates/epic"}, h.runner.loaded)

	_, err = h.manager.Submit([]byte(`{"from_user": "u", "data": {"selected_emr": "cerner"}}`))
	require.NoError(t, err)
	got := h.publisher.until(t, emr.StatusAllDone)
	assert.Equal(t, emr.StatusCritical, got[0].Type)
	assert.Contains(t, got[0].ExecutedAction, "Error: EMR system directory not found")
	assert.Equal(t, "epic", h.manager.EMRSystem())
}

func TestManager_Kill(t *testing.T) {
	h := startManager(t, config.QueueConfig{Size: 4, Workers: 2}, "add_new_patient", "add_new_visit")
	assert.False(t, h.manager.Kill(), "nothing running")

	h.runner.block = true
	_, err := h.manager.Submit([]byte(`{"from_user": "u", "data": {"person_last_name": "Doe"}}`))
	require.NoError(t, err)

	select {
	case <-h.runner.start:
	case <-time.After(5 * time.Second):
		t.Fatal("task never started")
	}
	assert.True(t, h.manager.Kill())

	got := h.publisher.until(t, emr.StatusAllDone)
	assert.Equal(t, []string{"Current tasks finished", "All tasks finished"}, actions(got))
	assert.Equal(t, []string{"add_new_patient"}, h.runner.taskRuns(), "remaining tasks skipped")
}

func TestManager_Submit(t *testing.T) {
	m, err := New(newFakeRunner(), nil, &recordingPublisher{ch: make(chan Response, 1)},
		config.QueueConfig{Size: 1, Workers: 1}, "office_ally", []string{"add_new_patient"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	id, err := m.Submit([]byte(`{"from_user": "u", "data": {}}`))
	require.NoError(t, err)
	assert.Len(t, id, 36)

	_, err = m.Submit([]byte(`{"from_user": "u", "data": {}}`))
	assert.ErrorIs(t, err, ErrQueueFull)

	_, err = m.Submit([]byte(`not json`))
	assert.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	pub := &recordingPublisher{}

	_, err := New(nil, nil, pub, config.QueueConfig{}, "", []string{"t"}, logger)
	assert.Error(t, err)
	_, err = New(newFakeRunner(), nil, nil, config.QueueConfig{}, "", []string{"t"}, logger)
	assert.Error(t, err)
	_, err = New(newFakeRunner(), nil, pub, config.QueueConfig{}, "", nil, logger)
	assert.Error(t, err)
}

func TestMessage_Items(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr string
	}{
		{"single item", `{"from_user": "u", "data": {"a": 1}}`, 1, ""},
		{"item list", `{"from_user": "u", "data": [{"a": 1}, {"b": 2}]}`, 2, ""},
		{"missing user", `{"data": {"a": 1}}`, 0, "missing from_user"},
		{"missing data", `{"from_user": "u"}`, 0, "missing data"},
		{"null data", `{"from_user": "u", "data": null}`, 0, "missing data"},
		{"empty list", `{"from_user": "u", "data": []}`, 0, "empty data list"},
		{"empty item", `{"from_user": "u", "data": {}}`, 0, "empty data item"},
		{"scalar data", `{"from_user": "u", "data": "text"}`, 0, "object or a list"},
		{"list of scalars", `{"from_user": "u", "data": [1, 2]}`, 0, "must be objects"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tt.raw))
			require.NoError(t, err)
			items, err := msg.Items()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, items, tt.want)
		})
	}
}
