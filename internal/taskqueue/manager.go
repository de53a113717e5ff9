// internal/taskqueue/manager.go
package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/xkilldash9x/vision-assistant/internal/config"
	"github.com/xkilldash9x/vision-assistant/internal/emr"
	"github.com/xkilldash9x/vision-assistant/internal/emrdata"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ErrQueueFull is returned by Submit when the queue has no room.
var ErrQueueFull = errors.New("task queue is full")

// -- Interfaces for Dependency Inversion --

// Runner executes EMR tasks. *emr.Assistant implements it.
type Runner interface {
	LoadEMR(root string) error
	Run(ctx context.Context, task string) <-chan emr.Event
	Data() *emrdata.Record
}

var _ Runner = (*emr.Assistant)(nil)

// Locator maps an EMR system name to its template tree.
type Locator interface {
	EMRPath(system string) (string, error)
}

// Publisher delivers responses to the requesting user.
type Publisher interface {
	Publish(ctx context.Context, r Response) error
}

type job struct {
	id  string
	msg Message
}

// Manager queues incoming messages and runs their tasks one at a time. All
// workers share a single screen lease, so at most one job drives the
// desktop.
type Manager struct {
	runner    Runner
	locator   Locator
	publisher Publisher
	cfg       config.QueueConfig
	tasks     []string
	logger    *zap.Logger

	queue   chan job
	lease   *semaphore.Weighted
	pending atomic.Int64

	mu        sync.Mutex
	emrSystem string
	current   context.CancelFunc
	running   bool
}

// New creates a manager. emrSystem is the system the runner already has
// loaded; tasks are run in order for every data item.
func New(runner Runner, locator Locator, publisher Publisher, cfg config.QueueConfig, emrSystem string, tasks []string, logger *zap.Logger) (*Manager, error) {
	if runner == nil {
		return nil, errors.New("runner cannot be nil")
	}
	if publisher == nil {
		return nil, errors.New("publisher cannot be nil")
	}
	if len(tasks) == 0 {
		return nil, errors.New("at least one task is required")
	}
	if cfg.Size <= 0 {
		cfg.Size = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Manager{
		runner:    runner,
		locator:   locator,
		publisher: publisher,
		cfg:       cfg,
		tasks:     tasks,
		logger:    logger.Named("taskqueue"),
		queue:     make(chan job, cfg.Size),
		lease:     semaphore.NewWeighted(1),
		emrSystem: emrSystem,
	}, nil
}

// Submit decodes raw and queues it. The returned id tags the job's log
// lines.
func (m *Manager) Submit(raw []byte) (string, error) {
	msg, err := DecodeMessage(raw)
	if err != nil {
		return "", err
	}
	j := job{id: uuid.NewString(), msg: msg}
	m.pending.Add(1)
	select {
	case m.queue <- j:
		m.logger.Debug("Message queued", zap.String("job_id", j.id), zap.String("from_user", msg.FromUser))
		return j.id, nil
	default:
		m.pending.Add(-1)
		return "", ErrQueueFull
	}
}

// Kill cancels the job currently driving the screen. It reports whether a
// job was running.
func (m *Manager) Kill() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return false
	}
	m.logger.Info("Killing current task")
	m.current()
	return true
}

// Run consumes the queue until ctx ends.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("task queue already running")
	}
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	m.logger.Info("Starting task queue", zap.Int("workers", m.cfg.Workers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	for i := 0; i < m.cfg.Workers; i++ {
		g.Go(func() error {
			m.runWorker(gctx, i+1)
			return nil
		})
	}
	return g.Wait()
}

func (m *Manager) runWorker(ctx context.Context, workerID int) {
	logger := m.logger.With(zap.Int("worker_id", workerID))
	for {
		select {
		case <-ctx.Done():
			logger.Debug("Context cancelled, worker shutting down", zap.Error(ctx.Err()))
			return
		case j := <-m.queue:
			m.process(ctx, j, logger.With(zap.String("job_id", j.id)))
		}
	}
}

// process runs every item of one message under the screen lease.
func (m *Manager) process(ctx context.Context, j job, logger *zap.Logger) {
	defer m.finish(ctx, j)
	if err := m.lease.Acquire(ctx, 1); err != nil {
		return
	}
	defer m.lease.Release(1)

	jobCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.current = cancel
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.current = nil
		m.mu.Unlock()
		cancel()
	}()

	from := j.msg.FromUser
	items, err := j.msg.Items()
	if err != nil {
		logger.Warn("Rejecting message", zap.Error(err))
		m.publish(ctx, Response{ExecutedAction: "Invalid message format", Type: emr.StatusCritical, Error: err.Error()})
		return
	}

	logger.Info("Processing message", zap.String("from_user", from), zap.Int("items", len(items)))
	for _, item := range items {
		if jobCtx.Err() != nil {
			logger.Info("Task cancelled")
			break
		}
		patient := m.processItem(jobCtx, from, item, logger)
		m.publish(ctx, Response{ToUser: from, PatientName: patient, ExecutedAction: "Current tasks finished", Type: emr.StatusComplete})
	}
}

// processItem replaces the record with the item's data and runs the
// configured tasks. A failed task stops the remaining tasks of the item.
func (m *Manager) processItem(ctx context.Context, from string, item map[string]any, logger *zap.Logger) string {
	if err := m.selectEMR(item); err != nil {
		logger.Error("Error processing data item", zap.Error(err))
		m.publish(ctx, Response{ToUser: from, ExecutedAction: fmt.Sprintf("Error: %v", err), Type: emr.StatusCritical})
		return ""
	}

	// Each item is a new patient; nothing carries over from the previous one.
	data := m.runner.Data()
	data.Reset()
	data.Update(item)
	data.Display(logger)
	patient := data.PatientName()

	for _, task := range m.tasks {
		if ctx.Err() != nil {
			break
		}
		failed := false
		for ev := range m.runner.Run(ctx, task) {
			m.publish(ctx, Response{
				ToUser:         from,
				PatientName:    patient,
				ExecutedAction: ev.Message,
				Type:           ev.Status,
				Error:          ev.Error,
			})
			if ev.Status == emr.StatusFailed {
				failed = true
			}
		}
		if failed {
			logger.Warn("Task failed, skipping the remaining tasks of this item", zap.String("task", task))
			break
		}
	}
	return patient
}

func (m *Manager) selectEMR(item map[string]any) error {
	system, _ := item[SelectedEMRKey].(string)
	m.mu.Lock()
	current := m.emrSystem
	m.mu.Unlock()
	if system == "" || system == current {
		return nil
	}
	if m.locator == nil {
		return fmt.Errorf("cannot switch to EMR system %s", system)
	}
	path, err := m.locator.EMRPath(system)
	if err != nil {
		return err
	}
	if err := m.runner.LoadEMR(path); err != nil {
		return err
	}
	m.mu.Lock()
	m.emrSystem = system
	m.mu.Unlock()
	m.logger.Info("Switched EMR system", zap.String("emr", system), zap.String("path", path))
	return nil
}

// EMRSystem returns the name of the loaded EMR system.
func (m *Manager) EMRSystem() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emrSystem
}

// finish reports all_done once the last queued message is through.
func (m *Manager) finish(ctx context.Context, j job) {
	if m.pending.Add(-1) == 0 {
		m.publish(ctx, Response{ToUser: j.msg.FromUser, ExecutedAction: "All tasks finished", Type: emr.StatusAllDone})
	}
}

// publish ignores job cancellation; a killed job still reports its end.
func (m *Manager) publish(ctx context.Context, r Response) {
	if err := m.publisher.Publish(context.WithoutCancel(ctx), r); err != nil {
		m.logger.Error("Error sending response", zap.String("type", string(r.Type)), zap.Error(err))
	}
}
