package runs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/compeek/compeek/internal/agent"
	"github.com/compeek/compeek/internal/common/logger"
	"github.com/compeek/compeek/internal/executor"
	"github.com/compeek/compeek/internal/llm"
	v1 "github.com/compeek/compeek/pkg/api/v1"
)

const subscriberBuffer = 256

var (
	// ErrInvalidRequest wraps validation failures of StartRunRequest.
	ErrInvalidRequest = errors.New("invalid run request")
	// ErrContainerUnavailable is returned when the target container fails its health check.
	ErrContainerUnavailable = errors.New("container is not responding")
)

// ExecutorFactory builds the executor bound to one container.
type ExecutorFactory func(containerURL, token string) executor.Executor

// Config holds loop defaults applied to requests that leave them unset.
type Config struct {
	Model          string
	MaxIterations  int
	MaxTokens      int
	ThinkingBudget int
	ContainerURL   string
	ContainerToken string
}

// Manager starts runs, records their events and fans them out to subscribers.
type Manager struct {
	store       Store
	client      llm.Client
	newExecutor ExecutorFactory
	cfg         Config
	logger      *logger.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	active map[string]*activeRun
}

// activeRun guards the store append and the fan-out with one mutex so a new
// subscriber's replay and its live feed never overlap or leave a gap.
type activeRun struct {
	record *v1.Run
	run    *agent.Run

	mu       sync.Mutex
	actions  int
	subs     map[chan *v1.Event]*subscriber
	finished bool
}

// NewManager creates a Manager. Runs outlive the request that started them
// and stop on Shutdown.
func NewManager(store Store, client llm.Client, newExecutor ExecutorFactory, cfg Config, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:       store,
		client:      client,
		newExecutor: newExecutor,
		cfg:         cfg,
		logger:      log.WithFields(zap.String("component", "run-manager")),
		baseCtx:     ctx,
		cancel:      cancel,
		active:      make(map[string]*activeRun),
	}
}

// Start validates req, checks the container, and launches the loop.
func (m *Manager) Start(ctx context.Context, req v1.StartRunRequest) (*v1.Run, error) {
	req.Goal = strings.TrimSpace(req.Goal)
	if req.Goal == "" {
		return nil, fmt.Errorf("%w: goal is required", ErrInvalidRequest)
	}
	if req.ContainerURL == "" {
		req.ContainerURL = m.cfg.ContainerURL
	}
	if req.ContainerURL == "" {
		return nil, fmt.Errorf("%w: container_url is required", ErrInvalidRequest)
	}
	if req.APIToken == "" {
		req.APIToken = m.cfg.ContainerToken
	}
	if req.Model == "" {
		req.Model = m.cfg.Model
	}
	if req.MaxIterations <= 0 {
		req.MaxIterations = m.cfg.MaxIterations
	}

	exec := m.newExecutor(req.ContainerURL, req.APIToken)
	if !exec.HealthCheck(ctx) {
		return nil, fmt.Errorf("%w: %s", ErrContainerUnavailable, req.ContainerURL)
	}

	now := time.Now().UTC()
	record := &v1.Run{
		ID:           uuid.New().String(),
		Goal:         req.Goal,
		Model:        req.Model,
		ContainerURL: req.ContainerURL,
		Status:       v1.RunStatusRunning,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if record.Model == "" {
		record.Model = agent.DefaultModel
	}
	if err := m.store.CreateRun(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	run, err := agent.Start(m.baseCtx, m.client, exec, agent.Options{
		RunID:            record.ID,
		Goal:             req.Goal,
		Model:            record.Model,
		MaxIterations:    req.MaxIterations,
		MaxTokens:        m.cfg.MaxTokens,
		ThinkingBudget:   m.cfg.ThinkingBudget,
		OSType:           req.OSType,
		Context:          req.Context,
		DocumentBase64:   req.DocumentBase64,
		DocumentMimeType: req.DocumentMimeType,
	}, m.logger)
	if err != nil {
		return nil, err
	}

	ar := &activeRun{record: record, run: run, subs: make(map[chan *v1.Event]*subscriber)}
	m.mu.Lock()
	m.active[record.ID] = ar
	m.mu.Unlock()

	out := *record
	m.wg.Add(1)
	go m.pump(ar)

	m.logger.WithRunID(record.ID).Info("run started",
		zap.String("container_url", req.ContainerURL),
		zap.String("model", record.Model))
	return &out, nil
}

// pump drains the loop's events into the store and out to subscribers,
// then records the final state.
func (m *Manager) pump(ar *activeRun) {
	defer m.wg.Done()
	log := m.logger.WithRunID(ar.record.ID)
	// Detached so a shutdown still records the terminal state.
	storeCtx := context.WithoutCancel(m.baseCtx)

	for ev := range ar.run.Events() {
		ar.mu.Lock()
		if err := m.store.AppendEvent(storeCtx, ev); err != nil {
			log.Error("failed to store event", zap.Int("seq", ev.Seq), zap.Error(err))
		}
		if ev.Type == v1.EventAction {
			ar.actions++
		}
		for ch, sub := range ar.subs {
			select {
			case ch <- ev:
			default:
				log.Warn("dropping slow subscriber", zap.Int("seq", ev.Seq))
				sub.dropped.Store(true)
				delete(ar.subs, ch)
				close(ch)
			}
		}
		ar.mu.Unlock()
	}

	res := ar.run.Wait()
	finished := time.Now().UTC()

	ar.mu.Lock()
	ar.record.Status = res.Status
	ar.record.ActionCount = res.ActionCount
	ar.record.Message = res.Message
	ar.record.InputTokens = res.Usage.InputTokens
	ar.record.OutputTokens = res.Usage.OutputTokens
	ar.record.UpdatedAt = finished
	ar.record.FinishedAt = &finished
	if err := m.store.UpdateRun(storeCtx, ar.record); err != nil {
		log.Error("failed to record run result", zap.Error(err))
	}
	ar.finished = true
	for ch := range ar.subs {
		close(ch)
	}
	ar.subs = nil
	ar.mu.Unlock()

	m.mu.Lock()
	delete(m.active, ar.record.ID)
	m.mu.Unlock()

	log.Info("run finished",
		zap.String("status", string(res.Status)),
		zap.Int("actions", res.ActionCount),
		zap.Int("input_tokens", res.Usage.InputTokens),
		zap.Int("output_tokens", res.Usage.OutputTokens))
}

// Stop cancels a running run.
func (m *Manager) Stop(ctx context.Context, id string) error {
	m.mu.Lock()
	ar, ok := m.active[id]
	m.mu.Unlock()
	if ok {
		ar.run.Stop()
		m.logger.WithRunID(id).Info("run stop requested")
		return nil
	}
	if _, err := m.store.GetRun(ctx, id); err != nil {
		return err
	}
	return ErrRunFinished
}

// Get returns a run. Live runs report their running action and token counts.
func (m *Manager) Get(ctx context.Context, id string) (*v1.Run, error) {
	run, err := m.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	m.overlay(run)
	return run, nil
}

// List returns runs newest first.
func (m *Manager) List(ctx context.Context, filter ListFilter) ([]*v1.Run, error) {
	runs, err := m.store.ListRuns(ctx, filter)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []*v1.Run{}
	}
	for _, r := range runs {
		m.overlay(r)
	}
	return runs, nil
}

func (m *Manager) overlay(run *v1.Run) {
	m.mu.Lock()
	ar, ok := m.active[run.ID]
	m.mu.Unlock()
	if !ok {
		return
	}
	usage := ar.run.Usage()
	ar.mu.Lock()
	if !ar.finished {
		run.ActionCount = ar.actions
		run.InputTokens = usage.InputTokens
		run.OutputTokens = usage.OutputTokens
	}
	ar.mu.Unlock()
}

// Events returns the stored events of a run after afterSeq.
func (m *Manager) Events(ctx context.Context, id string, afterSeq int) ([]*v1.Event, error) {
	events, err := m.store.ListEvents(ctx, id, afterSeq)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*v1.Event{}
	}
	return events, nil
}

// Subscription is a replay of stored events followed by live ones. Events is
// closed when the run finishes, when Close is called, or when the
// subscriber falls too far behind.
type Subscription struct {
	Replay []*v1.Event
	Events <-chan *v1.Event
	state  *subscriber
	close  func()
}

type subscriber struct {
	dropped atomic.Bool
}

// Close detaches the subscription.
func (s *Subscription) Close() { s.close() }

// Dropped reports whether Events was closed because the subscriber fell
// behind rather than because the run finished.
func (s *Subscription) Dropped() bool {
	return s.state != nil && s.state.dropped.Load()
}

// Subscribe attaches to a run's event feed starting after afterSeq.
func (m *Manager) Subscribe(ctx context.Context, id string, afterSeq int) (*Subscription, error) {
	m.mu.Lock()
	ar, ok := m.active[id]
	m.mu.Unlock()

	if !ok {
		replay, err := m.store.ListEvents(ctx, id, afterSeq)
		if err != nil {
			return nil, err
		}
		return closedSubscription(replay), nil
	}

	ar.mu.Lock()
	defer ar.mu.Unlock()
	replay, err := m.store.ListEvents(ctx, id, afterSeq)
	if err != nil {
		return nil, err
	}
	if ar.finished {
		return closedSubscription(replay), nil
	}

	ch := make(chan *v1.Event, subscriberBuffer)
	state := &subscriber{}
	ar.subs[ch] = state
	var once sync.Once
	return &Subscription{
		Replay: replay,
		Events: ch,
		state:  state,
		close: func() {
			once.Do(func() {
				ar.mu.Lock()
				defer ar.mu.Unlock()
				if _, ok := ar.subs[ch]; ok {
					delete(ar.subs, ch)
					close(ch)
				}
			})
		},
	}, nil
}

func closedSubscription(replay []*v1.Event) *Subscription {
	ch := make(chan *v1.Event)
	close(ch)
	return &Subscription{Replay: replay, Events: ch, close: func() {}}
}

// Extract reads structured fields from a document image.
func (m *Manager) Extract(ctx context.Context, base64Data, mimeType string) (*agent.Extraction, error) {
	return agent.ExtractDocument(ctx, m.client, m.cfg.Model, base64Data, mimeType)
}

// Shutdown stops every live run and waits for their final state to be
// recorded, or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	n := len(m.active)
	m.mu.Unlock()
	if n > 0 {
		m.logger.Info("stopping live runs", zap.Int("runs", n))
	}
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
