package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pentestd/api/schemas"
	"github.com/xkilldash9x/pentestd/internal/config"
	"github.com/xkilldash9x/pentestd/internal/observability"
)

// Step labels written outside the phase table.
const (
	StepInitializing = "Initializing..."
	StepCompleted    = "Scan completed"
	StepFailed       = "Scan failed"
	StepCancelled    = "Scan cancelled"
)

// ScanStore is the subset of the store the machine needs.
type ScanStore interface {
	CreateScan(scan schemas.Scan) error
	GetScan(id string) (schemas.Scan, error)
	ListScans() []schemas.Scan
	UpdateScan(id string, fn func(scan *schemas.Scan) error) (schemas.Scan, error)
}

// errNotPending aborts a claim on a scan another advance already owns.
var errNotPending = errors.New("scan is not pending")

// Machine drives scans from pending to a terminal status. Each scan runs its
// phases on its own goroutine; the store serializes every transition.
type Machine struct {
	store   ScanStore
	source  schemas.FindingSource
	phases  []config.PhaseConfig
	metrics *observability.Metrics
	logger  *zap.Logger

	now   func() time.Time
	newID func() string

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup

	mu       sync.Mutex
	stopping bool                          // set by Shutdown; guards wg.Add
	cancels  map[string]context.CancelFunc // in-flight advances by scan id
}

// New creates a machine over the given phase table. The table must already be
// validated: strictly increasing progress ending at 100.
func New(store ScanStore, source schemas.FindingSource, phases []config.PhaseConfig, metrics *observability.Metrics, logger *zap.Logger) *Machine {
	rootCtx, rootCancel := context.WithCancel(context.Background())
	return &Machine{
		store:      store,
		source:     source,
		phases:     append([]config.PhaseConfig(nil), phases...),
		metrics:    metrics,
		logger:     logger.Named("scanner"),
		now:        time.Now,
		newID:      uuid.NewString,
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
		cancels:    make(map[string]context.CancelFunc),
	}
}

// CreateScan validates the input and stores a new pending scan.
func (m *Machine) CreateScan(ctx context.Context, target string, scanType schemas.ScanType, description string) (schemas.Scan, error) {
	canonical, err := ValidateTarget(target)
	if err != nil {
		return schemas.Scan{}, err
	}
	st, err := schemas.ParseScanType(string(scanType))
	if err != nil {
		return schemas.Scan{}, err
	}

	scan := schemas.Scan{
		ID:              m.newID(),
		Target:          canonical,
		ScanType:        st,
		Description:     description,
		Status:          schemas.ScanStatusPending,
		CurrentStep:     StepInitializing,
		Vulnerabilities: []schemas.Finding{},
		CreatedAt:       m.now().UTC(),
	}
	if err := m.store.CreateScan(scan); err != nil {
		return schemas.Scan{}, fmt.Errorf("failed to create scan: %w", err)
	}
	m.logger.Info("Scan created",
		zap.String("scan_id", scan.ID),
		zap.String("target", scan.Target),
		zap.String("scan_type", string(scan.ScanType)))
	return scan, nil
}

// GetScan returns the scan with the given id.
func (m *Machine) GetScan(_ context.Context, id string) (schemas.Scan, error) {
	return m.store.GetScan(id)
}

// ListScans returns every scan in creation order.
func (m *Machine) ListScans(_ context.Context) []schemas.Scan {
	return m.store.ListScans()
}

// Start advances the scan on a goroutine owned by the machine. A scan started
// after Shutdown is failed instead of being left pending.
func (m *Machine) Start(id string) {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		m.logger.Warn("Scanner is shutting down, scan not started", zap.String("scan_id", id))
		m.fail(id, errors.New("scanner is shutting down"))
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("Panic while advancing scan", zap.String("scan_id", id), zap.Any("panic", r), zap.Stack("stack"))
				m.fail(id, fmt.Errorf("internal error: %v", r))
			}
		}()
		if err := m.Advance(m.rootCtx, id); err != nil {
			m.logger.Error("Scan advance failed", zap.String("scan_id", id), zap.Error(err))
		}
	}()
}

// Advance drives a pending scan through every phase to a terminal status. It
// is a no-op for scans that are already running or terminal.
func (m *Machine) Advance(ctx context.Context, id string) error {
	scan, err := m.store.UpdateScan(id, func(s *schemas.Scan) error {
		if s.Status != schemas.ScanStatusPending {
			return errNotPending
		}
		started := m.now().UTC()
		s.Status = schemas.ScanStatusRunning
		s.StartedAt = &started
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, errNotPending), schemas.IsInvalidState(err):
		m.logger.Debug("Advance skipped", zap.String("scan_id", id), zap.String("status", string(scan.Status)))
		return nil
	default:
		return err
	}

	scanCtx, cancel := context.WithCancel(ctx)
	m.register(id, cancel)
	defer m.unregister(id)
	defer cancel()

	scanCtx, span := observability.Tracer().Start(scanCtx, "scanner.Advance", trace.WithAttributes(
		attribute.String("scan.id", id),
		attribute.String("scan.target", scan.Target),
		attribute.String("scan.type", string(scan.ScanType)),
	))
	defer span.End()

	m.metrics.ScanStarted()
	status := m.run(scanCtx, scan)
	m.metrics.ScanFinished(string(scan.ScanType), string(status))
	span.SetAttributes(attribute.String("scan.status", string(status)))
	if status == schemas.ScanStatusFailed {
		span.SetStatus(codes.Error, "scan failed")
	}
	return nil
}

// run executes the phase table and returns the terminal status reached.
func (m *Machine) run(ctx context.Context, scan schemas.Scan) schemas.ScanStatus {
	logger := m.logger.With(zap.String("scan_id", scan.ID))
	logger.Info("Scan started", zap.String("target", scan.Target), zap.String("scan_type", string(scan.ScanType)))

	for i, phase := range m.phases {
		if err := wait(ctx, phase.Delay); err != nil {
			return m.interrupted(scan.ID, err)
		}

		if i == len(m.phases)-1 {
			return m.complete(ctx, scan)
		}

		_, err := m.store.UpdateScan(scan.ID, func(s *schemas.Scan) error {
			s.CurrentStep = phase.Step
			s.Progress = phase.Progress
			return nil
		})
		if err != nil {
			// Cancelled between phases; Cancel already wrote the final state.
			logger.Debug("Phase update rejected", zap.String("step", phase.Step), zap.Error(err))
			return m.statusOf(scan.ID)
		}
		m.metrics.PhaseApplied(phase.Step)
		logger.Debug("Phase applied", zap.String("step", phase.Step), zap.Int("progress", phase.Progress))
	}
	return m.complete(ctx, scan)
}

// complete queries the finding source and writes the terminal state in one update.
func (m *Machine) complete(ctx context.Context, scan schemas.Scan) schemas.ScanStatus {
	logger := m.logger.With(zap.String("scan_id", scan.ID))
	if len(m.phases) > 0 {
		m.metrics.PhaseApplied(m.phases[len(m.phases)-1].Step)
	}

	findings, err := m.source.FindFindings(ctx, scan.Target, scan.ScanType)
	if err != nil {
		if ctx.Err() != nil {
			return m.interrupted(scan.ID, ctx.Err())
		}
		logger.Warn("Finding source failed", zap.Error(err))
		m.fail(scan.ID, err)
		return m.statusOf(scan.ID)
	}

	_, err = m.store.UpdateScan(scan.ID, func(s *schemas.Scan) error {
		completed := m.now().UTC()
		s.Vulnerabilities = schemas.CloneFindings(findings)
		if s.Vulnerabilities == nil {
			s.Vulnerabilities = []schemas.Finding{}
		}
		s.Status = schemas.ScanStatusCompleted
		s.Progress = 100
		s.CurrentStep = StepCompleted
		s.CompletedAt = &completed
		return nil
	})
	if err != nil {
		logger.Debug("Completion rejected", zap.Error(err))
		return m.statusOf(scan.ID)
	}
	logger.Info("Scan completed", zap.Int("vulnerabilities", len(findings)))
	return schemas.ScanStatusCompleted
}

// interrupted handles a phase wait that ended early. A user cancel has already
// been recorded; any other interruption (shutdown, caller deadline) fails the scan.
func (m *Machine) interrupted(id string, cause error) schemas.ScanStatus {
	if status := m.statusOf(id); status.IsTerminal() {
		return status
	}
	m.fail(id, fmt.Errorf("scan interrupted: %w", cause))
	return m.statusOf(id)
}

func (m *Machine) fail(id string, cause error) {
	_, err := m.store.UpdateScan(id, func(s *schemas.Scan) error {
		s.Status = schemas.ScanStatusFailed
		s.CurrentStep = StepFailed
		s.Error = cause.Error()
		s.Vulnerabilities = []schemas.Finding{}
		return nil
	})
	if err != nil {
		m.logger.Debug("Failure not recorded", zap.String("scan_id", id), zap.Error(err))
		return
	}
	m.logger.Warn("Scan failed", zap.String("scan_id", id), zap.Error(cause))
}

func (m *Machine) statusOf(id string) schemas.ScanStatus {
	scan, err := m.store.GetScan(id)
	if err != nil {
		return schemas.ScanStatusFailed
	}
	return scan.Status
}

// Cancel moves a pending or running scan to cancelled and interrupts any
// phase wait in progress.
func (m *Machine) Cancel(_ context.Context, id string) (schemas.Scan, error) {
	var previous schemas.ScanStatus
	scan, err := m.store.UpdateScan(id, func(s *schemas.Scan) error {
		previous = s.Status
		s.Status = schemas.ScanStatusCancelled
		s.CurrentStep = StepCancelled
		s.Error = "scan cancelled by request"
		return nil
	})
	if err != nil {
		return schemas.Scan{}, err
	}

	if previous == schemas.ScanStatusPending {
		m.metrics.ScanCancelled(string(scan.ScanType))
	}
	m.mu.Lock()
	cancel := m.cancels[id]
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.logger.Info("Scan cancelled", zap.String("scan_id", id), zap.String("previous_status", string(previous)))
	return scan, nil
}

// Shutdown stops every in-flight advance and waits for them to exit.
func (m *Machine) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.stopping = true
	m.mu.Unlock()
	m.rootCancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("Scanner stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scanner shutdown: %w", ctx.Err())
	}
}

func (m *Machine) register(id string, cancel context.CancelFunc) {
	m.mu.Lock()
	m.cancels[id] = cancel
	m.mu.Unlock()
}

func (m *Machine) unregister(id string) {
	m.mu.Lock()
	delete(m.cancels, id)
	m.mu.Unlock()
}

// wait suspends for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
