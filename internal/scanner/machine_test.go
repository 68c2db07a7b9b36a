package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pentestd/api/schemas"
	"github.com/xkilldash9x/pentestd/internal/config"
	"github.com/xkilldash9x/pentestd/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- Test Fixtures --

func fastPhases() []config.PhaseConfig {
	return []config.PhaseConfig{
		{Step: "Performing network discovery...", Progress: 10},
		{Step: "Port scanning...", Progress: 30, Delay: time.Millisecond},
		{Step: "Service detection...", Progress: 50, Delay: time.Millisecond},
		{Step: "Vulnerability assessment...", Progress: 70, Delay: time.Millisecond},
		{Step: "Analyzing results with AI...", Progress: 90, Delay: time.Millisecond},
		{Step: "Generating findings...", Progress: 100, Delay: time.Millisecond},
	}
}

// slowPhases parks every scan in its second phase until cancelled.
func slowPhases() []config.PhaseConfig {
	return []config.PhaseConfig{
		{Step: "Performing network discovery...", Progress: 10},
		{Step: "Port scanning...", Progress: 30, Delay: time.Hour},
		{Step: "Generating findings...", Progress: 100},
	}
}

type staticSource struct {
	findings []schemas.Finding
	calls    atomic.Int32
}

func (s *staticSource) FindFindings(_ context.Context, target string, _ schemas.ScanType) ([]schemas.Finding, error) {
	s.calls.Add(1)
	out := schemas.CloneFindings(s.findings)
	for i := range out {
		out[i].Target = target
	}
	return out, nil
}

type failingSource struct{}

func (failingSource) FindFindings(context.Context, string, schemas.ScanType) ([]schemas.Finding, error) {
	return nil, fmt.Errorf("%w: scanner output unavailable", schemas.ErrSource)
}

// recordingStore captures every committed scan snapshot.
type recordingStore struct {
	*store.Store
	mu      sync.Mutex
	commits []schemas.Scan
}

func (r *recordingStore) UpdateScan(id string, fn func(*schemas.Scan) error) (schemas.Scan, error) {
	scan, err := r.Store.UpdateScan(id, fn)
	if err == nil {
		r.mu.Lock()
		r.commits = append(r.commits, scan)
		r.mu.Unlock()
	}
	return scan, err
}

func (r *recordingStore) snapshots() []schemas.Scan {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schemas.Scan(nil), r.commits...)
}

func sampleSource() *staticSource {
	return &staticSource{findings: []schemas.Finding{
		{Name: "Open SSH Port", Description: "SSH service is running on default port 22", Severity: schemas.SeverityMedium, Port: 22, Service: "ssh"},
		{Name: "Default Credentials", Description: "Service using default username/password combination", Severity: schemas.SeverityCritical, Port: 23, Service: "telnet"},
	}}
}

func newMachine(t *testing.T, source schemas.FindingSource, phases []config.PhaseConfig) (*Machine, *recordingStore) {
	t.Helper()
	st := &recordingStore{Store: store.New(zap.NewNop())}
	m := New(st, source, phases, nil, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, m.Shutdown(ctx))
	})
	return m, st
}

func waitForStatus(t *testing.T, m *Machine, id string, status schemas.ScanStatus) schemas.Scan {
	t.Helper()
	var scan schemas.Scan
	require.Eventually(t, func() bool {
		var err error
		scan, err = m.GetScan(context.Background(), id)
		return err == nil && scan.Status == status
	}, 5*time.Second, 5*time.Millisecond, "scan %s never reached %s", id, status)
	return scan
}

// -- Target validation --

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "192.168.1.10", want: "192.168.1.10"},
		{in: " 10.0.0.1 ", want: "10.0.0.1"},
		{in: "example.com", want: "example.com"},
		{in: "Scan.Example.COM", want: "scan.example.com"},
		{in: "example.com.", want: "example.com"},
		{in: "münchen.de", want: "xn--mnchen-3ya.de"},
		{in: "a-b.example.io", want: "a-b.example.io"},
		{in: "", wantErr: true},
		{in: "   ", wantErr: true},
		{in: "256.1.1.1", wantErr: true},
		{in: "10.0.0", wantErr: true},
		{in: "010.001.001.001", wantErr: true},
		{in: "192.168.01.1", wantErr: true},
		{in: "::1", wantErr: true},
		{in: "2001:db8::1", wantErr: true},
		{in: "localhost", wantErr: true},
		{in: "-bad.example.com", wantErr: true},
		{in: "exa mple.com", wantErr: true},
		{in: "example.c0m", wantErr: true},
		{in: "http://example.com", wantErr: true},
		{in: "example.com/../../etc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ValidateTarget(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, schemas.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// -- Creation and lookup --

func TestCreateScan(t *testing.T) {
	m, _ := newMachine(t, sampleSource(), fastPhases())

	scan, err := m.CreateScan(context.Background(), " Example.com ", schemas.ScanTypeBasic, "quarterly check")
	require.NoError(t, err)
	assert.NotEmpty(t, scan.ID)
	assert.Equal(t, "example.com", scan.Target)
	assert.Equal(t, schemas.ScanStatusPending, scan.Status)
	assert.Equal(t, 0, scan.Progress)
	assert.Equal(t, StepInitializing, scan.CurrentStep)
	assert.Empty(t, scan.Vulnerabilities)
	assert.Nil(t, scan.StartedAt)
	assert.Nil(t, scan.CompletedAt)

	got, err := m.GetScan(context.Background(), scan.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(scan, got); diff != "" {
		t.Errorf("stored scan differs:\n%s", diff)
	}

	_, err = m.CreateScan(context.Background(), "not a host", schemas.ScanTypeBasic, "")
	assert.True(t, schemas.IsValidation(err))
	_, err = m.CreateScan(context.Background(), "example.com", "aggressive", "")
	assert.True(t, schemas.IsValidation(err))

	assert.Len(t, m.ListScans(context.Background()), 1, "rejected input must not create state")

	_, err = m.GetScan(context.Background(), "missing")
	assert.True(t, schemas.IsNotFound(err))
}

// -- Advance --

func TestAdvance_CompletesThroughEveryPhase(t *testing.T) {
	src := sampleSource()
	m, st := newMachine(t, src, fastPhases())
	scan, err := m.CreateScan(context.Background(), "10.0.0.5", schemas.ScanTypeComprehensive, "")
	require.NoError(t, err)

	require.NoError(t, m.Advance(context.Background(), scan.ID))

	final, err := m.GetScan(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, schemas.ScanStatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, StepCompleted, final.CurrentStep)
	assert.Empty(t, final.Error)
	require.Len(t, final.Vulnerabilities, 2)
	assert.Equal(t, "10.0.0.5", final.Vulnerabilities[0].Target)
	require.NotNil(t, final.StartedAt)
	require.NotNil(t, final.CompletedAt)
	assert.False(t, final.CompletedAt.Before(*final.StartedAt))

	commits := st.snapshots()
	// Claim, five intermediate phases, completion.
	require.Len(t, commits, 7)
	assert.Equal(t, schemas.ScanStatusRunning, commits[0].Status)
	wantSteps := []string{"Performing network discovery...", "Port scanning...", "Service detection...", "Vulnerability assessment...", "Analyzing results with AI..."}
	wantProgress := []int{10, 30, 50, 70, 90}
	for i := range wantSteps {
		assert.Equal(t, wantSteps[i], commits[i+1].CurrentStep)
		assert.Equal(t, wantProgress[i], commits[i+1].Progress)
		assert.Empty(t, commits[i+1].Vulnerabilities, "findings appear only on completion")
		assert.Nil(t, commits[i+1].CompletedAt)
	}

	prev := -1
	for _, c := range commits {
		assert.GreaterOrEqual(t, c.Progress, prev, "progress must never decrease")
		prev = c.Progress
		assert.Equal(t, c.Progress == 100, c.Status == schemas.ScanStatusCompleted, "progress 100 iff completed")
	}
}

func TestAdvance_IsIdempotent(t *testing.T) {
	src := sampleSource()
	m, _ := newMachine(t, src, fastPhases())
	scan, err := m.CreateScan(context.Background(), "example.com", schemas.ScanTypeBasic, "")
	require.NoError(t, err)

	require.NoError(t, m.Advance(context.Background(), scan.ID))
	first, _ := m.GetScan(context.Background(), scan.ID)

	require.NoError(t, m.Advance(context.Background(), scan.ID))
	second, _ := m.GetScan(context.Background(), scan.ID)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second advance changed the scan:\n%s", diff)
	}
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestAdvance_ConcurrentCallsRunOnce(t *testing.T) {
	src := sampleSource()
	m, _ := newMachine(t, src, fastPhases())
	scan, err := m.CreateScan(context.Background(), "example.com", schemas.ScanTypeBasic, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Advance(context.Background(), scan.ID))
		}()
	}
	wg.Wait()

	waitForStatus(t, m, scan.ID, schemas.ScanStatusCompleted)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestAdvance_UnknownScan(t *testing.T) {
	m, _ := newMachine(t, sampleSource(), fastPhases())
	err := m.Advance(context.Background(), "nope")
	assert.True(t, schemas.IsNotFound(err))
}

func TestAdvance_SourceFailure(t *testing.T) {
	m, _ := newMachine(t, failingSource{}, fastPhases())
	scan, err := m.CreateScan(context.Background(), "example.com", schemas.ScanTypeStealth, "")
	require.NoError(t, err)

	require.NoError(t, m.Advance(context.Background(), scan.ID), "source errors surface only as scan status")

	final, _ := m.GetScan(context.Background(), scan.ID)
	assert.Equal(t, schemas.ScanStatusFailed, final.Status)
	assert.Equal(t, StepFailed, final.CurrentStep)
	assert.Contains(t, final.Error, "scanner output unavailable")
	assert.Empty(t, final.Vulnerabilities)
	assert.Nil(t, final.CompletedAt)
	assert.Less(t, final.Progress, 100)
}

func TestAdvance_CallerContextCancelledFailsScan(t *testing.T) {
	m, _ := newMachine(t, sampleSource(), slowPhases())
	scan, err := m.CreateScan(context.Background(), "example.com", schemas.ScanTypeBasic, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, m.Advance(ctx, scan.ID))

	final, _ := m.GetScan(context.Background(), scan.ID)
	assert.Equal(t, schemas.ScanStatusFailed, final.Status)
	assert.Contains(t, final.Error, "scan interrupted")
	assert.Equal(t, 10, final.Progress)
}

// -- Cancel --

func TestCancel_Pending(t *testing.T) {
	src := sampleSource()
	m, _ := newMachine(t, src, fastPhases())
	scan, err := m.CreateScan(context.Background(), "example.com", schemas.ScanTypeBasic, "")
	require.NoError(t, err)

	cancelled, err := m.Cancel(context.Background(), scan.ID)
	require.NoError(t, err)
	assert.Equal(t, schemas.ScanStatusCancelled, cancelled.Status)
	assert.Equal(t, StepCancelled, cancelled.CurrentStep)
	assert.NotEmpty(t, cancelled.Error)

	require.NoError(t, m.Advance(context.Background(), scan.ID))
	assert.Zero(t, src.calls.Load(), "advance after cancel must not run")

	_, err = m.Cancel(context.Background(), scan.ID)
	assert.True(t, schemas.IsInvalidState(err))

	_, err = m.Cancel(context.Background(), "missing")
	assert.True(t, schemas.IsNotFound(err))
}

func TestCancel_RunningInterruptsPhaseWait(t *testing.T) {
	src := sampleSource()
	m, _ := newMachine(t, src, slowPhases())
	scan, err := m.CreateScan(context.Background(), "example.com", schemas.ScanTypeBasic, "")
	require.NoError(t, err)

	m.Start(scan.ID)
	require.Eventually(t, func() bool {
		s, _ := m.GetScan(context.Background(), scan.ID)
		return s.Status == schemas.ScanStatusRunning && s.Progress == 10
	}, 5*time.Second, 5*time.Millisecond)

	start := time.Now()
	_, err = m.Cancel(context.Background(), scan.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	assert.Less(t, time.Since(start), time.Minute, "the hour-long phase wait must be interrupted")

	final, _ := m.GetScan(context.Background(), scan.ID)
	assert.Equal(t, schemas.ScanStatusCancelled, final.Status)
	assert.Equal(t, StepCancelled, final.CurrentStep)
	assert.Equal(t, 10, final.Progress)
	assert.Zero(t, src.calls.Load())
}

func TestCancel_CompletedScanIsInvalidState(t *testing.T) {
	m, _ := newMachine(t, sampleSource(), fastPhases())
	scan, err := m.CreateScan(context.Background(), "example.com", schemas.ScanTypeBasic, "")
	require.NoError(t, err)
	require.NoError(t, m.Advance(context.Background(), scan.ID))

	_, err = m.Cancel(context.Background(), scan.ID)
	require.Error(t, err)
	var invalid *schemas.InvalidStateError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, schemas.ScanStatusCompleted, invalid.Status)

	final, _ := m.GetScan(context.Background(), scan.ID)
	assert.Equal(t, schemas.ScanStatusCompleted, final.Status)
}

// -- Start and Shutdown --

func TestStart_RunsToCompletion(t *testing.T) {
	m, _ := newMachine(t, sampleSource(), fastPhases())
	scan, err := m.CreateScan(context.Background(), "example.com", schemas.ScanTypeComprehensive, "")
	require.NoError(t, err)

	m.Start(scan.ID)
	final := waitForStatus(t, m, scan.ID, schemas.ScanStatusCompleted)
	assert.Len(t, final.Vulnerabilities, 2)
}

func TestShutdown_FailsInFlightScans(t *testing.T) {
	m, _ := newMachine(t, sampleSource(), slowPhases())
	scan, err := m.CreateScan(context.Background(), "example.com", schemas.ScanTypeBasic, "")
	require.NoError(t, err)

	m.Start(scan.ID)
	waitForStatus(t, m, scan.ID, schemas.ScanStatusRunning)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	final, _ := m.GetScan(context.Background(), scan.ID)
	assert.Equal(t, schemas.ScanStatusFailed, final.Status)
	assert.Contains(t, final.Error, "scan interrupted")

	// Starting after shutdown is refused and the scan does not linger as pending.
	late, err := m.CreateScan(context.Background(), "example.org", schemas.ScanTypeBasic, "")
	require.NoError(t, err)
	m.Start(late.ID)
	got, _ := m.GetScan(context.Background(), late.ID)
	assert.Equal(t, schemas.ScanStatusFailed, got.Status)
	assert.Equal(t, "scanner is shutting down", got.Error)
	assert.Empty(t, got.Vulnerabilities)
}

func TestStart_ConcurrentWithShutdown(t *testing.T) {
	m, _ := newMachine(t, sampleSource(), fastPhases())

	const scans = 20
	ids := make([]string, scans)
	for i := range ids {
		scan, err := m.CreateScan(context.Background(), "example.com", schemas.ScanTypeStealth, "")
		require.NoError(t, err)
		ids[i] = scan.ID
	}

	var wg sync.WaitGroup
	wg.Add(scans)
	for _, id := range ids {
		go func(id string) {
			defer wg.Done()
			m.Start(id)
		}(id)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	wg.Wait()

	// Every scan either ran or was refused; none is left behind.
	for _, id := range ids {
		scan, err := m.GetScan(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, scan.Status.IsTerminal(), "scan %s ended as %s", id, scan.Status)
	}
}

// -- Tracing --

func TestAdvance_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = tp.Shutdown(context.Background())
	})

	m, _ := newMachine(t, sampleSource(), fastPhases())
	scan, err := m.CreateScan(context.Background(), "example.com", schemas.ScanTypeBasic, "")
	require.NoError(t, err)
	require.NoError(t, m.Advance(context.Background(), scan.ID))

	var found bool
	for _, span := range recorder.Ended() {
		if span.Name() != "scanner.Advance" {
			continue
		}
		found = true
		attrs := make(map[string]string)
		for _, kv := range span.Attributes() {
			attrs[string(kv.Key)] = kv.Value.Emit()
		}
		assert.Equal(t, scan.ID, attrs["scan.id"])
		assert.Equal(t, "completed", attrs["scan.status"])
	}
	assert.True(t, found, "scanner.Advance span not recorded")
}
