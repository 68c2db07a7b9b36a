package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pentestd/api/schemas"
)

// ErrDuplicateID is returned when an entry is appended under an id already in use.
var ErrDuplicateID = errors.New("duplicate id")

// Store is the process-local collection of scans and reports. One instance is
// created per process and injected into the scanner and the synthesizer.
//
// Scans change only through UpdateScan, which runs the mutation under the write
// lock and refuses to touch a scan in a terminal status. Reports are
// append-only. Every read returns a deep copy.
type Store struct {
	mu sync.RWMutex

	scans     map[string]*schemas.Scan
	scanOrder []string

	reports     map[string]*schemas.Report
	reportOrder []string

	log *zap.Logger
}

// New creates an empty store.
func New(logger *zap.Logger) *Store {
	return &Store{
		scans:   make(map[string]*schemas.Scan),
		reports: make(map[string]*schemas.Report),
		log:     logger.Named("store"),
	}
}

// CreateScan appends a new scan.
func (s *Store) CreateScan(scan schemas.Scan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.scans[scan.ID]; exists {
		return fmt.Errorf("scan %s: %w", scan.ID, ErrDuplicateID)
	}
	stored := scan.Clone()
	s.scans[scan.ID] = &stored
	s.scanOrder = append(s.scanOrder, scan.ID)
	return nil
}

// GetScan returns a copy of the scan with the given id.
func (s *Store) GetScan(id string) (schemas.Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scan, ok := s.scans[id]
	if !ok {
		return schemas.Scan{}, &schemas.NotFoundError{Resource: "scan", ID: id}
	}
	return scan.Clone(), nil
}

// ListScans returns copies of all scans in creation order.
func (s *Store) ListScans() []schemas.Scan {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]schemas.Scan, 0, len(s.scanOrder))
	for _, id := range s.scanOrder {
		out = append(out, s.scans[id].Clone())
	}
	return out
}

// UpdateScan applies fn to a working copy of the scan and commits it if fn
// returns nil. The whole read-modify-write happens under the write lock, so
// fields changed together by fn become visible together. Terminal scans are
// never modified: the call fails with an InvalidStateError instead.
func (s *Store) UpdateScan(id string, fn func(scan *schemas.Scan) error) (schemas.Scan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.scans[id]
	if !ok {
		return schemas.Scan{}, &schemas.NotFoundError{Resource: "scan", ID: id}
	}
	if current.Status.IsTerminal() {
		return current.Clone(), &schemas.InvalidStateError{
			ID:     id,
			Status: current.Status,
			Reason: "terminal scans cannot be modified",
		}
	}

	working := current.Clone()
	if err := fn(&working); err != nil {
		return current.Clone(), err
	}
	working.ID = id
	s.scans[id] = &working
	return working.Clone(), nil
}

// AppendReport adds a report. Reports are never modified after this call.
func (s *Store) AppendReport(report schemas.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reports[report.ID]; exists {
		return fmt.Errorf("report %s: %w", report.ID, ErrDuplicateID)
	}
	stored := report.Clone()
	s.reports[report.ID] = &stored
	s.reportOrder = append(s.reportOrder, report.ID)
	return nil
}

// GetReport returns a copy of the report with the given id.
func (s *Store) GetReport(id string) (schemas.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report, ok := s.reports[id]
	if !ok {
		return schemas.Report{}, &schemas.NotFoundError{Resource: "report", ID: id}
	}
	return report.Clone(), nil
}

// ListReports returns copies of all reports in creation order.
func (s *Store) ListReports() []schemas.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]schemas.Report, 0, len(s.reportOrder))
	for _, id := range s.reportOrder {
		out = append(out, s.reports[id].Clone())
	}
	return out
}

// DeleteOlderThan removes scans and reports created at or before cutoff and
// returns how many of each were removed.
func (s *Store) DeleteOlderThan(cutoff time.Time) (scans, reports int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keptScans := s.scanOrder[:0]
	for _, id := range s.scanOrder {
		if s.scans[id].CreatedAt.After(cutoff) {
			keptScans = append(keptScans, id)
			continue
		}
		delete(s.scans, id)
		scans++
	}
	s.scanOrder = keptScans

	keptReports := s.reportOrder[:0]
	for _, id := range s.reportOrder {
		if s.reports[id].CreatedAt.After(cutoff) {
			keptReports = append(keptReports, id)
			continue
		}
		delete(s.reports, id)
		reports++
	}
	s.reportOrder = keptReports

	if scans > 0 || reports > 0 {
		s.log.Debug("Deleted expired entries",
			zap.Time("cutoff", cutoff),
			zap.Int("scans", scans),
			zap.Int("reports", reports),
		)
	}
	return scans, reports
}
