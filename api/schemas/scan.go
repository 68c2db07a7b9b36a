package schemas

import (
	"fmt"
	"time"
)

// -- Scan Schemas --

// ScanType governs finding volume and, for real sources, probe depth.
type ScanType string

const (
	ScanTypeBasic         ScanType = "basic"
	ScanTypeComprehensive ScanType = "comprehensive"
	ScanTypeStealth       ScanType = "stealth"
)

// ParseScanType validates a raw scan type string.
func ParseScanType(raw string) (ScanType, error) {
	switch st := ScanType(raw); st {
	case ScanTypeBasic, ScanTypeComprehensive, ScanTypeStealth:
		return st, nil
	default:
		return "", &ValidationError{
			Field:  "scanType",
			Reason: fmt.Sprintf("must be one of basic, comprehensive, stealth (got %q)", raw),
		}
	}
}

// ScanStatus is the lifecycle state of a scan.
type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
	ScanStatusCancelled ScanStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s ScanStatus) IsTerminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed || s == ScanStatusCancelled
}

// Scan is one assessment run against a target. The scanner owns a scan until it
// reaches a terminal status; afterwards it is read-only.
type Scan struct {
	ID          string     `json:"id"`
	Target      string     `json:"target"`
	ScanType    ScanType   `json:"scanType"`
	Description string     `json:"description,omitempty"`
	Status      ScanStatus `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep"`
	Error       string     `json:"error,omitempty"`

	Vulnerabilities []Finding `json:"vulnerabilities"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Clone returns a deep copy of the scan.
func (s Scan) Clone() Scan {
	out := s
	out.Vulnerabilities = CloneFindings(s.Vulnerabilities)
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// Duration is the wall time between start and completion, or zero if the scan
// has not finished.
func (s Scan) Duration() time.Duration {
	if s.StartedAt == nil || s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(*s.StartedAt)
}
