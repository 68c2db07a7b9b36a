package schemas

import (
	"strings"
	"time"
)

// -- Finding Schemas --

// Severity represents the severity level of a security finding. The values are
// lowercase to match the wire format used by the API and the finding catalog.
type Severity string

// Constants defining the declared severity levels for findings.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists the declared severities from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// Normalize lowercases and trims the severity so lookups tolerate sloppy input.
func (s Severity) Normalize() Severity {
	return Severity(strings.ToLower(strings.TrimSpace(string(s))))
}

// IsDeclared reports whether s is one of the declared severity levels.
func (s Severity) IsDeclared() bool {
	switch s.Normalize() {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Finding is a single vulnerability instance tied to a target, port and service.
// Findings are produced by a finding source and never mutated afterwards.
type Finding struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Port        int      `json:"port" yaml:"port"`
	Service     string   `json:"service" yaml:"service"`

	Target       string    `json:"target" yaml:"-"`
	DiscoveredAt time.Time `json:"discoveredAt" yaml:"-"`
}

// ScoredFinding is a Finding augmented with the values derived from its
// severity and port when a report is synthesized.
type ScoredFinding struct {
	Finding
	RiskScore      float64 `json:"riskScore"`
	BusinessImpact string  `json:"businessImpact"`
}

// CloneFindings returns a copy of the slice so callers cannot alias store state.
func CloneFindings(in []Finding) []Finding {
	return cloneSlice(in)
}
