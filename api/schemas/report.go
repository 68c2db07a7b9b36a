package schemas

import (
	"strings"
	"time"
)

// -- Report Schemas --

// Provenance records where a report's prose came from. It is kept off the wire.
type Provenance string

const (
	ProvenanceProvider Provenance = "provider"
	ProvenanceLocal    Provenance = "local"
)

// RiskLevel is the overall rating of a finding set.
type RiskLevel string

const (
	RiskCritical RiskLevel = "Critical"
	RiskHigh     RiskLevel = "High"
	RiskMedium   RiskLevel = "Medium"
	RiskLow      RiskLevel = "Low"
)

// VulnerabilityBreakdown holds counts per declared severity plus the total.
type VulnerabilityBreakdown struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Compliance maps each standard to a status string of the form
// "<verdict> - <reason>" or a bare verdict.
type Compliance struct {
	PCIDSS   string `json:"pciDss"`
	ISO27001 string `json:"iso27001"`
	NIST     string `json:"nist"`
	GDPR     string `json:"gdpr"`
}

// ComplianceVerdict returns the part of a compliance status before " - ".
func ComplianceVerdict(status string) string {
	verdict, _, _ := strings.Cut(status, " - ")
	return verdict
}

// NextStep is a prioritized follow-up action.
type NextStep struct {
	Priority string `json:"priority"`
	Action   string `json:"action"`
	Timeline string `json:"timeline"`
}

// ScanMetadata carries details about the scan a report was built from.
type ScanMetadata struct {
	ScanType    ScanType   `json:"scanType"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Duration    string     `json:"duration,omitempty"`
	ToolsUsed   []string   `json:"toolsUsed"`
}

// Report is the synthesized, scored and compliance-annotated artifact built
// from one completed scan. It is immutable once returned by the synthesizer.
type Report struct {
	ID        string    `json:"id"`
	ScanID    string    `json:"scanId"`
	Target    string    `json:"target"`
	ScanType  ScanType  `json:"scanType"`
	CreatedAt time.Time `json:"createdAt"`

	ExecutiveSummary string    `json:"executiveSummary"`
	Summary          string    `json:"summary"`
	RiskAssessment   string    `json:"riskAssessment"`
	DetailedAnalysis string    `json:"detailedAnalysis"`
	RiskLevel        RiskLevel `json:"riskLevel"`

	Recommendations  []string `json:"recommendations"`
	RemediationSteps []string `json:"remediationSteps"`

	VulnerabilityBreakdown VulnerabilityBreakdown `json:"vulnerabilityBreakdown"`
	Vulnerabilities        []ScoredFinding        `json:"vulnerabilities"`
	ScanMetadata           ScanMetadata           `json:"scanMetadata"`
	Compliance             Compliance             `json:"compliance"`
	NextSteps              []NextStep             `json:"nextSteps"`

	Provenance Provenance `json:"-"`
}

// Clone returns a deep copy of the report.
func (r Report) Clone() Report {
	out := r
	out.Recommendations = cloneSlice(r.Recommendations)
	out.RemediationSteps = cloneSlice(r.RemediationSteps)
	out.Vulnerabilities = cloneSlice(r.Vulnerabilities)
	out.NextSteps = cloneSlice(r.NextSteps)
	out.ScanMetadata.ToolsUsed = cloneSlice(r.ScanMetadata.ToolsUsed)
	if r.ScanMetadata.CompletedAt != nil {
		t := *r.ScanMetadata.CompletedAt
		out.ScanMetadata.CompletedAt = &t
	}
	return out
}

// cloneSlice copies in, keeping nil and empty distinct for JSON output.
func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
