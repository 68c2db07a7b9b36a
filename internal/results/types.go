package results

import (
	"time"

	"github.com/xkilldash9x/pentestd/api/schemas"
)

// Section names requested from the text analysis provider.
const (
	SectionExecutiveSummary = "EXECUTIVE_SUMMARY"
	SectionRiskAssessment   = "RISK_ASSESSMENT"
	SectionDetailedAnalysis = "DETAILED_ANALYSIS"
	SectionRemediationSteps = "REMEDIATION_STEPS"
	SectionRecommendations  = "RECOMMENDATIONS"
)

// ReportStore is the subset of the store the synthesizer needs.
type ReportStore interface {
	GetScan(id string) (schemas.Scan, error)
	AppendReport(report schemas.Report) error
	GetReport(id string) (schemas.Report, error)
	ListReports() []schemas.Report
}

// Prose is the narrative part of a report, produced either by the provider or
// by local synthesis.
type Prose struct {
	ExecutiveSummary string
	Summary          string
	RiskAssessment   string
	DetailedAnalysis string
	RemediationSteps []string
	Recommendations  []string
	Provenance       schemas.Provenance
}

// Options tunes a Synthesizer.
type Options struct {
	MinSummaryLength int
	ProviderTimeout  time.Duration
	ToolsUsed        []string
}
