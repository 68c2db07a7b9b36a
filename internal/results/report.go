package results

import (
	"slices"
	"strings"
	"time"

	"github.com/xkilldash9x/pentestd/api/schemas"
)

// Compliance status strings. Each is either a bare verdict or "<verdict> - <reason>".
const (
	PCIDSSNonCompliant   = "Non-Compliant - Encryption vulnerabilities detected"
	ISO27001NonCompliant = "Non-Compliant - High-risk vulnerabilities present"
	NISTNonCompliant     = "Non-Compliant - Access control issues identified"
	GDPRRiskPresent      = "Risk Present - Data protection measures may be compromised"

	StatusReviewRequired = "Review Required"
	StatusCompliant      = "Compliant"
	StatusAcceptableRisk = "Acceptable Risk"
)

// InferCompliance derives per-standard status from three signals over the findings.
func InferCompliance(findings []schemas.Finding) schemas.Compliance {
	var highRisk, encryption, accessControl bool
	for _, f := range findings {
		sev := f.Severity.Normalize()
		if sev == schemas.SeverityCritical || sev == schemas.SeverityHigh {
			highRisk = true
		}
		name := strings.ToLower(f.Name)
		if strings.Contains(name, "ssl") || strings.Contains(name, "encryption") {
			encryption = true
		}
		if strings.Contains(name, "credential") || strings.Contains(name, "authentication") {
			accessControl = true
		}
	}

	c := schemas.Compliance{
		PCIDSS:   StatusReviewRequired,
		ISO27001: StatusCompliant,
		NIST:     StatusReviewRequired,
		GDPR:     StatusAcceptableRisk,
	}
	if encryption {
		c.PCIDSS = PCIDSSNonCompliant
	}
	if highRisk {
		c.ISO27001 = ISO27001NonCompliant
		c.GDPR = GDPRRiskPresent
	}
	if accessControl {
		c.NIST = NISTNonCompliant
	}
	return c
}

// NextSteps lists follow-up actions: critical and high items when present,
// then the two standing items.
func NextSteps(findings []schemas.Finding) []schemas.NextStep {
	b := Breakdown(findings)
	steps := make([]schemas.NextStep, 0, 4)
	if b.Critical > 0 {
		steps = append(steps, schemas.NextStep{
			Priority: "IMMEDIATE",
			Action:   "Address critical vulnerabilities within 24-48 hours",
			Timeline: "1-2 days",
		})
	}
	if b.High > 0 {
		steps = append(steps, schemas.NextStep{
			Priority: "HIGH",
			Action:   "Remediate high-severity vulnerabilities",
			Timeline: "1-2 weeks",
		})
	}
	return append(steps,
		schemas.NextStep{Priority: "MEDIUM", Action: "Schedule regular security assessments", Timeline: "Quarterly"},
		schemas.NextStep{Priority: "LOW", Action: "Implement continuous monitoring", Timeline: "Ongoing"},
	)
}

// GenerateReport compiles the prose and the locally computed sections into a
// Report for the scan.
func GenerateReport(id string, scan schemas.Scan, prose Prose, toolsUsed []string, createdAt time.Time) schemas.Report {
	vulns := scan.Vulnerabilities
	meta := schemas.ScanMetadata{
		ScanType:  scan.ScanType,
		ToolsUsed: slices.Clone(toolsUsed),
	}
	if scan.CompletedAt != nil {
		t := *scan.CompletedAt
		meta.CompletedAt = &t
	}
	if d := scan.Duration(); d > 0 {
		meta.Duration = d.Round(time.Millisecond).String()
	}

	return schemas.Report{
		ID:        id,
		ScanID:    scan.ID,
		Target:    scan.Target,
		ScanType:  scan.ScanType,
		CreatedAt: createdAt,

		ExecutiveSummary: prose.ExecutiveSummary,
		Summary:          prose.Summary,
		RiskAssessment:   prose.RiskAssessment,
		DetailedAnalysis: prose.DetailedAnalysis,
		RiskLevel:        OverallRisk(vulns),

		Recommendations:  slices.Clone(prose.Recommendations),
		RemediationSteps: Prioritize(prose.RemediationSteps),

		VulnerabilityBreakdown: Breakdown(vulns),
		Vulnerabilities:        Enrich(vulns),
		ScanMetadata:           meta,
		Compliance:             InferCompliance(vulns),
		NextSteps:              NextSteps(vulns),

		Provenance: prose.Provenance,
	}
}
