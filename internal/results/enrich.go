package results

import (
	"math"

	"github.com/xkilldash9x/pentestd/api/schemas"
)

var baseScores = map[schemas.Severity]float64{
	schemas.SeverityCritical: 10,
	schemas.SeverityHigh:     7,
	schemas.SeverityMedium:   4,
	schemas.SeverityLow:      1,
}

// sensitivePorts carry a 1.2 multiplier: ftp, ssh, telnet, http, https.
var sensitivePorts = map[int]struct{}{21: {}, 22: {}, 23: {}, 80: {}, 443: {}}

var businessImpacts = map[schemas.Severity]string{
	schemas.SeverityCritical: "High - Potential for complete system compromise, data breach, or service disruption",
	schemas.SeverityHigh:     "Medium-High - Significant security risk with potential for unauthorized access",
	schemas.SeverityMedium:   "Medium - Moderate security risk requiring attention during maintenance cycles",
	schemas.SeverityLow:      "Low - Minor security concern with limited impact",
}

// RiskScore rates a finding from 0 to 10, rounded to one decimal. Undeclared
// severities score as low.
func RiskScore(f schemas.Finding) float64 {
	base, ok := baseScores[f.Severity.Normalize()]
	if !ok {
		base = baseScores[schemas.SeverityLow]
	}
	multiplier := 1.0
	if _, ok := sensitivePorts[f.Port]; ok {
		multiplier = 1.2
	}
	return math.Min(10, math.Round(base*multiplier*10)/10)
}

// BusinessImpact returns the narrative impact for a severity. Undeclared
// severities get the low-tier text.
func BusinessImpact(sev schemas.Severity) string {
	if impact, ok := businessImpacts[sev.Normalize()]; ok {
		return impact
	}
	return businessImpacts[schemas.SeverityLow]
}

// Enrich attaches a risk score and business impact to every finding,
// preserving order.
func Enrich(findings []schemas.Finding) []schemas.ScoredFinding {
	out := make([]schemas.ScoredFinding, len(findings))
	for i, f := range findings {
		out[i] = schemas.ScoredFinding{
			Finding:        f,
			RiskScore:      RiskScore(f),
			BusinessImpact: BusinessImpact(f.Severity),
		}
	}
	return out
}

// Breakdown counts findings per declared severity. Findings with an undeclared
// severity are counted as low so the per-severity counts always sum to the total.
func Breakdown(findings []schemas.Finding) schemas.VulnerabilityBreakdown {
	b := schemas.VulnerabilityBreakdown{Total: len(findings)}
	for _, f := range findings {
		switch f.Severity.Normalize() {
		case schemas.SeverityCritical:
			b.Critical++
		case schemas.SeverityHigh:
			b.High++
		case schemas.SeverityMedium:
			b.Medium++
		default:
			b.Low++
		}
	}
	return b
}

// OverallRisk rates the finding set. The checks run in priority order: any
// critical, then any high, then at least two mediums.
func OverallRisk(findings []schemas.Finding) schemas.RiskLevel {
	b := Breakdown(findings)
	switch {
	case b.Critical > 0:
		return schemas.RiskCritical
	case b.High > 0:
		return schemas.RiskHigh
	case b.Medium >= 2:
		return schemas.RiskMedium
	default:
		return schemas.RiskLow
	}
}
