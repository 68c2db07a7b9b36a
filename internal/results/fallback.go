package results

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/pentestd/api/schemas"
)

// LongTermRecommendations is the fixed list used when the provider offers none.
var LongTermRecommendations = []string{
	"Implement regular security updates and patch management procedures",
	"Deploy network monitoring and intrusion detection systems",
	"Conduct periodic security assessments and penetration testing",
	"Implement multi-factor authentication for all critical services",
	"Regular backup and disaster recovery testing",
	"Security awareness training for all personnel",
	"Implement network segmentation and access controls",
}

// LocalProse synthesizes every narrative field from the findings alone. It is
// deterministic and never fails.
func LocalProse(findings []schemas.Finding, target string, scanType schemas.ScanType) Prose {
	return Prose{
		ExecutiveSummary: LocalExecutiveSummary(findings, target),
		Summary:          localSummary(findings, target),
		RiskAssessment:   localRiskAssessment(findings),
		DetailedAnalysis: localDetailedAnalysis(findings),
		RemediationSteps: RemediationSteps(findings),
		Recommendations:  append([]string(nil), LongTermRecommendations...),
		Provenance:       schemas.ProvenanceLocal,
	}
}

// LocalExecutiveSummary is the management summary used without a provider.
func LocalExecutiveSummary(findings []schemas.Finding, target string) string {
	b := Breakdown(findings)
	sentences := []string{fmt.Sprintf(
		"Executive Summary: The penetration testing assessment of %s has been completed, revealing %d security vulnerabilities requiring attention.",
		target, b.Total)}
	if b.Critical > 0 {
		sentences = append(sentences, fmt.Sprintf("%d critical vulnerabilities require immediate remediation to prevent potential security breaches.", b.Critical))
	}
	if b.High > 0 {
		sentences = append(sentences, fmt.Sprintf("%d high-severity issues should be addressed promptly to maintain security posture.", b.High))
	}
	sentences = append(sentences, "The organization should prioritize implementing the recommended security controls and establish regular security assessment procedures.")
	return strings.Join(sentences, " ")
}

func localSummary(findings []schemas.Finding, target string) string {
	b := Breakdown(findings)
	outlook := "Regular security maintenance and monitoring are recommended to maintain security posture."
	if b.Critical > 0 {
		outlook = "Critical vulnerabilities require immediate attention to prevent potential security breaches."
	}
	return fmt.Sprintf("Security assessment of %s identified %d vulnerabilities with an overall risk level of %s. %s",
		target, b.Total, OverallRisk(findings), outlook)
}

func localRiskAssessment(findings []schemas.Finding) string {
	b := Breakdown(findings)
	level := OverallRisk(findings)
	sentences := []string{fmt.Sprintf("The target system presents a %s risk profile based on %d discovered vulnerabilities.",
		strings.ToLower(string(level)), b.Total)}
	if b.Critical > 0 {
		sentences = append(sentences, fmt.Sprintf("%d critical vulnerabilities pose immediate security threats and require urgent remediation.", b.Critical))
	}
	if b.High > 0 {
		sentences = append(sentences, fmt.Sprintf("%d high-severity vulnerabilities require prompt attention.", b.High))
	}
	if b.Medium > 0 {
		sentences = append(sentences, fmt.Sprintf("%d medium-severity issues should be addressed during regular maintenance cycles.", b.Medium))
	}
	return fmt.Sprintf("Risk Level: %s\n\n%s", level, strings.Join(sentences, " "))
}

func localDetailedAnalysis(findings []schemas.Finding) string {
	paragraphs := make([]string, 0, len(findings))
	for _, f := range findings {
		paragraphs = append(paragraphs, fmt.Sprintf(
			"%s (%s): This vulnerability affects the %s service on port %d. %s This issue could potentially allow unauthorized access or information disclosure.",
			f.Name, strings.ToUpper(string(f.Severity)), f.Service, f.Port, f.Description))
	}
	return strings.Join(paragraphs, "\n\n")
}
