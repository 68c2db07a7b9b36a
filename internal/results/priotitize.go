package results

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/xkilldash9x/pentestd/api/schemas"
)

// Remediation priority tags, most urgent first.
const (
	PriorityUrgent = "URGENT"
	PriorityHigh   = "HIGH"
	PriorityMedium = "MEDIUM"
	PriorityLow    = "LOW"
)

var priorityRank = map[string]int{
	PriorityUrgent: 0,
	PriorityHigh:   1,
	PriorityMedium: 2,
	PriorityLow:    3,
}

var priorityTagRegex = regexp.MustCompile(`\[(.*?)\]`)

// remediationTable maps known finding names to their fix.
var remediationTable = map[string]string{
	"Open SSH Port":           "Secure SSH configuration: Change default port, disable root login, implement key-based authentication",
	"Outdated Apache Version": "Update Apache web server to latest stable version and apply all security patches",
	"Weak SSL Configuration":  "Update SSL/TLS configuration: Disable weak ciphers, enable strong encryption protocols (TLS 1.2+)",
	"Anonymous FTP Access":    "Disable anonymous FTP access and implement proper authentication mechanisms",
	"Default Credentials":     "Change all default passwords and implement strong password policies organization-wide",
}

// PriorityFor maps a severity to its remediation tag.
func PriorityFor(sev schemas.Severity) string {
	switch sev.Normalize() {
	case schemas.SeverityCritical:
		return PriorityUrgent
	case schemas.SeverityHigh:
		return PriorityHigh
	case schemas.SeverityMedium:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// PriorityRank returns the rank of the first bracketed tag in item. Items
// without a known tag rank as LOW.
func PriorityRank(item string) int {
	if m := priorityTagRegex.FindStringSubmatch(item); len(m) > 1 {
		if rank, ok := priorityRank[m[1]]; ok {
			return rank
		}
	}
	return priorityRank[PriorityLow]
}

// Prioritize sorts remediation items by tag, keeping the relative order of
// items that share a priority. The input is not modified.
func Prioritize(items []string) []string {
	out := make([]string, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return PriorityRank(out[i]) < PriorityRank(out[j])
	})
	return out
}

// RemediationFor returns the tagged remediation instruction for one finding.
func RemediationFor(f schemas.Finding) string {
	text, ok := remediationTable[f.Name]
	if !ok {
		text = fmt.Sprintf("Address %s: follow best practices for %s on port %d", f.Name, f.Service, f.Port)
	}
	return fmt.Sprintf("[%s] %s", PriorityFor(f.Severity), text)
}

// RemediationSteps builds one instruction per finding, sorted by priority.
func RemediationSteps(findings []schemas.Finding) []string {
	steps := make([]string, 0, len(findings))
	for _, f := range findings {
		steps = append(steps, RemediationFor(f))
	}
	return Prioritize(steps)
}
