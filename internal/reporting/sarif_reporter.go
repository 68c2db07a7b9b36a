// internal/reporting/sarif_reporter.go
package reporting

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pentestd/api/schemas"
	"github.com/xkilldash9x/pentestd/internal/reporting/sarif"
	"github.com/xkilldash9x/pentestd/internal/results"
)

// Constants for tool identification in the SARIF report.
const (
	ToolName     = "pentestd"
	ToolInfoURI  = "https://github.com/xkilldash9x/pentestd"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"

	rulePrefix      = "PENTESTD-"
	fingerprintName = "pentestd/finding/v1"
)

// ruleIDSanitizer matches runs of characters not allowed in rule IDs. They
// collapse to a single hyphen.
var ruleIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

// RuleFingerprint identifies a rule definition by content.
type RuleFingerprint string

func calculateFingerprint(f schemas.Finding) RuleFingerprint {
	h := sha1.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s", f.Name, f.Description, f.Severity.Normalize())
	return RuleFingerprint(hex.EncodeToString(h.Sum(nil)))
}

// resultFingerprint identifies one finding instance on one target.
func resultFingerprint(f schemas.Finding) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%s", f.Target, f.Name, f.Port, f.Service)
	return hex.EncodeToString(h.Sum(nil))
}

// runState tracks the rules registered on one run.
type runState struct {
	run                *sarif.Run
	rulesByFingerprint map[RuleFingerprint]string
	ruleIDUsage        map[string]int
}

// SARIFReporter writes reports as a SARIF 2.1.0 log with one run per report.
// It is safe for concurrent use.
type SARIFReporter struct {
	writer      io.WriteCloser
	logger      *zap.Logger
	toolVersion string

	mu  sync.Mutex
	log *sarif.Log
}

// NewSARIFReporter creates a new reporter that writes SARIF output on Close.
func NewSARIFReporter(writer io.WriteCloser, toolVersion string, logger *zap.Logger) *SARIFReporter {
	return &SARIFReporter{
		writer:      writer,
		logger:      logger.Named("sarif_reporter"),
		toolVersion: toolVersion,
		log: &sarif.Log{
			Version: SARIFVersion,
			Schema:  SARIFSchema,
			Runs:    []*sarif.Run{},
		},
	}
}

func (r *SARIFReporter) newRun() *sarif.Run {
	return &sarif.Run{
		Tool: &sarif.Tool{
			Driver: &sarif.ToolComponent{
				Name:           ToolName,
				Version:        pString(r.toolVersion),
				InformationURI: pString(ToolInfoURI),
				Rules:          []*sarif.ReportingDescriptor{},
			},
		},
		Results: []*sarif.Result{},
	}
}

// Write converts a report into a SARIF run.
func (r *SARIFReporter) Write(report *schemas.Report) error {
	if report == nil {
		return fmt.Errorf("report must not be nil")
	}
	startTime := time.Now()

	state := &runState{
		run:                r.newRun(),
		rulesByFingerprint: make(map[RuleFingerprint]string),
		ruleIDUsage:        make(map[string]int),
	}
	run := state.run
	run.Invocations = []*sarif.Invocation{r.invocation(report)}
	run.Properties = &sarif.PropertyBag{
		"reportId":         report.ID,
		"scanId":           report.ScanID,
		"target":           report.Target,
		"scanType":         string(report.ScanType),
		"riskLevel":        string(report.RiskLevel),
		"executiveSummary": report.ExecutiveSummary,
		"breakdown":        report.VulnerabilityBreakdown,
		"compliance":       report.Compliance,
	}

	for _, scored := range report.Vulnerabilities {
		finding := scored.Finding
		if finding.Target == "" {
			finding.Target = report.Target
		}
		ruleID := r.ensureRule(state, finding)

		messageText := finding.Description
		if messageText == "" {
			messageText = finding.Name
		}
		run.Results = append(run.Results, &sarif.Result{
			RuleID:              ruleID,
			Message:             &sarif.Message{Text: pString(messageText)},
			Level:               mapSeverityToSARIFLevel(finding.Severity),
			Locations:           createLocations(finding),
			PartialFingerprints: map[string]string{fingerprintName: resultFingerprint(finding)},
			Properties: &sarif.PropertyBag{
				"riskScore":      scored.RiskScore,
				"businessImpact": scored.BusinessImpact,
				"severity":       string(finding.Severity.Normalize()),
				"port":           finding.Port,
				"service":        finding.Service,
			},
		})
	}

	r.mu.Lock()
	r.log.Runs = append(r.log.Runs, run)
	r.mu.Unlock()

	r.logger.Debug("Wrote report to SARIF buffer",
		zap.String("report_id", report.ID),
		zap.Int("results", len(run.Results)),
		zap.Int("rules", len(run.Tool.Driver.Rules)),
		zap.Duration("duration", time.Since(startTime)),
	)
	return nil
}

func (r *SARIFReporter) invocation(report *schemas.Report) *sarif.Invocation {
	inv := &sarif.Invocation{ExecutionSuccessful: true}
	if report.ScanMetadata.CompletedAt != nil {
		inv.EndTimeUTC = pString(report.ScanMetadata.CompletedAt.UTC().Format(time.RFC3339))
		if d, err := time.ParseDuration(report.ScanMetadata.Duration); err == nil {
			inv.StartTimeUTC = pString(report.ScanMetadata.CompletedAt.Add(-d).UTC().Format(time.RFC3339))
		}
	}
	return inv
}

// Close finalizes the SARIF log and writes it to the output writer.
func (r *SARIFReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A log needs at least one run.
	if len(r.log.Runs) == 0 {
		r.log.Runs = append(r.log.Runs, r.newRun())
	}

	var resultsCount int
	for _, run := range r.log.Runs {
		resultsCount += len(run.Results)
	}
	r.logger.Info("Finalizing SARIF report",
		zap.Int("runs", len(r.log.Runs)),
		zap.Int("total_results", resultsCount),
	)

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	encodeErr := encoder.Encode(r.log)
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode SARIF log to JSON", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode SARIF output: %w", encodeErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}

func sanitizeRuleName(name string) string {
	if name == "" {
		return "UNNAMED-VULNERABILITY"
	}
	sanitized := strings.Trim(ruleIDSanitizer.ReplaceAllString(strings.ToUpper(name), "-"), "-")
	if sanitized == "" {
		return "UNKNOWN-VULNERABILITY"
	}
	return sanitized
}

// ensureRule returns the rule ID for the finding, registering a new rule on
// first sight. Distinct definitions sharing a name get numeric suffixes.
func (r *SARIFReporter) ensureRule(state *runState, finding schemas.Finding) string {
	fingerprint := calculateFingerprint(finding)
	if ruleID, exists := state.rulesByFingerprint[fingerprint]; exists {
		return ruleID
	}

	baseRuleID := rulePrefix + sanitizeRuleName(finding.Name)
	usage := state.ruleIDUsage[baseRuleID]
	state.ruleIDUsage[baseRuleID] = usage + 1

	ruleID := baseRuleID
	if usage > 0 {
		ruleID = fmt.Sprintf("%s-%d", baseRuleID, usage)
		r.logger.Debug("Rule ID collision detected, generated new ID with suffix",
			zap.String("base_id", baseRuleID),
			zap.String("final_id", ruleID))
	}

	remediation := results.RemediationFor(finding)
	markdownHelp := fmt.Sprintf("**Vulnerability:** %s\n\n**Description:**\n%s\n\n**Remediation:**\n%s",
		finding.Name, finding.Description, remediation)

	driver := state.run.Tool.Driver
	driver.Rules = append(driver.Rules, &sarif.ReportingDescriptor{
		ID:               ruleID,
		Name:             pString(finding.Name),
		ShortDescription: &sarif.MultiformatMessageString{Text: pString(finding.Name)},
		FullDescription:  &sarif.MultiformatMessageString{Text: pString(finding.Description)},
		Help: &sarif.MultiformatMessageString{
			Text:     pString(remediation),
			Markdown: pString(markdownHelp),
		},
		DefaultConfig: &sarif.ReportingConfiguration{Level: mapSeverityToSARIFLevel(finding.Severity)},
		Properties: &sarif.PropertyBag{
			"tags":              []string{"security", "network"},
			"precision":         "medium",
			"security-severity": securitySeverity(finding),
		},
	})
	state.rulesByFingerprint[fingerprint] = ruleID
	return ruleID
}

func createLocations(finding schemas.Finding) []*sarif.Location {
	service := finding.Service
	if service == "" {
		service = "unknown"
	}
	return []*sarif.Location{{
		PhysicalLocation: &sarif.PhysicalLocation{
			ArtifactLocation: &sarif.ArtifactLocation{URI: pString(finding.Target)},
		},
		LogicalLocations: []*sarif.LogicalLocation{{
			Name:               pString(fmt.Sprintf("%d/%s", finding.Port, service)),
			FullyQualifiedName: pString(fmt.Sprintf("%s:%d", finding.Target, finding.Port)),
			Kind:               pString("service"),
		}},
		Message: &sarif.Message{Text: pString(fmt.Sprintf("Vulnerability found at %s port %d", finding.Target, finding.Port))},
	}}
}

// securitySeverity is the 0-10 score code scanning consumers sort by.
func securitySeverity(f schemas.Finding) string {
	return fmt.Sprintf("%.1f", results.RiskScore(f))
}

func mapSeverityToSARIFLevel(severity schemas.Severity) sarif.Level {
	switch severity.Normalize() {
	case schemas.SeverityCritical, schemas.SeverityHigh:
		return sarif.LevelError
	case schemas.SeverityMedium:
		return sarif.LevelWarning
	default:
		return sarif.LevelNote
	}
}

// pString returns a pointer to the given string value.
func pString(s string) *string {
	return &s
}
