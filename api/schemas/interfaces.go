package schemas

import (
	"context"
)

// -- Finding Source Interface --

// FindingSource yields the vulnerability findings for a target. Implementations
// may be simulated or import the output of a real scanner.
type FindingSource interface {
	FindFindings(ctx context.Context, target string, scanType ScanType) ([]Finding, error)
}

// -- Text Analysis Interfaces --

// ScanDigest is the input of an executive summary request.
type ScanDigest struct {
	Target          string
	ScanType        ScanType
	Vulnerabilities []Finding
	Duration        string
}

// TextAnalysisProvider produces free-text narrative for a finding set. Output is
// untrusted and may be unusable; callers must be ready to fall back.
type TextAnalysisProvider interface {
	// Analyze returns the sectioned analysis text for the findings on target.
	Analyze(ctx context.Context, vulnerabilities []Finding, target string) (string, error)
	// Summarize returns a short executive summary of the scan.
	Summarize(ctx context.Context, digest ScanDigest) (string, error)
	// TestConnection sends a trivial prompt and returns the reply.
	TestConnection(ctx context.Context) (string, error)
}

// -- LLM Schemas & Interface --

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"
	TierPowerful ModelTier = "powerful"
)

// GenerationOptions controls sampling for a single request.
type GenerationOptions struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"` // Zero means use the model's configured limit.
}

// GenerationRequest encapsulates a complete request to the LLM.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider.
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close releases any resources held by the client.
	Close() error
}
