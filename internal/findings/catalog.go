// internal/findings/catalog.go
package findings

import (
	"context"
	_ "embed"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/pentestd/api/schemas"
	"github.com/xkilldash9x/pentestd/internal/config"
)

//go:embed catalog.yaml
var catalogYAML []byte

// ParseCatalog decodes a YAML list of findings and checks every entry.
func ParseCatalog(data []byte) ([]schemas.Finding, error) {
	var entries []schemas.Finding
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse finding catalog: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("finding catalog is empty")
	}
	for i, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("catalog entry %d: name is required", i)
		}
		if !e.Severity.IsDeclared() {
			return nil, fmt.Errorf("catalog entry %q: unknown severity %q", e.Name, e.Severity)
		}
		if e.Port < 0 || e.Port > 65535 {
			return nil, fmt.Errorf("catalog entry %q: port %d out of range", e.Name, e.Port)
		}
		entries[i].Severity = e.Severity.Normalize()
	}
	return entries, nil
}

var defaultCatalog = sync.OnceValues(func() ([]schemas.Finding, error) {
	return ParseCatalog(catalogYAML)
})

// DefaultCatalog returns a copy of the embedded catalog.
func DefaultCatalog() ([]schemas.Finding, error) {
	entries, err := defaultCatalog()
	if err != nil {
		return nil, err
	}
	return schemas.CloneFindings(entries), nil
}

// CatalogSource simulates discovery by drawing a uniformly shuffled subset of
// the catalog. The subset size depends on the scan type.
type CatalogSource struct {
	catalog []schemas.Finding
	counts  config.FindingCountsConfig
	logger  *zap.Logger

	mu  sync.Mutex // guards rng
	rng *rand.Rand
	now func() time.Time
}

// CatalogOption customizes a CatalogSource.
type CatalogOption func(*CatalogSource)

// WithRand makes the shuffle reproducible.
func WithRand(r *rand.Rand) CatalogOption {
	return func(s *CatalogSource) { s.rng = r }
}

// WithClock overrides the discovery timestamp.
func WithClock(now func() time.Time) CatalogOption {
	return func(s *CatalogSource) { s.now = now }
}

// WithCatalog replaces the embedded catalog.
func WithCatalog(entries []schemas.Finding) CatalogOption {
	return func(s *CatalogSource) { s.catalog = schemas.CloneFindings(entries) }
}

// NewCatalogSource builds a source over the embedded catalog.
func NewCatalogSource(counts config.FindingCountsConfig, logger *zap.Logger, opts ...CatalogOption) (*CatalogSource, error) {
	s := &CatalogSource{
		counts: counts,
		logger: logger.Named("catalog_source"),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.catalog == nil {
		entries, err := DefaultCatalog()
		if err != nil {
			return nil, err
		}
		s.catalog = entries
	}
	return s, nil
}

// CountFor returns the number of findings a scan of the given type yields.
func (s *CatalogSource) CountFor(scanType schemas.ScanType) int {
	n := s.counts.Stealth
	switch scanType {
	case schemas.ScanTypeComprehensive:
		n = s.counts.Comprehensive
	case schemas.ScanTypeBasic:
		n = s.counts.Basic
	}
	return min(max(n, 0), len(s.catalog))
}

// FindFindings implements schemas.FindingSource.
func (s *CatalogSource) FindFindings(ctx context.Context, target string, scanType schemas.ScanType) ([]schemas.Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pool := schemas.CloneFindings(s.catalog)
	s.mu.Lock()
	s.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	s.mu.Unlock()

	n := s.CountFor(scanType)
	out := pool[:n:n]
	discovered := s.now()
	for i := range out {
		out[i].Target = target
		out[i].DiscoveredAt = discovered
	}

	s.logger.Debug("Drew findings from catalog",
		zap.String("target", target),
		zap.String("scan_type", string(scanType)),
		zap.Int("count", n))
	return out, nil
}
