// internal/findings/source.go
package findings

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pentestd/api/schemas"
	"github.com/xkilldash9x/pentestd/internal/config"
)

// NewSource builds the finding source selected by the scan configuration.
func NewSource(cfg config.ScanConfig, logger *zap.Logger) (schemas.FindingSource, error) {
	switch cfg.Source {
	case config.SourceCatalog, "":
		return NewCatalogSource(cfg.FindingCounts, logger)
	case config.SourceNmap:
		return NewNmapSource(cfg.NmapDir, logger)
	default:
		return nil, fmt.Errorf("unknown finding source %q", cfg.Source)
	}
}
