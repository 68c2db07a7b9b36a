package reporting

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pentestd/api/schemas"
)

// JSONReporter writes reports in their API representation. A single report
// is written as an object, several as an array.
type JSONReporter struct {
	writer  io.WriteCloser
	logger  *zap.Logger
	mu      sync.Mutex
	reports []schemas.Report
}

// NewJSONReporter creates a reporter that writes indented JSON on Close.
func NewJSONReporter(writer io.WriteCloser, logger *zap.Logger) *JSONReporter {
	return &JSONReporter{
		writer: writer,
		logger: logger.Named("json_reporter"),
	}
}

// Write buffers a copy of the report.
func (r *JSONReporter) Write(report *schemas.Report) error {
	if report == nil {
		return fmt.Errorf("report must not be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report.Clone())
	return nil
}

// Close encodes the buffered reports and closes the writer.
func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var payload any = r.reports
	if len(r.reports) == 1 {
		payload = r.reports[0]
	} else if r.reports == nil {
		payload = []schemas.Report{}
	}

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	encodeErr := encoder.Encode(payload)
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode reports to JSON", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode JSON output: %w", encodeErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	r.logger.Debug("Wrote JSON report output", zap.Int("reports", len(r.reports)))
	return nil
}
