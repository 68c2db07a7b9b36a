// -- internal/reporting/reporter.go --
package reporting

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pentestd/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Supported export formats.
const (
	FormatJSON  = "json"
	FormatSARIF = "sarif"
)

// Reporter writes synthesized reports to an output.
type Reporter interface {
	// Write adds a report to the output.
	Write(report *schemas.Report) error
	// Close finalizes the output and closes the underlying writer.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// NopCloser returns w with a Close that does nothing, for writers the
// reporter must not own such as an HTTP response.
func NopCloser(w io.Writer) io.WriteCloser {
	return &nopWriteCloser{w}
}

// ContentType returns the media type of a format's output.
func ContentType(format string) string {
	if format == FormatSARIF {
		return "application/sarif+json"
	}
	return "application/json"
}

// FileExtension returns the conventional file extension for a format.
func FileExtension(format string) string {
	if format == FormatSARIF {
		return ".sarif"
	}
	return ".json"
}

// NewWriter creates a reporter of the given format over writer. The reporter
// takes ownership of the writer.
func NewWriter(format string, writer io.WriteCloser, toolVersion string, logger *zap.Logger) (Reporter, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	switch format {
	case FormatSARIF:
		return NewSARIFReporter(writer, toolVersion, logger), nil
	case FormatJSON, "":
		return NewJSONReporter(writer, logger), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// New creates a reporter based on the specified format and output path. An
// empty path or "stdout" writes to standard output.
func New(format, outputPath, toolVersion string, logger *zap.Logger) (Reporter, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if format != FormatJSON && format != FormatSARIF {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	if outputPath == "" || outputPath == "stdout" {
		return NewWriter(format, NopCloser(os.Stdout), toolVersion, logger)
	}

	path, err := homedir.Expand(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to expand output path %s: %w", outputPath, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	return NewWriter(format, f, toolVersion, logger)
}

// Export writes a single report in the given format to w.
func Export(w io.Writer, format string, report schemas.Report, toolVersion string, logger *zap.Logger) error {
	r, err := NewWriter(format, NopCloser(w), toolVersion, logger)
	if err != nil {
		return err
	}
	if err := r.Write(&report); err != nil {
		_ = r.Close()
		return err
	}
	return r.Close()
}
