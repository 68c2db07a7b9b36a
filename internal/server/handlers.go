// File: internal/server/handlers.go
package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pentestd/api/schemas"
	"github.com/xkilldash9x/pentestd/internal/reporting"
)

const maxBodyBytes = 1 << 20

// ScanService is the part of the scan state machine the API drives.
type ScanService interface {
	CreateScan(ctx context.Context, target string, scanType schemas.ScanType, description string) (schemas.Scan, error)
	GetScan(ctx context.Context, id string) (schemas.Scan, error)
	ListScans(ctx context.Context) []schemas.Scan
	Start(id string)
	Cancel(ctx context.Context, id string) (schemas.Scan, error)
}

// ReportService is the part of the report synthesizer the API drives.
type ReportService interface {
	Synthesize(ctx context.Context, scanID string) (schemas.Report, error)
	GetReport(id string) (schemas.Report, error)
	ListReports() []schemas.Report
	TestProvider(ctx context.Context) (string, error)
	ProviderConfigured() bool
}

// Handlers serves the scan and report API.
type Handlers struct {
	log     *zap.Logger
	scans   ScanService
	reports ReportService
	version string
	now     func() time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(logger *zap.Logger, scans ScanService, reports ReportService, version string) *Handlers {
	return &Handlers{
		log:     logger.Named("api_handlers"),
		scans:   scans,
		reports: reports,
		version: version,
		now:     time.Now,
	}
}

// RegisterRoutes mounts the API under /api.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)
		r.Get("/test-provider", h.HandleTestProvider)

		r.Route("/scans", func(r chi.Router) {
			r.Get("/", h.HandleListScans)
			r.Post("/", h.HandleCreateScan)
			r.Get("/{scanID}", h.HandleGetScan)
			r.Post("/{scanID}/cancel", h.HandleCancelScan)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/", h.HandleListReports)
			r.Post("/generate", h.HandleGenerateReport)
			r.Get("/{reportID}", h.HandleGetReport)
			r.Get("/{reportID}/export/{format}", h.HandleExportReport)
		})
	})
}

type healthResponse struct {
	Status             string    `json:"status"`
	Timestamp          time.Time `json:"timestamp"`
	ProviderConfigured bool      `json:"providerConfigured"`
	Version            string    `json:"version"`
}

// HandleHealth reports liveness and whether a text analysis provider is wired in.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, h.log, http.StatusOK, healthResponse{
		Status:             "OK",
		Timestamp:          h.now().UTC(),
		ProviderConfigured: h.reports.ProviderConfigured(),
		Version:            h.version,
	})
}

type testProviderResponse struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HandleTestProvider sends a trivial prompt to the provider.
func (h *Handlers) HandleTestProvider(w http.ResponseWriter, r *http.Request) {
	result, err := h.reports.TestProvider(r.Context())
	if err != nil {
		h.log.Warn("Provider connection test failed", zap.Error(err))
		WriteJSON(w, h.log, http.StatusInternalServerError, testProviderResponse{Error: err.Error()})
		return
	}
	WriteJSON(w, h.log, http.StatusOK, testProviderResponse{Success: true, Result: result})
}

// -- Scans --

type createScanRequest struct {
	Target      string `json:"target"`
	ScanType    string `json:"scanType"`
	Description string `json:"description"`
}

func (h *Handlers) HandleListScans(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, h.log, http.StatusOK, h.scans.ListScans(r.Context()))
}

// HandleCreateScan validates the request, creates a pending scan and starts
// advancing it in the background.
func (h *Handlers) HandleCreateScan(w http.ResponseWriter, r *http.Request) {
	var req createScanRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, r, h.log, err)
		return
	}

	scan, err := h.scans.CreateScan(r.Context(), req.Target, schemas.ScanType(req.ScanType), req.Description)
	if err != nil {
		WriteError(w, r, h.log, err)
		return
	}
	h.scans.Start(scan.ID)
	WriteJSON(w, h.log, http.StatusCreated, scan)
}

func (h *Handlers) HandleGetScan(w http.ResponseWriter, r *http.Request) {
	scan, err := h.scans.GetScan(r.Context(), chi.URLParam(r, "scanID"))
	if err != nil {
		WriteError(w, r, h.log, err)
		return
	}
	WriteJSON(w, h.log, http.StatusOK, scan)
}

func (h *Handlers) HandleCancelScan(w http.ResponseWriter, r *http.Request) {
	scan, err := h.scans.Cancel(r.Context(), chi.URLParam(r, "scanID"))
	if err != nil {
		WriteError(w, r, h.log, err)
		return
	}
	WriteJSON(w, h.log, http.StatusOK, scan)
}

// -- Reports --

type generateReportRequest struct {
	ScanID string `json:"scanId"`
}

func (h *Handlers) HandleListReports(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, h.log, http.StatusOK, h.reports.ListReports())
}

// HandleGenerateReport synthesizes the report for a completed scan.
func (h *Handlers) HandleGenerateReport(w http.ResponseWriter, r *http.Request) {
	var req generateReportRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, r, h.log, err)
		return
	}
	if strings.TrimSpace(req.ScanID) == "" {
		WriteError(w, r, h.log, &schemas.ValidationError{Field: "scanId", Reason: "is required"})
		return
	}

	report, err := h.reports.Synthesize(r.Context(), req.ScanID)
	if err != nil {
		WriteError(w, r, h.log, err)
		return
	}
	WriteJSON(w, h.log, http.StatusCreated, report)
}

func (h *Handlers) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.GetReport(chi.URLParam(r, "reportID"))
	if err != nil {
		WriteError(w, r, h.log, err)
		return
	}
	WriteJSON(w, h.log, http.StatusOK, report)
}

// HandleExportReport renders a report as a JSON or SARIF download.
func (h *Handlers) HandleExportReport(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(chi.URLParam(r, "format"))
	if format != reporting.FormatJSON && format != reporting.FormatSARIF {
		WriteError(w, r, h.log, &schemas.ValidationError{Field: "format", Reason: "must be json or sarif"})
		return
	}

	report, err := h.reports.GetReport(chi.URLParam(r, "reportID"))
	if err != nil {
		WriteError(w, r, h.log, err)
		return
	}

	// Render into a buffer so an encoding failure can still produce a 500.
	var buf bytes.Buffer
	if err := reporting.Export(&buf, format, report, h.version, h.log); err != nil {
		WriteError(w, r, h.log, err)
		return
	}

	w.Header().Set("Content-Type", reporting.ContentType(format))
	w.Header().Set("Content-Disposition",
		`attachment; filename="report-`+report.ID+reporting.FileExtension(format)+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.log.Warn("Failed to write export", zap.String("report_id", report.ID), zap.Error(err))
	}
}

// decodeBody reads a bounded JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return &schemas.ValidationError{Field: "body", Reason: "could not be read"}
	}
	if len(body) > maxBodyBytes {
		return &schemas.ValidationError{Field: "body", Reason: "exceeds 1MiB"}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return &schemas.ValidationError{Field: "body", Reason: "is required"}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &schemas.ValidationError{Field: "body", Reason: "malformed JSON: " + err.Error()}
	}
	return nil
}
