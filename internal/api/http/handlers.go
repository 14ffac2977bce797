package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"vendwatch/internal/audit"
	"vendwatch/internal/auth"
	"vendwatch/internal/report"
)

const timeLayout = time.RFC3339

// Runner is a detector pass that can be triggered on demand.
type Runner interface {
	Name() string
	RunPass(ctx context.Context) error
}

// MonitorRunHandler triggers one detector pass outside its schedule.
type MonitorRunHandler struct {
	runners  map[string]Runner
	auditLog audit.Logger
}

// NewMonitorRunHandler constructs a MonitorRunHandler.
func NewMonitorRunHandler(auditLog audit.Logger, runners ...Runner) *MonitorRunHandler {
	byName := make(map[string]Runner, len(runners))
	for _, r := range runners {
		if r != nil {
			byName[r.Name()] = r
		}
	}
	return &MonitorRunHandler{runners: byName, auditLog: auditLog}
}

// ServeHTTP handles POST /api/v1/monitor/run/{detector}.
func (h *MonitorRunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || len(h.runners) == 0 {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/v1/monitor/run/")
	runner, ok := h.runners[name]
	if !ok {
		http.Error(w, "unknown detector", http.StatusNotFound)
		return
	}
	if err := runner.RunPass(r.Context()); err != nil {
		http.Error(w, "detector pass error", http.StatusInternalServerError)
		return
	}
	recordAudit(r, h.auditLog, "monitor.run", "detector", name)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"detector": name, "status": "completed"})
}

// BaselineRunner recomputes hourly baselines.
type BaselineRunner interface {
	Run(ctx context.Context) error
}

// BaselineRunHandler triggers a baseline recompute outside its schedule.
type BaselineRunHandler struct {
	learner  BaselineRunner
	auditLog audit.Logger
}

// NewBaselineRunHandler constructs a BaselineRunHandler.
func NewBaselineRunHandler(learner BaselineRunner, auditLog audit.Logger) *BaselineRunHandler {
	return &BaselineRunHandler{learner: learner, auditLog: auditLog}
}

// ServeHTTP handles POST /api/v1/baseline/run.
func (h *BaselineRunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.learner == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	if err := h.learner.Run(r.Context()); err != nil {
		http.Error(w, "baseline run error", http.StatusInternalServerError)
		return
	}
	recordAudit(r, h.auditLog, "baseline.run", "baseline", "hourly")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "completed"})
}

// SalesReportHandler serves per-partner sales reports.
type SalesReportHandler struct {
	builder *report.Builder
}

// NewSalesReportHandler constructs a SalesReportHandler.
func NewSalesReportHandler(builder *report.Builder) *SalesReportHandler {
	return &SalesReportHandler{builder: builder}
}

// ServeHTTP handles GET /api/v1/reports/sales.
func (h *SalesReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.builder == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	partner := r.URL.Query().Get("partner")
	if partner == "" {
		http.Error(w, "partner is required", http.StatusBadRequest)
		return
	}
	if err := auth.EnsurePartnerScope(r.Context(), partner); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	from, err := parseTimeQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	rep, err := h.builder.Build(r.Context(), partner, from, to)
	if err != nil {
		http.Error(w, "build report error", http.StatusInternalServerError)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rep)
	case report.FormatXLSX:
		data, err := report.Export(rep, report.FormatXLSX)
		if err != nil {
			http.Error(w, "export error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="sales-report.xlsx"`)
		_, _ = w.Write(data)
	case report.FormatPDF:
		data, err := report.Export(rep, report.FormatPDF)
		if err != nil {
			http.Error(w, "export error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="sales-report.pdf"`)
		_, _ = w.Write(data)
	default:
		http.Error(w, "format must be json, xlsx or pdf", http.StatusBadRequest)
	}
}

func recordAudit(r *http.Request, auditLog audit.Logger, action, resourceType, resourceID string) {
	if auditLog == nil {
		return
	}
	ctx := r.Context()
	_ = auditLog.Log(ctx, audit.Entry{
		Partner:      auth.PartnerFromContext(ctx),
		Actor:        auth.SubjectFromContext(ctx),
		Role:         string(auth.RoleFromContext(ctx)),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IP:           r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	})
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}
