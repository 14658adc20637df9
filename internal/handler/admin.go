package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ridehail/internal/domain"
	"ridehail/internal/service"
)

// AdminHandler serves admin reports.
type AdminHandler struct {
	reports *service.ReportService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(reports *service.ReportService) *AdminHandler {
	return &AdminHandler{reports: reports}
}

// SummaryResponse is the admin totals report.
type SummaryResponse struct {
	TotalRides      int     `json:"total_rides"`
	CompletedRides  int     `json:"completed_rides"`
	TotalRevenue    float64 `json:"total_revenue"`
	TotalDrivers    int     `json:"total_drivers"`
	ActiveDrivers   int     `json:"active_drivers"`
	TotalPassengers int     `json:"total_passengers"`
}

// PeakHourResponse is one hour of the peak hours report.
type PeakHourResponse struct {
	Hour  string `json:"hour"`
	Rides int    `json:"rides"`
}

// AuditEventResponse is one audit log entry.
type AuditEventResponse struct {
	Actor   string `json:"actor"`
	Action  string `json:"action"`
	Details string `json:"details"`
	At      string `json:"at"`
}

// Summary handles GET /v1/admin/reports/summary
func (h *AdminHandler) Summary(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	s, err := h.reports.Summary(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, SummaryResponse{
		TotalRides:      s.TotalRides,
		CompletedRides:  s.CompletedRides,
		TotalRevenue:    domain.Round2(s.TotalRevenue),
		TotalDrivers:    s.TotalDrivers,
		ActiveDrivers:   s.ActiveDrivers,
		TotalPassengers: s.TotalPassengers,
	})
}

// PeakHours handles GET /v1/admin/reports/peak-hours
func (h *AdminHandler) PeakHours(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	hours, err := h.reports.PeakHours(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]PeakHourResponse, 0, len(hours))
	for _, hc := range hours {
		response = append(response, PeakHourResponse{Hour: hc.Hour, Rides: hc.Rides})
	}
	respondJSON(c, http.StatusOK, response)
}

// AuditLogs handles GET /v1/admin/audit-logs?limit=
func (h *AdminHandler) AuditLogs(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "limit must be an integer")
			return
		}
		limit = n
	}

	events, err := h.reports.RecentAudit(c.Request.Context(), caller, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]AuditEventResponse, 0, len(events))
	for _, e := range events {
		response = append(response, AuditEventResponse{
			Actor:   e.Actor,
			Action:  string(e.Action),
			Details: e.Details,
			At:      formatTime(e.At),
		})
	}
	respondJSON(c, http.StatusOK, response)
}
