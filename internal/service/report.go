package service

import (
	"context"
	"fmt"
	"sort"

	"ridehail/internal/audit"
	"ridehail/internal/repository"
)

const defaultAuditLimit = 100

// HourCount is the number of rides created in one hour of the day.
type HourCount struct {
	Hour  string // "HH:00", UTC
	Rides int
}

// ReportService answers admin reporting queries.
type ReportService struct {
	reports repository.ReportRepository
	events  audit.Lister // optional
}

// NewReportService creates a new ReportService. events may be nil.
func NewReportService(reports repository.ReportRepository, events audit.Lister) *ReportService {
	return &ReportService{reports: reports, events: events}
}

// Summary returns system-wide totals.
func (s *ReportService) Summary(ctx context.Context, caller Caller) (*repository.Summary, error) {
	if !caller.IsAdmin() {
		return nil, forbidden("view reports")
	}
	return s.reports.Summary(ctx)
}

// PeakHours returns ride counts per hour of day, in hour order. Hours without
// rides are omitted.
func (s *ReportService) PeakHours(ctx context.Context, caller Caller) ([]HourCount, error) {
	if !caller.IsAdmin() {
		return nil, forbidden("view reports")
	}

	byHour, err := s.reports.RidesPerHour(ctx)
	if err != nil {
		return nil, err
	}

	hours := make([]int, 0, len(byHour))
	for h := range byHour {
		hours = append(hours, h)
	}
	sort.Ints(hours)

	out := make([]HourCount, 0, len(hours))
	for _, h := range hours {
		out = append(out, HourCount{Hour: fmt.Sprintf("%02d:00", h), Rides: byHour[h]})
	}
	return out, nil
}

// RecentAudit returns up to limit audit events, newest first.
func (s *ReportService) RecentAudit(ctx context.Context, caller Caller, limit int) ([]audit.Event, error) {
	if !caller.IsAdmin() {
		return nil, forbidden("view audit log")
	}
	if s.events == nil {
		return []audit.Event{}, nil
	}
	if limit <= 0 || limit > 1000 {
		limit = defaultAuditLimit
	}
	return s.events.Recent(ctx, limit)
}
