package api

import (
	"net/http"

	"github.com/skilldeck/telemetry/pkg/httputil"
)

// getOverview handles GET /v1/analytics/overview
// Query params:
//   - days: Trailing window length - default: 7
func (s *Server) getOverview(w http.ResponseWriter, r *http.Request) {
	days := httputil.ParseQueryInt(r, "days", 7)

	overview, err := s.store.GetOverview(r.Context(), days)
	if err != nil {
		s.logger.WithError(err).Error("Failed to compute overview")
		httputil.WriteInternalError(w, "failed to fetch overview")
		return
	}
	httputil.WriteSuccess(w, overview)
}

// getTopSkills handles GET /v1/analytics/top_skills
// Query params:
//   - days: Trailing window length - default: 7
//   - limit: Number of results - default: 10
func (s *Server) getTopSkills(w http.ResponseWriter, r *http.Request) {
	days := httputil.ParseQueryInt(r, "days", 7)
	limit := httputil.ParseQueryInt(r, "limit", 10)

	skills, err := s.store.GetTopSkills(r.Context(), days, limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to rank top skills")
		httputil.WriteInternalError(w, "failed to fetch top skills")
		return
	}
	httputil.WriteSuccess(w, emptyIfNil(skills))
}

// getDailyTrend handles GET /v1/analytics/daily_trend
// Query params:
//   - days: Trailing window length - default: 30
func (s *Server) getDailyTrend(w http.ResponseWriter, r *http.Request) {
	days := httputil.ParseQueryInt(r, "days", 30)

	trend, err := s.store.GetDailyTrend(r.Context(), days)
	if err != nil {
		s.logger.WithError(err).Error("Failed to read daily trend")
		httputil.WriteInternalError(w, "failed to fetch daily trend")
		return
	}
	httputil.WriteSuccess(w, emptyIfNil(trend))
}

// getSuccessRateTrend handles GET /v1/analytics/success_rate
// Query params:
//   - days: Trailing window length - default: 30
//   - skill_id: Restrict to one skill - default: all skills combined
func (s *Server) getSuccessRateTrend(w http.ResponseWriter, r *http.Request) {
	days := httputil.ParseQueryInt(r, "days", 30)
	skillID := httputil.ParseQueryString(r, "skill_id", "")

	trend, err := s.store.GetSuccessRateTrend(r.Context(), skillID, days)
	if err != nil {
		s.logger.WithError(err).Error("Failed to read success rate trend")
		httputil.WriteInternalError(w, "failed to fetch success rate trend")
		return
	}
	httputil.WriteSuccess(w, emptyIfNil(trend))
}

// getCostSummary handles GET /v1/analytics/cost_summary
// Query params:
//   - days: Trailing window length - default: 30
func (s *Server) getCostSummary(w http.ResponseWriter, r *http.Request) {
	days := httputil.ParseQueryInt(r, "days", 30)

	summary, err := s.store.GetCostSummary(r.Context(), days)
	if err != nil {
		s.logger.WithError(err).Error("Failed to read cost summary")
		httputil.WriteInternalError(w, "failed to fetch cost summary")
		return
	}
	httputil.WriteSuccess(w, emptyIfNil(summary))
}

// getCallerAnalysis handles GET /v1/analytics/caller_analysis
// Query params:
//   - days: Trailing window length - default: 30
func (s *Server) getCallerAnalysis(w http.ResponseWriter, r *http.Request) {
	days := httputil.ParseQueryInt(r, "days", 30)

	deps, err := s.store.GetCallerAnalysis(r.Context(), days)
	if err != nil {
		s.logger.WithError(err).Error("Failed to read caller analysis")
		httputil.WriteInternalError(w, "failed to fetch caller analysis")
		return
	}
	httputil.WriteSuccess(w, emptyIfNil(deps))
}

// getUserRetention handles GET /v1/analytics/user_retention
// Query params:
//   - days: Trailing window length - default: 30
func (s *Server) getUserRetention(w http.ResponseWriter, r *http.Request) {
	days := httputil.ParseQueryInt(r, "days", 30)

	pairs, err := s.store.GetUserRetention(r.Context(), days)
	if err != nil {
		s.logger.WithError(err).Error("Failed to read user retention")
		httputil.WriteInternalError(w, "failed to fetch user retention")
		return
	}
	httputil.WriteSuccess(w, emptyIfNil(pairs))
}

// getAlerts handles GET /v1/analytics/alerts
// Returns unresolved alerts, newest first.
func (s *Server) getAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.store.GetActiveAlerts(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to read active alerts")
		httputil.WriteInternalError(w, "failed to fetch alerts")
		return
	}
	httputil.WriteSuccess(w, emptyIfNil(alerts))
}

// ackAlert handles POST /v1/analytics/alerts/{id}/ack
func (s *Server) ackAlert(w http.ResponseWriter, r *http.Request) {
	alertID, err := httputil.ParsePathString(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	found, err := s.store.AcknowledgeAlert(r.Context(), alertID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to acknowledge alert")
		httputil.WriteInternalError(w, "failed to acknowledge alert")
		return
	}
	if !found {
		httputil.WriteNotFound(w, "alert not found")
		return
	}
	httputil.WriteSuccess(w, map[string]bool{"acknowledged": true})
}

// emptyIfNil keeps list endpoints returning [] instead of null.
func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
