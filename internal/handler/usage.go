package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/pollar/internal/plan"
	"github.com/sakif/pollar/internal/service"
)

// UsageHandler serves the plan and usage endpoints.
type UsageHandler struct {
	usage  *service.UsageService
	logger *slog.Logger
}

// NewUsageHandler creates a UsageHandler.
func NewUsageHandler(usage *service.UsageService, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{usage: usage, logger: logger}
}

type limitsBody struct {
	MaxProjects        plan.Limit `json:"maxProjects"`
	MaxPollsPerProject plan.Limit `json:"maxPollsPerProject"`
	MaxTotalPolls      plan.Limit `json:"maxTotalPolls"`
	MaxResponses       plan.Limit `json:"maxResponses"`
	PrioritySupport    bool       `json:"prioritySupport"`
}

// usageBody flattens totals and what is left into one object.
type usageBody struct {
	plan.Usage
	plan.Remaining
}

type usageResponse struct {
	Success     bool          `json:"success"`
	CurrentPlan plan.Tier     `json:"currentPlan"`
	Limits      limitsBody    `json:"limits"`
	Usage       usageBody     `json:"usage"`
	Exceeded    plan.Exceeded `json:"exceeded"`
	IsUnlimited bool          `json:"isUnlimited"`
}

// HandleUsage reports consumption against the caller's plan.
//
// HTTP: GET /usage
//
// Unlike the other endpoints the fields sit next to `success` rather than
// under `data`; unbounded ceilings and remainders are null.
func (h *UsageHandler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	report, err := h.usage.Report(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, usageResponse{
		Success:     true,
		CurrentPlan: report.Plan.Tier,
		Limits: limitsBody{
			MaxProjects:        report.Plan.MaxProjects,
			MaxPollsPerProject: report.Plan.MaxPollsPerProject,
			MaxTotalPolls:      report.Plan.MaxTotalPolls,
			MaxResponses:       report.Plan.MaxResponses,
			PrioritySupport:    report.Plan.PrioritySupport,
		},
		Usage:       usageBody{Usage: report.Usage, Remaining: report.Remaining},
		Exceeded:    report.Exceeded,
		IsUnlimited: report.Unlimited,
	})
}

// HandlePlans returns the public pricing table.
//
// HTTP: GET /plans
func (h *UsageHandler) HandlePlans(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, "", h.usage.Plans())
}
