package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/pollar/internal/apperror"
	"github.com/sakif/pollar/internal/auth"
	"github.com/sakif/pollar/internal/model"
	"github.com/sakif/pollar/internal/service"
)

// ProjectHandler serves the owner-only project endpoints. Every route is
// mounted behind auth.RequireAuth.
type ProjectHandler struct {
	projects *service.ProjectService
	logger   *slog.Logger
}

// NewProjectHandler creates a ProjectHandler.
func NewProjectHandler(projects *service.ProjectService, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, logger: logger}
}

// userID returns the authenticated principal. RequireAuth guarantees it is
// present; the check covers a route mounted without the middleware.
func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Authentication required"))
	}
	return id, ok
}

// HandleCreate creates a project with its initial polls.
//
// HTTP: POST /projects
// REQUEST BODY: {"name", "owner", "description", "polls": [{"question", "options", "duration", "maxVotes"}]}
func (h *ProjectHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var draft model.ProjectDraft
	if err := decodeJSON(w, r, &draft); err != nil {
		writeError(w, err)
		return
	}

	project, err := h.projects.CreateProject(r.Context(), uid, draft)
	if err != nil {
		writeError(w, err)
		return
	}

	writeOK(w, http.StatusCreated, "Project created successfully", map[string]string{"projectId": project.ID})
}

// HandleGet returns a project with per-poll analytics.
//
// HTTP: GET /projects/{id}
//
// A project that does not exist and a project owned by someone else both
// answer 404 with the same body.
func (h *ProjectHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	detail, err := h.projects.GetProjectWithAnalytics(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "", detail)
}

type addPollRequest struct {
	ProjectID string `json:"projectId"`
	model.PollDraft
}

type addPollResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Poll    *model.Poll `json:"poll"`
}

// HandleAddPoll appends a poll to an existing project.
//
// HTTP: POST /projects/add-poll
// REQUEST BODY: {"projectId", "question", "options", "duration", "maxVotes"}
//
// The response carries the poll at the top level as {success, poll}.
func (h *ProjectHandler) HandleAddPoll(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req addPollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	poll, err := h.projects.AddPoll(r.Context(), uid, req.ProjectID, req.PollDraft)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, addPollResponse{
		Success: true,
		Message: "Poll added successfully",
		Poll:    poll,
	})
}

// HandleDashboard returns the signed-in user's overview.
//
// HTTP: GET /dashboard
func (h *ProjectHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	d, err := h.projects.Dashboard(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, "", d)
}
