package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/juju/clock"
	"github.com/sakif/pollar/internal/apperror"
	"github.com/sakif/pollar/internal/model"
	"github.com/sakif/pollar/internal/plan"
	"github.com/sakif/pollar/internal/repository"
)

// ProjectService owns project creation, poll creation and the owner-only
// analytics reads.
//
// QUOTA ORDERING:
// Every create path reads the user's usage, runs plan.Evaluate on it, and
// only writes when the report still has room. The plan check has no transactional link to the write, so two
// simultaneous creates can both pass it; at worst a user ends up one
// project or poll over the ceiling. That is accepted: quotas are a billing
// boundary, not a safety invariant.
type ProjectService struct {
	projects repository.ProjectRepository
	users    repository.UserRepository
	usage    repository.UsageRepository
	clock    clock.Clock
	logger   *slog.Logger
}

// NewProjectService creates a ProjectService over the given stores.
func NewProjectService(
	projects repository.ProjectRepository,
	users repository.UserRepository,
	usage repository.UsageRepository,
	clk clock.Clock,
	logger *slog.Logger,
) *ProjectService {
	return &ProjectService{
		projects: projects,
		users:    users,
		usage:    usage,
		clock:    clk,
		logger:   logger,
	}
}

// CreateProject validates the draft, enforces the owner's plan and stores
// the whole project graph atomically.
func (s *ProjectService) CreateProject(ctx context.Context, userID string, draft model.ProjectDraft) (*model.Project, error) {
	draft = draft.Normalize()
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	usage, err := s.usage.Usage(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := plan.Evaluate(user.Plan, usage)
	p := report.Plan
	switch {
	case !report.AllowsProjects(1):
		return nil, s.quotaExceeded(user, "projects", p.MaxProjects)
	case !p.MaxPollsPerProject.Allows(0, len(draft.Polls)):
		return nil, s.quotaExceeded(user, "polls per project", p.MaxPollsPerProject)
	case !report.AllowsPolls(len(draft.Polls)):
		return nil, s.quotaExceeded(user, "polls", p.MaxTotalPolls)
	}

	project, err := s.projects.CreateProject(ctx, userID, draft)
	if err != nil {
		return nil, err
	}

	s.logger.Info("project created",
		slog.String("projectID", project.ID),
		slog.String("userID", userID),
		slog.Int("polls", len(project.Polls)),
	)
	return project, nil
}

// AddPoll appends a poll to one of the caller's projects.
func (s *ProjectService) AddPoll(ctx context.Context, userID, projectID string, draft model.PollDraft) (*model.Poll, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, apperror.ValidationFailed("projectId", "Project ID is required")
	}
	draft = draft.Normalize()
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.ownedProject(ctx, userID, projectID); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	usage, err := s.usage.Usage(ctx, userID)
	if err != nil {
		return nil, err
	}
	inProject, err := s.projects.CountPolls(ctx, projectID)
	if err != nil {
		return nil, err
	}

	report := plan.Evaluate(user.Plan, usage)
	p := report.Plan
	switch {
	case !p.MaxPollsPerProject.Allows(inProject, 1):
		return nil, s.quotaExceeded(user, "polls per project", p.MaxPollsPerProject)
	case !report.AllowsPolls(1):
		return nil, s.quotaExceeded(user, "polls", p.MaxTotalPolls)
	}

	poll, err := s.projects.AddPoll(ctx, projectID, draft)
	if err != nil {
		return nil, err
	}

	s.logger.Info("poll added",
		slog.String("projectID", projectID),
		slog.String("pollID", poll.ID),
	)
	return poll, nil
}

// GetProjectWithAnalytics returns the project and per-poll analytics to
// its owner. Missing and foreign projects look the same from outside.
func (s *ProjectService) GetProjectWithAnalytics(ctx context.Context, userID, projectID string) (*ProjectDetail, error) {
	project, err := s.ownedProject(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	return buildProjectDetail(project, s.clock.Now()), nil
}

// ownedProject loads a project and checks the caller owns it. The precise
// reason for a refusal is logged; the caller only ever gets
// NotFoundOrForbidden.
func (s *ProjectService) ownedProject(ctx context.Context, userID, projectID string) (*model.Project, error) {
	project, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, apperror.ErrProjectNotFound) {
			s.logger.Debug("project lookup refused",
				slog.String("projectID", projectID),
				slog.String("userID", userID),
				slog.String("reason", "not found"),
			)
			return nil, apperror.NotFoundOrForbidden("Project")
		}
		return nil, err
	}
	if project.UserID != userID {
		s.logger.Warn("project lookup refused",
			slog.String("projectID", projectID),
			slog.String("userID", userID),
			slog.String("reason", "not owner"),
		)
		return nil, apperror.NotFoundOrForbidden("Project")
	}
	return project, nil
}

func (s *ProjectService) quotaExceeded(user *model.User, resource string, limit plan.Limit) error {
	s.logger.Info("quota exceeded",
		slog.String("userID", user.ID),
		slog.String("plan", user.Plan.String()),
		slog.String("resource", resource),
	)
	return apperror.New(apperror.ErrQuotaExceeded, "",
		fmt.Sprintf("Your %s plan allows at most %d %s. Upgrade your plan to create more.",
			user.Plan, int(limit), resource))
}
