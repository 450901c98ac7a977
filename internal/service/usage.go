package service

import (
	"context"
	"log/slog"

	"github.com/sakif/pollar/internal/plan"
	"github.com/sakif/pollar/internal/repository"
)

// UsageService reports a user's consumption against their plan.
type UsageService struct {
	users  repository.UserRepository
	usage  repository.UsageRepository
	logger *slog.Logger
}

// NewUsageService creates a UsageService.
func NewUsageService(users repository.UserRepository, usage repository.UsageRepository, logger *slog.Logger) *UsageService {
	return &UsageService{users: users, usage: usage, logger: logger}
}

// Report aggregates the user's usage and evaluates it against the plan the
// user is on right now.
func (s *UsageService) Report(ctx context.Context, userID string) (plan.Report, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return plan.Report{}, err
	}
	usage, err := s.usage.Usage(ctx, userID)
	if err != nil {
		return plan.Report{}, err
	}

	report := plan.Evaluate(user.Plan, usage)
	if report.Exceeded.Projects || report.Exceeded.Polls || report.Exceeded.Responses {
		s.logger.Info("usage over plan",
			slog.String("userID", userID),
			slog.String("plan", user.Plan.String()),
		)
	}
	return report, nil
}

// Plans returns the public pricing table.
func (s *UsageService) Plans() []plan.Plan {
	return plan.All()
}
