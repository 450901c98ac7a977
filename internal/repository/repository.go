// Package repository declares the storage contracts the services depend on.
// The sqlite subpackage is the only production implementation.
package repository

import (
	"context"

	"github.com/sakif/pollar/internal/model"
	"github.com/sakif/pollar/internal/plan"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateProfile(ctx context.Context, user *model.User) error
	// UpsertIdentity signs in an external identity: it updates or creates
	// the user keyed by email and records the provider if it is new.
	UpsertIdentity(ctx context.Context, id model.Identity) (*model.User, error)
	ListProviders(ctx context.Context, userID string) ([]model.Provider, error)
}

type ProjectRepository interface {
	// CreateProject writes the project, its polls and their options in one
	// transaction.
	CreateProject(ctx context.Context, userID string, draft model.ProjectDraft) (*model.Project, error)
	// AddPoll appends a poll to an existing project.
	AddPoll(ctx context.Context, projectID string, draft model.PollDraft) (*model.Poll, error)
	// GetProject loads a project with its polls and options. It does not
	// check ownership; the caller compares UserID.
	GetProject(ctx context.Context, projectID string) (*model.Project, error)
	ListProjectSummaries(ctx context.Context, userID string) ([]model.ProjectSummary, error)
	ListPollsByUser(ctx context.Context, userID string) ([]model.Poll, error)
	CountPolls(ctx context.Context, projectID string) (int, error)
}

type PollRepository interface {
	// GetPoll loads a poll with its options in creation order.
	GetPoll(ctx context.Context, pollID string) (*model.Poll, error)
	// CastVote runs the whole vote transaction: lifecycle checks against
	// req.Now, capacity guard, both increments, idempotency receipt.
	CastVote(ctx context.Context, req model.VoteRequest) (*model.VoteResult, error)
}

type UsageRepository interface {
	Usage(ctx context.Context, userID string) (plan.Usage, error)
}
