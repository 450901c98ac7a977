package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sakif/pollar/internal/apperror"
	"github.com/sakif/pollar/internal/model"
	"github.com/sakif/pollar/internal/plan"
	"github.com/sakif/pollar/internal/repository"
)

// =========================================================================
// FAKE STORE
// =========================================================================
//
// fakeStore is an in-memory implementation of every repository interface.
// It keeps just enough behaviour for the service rules to be exercised;
// the real transactional semantics are tested in repository/sqlite.

var (
	_ repository.UserRepository    = (*fakeStore)(nil)
	_ repository.ProjectRepository = (*fakeStore)(nil)
	_ repository.PollRepository    = (*fakeStore)(nil)
	_ repository.UsageRepository   = (*fakeStore)(nil)
)

type fakeStore struct {
	mu        sync.Mutex
	now       func() time.Time
	nextID    int
	users     map[string]*model.User
	providers map[string][]model.Provider
	projects  map[string]*model.Project // polls stored inside

	// set to simulate a storage failure on every call
	failWith error
	// last request seen by CastVote
	lastVote model.VoteRequest
	// result CastVote returns when set
	voteResult *model.VoteResult
}

func newFakeStore(now func() time.Time) *fakeStore {
	return &fakeStore{
		now:       now,
		users:     map[string]*model.User{},
		providers: map[string][]model.Provider{},
		projects:  map[string]*model.Project{},
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) addUser(email string, tier plan.Tier) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &model.User{ID: f.id("user"), Email: email, Name: "Test", Plan: tier, CreatedAt: f.now()}
	f.users[u.ID] = u
	return u
}

// ---- users ----

func (f *fakeStore) CreateUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	for _, u := range f.users {
		if strings.EqualFold(u.Email, user.Email) {
			return apperror.New(apperror.ErrDuplicateEmail, "email", "An account with this email already exists")
		}
	}
	user.ID = f.id("user")
	user.CreatedAt, user.UpdatedAt = f.now(), f.now()
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	c := *u
	return &c, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeStore) UpdateProfile(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[user.ID]
	if !ok {
		return apperror.NotFound("user", user.ID)
	}
	u.Name, u.AvatarURL = user.Name, user.AvatarURL
	return nil
}

func (f *fakeStore) UpsertIdentity(_ context.Context, id model.Identity) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var user *model.User
	for _, u := range f.users {
		if strings.EqualFold(u.Email, id.Email) {
			user = u
		}
	}
	if user == nil {
		user = &model.User{ID: f.id("user"), Email: id.Email, Name: id.Name, Plan: plan.Free}
		f.users[user.ID] = user
	}
	for _, p := range f.providers[user.ID] {
		if p.Name == id.Provider {
			c := *user
			return &c, nil
		}
	}
	f.providers[user.ID] = append(f.providers[user.ID], model.Provider{UserID: user.ID, Name: id.Provider})
	c := *user
	return &c, nil
}

func (f *fakeStore) ListProviders(_ context.Context, userID string) ([]model.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Provider{}, f.providers[userID]...), nil
}

// ---- projects ----

func (f *fakeStore) CreateProject(_ context.Context, userID string, draft model.ProjectDraft) (*model.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	for _, p := range f.projects {
		if p.UserID == userID && p.Name == draft.Name {
			return nil, apperror.New(apperror.ErrDuplicateProjectName, "name", "A project with this name already exists")
		}
	}
	p := &model.Project{ID: f.id("project"), UserID: userID, Name: draft.Name, Owner: draft.Owner,
		Description: draft.Description, CreatedAt: f.now(), UpdatedAt: f.now()}
	for i, d := range draft.Polls {
		p.Polls = append(p.Polls, f.newPoll(p.ID, i, d))
	}
	f.projects[p.ID] = p
	return p, nil
}

func (f *fakeStore) newPoll(projectID string, position int, d model.PollDraft) model.Poll {
	poll := model.Poll{ID: f.id("poll"), ProjectID: projectID, Question: d.Question, Duration: d.Duration,
		MaxVotes: d.MaxVotes, Position: position, CreatedAt: f.now()}
	for i, text := range d.Options {
		poll.Options = append(poll.Options, model.Option{ID: f.id("opt"), PollID: poll.ID, Text: text, Position: i})
	}
	return poll
}

func (f *fakeStore) AddPoll(_ context.Context, projectID string, draft model.PollDraft) (*model.Poll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[projectID]
	if !ok {
		return nil, apperror.New(apperror.ErrProjectNotFound, "", "Project not found")
	}
	poll := f.newPoll(projectID, len(p.Polls), draft)
	p.Polls = append(p.Polls, poll)
	return &poll, nil
}

func (f *fakeStore) GetProject(_ context.Context, projectID string) (*model.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	p, ok := f.projects[projectID]
	if !ok {
		return nil, apperror.New(apperror.ErrProjectNotFound, "", "Project not found")
	}
	c := *p
	c.Polls = append([]model.Poll{}, p.Polls...)
	return &c, nil
}

func (f *fakeStore) ListProjectSummaries(_ context.Context, userID string) ([]model.ProjectSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	out := []model.ProjectSummary{}
	for _, p := range f.projects {
		if p.UserID != userID {
			continue
		}
		s := model.ProjectSummary{Project: *p, PollCount: len(p.Polls)}
		s.Polls = nil
		for _, poll := range p.Polls {
			s.TotalRespondents += poll.Respondents
		}
		out = append(out, s)
	}
	// newest first, like the real store
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.After(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (f *fakeStore) ListPollsByUser(_ context.Context, userID string) ([]model.Poll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Poll{}
	for _, p := range f.projects {
		if p.UserID == userID {
			out = append(out, p.Polls...)
		}
	}
	return out, nil
}

func (f *fakeStore) CountPolls(_ context.Context, projectID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.projects[projectID]; ok {
		return len(p.Polls), nil
	}
	return 0, nil
}

// ---- polls ----

func (f *fakeStore) GetPoll(_ context.Context, pollID string) (*model.Poll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.projects {
		for _, poll := range p.Polls {
			if poll.ID == pollID {
				c := poll
				return &c, nil
			}
		}
	}
	return nil, apperror.New(apperror.ErrPollNotFound, "", "Poll not found")
}

// CastVote applies the lifecycle rule and increments in memory.
func (f *fakeStore) CastVote(_ context.Context, req model.VoteRequest) (*model.VoteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastVote = req
	if f.failWith != nil {
		return nil, f.failWith
	}
	if f.voteResult != nil {
		return f.voteResult, nil
	}
	for _, p := range f.projects {
		for i := range p.Polls {
			poll := &p.Polls[i]
			for j := range poll.Options {
				if poll.Options[j].ID != req.OptionID {
					continue
				}
				if err := poll.CheckOpen(req.Now); err != nil {
					return nil, err
				}
				poll.Options[j].Votes++
				poll.Respondents++
				return &model.VoteResult{PollID: poll.ID, OptionID: req.OptionID, NewVoteCount: poll.Options[j].Votes}, nil
			}
		}
	}
	return nil, apperror.New(apperror.ErrOptionNotFound, "optionId", "Option not found")
}

// ---- usage ----

func (f *fakeStore) Usage(_ context.Context, userID string) (plan.Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return plan.Usage{}, f.failWith
	}
	var u plan.Usage
	for _, p := range f.projects {
		if p.UserID != userID {
			continue
		}
		u.TotalProjects++
		u.TotalPolls += len(p.Polls)
		for _, poll := range p.Polls {
			u.TotalResponses += poll.Respondents
		}
	}
	return u, nil
}

// =========================================================================
// HELPERS
// =========================================================================

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) RecordVote(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[outcome]++
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pollDraft(question string, options ...string) model.PollDraft {
	return model.PollDraft{Question: question, Options: options, Duration: 24}
}

func projectDraft(name string, polls ...model.PollDraft) model.ProjectDraft {
	return model.ProjectDraft{Name: name, Owner: "Alice", Polls: polls}
}
