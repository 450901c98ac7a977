package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/sakif/pollar/internal/apperror"
	"github.com/sakif/pollar/internal/model"
	"github.com/sakif/pollar/internal/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProjectService(t *testing.T) (*ProjectService, *fakeStore, *testclock.Clock) {
	t.Helper()
	clk := testclock.NewClock(t0)
	store := newFakeStore(clk.Now)
	return NewProjectService(store, store, store, clk, discardLogger()), store, clk
}

var colorPoll = pollDraft("Pick a color?", "Red", "Blue")

// =========================================================================
// CREATE PROJECT
// =========================================================================

func TestCreateProject(t *testing.T) {
	svc, store, _ := newProjectService(t)
	u := store.addUser("alice@example.com", plan.Free)

	p, err := svc.CreateProject(context.Background(), u.ID, model.ProjectDraft{
		Name:  "  Survey ",
		Owner: "Alice",
		Polls: []model.PollDraft{{Question: "Pick a color?", Options: []string{"Red", "Blue"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Survey", p.Name, "name is trimmed")
	assert.Equal(t, model.DefaultDurationHours, p.Polls[0].Duration, "duration defaults")
}

func TestCreateProject_Validation(t *testing.T) {
	svc, store, _ := newProjectService(t)
	u := store.addUser("alice@example.com", plan.Free)

	tests := []struct {
		name  string
		draft model.ProjectDraft
		want  error
	}{
		{"one option", projectDraft("Survey", pollDraft("Pick a color?", "Red")), apperror.ErrTooFewOptions},
		{"seven options", projectDraft("Survey", pollDraft("Pick a number?", "1", "2", "3", "4", "5", "6", "7")), apperror.ErrTooManyOptions},
		{"duplicate option", projectDraft("Survey", pollDraft("Pick a letter?", "A", "a ")), apperror.ErrDuplicateOptionText},
		{"no polls", projectDraft("Survey"), apperror.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateProject(context.Background(), u.ID, tt.draft)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, store.projects, "nothing may be written for an invalid draft")
}

func TestCreateProject_UnknownUser(t *testing.T) {
	svc, _, _ := newProjectService(t)

	_, err := svc.CreateProject(context.Background(), "ghost", projectDraft("Survey", colorPoll))
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCreateProject_DuplicateName(t *testing.T) {
	svc, store, _ := newProjectService(t)
	u := store.addUser("alice@example.com", plan.Pro)

	_, err := svc.CreateProject(context.Background(), u.ID, projectDraft("Survey", colorPoll))
	require.NoError(t, err)
	_, err = svc.CreateProject(context.Background(), u.ID, projectDraft("Survey", colorPoll))
	assert.ErrorIs(t, err, apperror.ErrDuplicateProjectName)
}

func TestCreateProject_Quota(t *testing.T) {
	tests := []struct {
		name     string
		tier     plan.Tier
		existing int // projects with one poll each
		polls    int // polls in the new project
		wantErr  bool
	}{
		{"free first project", plan.Free, 0, 1, false},
		{"free third project", plan.Free, 2, 1, true},
		{"free three polls in one project", plan.Free, 0, 3, true},
		{"pro third project", plan.Pro, 2, 1, false},
		{"enterprise many", plan.Enterprise, 30, 12, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newProjectService(t)
			u := store.addUser("alice@example.com", tt.tier)
			for i := 0; i < tt.existing; i++ {
				_, err := store.CreateProject(context.Background(), u.ID,
					projectDraft("Existing "+string(rune('A'+i%26))+string(rune('a'+i/26)), colorPoll))
				require.NoError(t, err)
			}

			polls := make([]model.PollDraft, tt.polls)
			for i := range polls {
				polls[i] = colorPoll
			}
			_, err := svc.CreateProject(context.Background(), u.ID, projectDraft("New project", polls...))

			if tt.wantErr {
				assert.ErrorIs(t, err, apperror.ErrQuotaExceeded)
				assert.ErrorIs(t, err, apperror.ErrRejected)
				assert.Len(t, store.projects, tt.existing, "quota must be checked before writing")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAddPoll_PerProjectQuota(t *testing.T) {
	svc, store, _ := newProjectService(t)
	u := store.addUser("alice@example.com", plan.Free)

	// FREE allows two polls per project; First already has both.
	p1, err := svc.CreateProject(context.Background(), u.ID, projectDraft("First", colorPoll, colorPoll))
	require.NoError(t, err)
	_, err = svc.CreateProject(context.Background(), u.ID, projectDraft("Second", colorPoll))
	require.NoError(t, err)

	_, err = svc.AddPoll(context.Background(), u.ID, p1.ID, colorPoll)
	assert.ErrorIs(t, err, apperror.ErrQuotaExceeded, "per-project limit of 2 reached")
}

// =========================================================================
// ADD POLL
// =========================================================================

func TestAddPoll(t *testing.T) {
	svc, store, _ := newProjectService(t)
	alice := store.addUser("alice@example.com", plan.Free)
	bob := store.addUser("bob@example.com", plan.Free)
	p, err := svc.CreateProject(context.Background(), alice.ID, projectDraft("Survey", colorPoll))
	require.NoError(t, err)

	poll, err := svc.AddPoll(context.Background(), alice.ID, p.ID, pollDraft("Pick a size?", "S", "M"))
	require.NoError(t, err)
	assert.Equal(t, "Pick a size?", poll.Question)

	_, err = svc.AddPoll(context.Background(), bob.ID, p.ID, pollDraft("Pick a size?", "S", "M"))
	assert.ErrorIs(t, err, apperror.ErrNotFoundOrForbidden, "foreign project")

	_, err = svc.AddPoll(context.Background(), alice.ID, "missing", pollDraft("Pick a size?", "S", "M"))
	assert.ErrorIs(t, err, apperror.ErrNotFoundOrForbidden, "missing project")

	_, err = svc.AddPoll(context.Background(), alice.ID, "", pollDraft("Pick a size?", "S", "M"))
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.AddPoll(context.Background(), alice.ID, p.ID, pollDraft("Pick a size?", "S"))
	assert.ErrorIs(t, err, apperror.ErrTooFewOptions)
}

// =========================================================================
// ANALYTICS
// =========================================================================

func TestGetProjectWithAnalytics(t *testing.T) {
	svc, store, clk := newProjectService(t)
	alice := store.addUser("alice@example.com", plan.Pro)
	bob := store.addUser("bob@example.com", plan.Free)

	short := pollDraft("Quick one?", "Yes", "No")
	short.Duration = 1
	p, err := svc.CreateProject(context.Background(), alice.ID, projectDraft("Survey", colorPoll, short))
	require.NoError(t, err)

	red, blue := p.Polls[0].Options[0].ID, p.Polls[0].Options[1].ID
	for _, opt := range []string{red, red, blue} {
		_, err := store.CastVote(context.Background(), model.VoteRequest{OptionID: opt, Now: clk.Now()})
		require.NoError(t, err)
	}
	clk.Advance(90 * time.Minute)

	detail, err := svc.GetProjectWithAnalytics(context.Background(), alice.ID, p.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, detail.Project.AgeInHours, "90 minutes floors to 1")
	assert.Equal(t, 2, detail.Project.TotalPolls)
	assert.Equal(t, 3, detail.Project.TotalVotes)
	assert.Equal(t, 3, detail.Project.UniqueRespondents)
	assert.Equal(t, 1, detail.Project.ActivePolls)
	assert.Equal(t, 1, detail.Project.CompletedPolls)
	assert.True(t, detail.Project.IsActive)

	colors := detail.Polls[0]
	assert.True(t, colors.IsActive)
	assert.Equal(t, 67, colors.Options[0].Percentage)
	assert.Equal(t, 33, colors.Options[1].Percentage)

	quick := detail.Polls[1]
	assert.False(t, quick.IsActive, "1h poll is closed after 90 minutes")
	assert.Equal(t, 0, quick.Options[0].Percentage, "no votes means 0%")

	_, err = svc.GetProjectWithAnalytics(context.Background(), bob.ID, p.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFoundOrForbidden)
	_, err = svc.GetProjectWithAnalytics(context.Background(), alice.ID, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFoundOrForbidden)
}

func TestGetProjectWithAnalytics_MissingAndForeignLookAlike(t *testing.T) {
	svc, store, _ := newProjectService(t)
	alice := store.addUser("alice@example.com", plan.Free)
	bob := store.addUser("bob@example.com", plan.Free)
	p, err := svc.CreateProject(context.Background(), alice.ID, projectDraft("Survey", colorPoll))
	require.NoError(t, err)

	_, foreign := svc.GetProjectWithAnalytics(context.Background(), bob.ID, p.ID)
	_, missing := svc.GetProjectWithAnalytics(context.Background(), bob.ID, "nope")
	require.Error(t, foreign)
	require.Error(t, missing)
	assert.Equal(t, foreign.Error(), missing.Error())
}

func TestGetProjectWithAnalytics_StorageFailurePassesThrough(t *testing.T) {
	svc, store, _ := newProjectService(t)
	store.failWith = apperror.Unavailable(errors.New("locked"))

	_, err := svc.GetProjectWithAnalytics(context.Background(), "u", "p")
	assert.ErrorIs(t, err, apperror.ErrUnavailable)
}

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0, percentage(0, 0))
	assert.Equal(t, 50, percentage(1, 2))
	assert.Equal(t, 100, percentage(4, 4))
	assert.Equal(t, 17, percentage(1, 6))
}

// =========================================================================
// DASHBOARD
// =========================================================================

func TestDashboard(t *testing.T) {
	svc, store, clk := newProjectService(t)
	u := store.addUser("alice@example.com", plan.Enterprise)

	old, err := svc.CreateProject(context.Background(), u.ID, projectDraft("Old project", colorPoll))
	require.NoError(t, err)
	_, err = store.CastVote(context.Background(), model.VoteRequest{OptionID: old.Polls[0].Options[0].ID, Now: clk.Now()})
	require.NoError(t, err)

	clk.Advance(8 * 24 * time.Hour)
	for _, name := range []string{"P1", "P2", "P3", "P4", "P5", "P6"} {
		clk.Advance(time.Minute)
		_, err := svc.CreateProject(context.Background(), u.ID, projectDraft(name+" project", colorPoll))
		require.NoError(t, err)
	}

	d, err := svc.Dashboard(context.Background(), u.ID)
	require.NoError(t, err)

	assert.Equal(t, plan.Enterprise, d.CurrentPlan)
	assert.Equal(t, 7, d.TotalProjects)
	assert.Equal(t, 6, d.ActiveProjects, "the old project's poll has expired")
	assert.Equal(t, 7, d.TotalPolls)
	assert.Equal(t, 1, d.TotalVotes)
	require.Len(t, d.RecentProjects, 5)
	assert.Equal(t, "P6 project", d.RecentProjects[0].Name, "newest first")
	for _, r := range d.RecentProjects {
		assert.NotEqual(t, "Old project", r.Name)
	}
}

func TestDashboard_FailsWhenAnyReadFails(t *testing.T) {
	svc, store, _ := newProjectService(t)
	u := store.addUser("alice@example.com", plan.Free)
	store.failWith = apperror.Unavailable(errors.New("locked"))

	_, err := svc.Dashboard(context.Background(), u.ID)
	assert.ErrorIs(t, err, apperror.ErrUnavailable)
}

func TestDashboard_LogsStorageFailuresAtError(t *testing.T) {
	svc, store, _ := newProjectService(t)
	u := store.addUser("alice@example.com", plan.Free)

	var buf bytes.Buffer
	svc.logger = slog.New(slog.NewTextHandler(&buf, nil))

	_, err := svc.Dashboard(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Empty(t, buf.String(), "a missing user is not logged above debug")

	store.failWith = apperror.Unavailable(errors.New("locked"))
	_, err = svc.Dashboard(context.Background(), u.ID)
	require.ErrorIs(t, err, apperror.ErrUnavailable)
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "dashboard read failed")
}
