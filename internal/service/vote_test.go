package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/sakif/pollar/internal/apperror"
	"github.com/sakif/pollar/internal/model"
	"github.com/sakif/pollar/internal/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

type voteFixture struct {
	svc      *VoteService
	store    *fakeStore
	clock    *testclock.Clock
	recorder *countingRecorder
	poll     model.Poll
}

func newVoteFixture(t *testing.T, draft model.PollDraft) *voteFixture {
	t.Helper()
	clk := testclock.NewClock(t0)
	store := newFakeStore(clk.Now)
	user := store.addUser("alice@example.com", plan.Free)
	p, err := store.CreateProject(context.Background(), user.ID, projectDraft("Survey", draft.Normalize()))
	require.NoError(t, err)

	rec := &countingRecorder{}
	return &voteFixture{
		svc:      NewVoteService(store, clk, rec, discardLogger()),
		store:    store,
		clock:    clk,
		recorder: rec,
		poll:     p.Polls[0],
	}
}

func TestSubmitVote_EndToEnd(t *testing.T) {
	f := newVoteFixture(t, pollDraft("Pick a color?", "Red", "Blue"))
	red := f.poll.Options[0]

	res, err := f.svc.SubmitVote(context.Background(), red.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.NewVoteCount)
	assert.Equal(t, f.poll.ID, res.PollID)

	view, err := f.svc.GetPollView(context.Background(), f.poll.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Options[0].Votes)
	assert.Equal(t, 0, view.Options[1].Votes)
	assert.Equal(t, 1, view.Respondents)
	assert.True(t, view.IsActive)
	assert.Equal(t, 1, f.recorder.counts[OutcomeAccepted])
}

func TestSubmitVote_UsesInjectedClock(t *testing.T) {
	d := pollDraft("Pick a color?", "Red", "Blue")
	d.Duration = 1
	f := newVoteFixture(t, d)
	opt := f.poll.Options[0].ID

	f.clock.Advance(time.Duration(0.99 * float64(time.Hour)))
	_, err := f.svc.SubmitVote(context.Background(), opt, "")
	require.NoError(t, err, "vote at 0.99h must be accepted")
	assert.Equal(t, f.clock.Now(), f.store.lastVote.Now)

	f.clock.Advance(time.Duration(0.02 * float64(time.Hour)))
	_, err = f.svc.SubmitVote(context.Background(), opt, "")
	assert.ErrorIs(t, err, apperror.ErrPollExpired)
	assert.Equal(t, 1, f.recorder.counts[OutcomeExpired])

	view, err := f.svc.GetPollView(context.Background(), f.poll.ID)
	require.NoError(t, err)
	assert.False(t, view.IsActive)
}

func TestSubmitVote_Validation(t *testing.T) {
	f := newVoteFixture(t, pollDraft("Pick a color?", "Red", "Blue"))

	tests := []struct {
		name      string
		optionID  string
		key       string
		wantField string
	}{
		{"missing option", "  ", "", "optionId"},
		{"malformed key", f.poll.Options[0].ID, "not-a-uuid", "idempotencyKey"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SubmitVote(context.Background(), tt.optionID, tt.key)
			require.ErrorIs(t, err, apperror.ErrValidation)
			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.wantField, appErr.Field)
		})
	}
}

func TestSubmitVote_CanonicalisesKey(t *testing.T) {
	f := newVoteFixture(t, pollDraft("Pick a color?", "Red", "Blue"))

	_, err := f.svc.SubmitVote(context.Background(), f.poll.Options[0].ID, "6F1C1D7E-3F5B-4A8E-9D0A-2B8C7E4F1A23")
	require.NoError(t, err)
	assert.Equal(t, "6f1c1d7e-3f5b-4a8e-9d0a-2b8c7e4f1a23", f.store.lastVote.IdempotencyKey)
}

func TestSubmitVote_Replayed(t *testing.T) {
	f := newVoteFixture(t, pollDraft("Pick a color?", "Red", "Blue"))
	f.store.voteResult = &model.VoteResult{PollID: f.poll.ID, OptionID: "x", NewVoteCount: 3, Replayed: true}

	res, err := f.svc.SubmitVote(context.Background(), "x", "6f1c1d7e-3f5b-4a8e-9d0a-2b8c7e4f1a23")
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, 1, f.recorder.counts[OutcomeReplayed])
}

func TestSubmitVote_StorageFailure(t *testing.T) {
	f := newVoteFixture(t, pollDraft("Pick a color?", "Red", "Blue"))
	f.store.failWith = apperror.Unavailable(errors.New("disk I/O error"))

	_, err := f.svc.SubmitVote(context.Background(), f.poll.Options[0].ID, "")
	assert.ErrorIs(t, err, apperror.ErrStorageUnavailable)
	assert.Equal(t, 1, f.recorder.counts[OutcomeError])
}

func TestGetPollView(t *testing.T) {
	f := newVoteFixture(t, pollDraft("Pick a color?", "Red", "Blue"))

	_, err := f.svc.GetPollView(context.Background(), "")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = f.svc.GetPollView(context.Background(), "missing")
	assert.ErrorIs(t, err, apperror.ErrPollNotFound)

	// Two reads with no vote in between are identical.
	a, err := f.svc.GetPollView(context.Background(), f.poll.ID)
	require.NoError(t, err)
	b, err := f.svc.GetPollView(context.Background(), f.poll.ID)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{apperror.New(apperror.ErrPollExpired, "", ""), OutcomeExpired},
		{apperror.New(apperror.ErrPollAtCapacity, "", ""), OutcomeCapacity},
		{apperror.New(apperror.ErrOptionNotFound, "", ""), OutcomeNotFound},
		{apperror.New(apperror.ErrIdempotencyMismatch, "", ""), OutcomeInvalid},
		{apperror.Unavailable(errors.New("boom")), OutcomeError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, outcomeOf(tt.err), tt.err.Error())
	}
}
