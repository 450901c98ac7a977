// Package service holds Pollar's business rules.
//
// Layering:
//
//	Handler (HTTP) → Service (rules, quota, ownership) → Repository (storage)
//
// Services never see an http.Request. The authenticated user, when an
// operation needs one, is an explicit userID parameter resolved by the
// auth middleware, and "now" comes from an injected clock.Clock.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/sakif/pollar/internal/apperror"
	"github.com/sakif/pollar/internal/model"
	"github.com/sakif/pollar/internal/repository"
)

// Vote outcomes, used as the metrics label.
const (
	OutcomeAccepted = "accepted"
	OutcomeReplayed = "replayed"
	OutcomeExpired  = "expired"
	OutcomeCapacity = "capacity"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// VoteRecorder receives one call per vote attempt. The metrics collector
// implements it.
type VoteRecorder interface {
	RecordVote(outcome string)
}

// VoteService runs the public, anonymous voting operations.
type VoteService struct {
	polls    repository.PollRepository
	clock    clock.Clock
	recorder VoteRecorder
	logger   *slog.Logger
}

// NewVoteService creates a VoteService. A nil recorder disables vote metrics.
func NewVoteService(polls repository.PollRepository, clk clock.Clock, recorder VoteRecorder, logger *slog.Logger) *VoteService {
	return &VoteService{polls: polls, clock: clk, recorder: recorder, logger: logger}
}

// PollView is what voters see: the poll, its options in creation order and
// whether it still takes votes.
type PollView struct {
	ID          string         `json:"id"`
	Question    string         `json:"question"`
	Duration    int            `json:"duration"`
	MaxVotes    *int           `json:"maxVotes"`
	Respondents int            `json:"respondents"`
	IsActive    bool           `json:"isActive"`
	CreatedAt   time.Time      `json:"createdAt"`
	Options     []model.Option `json:"options"`
}

// GetPollView loads a poll for display. Pure read.
func (s *VoteService) GetPollView(ctx context.Context, pollID string) (*PollView, error) {
	pollID = strings.TrimSpace(pollID)
	if pollID == "" {
		return nil, apperror.ValidationFailed("pollId", "Poll ID is required")
	}

	poll, err := s.polls.GetPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}

	return &PollView{
		ID:          poll.ID,
		Question:    poll.Question,
		Duration:    poll.Duration,
		MaxVotes:    poll.MaxVotes,
		Respondents: poll.Respondents,
		IsActive:    poll.IsActive(s.clock.Now()),
		CreatedAt:   poll.CreatedAt,
		Options:     poll.Options,
	}, nil
}

// SubmitVote records one vote for optionID.
//
// idempotencyKey is optional. When present it must be a UUID; resubmitting
// the same key for the same option returns the first result without
// counting twice.
func (s *VoteService) SubmitVote(ctx context.Context, optionID, idempotencyKey string) (*model.VoteResult, error) {
	optionID = strings.TrimSpace(optionID)
	if optionID == "" {
		s.record(OutcomeInvalid)
		return nil, apperror.ValidationFailed("optionId", "Option ID is required")
	}

	key := ""
	if k := strings.TrimSpace(idempotencyKey); k != "" {
		parsed, err := uuid.Parse(k)
		if err != nil {
			s.record(OutcomeInvalid)
			return nil, apperror.ValidationFailed("idempotencyKey", "Idempotency key must be a UUID")
		}
		key = parsed.String()
	}

	result, err := s.polls.CastVote(ctx, model.VoteRequest{
		OptionID:       optionID,
		IdempotencyKey: key,
		Now:            s.clock.Now(),
	})
	if err != nil {
		s.record(outcomeOf(err))
		s.logVoteError(optionID, err)
		return nil, err
	}

	if result.Replayed {
		s.record(OutcomeReplayed)
		s.logger.Info("vote replayed",
			slog.String("pollID", result.PollID),
			slog.String("optionID", optionID),
		)
		return result, nil
	}

	s.record(OutcomeAccepted)
	s.logger.Info("vote accepted",
		slog.String("pollID", result.PollID),
		slog.String("optionID", optionID),
		slog.Int("newVoteCount", result.NewVoteCount),
	)
	return result, nil
}

func (s *VoteService) logVoteError(optionID string, err error) {
	if errors.Is(err, apperror.ErrUnavailable) {
		s.logger.Error("vote failed",
			slog.String("optionID", optionID),
			slog.String("error", err.Error()),
			slog.String("cause", causeOf(err)),
		)
		return
	}
	s.logger.Debug("vote rejected",
		slog.String("optionID", optionID),
		slog.String("reason", err.Error()),
	)
}

func (s *VoteService) record(outcome string) {
	if s.recorder != nil {
		s.recorder.RecordVote(outcome)
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, apperror.ErrPollExpired):
		return OutcomeExpired
	case errors.Is(err, apperror.ErrPollAtCapacity):
		return OutcomeCapacity
	case errors.Is(err, apperror.ErrOptionNotFound):
		return OutcomeNotFound
	case errors.Is(err, apperror.ErrValidation), errors.Is(err, apperror.ErrConflict):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}

// causeOf extracts the underlying storage failure for logging.
func causeOf(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Cause != nil {
		return appErr.Cause.Error()
	}
	return err.Error()
}
