package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/pollar/internal/apperror"
)

// Poll validation bounds.
const (
	MinOptions           = 2
	MaxOptions           = 6
	MinDurationHours     = 1
	MaxDurationHours     = 168
	DefaultDurationHours = 24
	MinQuestionLength    = 5
	MaxQuestionLength    = 200
	MaxOptionLength      = 100
)

// Poll is a single question with a fixed set of options.
//
// A poll has no stored status. It is Active while it is younger than
// Duration hours and below MaxVotes (if set), and Closed otherwise; the
// state is derived on every read and write from CreatedAt, Duration,
// MaxVotes and Respondents. Closed is terminal because none of those
// inputs can move backwards.
type Poll struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Question    string    `json:"question"`
	Duration    int       `json:"duration"` // hours
	MaxVotes    *int      `json:"maxVotes"`
	Respondents int       `json:"respondents"`
	Position    int       `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
	Options     []Option  `json:"options"`
}

// Option is one selectable choice of a poll. Votes only ever grows.
type Option struct {
	ID        string    `json:"id"`
	PollID    string    `json:"-"`
	Text      string    `json:"text"`
	Votes     int       `json:"votes"`
	Position  int       `json:"-"`
	CreatedAt time.Time `json:"-"`
}

// Age returns how long the poll has existed at `now`.
func (p *Poll) Age(now time.Time) time.Duration {
	return now.Sub(p.CreatedAt)
}

// Expired reports whether the poll's lifetime is over. The boundary is
// inclusive: a poll exactly Duration hours old still accepts votes.
func (p *Poll) Expired(now time.Time) bool {
	return p.Age(now) > time.Duration(p.Duration)*time.Hour
}

// AtCapacity reports whether MaxVotes has been reached.
func (p *Poll) AtCapacity() bool {
	return p.MaxVotes != nil && p.Respondents >= *p.MaxVotes
}

// IsActive is the lifecycle rule used by every read.
func (p *Poll) IsActive(now time.Time) bool {
	return !p.Expired(now) && !p.AtCapacity()
}

// CheckOpen returns the reason the poll cannot take a vote, or nil.
// Expiry is checked before capacity.
func (p *Poll) CheckOpen(now time.Time) error {
	if p.Expired(now) {
		return apperror.New(apperror.ErrPollExpired, "", "This poll has expired")
	}
	if p.AtCapacity() {
		return apperror.New(apperror.ErrPollAtCapacity, "", "This poll has reached maximum responses")
	}
	return nil
}

// TotalVotes sums the option counters.
func (p *Poll) TotalVotes() int {
	total := 0
	for _, o := range p.Options {
		total += o.Votes
	}
	return total
}

// PollDraft is a poll that has not been stored yet.
type PollDraft struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Duration int      `json:"duration"`
	MaxVotes *int     `json:"maxVotes"`
}

// Normalize trims text fields and applies the default duration.
func (d PollDraft) Normalize() PollDraft {
	out := PollDraft{
		Question: strings.TrimSpace(d.Question),
		Options:  make([]string, len(d.Options)),
		Duration: d.Duration,
		MaxVotes: d.MaxVotes,
	}
	for i, o := range d.Options {
		out.Options[i] = strings.TrimSpace(o)
	}
	if out.Duration == 0 {
		out.Duration = DefaultDurationHours
	}
	return out
}

// Validate checks every write-time invariant of a poll. The draft is
// expected to be normalized.
func (d PollDraft) Validate() error {
	if n := utf8.RuneCountInString(d.Question); n < MinQuestionLength || n > MaxQuestionLength {
		return apperror.ValidationFailed("question",
			fmt.Sprintf("question must be between %d and %d characters", MinQuestionLength, MaxQuestionLength))
	}

	if len(d.Options) < MinOptions {
		return apperror.New(apperror.ErrTooFewOptions, "options",
			fmt.Sprintf("You must provide at least %d options", MinOptions))
	}
	if len(d.Options) > MaxOptions {
		return apperror.New(apperror.ErrTooManyOptions, "options",
			fmt.Sprintf("Maximum %d options allowed", MaxOptions))
	}

	seen := make(map[string]struct{}, len(d.Options))
	for _, o := range d.Options {
		key := NormalizeOptionText(o)
		if key == "" {
			return apperror.ValidationFailed("options", "Option cannot be empty")
		}
		if utf8.RuneCountInString(key) > MaxOptionLength {
			return apperror.ValidationFailed("options",
				fmt.Sprintf("options must be %d characters or less", MaxOptionLength))
		}
		if _, dup := seen[key]; dup {
			return apperror.New(apperror.ErrDuplicateOptionText, "options", "Options must be unique")
		}
		seen[key] = struct{}{}
	}

	if d.Duration < MinDurationHours || d.Duration > MaxDurationHours {
		return apperror.ValidationFailed("duration",
			fmt.Sprintf("duration must be between %d and %d hours", MinDurationHours, MaxDurationHours))
	}
	if d.MaxVotes != nil && *d.MaxVotes < 1 {
		return apperror.ValidationFailed("maxVotes", "Max votes must be a positive number")
	}
	return nil
}

// NormalizeOptionText is the comparison key for option uniqueness.
func NormalizeOptionText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// VoteResult is what an accepted vote returns.
type VoteResult struct {
	PollID       string `json:"pollId"`
	OptionID     string `json:"optionId"`
	NewVoteCount int    `json:"newVoteCount"`
	// Replayed is set when an idempotency key matched an earlier vote and
	// nothing was incremented.
	Replayed bool `json:"replayed,omitempty"`
}

// VoteRequest is the input of the vote transaction.
type VoteRequest struct {
	OptionID       string
	IdempotencyKey string
	Now            time.Time
}
