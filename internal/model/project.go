package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/pollar/internal/apperror"
)

const (
	MinProjectNameLength = 3
	MaxProjectNameLength = 50
	MinOwnerLength       = 3
	MaxOwnerLength       = 50
	MaxDescriptionLength = 200
)

// Project is a named container of polls owned by one user. Owner is a
// free-text display label and has nothing to do with UserID.
type Project struct {
	ID          string    `json:"id"`
	UserID      string    `json:"-"`
	Name        string    `json:"name"`
	Owner       string    `json:"owner"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	// Polls in creation order.
	Polls []Poll `json:"polls,omitempty"`
}

// ProjectDraft is the input of project creation.
type ProjectDraft struct {
	Name        string      `json:"name"`
	Owner       string      `json:"owner"`
	Description string      `json:"description"`
	Polls       []PollDraft `json:"polls"`
}

// Normalize trims text fields and normalizes every nested poll.
func (d ProjectDraft) Normalize() ProjectDraft {
	out := ProjectDraft{
		Name:        strings.TrimSpace(d.Name),
		Owner:       strings.TrimSpace(d.Owner),
		Description: strings.TrimSpace(d.Description),
		Polls:       make([]PollDraft, len(d.Polls)),
	}
	for i, p := range d.Polls {
		out.Polls[i] = p.Normalize()
	}
	return out
}

// Validate checks the project fields and every nested poll.
func (d ProjectDraft) Validate() error {
	if n := utf8.RuneCountInString(d.Name); n < MinProjectNameLength || n > MaxProjectNameLength {
		return apperror.ValidationFailed("name",
			fmt.Sprintf("project name must be between %d and %d characters", MinProjectNameLength, MaxProjectNameLength))
	}
	if n := utf8.RuneCountInString(d.Owner); n < MinOwnerLength || n > MaxOwnerLength {
		return apperror.ValidationFailed("owner",
			fmt.Sprintf("owner must be between %d and %d characters", MinOwnerLength, MaxOwnerLength))
	}
	if utf8.RuneCountInString(d.Description) > MaxDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	if len(d.Polls) == 0 {
		return apperror.ValidationFailed("polls", "At least one poll required")
	}
	for i, p := range d.Polls {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("poll %d: %w", i+1, err)
		}
	}
	return nil
}

// ProjectSummary is a project with aggregate counters, used by listings.
type ProjectSummary struct {
	Project
	PollCount        int `json:"pollCount"`
	TotalRespondents int `json:"totalRespondents"`
}
