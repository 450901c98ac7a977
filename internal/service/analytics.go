package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/sakif/pollar/internal/apperror"
	"github.com/sakif/pollar/internal/model"
	"github.com/sakif/pollar/internal/plan"
	"golang.org/x/sync/errgroup"
)

// ProjectDetail is the owner's view of one project.
type ProjectDetail struct {
	Project ProjectAnalytics `json:"project"`
	Polls   []PollAnalytics  `json:"polls"`
}

type ProjectAnalytics struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Owner             string    `json:"owner"`
	Description       string    `json:"description"`
	CreatedAt         time.Time `json:"createdAt"`
	AgeInHours        int       `json:"ageInHours"`
	IsActive          bool      `json:"isActive"`
	TotalPolls        int       `json:"totalPolls"`
	TotalVotes        int       `json:"totalVotes"`
	UniqueRespondents int       `json:"uniqueRespondents"`
	ActivePolls       int       `json:"activePolls"`
	CompletedPolls    int       `json:"completedPolls"`
}

type PollAnalytics struct {
	ID                string            `json:"id"`
	Question          string            `json:"question"`
	Duration          int               `json:"duration"`
	MaxVotes          *int              `json:"maxVotes"`
	IsActive          bool              `json:"isActive"`
	TotalVotes        int               `json:"totalVotes"`
	UniqueRespondents int               `json:"uniqueRespondents"`
	Options           []OptionAnalytics `json:"options"`
	CreatedAt         time.Time         `json:"createdAt"`
	AgeInHours        int               `json:"ageInHours"`
}

type OptionAnalytics struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Votes      int    `json:"votes"`
	Percentage int    `json:"percentage"`
}

func buildProjectDetail(p *model.Project, now time.Time) *ProjectDetail {
	detail := &ProjectDetail{
		Project: ProjectAnalytics{
			ID:          p.ID,
			Name:        p.Name,
			Owner:       p.Owner,
			Description: p.Description,
			CreatedAt:   p.CreatedAt,
			AgeInHours:  ageInHours(p.CreatedAt, now),
			TotalPolls:  len(p.Polls),
		},
		Polls: make([]PollAnalytics, 0, len(p.Polls)),
	}

	for i := range p.Polls {
		pa := buildPollAnalytics(&p.Polls[i], now)
		detail.Polls = append(detail.Polls, pa)

		detail.Project.TotalVotes += pa.TotalVotes
		detail.Project.UniqueRespondents += pa.UniqueRespondents
		if pa.IsActive {
			detail.Project.ActivePolls++
		} else {
			detail.Project.CompletedPolls++
		}
	}
	detail.Project.IsActive = detail.Project.ActivePolls > 0
	return detail
}

func buildPollAnalytics(poll *model.Poll, now time.Time) PollAnalytics {
	total := poll.TotalVotes()
	pa := PollAnalytics{
		ID:                poll.ID,
		Question:          poll.Question,
		Duration:          poll.Duration,
		MaxVotes:          poll.MaxVotes,
		IsActive:          poll.IsActive(now),
		TotalVotes:        total,
		UniqueRespondents: poll.Respondents,
		Options:           make([]OptionAnalytics, 0, len(poll.Options)),
		CreatedAt:         poll.CreatedAt,
		AgeInHours:        ageInHours(poll.CreatedAt, now),
	}
	for _, o := range poll.Options {
		pa.Options = append(pa.Options, OptionAnalytics{
			ID:         o.ID,
			Text:       o.Text,
			Votes:      o.Votes,
			Percentage: percentage(o.Votes, total),
		})
	}
	return pa
}

// percentage rounds half away from zero; 0 when there are no votes.
func percentage(votes, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(votes) * 100 / float64(total)))
}

// ageInHours is the whole number of hours elapsed, never negative.
func ageInHours(created, now time.Time) int {
	h := int(math.Floor(now.Sub(created).Hours()))
	if h < 0 {
		return 0
	}
	return h
}

// =========================================================================
// DASHBOARD
// =========================================================================

const (
	recentWindow = 7 * 24 * time.Hour
	recentLimit  = 5
)

// Dashboard summarises all of a user's projects.
type Dashboard struct {
	CurrentPlan    plan.Tier              `json:"currentPlan"`
	TotalProjects  int                    `json:"totalProjects"`
	ActiveProjects int                    `json:"activeProjects"`
	TotalPolls     int                    `json:"totalPolls"`
	TotalVotes     int                    `json:"totalVotes"`
	RecentProjects []model.ProjectSummary `json:"recentProjects"`
}

// Dashboard runs its three independent reads concurrently. If any fails
// the others are cancelled through the errgroup context.
func (s *ProjectService) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	var (
		user      *model.User
		summaries []model.ProjectSummary
		polls     []model.Poll
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = s.users.GetUserByID(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		summaries, err = s.projects.ListProjectSummaries(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		polls, err = s.projects.ListPollsByUser(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, apperror.ErrUnavailable) {
			s.logger.Error("dashboard read failed", slog.String("userID", userID), slog.String("error", err.Error()))
		} else {
			s.logger.Debug("dashboard read failed", slog.String("userID", userID), slog.String("error", err.Error()))
		}
		return nil, err
	}

	now := s.clock.Now()
	d := &Dashboard{
		CurrentPlan:    user.Plan,
		TotalProjects:  len(summaries),
		TotalPolls:     len(polls),
		RecentProjects: []model.ProjectSummary{},
	}

	active := map[string]bool{}
	for i := range polls {
		d.TotalVotes += polls[i].TotalVotes()
		if polls[i].IsActive(now) {
			active[polls[i].ProjectID] = true
		}
	}
	d.ActiveProjects = len(active)

	// Summaries arrive newest first.
	for _, sum := range summaries {
		if len(d.RecentProjects) == recentLimit {
			break
		}
		if now.Sub(sum.CreatedAt) <= recentWindow {
			d.RecentProjects = append(d.RecentProjects, sum)
		}
	}
	return d, nil
}
