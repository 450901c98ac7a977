package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/pollar/internal/apperror"
	"github.com/sakif/pollar/internal/model"
	"github.com/sakif/pollar/internal/repository"
)

var _ repository.ProjectRepository = (*DB)(nil)

// querier is the part of *sql.DB and *sql.Tx the loaders need, so the same
// code reads inside and outside a transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateProject writes a project with all of its polls and options.
//
// ALL OR NOTHING:
// The project row, every poll and every option are inserted in ONE
// transaction. If the third poll fails validation at the database level
// (say, a duplicate option the draft check missed), the project and the
// first two polls are rolled back too. Nobody ever sees half a project.
//
// The draft must already be normalized and validated by the caller.
func (db *DB) CreateProject(ctx context.Context, userID string, draft model.ProjectDraft) (*model.Project, error) {
	now := db.now()
	project := &model.Project{
		ID:          xid.New().String(),
		UserID:      userID,
		Name:        draft.Name,
		Owner:       draft.Owner,
		Description: draft.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
		Polls:       make([]model.Poll, 0, len(draft.Polls)),
	}

	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM projects WHERE user_id = ? AND name = ?)`,
			userID, project.Name,
		).Scan(&exists); err != nil {
			return fmt.Errorf("checking project name: %w", err)
		}
		if exists {
			return duplicateProjectName()
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO projects (id, user_id, name, owner, description, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			project.ID, project.UserID, project.Name, project.Owner, project.Description,
			project.CreatedAt, project.UpdatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return duplicateProjectName()
			}
			return fmt.Errorf("inserting project: %w", err)
		}

		for i, pd := range draft.Polls {
			poll, err := insertPoll(ctx, tx, project.ID, i, pd, now)
			if err != nil {
				return err
			}
			project.Polls = append(project.Polls, *poll)
		}
		return nil
	})
	if err != nil {
		return nil, storageError(err, "creating project %q", draft.Name)
	}
	return project, nil
}

// AddPoll appends one poll to an existing project and bumps the project's
// updated_at.
func (db *DB) AddPoll(ctx context.Context, projectID string, draft model.PollDraft) (*model.Poll, error) {
	var poll *model.Poll

	err := db.inTx(ctx, func(tx *sql.Tx) error {
		var next int
		err := tx.QueryRowContext(ctx,
			`SELECT (SELECT COALESCE(MAX(position), -1) + 1 FROM polls WHERE project_id = pr.id)
			 FROM projects pr WHERE pr.id = ?`,
			projectID,
		).Scan(&next)
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.New(apperror.ErrProjectNotFound, "", "Project not found")
		}
		if err != nil {
			return fmt.Errorf("loading project: %w", err)
		}

		now := db.now()
		poll, err = insertPoll(ctx, tx, projectID, next, draft, now)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE projects SET updated_at = ? WHERE id = ?`, now, projectID,
		); err != nil {
			return fmt.Errorf("touching project: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, storageError(err, "adding poll to project %s", projectID)
	}
	return poll, nil
}

// insertPoll writes a poll and its options inside tx. Options keep the
// order they were given in.
func insertPoll(ctx context.Context, tx *sql.Tx, projectID string, position int, d model.PollDraft, now time.Time) (*model.Poll, error) {
	poll := &model.Poll{
		ID:        xid.New().String(),
		ProjectID: projectID,
		Question:  d.Question,
		Duration:  d.Duration,
		MaxVotes:  d.MaxVotes,
		Position:  position,
		CreatedAt: now,
		Options:   make([]model.Option, 0, len(d.Options)),
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO polls (id, project_id, question, duration, max_votes, respondents, position, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		poll.ID, poll.ProjectID, poll.Question, poll.Duration, nullableInt(poll.MaxVotes),
		poll.Position, poll.CreatedAt,
	); err != nil {
		if isCheckViolation(err) {
			return nil, apperror.ValidationFailed("poll", "poll violates duration or maxVotes bounds")
		}
		return nil, fmt.Errorf("inserting poll: %w", err)
	}

	for i, text := range d.Options {
		opt := model.Option{
			ID:        xid.New().String(),
			PollID:    poll.ID,
			Text:      text,
			Position:  i,
			CreatedAt: now,
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO options (id, poll_id, text, norm_text, votes, position, created_at)
			 VALUES (?, ?, ?, ?, 0, ?, ?)`,
			opt.ID, opt.PollID, opt.Text, model.NormalizeOptionText(opt.Text), opt.Position, opt.CreatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return nil, apperror.New(apperror.ErrDuplicateOptionText, "options", "Options must be unique")
			}
			return nil, fmt.Errorf("inserting option: %w", err)
		}
		poll.Options = append(poll.Options, opt)
	}
	return poll, nil
}

// GetProject loads a project with its polls (creation order) and their
// options. Ownership is not checked here.
func (db *DB) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	var p model.Project
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, name, owner, description, created_at, updated_at
		 FROM projects WHERE id = ?`,
		projectID,
	).Scan(&p.ID, &p.UserID, &p.Name, &p.Owner, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.New(apperror.ErrProjectNotFound, "", "Project not found")
		}
		return nil, apperror.Unavailable(fmt.Errorf("sqlite: getting project %s: %w", projectID, err))
	}

	p.Polls, err = loadPolls(ctx, db.conn, `polls p WHERE p.project_id = ?`, projectID)
	if err != nil {
		return nil, apperror.Unavailable(fmt.Errorf("sqlite: loading polls of project %s: %w", projectID, err))
	}
	return &p, nil
}

// ListProjectSummaries returns every project of a user, newest first, with
// poll and respondent totals.
func (db *DB) ListProjectSummaries(ctx context.Context, userID string) ([]model.ProjectSummary, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT pr.id, pr.user_id, pr.name, pr.owner, pr.description, pr.created_at, pr.updated_at,
		        COUNT(p.id), COALESCE(SUM(p.respondents), 0)
		 FROM projects pr
		 LEFT JOIN polls p ON p.project_id = pr.id
		 WHERE pr.user_id = ?
		 GROUP BY pr.id
		 ORDER BY pr.created_at DESC, pr.id DESC`,
		userID,
	)
	if err != nil {
		return nil, apperror.Unavailable(fmt.Errorf("sqlite: listing projects of %s: %w", userID, err))
	}
	defer rows.Close()

	summaries := []model.ProjectSummary{}
	for rows.Next() {
		var s model.ProjectSummary
		if err := rows.Scan(&s.ID, &s.UserID, &s.Name, &s.Owner, &s.Description, &s.CreatedAt, &s.UpdatedAt,
			&s.PollCount, &s.TotalRespondents); err != nil {
			return nil, apperror.Unavailable(fmt.Errorf("sqlite: scanning project: %w", err))
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Unavailable(fmt.Errorf("sqlite: iterating projects: %w", err))
	}
	return summaries, nil
}

// ListPollsByUser returns every poll across all of a user's projects,
// with options, oldest first.
func (db *DB) ListPollsByUser(ctx context.Context, userID string) ([]model.Poll, error) {
	polls, err := loadPolls(ctx, db.conn,
		`polls p JOIN projects pr ON pr.id = p.project_id WHERE pr.user_id = ?`, userID)
	if err != nil {
		return nil, apperror.Unavailable(fmt.Errorf("sqlite: listing polls of %s: %w", userID, err))
	}
	return polls, nil
}

// CountPolls returns how many polls a project holds.
func (db *DB) CountPolls(ctx context.Context, projectID string) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM polls WHERE project_id = ?`, projectID,
	).Scan(&n); err != nil {
		return 0, apperror.Unavailable(fmt.Errorf("sqlite: counting polls of %s: %w", projectID, err))
	}
	return n, nil
}

// loadPolls reads the polls selected by `from` (a FROM ... WHERE fragment
// that aliases polls as p) and attaches their options.
//
// Two queries instead of one big join: a join would repeat every poll
// column once per option, and the scan loop would need to de-duplicate.
// `from` is always a constant from this package, never user input.
func loadPolls(ctx context.Context, q querier, from string, args ...any) ([]model.Poll, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT p.id, p.project_id, p.question, p.duration, p.max_votes, p.respondents, p.position, p.created_at
		 FROM `+from+`
		 ORDER BY p.created_at, p.position`,
		args...,
	)
	if err != nil {
		return nil, err
	}

	polls := []model.Poll{}
	index := map[string]int{}
	for rows.Next() {
		var (
			p        model.Poll
			maxVotes sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.Question, &p.Duration, &maxVotes, &p.Respondents, &p.Position, &p.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		p.MaxVotes = intPtr(maxVotes)
		p.Options = []model.Option{}
		index[p.ID] = len(polls)
		polls = append(polls, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(polls) == 0 {
		return polls, nil
	}

	orows, err := q.QueryContext(ctx,
		`SELECT o.id, o.poll_id, o.text, o.votes, o.position, o.created_at
		 FROM options o
		 WHERE o.poll_id IN (SELECT p.id FROM `+from+`)
		 ORDER BY o.poll_id, o.position`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer orows.Close()

	for orows.Next() {
		var o model.Option
		if err := orows.Scan(&o.ID, &o.PollID, &o.Text, &o.Votes, &o.Position, &o.CreatedAt); err != nil {
			return nil, err
		}
		if i, ok := index[o.PollID]; ok {
			polls[i].Options = append(polls[i].Options, o)
		}
	}
	return polls, orows.Err()
}

func duplicateProjectName() error {
	return apperror.New(apperror.ErrDuplicateProjectName, "name", "A project with this name already exists")
}

// storageError passes domain errors through untouched and turns anything
// else into a retryable StorageUnavailable.
func storageError(err error, format string, args ...any) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.Unavailable(fmt.Errorf("sqlite: "+format+": %w", append(args, err)...))
}
