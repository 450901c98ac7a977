package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/pollar/internal/apperror"
	"github.com/sakif/pollar/internal/model"
	"github.com/sakif/pollar/internal/repository"
)

var _ repository.PollRepository = (*DB)(nil)

// GetPoll loads one poll with its options in creation order.
func (db *DB) GetPoll(ctx context.Context, pollID string) (*model.Poll, error) {
	polls, err := loadPolls(ctx, db.conn, `polls p WHERE p.id = ?`, pollID)
	if err != nil {
		return nil, apperror.Unavailable(fmt.Errorf("sqlite: getting poll %s: %w", pollID, err))
	}
	if len(polls) == 0 {
		return nil, apperror.New(apperror.ErrPollNotFound, "", "Poll not found")
	}
	return &polls[0], nil
}

// CastVote records one vote for req.OptionID.
//
// THE VOTE TRANSACTION:
//
//  1. Idempotency: if req carries a key that was already used, the earlier
//     result is returned (same option) or the request is refused (different
//     option). Nothing is incremented in either case.
//  2. Load the option's poll and check the lifecycle at req.Now. Expiry
//     is reported before capacity.
//  3. Increment polls.respondents WITH the capacity condition in the WHERE
//     clause. Zero rows affected means another vote took the last slot.
//  4. Increment options.votes and read the new value back.
//  5. Store the receipt for the idempotency key.
//
// Steps 3 and 4 either both happen or neither does, so respondents always
// equals the sum of the option counters.
//
// WHY THE CONDITION IN THE UPDATE?
// Step 2 already checked capacity, and with our single connection nothing
// can run in between. The conditional UPDATE (plus the CHECK constraint on
// the table) keeps the guarantee even if the pool is ever widened.
func (db *DB) CastVote(ctx context.Context, req model.VoteRequest) (*model.VoteResult, error) {
	now := req.Now
	if now.IsZero() {
		now = db.now()
	}

	var result *model.VoteResult
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		if req.IdempotencyKey != "" {
			var prev model.VoteResult
			err := tx.QueryRowContext(ctx,
				`SELECT poll_id, option_id, vote_count FROM vote_receipts WHERE key = ?`,
				req.IdempotencyKey,
			).Scan(&prev.PollID, &prev.OptionID, &prev.NewVoteCount)
			switch {
			case err == nil:
				if prev.OptionID != req.OptionID {
					return apperror.New(apperror.ErrIdempotencyMismatch, "idempotencyKey",
						"This idempotency key was already used for a different option")
				}
				prev.Replayed = true
				result = &prev
				return nil
			case !errors.Is(err, sql.ErrNoRows):
				return fmt.Errorf("looking up receipt: %w", err)
			}
		}

		var (
			poll     model.Poll
			maxVotes sql.NullInt64
		)
		err := tx.QueryRowContext(ctx,
			`SELECT p.id, p.duration, p.max_votes, p.respondents, p.created_at
			 FROM options o JOIN polls p ON p.id = o.poll_id
			 WHERE o.id = ?`,
			req.OptionID,
		).Scan(&poll.ID, &poll.Duration, &maxVotes, &poll.Respondents, &poll.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.New(apperror.ErrOptionNotFound, "optionId", "Option not found")
		}
		if err != nil {
			return fmt.Errorf("loading option: %w", err)
		}
		poll.MaxVotes = intPtr(maxVotes)

		if err := poll.CheckOpen(now); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE polls SET respondents = respondents + 1
			 WHERE id = ? AND (max_votes IS NULL OR respondents < max_votes)`,
			poll.ID,
		)
		if err != nil {
			if isCheckViolation(err) {
				return apperror.New(apperror.ErrPollAtCapacity, "", "This poll has reached maximum responses")
			}
			return fmt.Errorf("incrementing respondents: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("incrementing respondents: %w", err)
		}
		if n == 0 {
			return apperror.New(apperror.ErrPollAtCapacity, "", "This poll has reached maximum responses")
		}

		var votes int
		if err := tx.QueryRowContext(ctx,
			`UPDATE options SET votes = votes + 1 WHERE id = ? RETURNING votes`,
			req.OptionID,
		).Scan(&votes); err != nil {
			return fmt.Errorf("incrementing option: %w", err)
		}

		if req.IdempotencyKey != "" {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO vote_receipts (key, poll_id, option_id, vote_count, created_at)
				 VALUES (?, ?, ?, ?, ?)`,
				req.IdempotencyKey, poll.ID, req.OptionID, votes, db.now(),
			); err != nil {
				return fmt.Errorf("storing receipt: %w", err)
			}
		}

		result = &model.VoteResult{PollID: poll.ID, OptionID: req.OptionID, NewVoteCount: votes}
		return nil
	})
	if err != nil {
		return nil, storageError(err, "casting vote for option %s", req.OptionID)
	}
	return result, nil
}
