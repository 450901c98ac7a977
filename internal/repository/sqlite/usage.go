package sqlite

import (
	"context"
	"fmt"

	"github.com/sakif/pollar/internal/apperror"
	"github.com/sakif/pollar/internal/plan"
	"github.com/sakif/pollar/internal/repository"
)

var _ repository.UsageRepository = (*DB)(nil)

// Usage counts a user's projects, polls and total respondents in a single
// statement, so the three numbers come from one consistent snapshot.
func (db *DB) Usage(ctx context.Context, userID string) (plan.Usage, error) {
	var u plan.Usage
	err := db.conn.QueryRowContext(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM projects WHERE user_id = ?1),
		   (SELECT COUNT(*) FROM polls p JOIN projects pr ON pr.id = p.project_id WHERE pr.user_id = ?1),
		   (SELECT COALESCE(SUM(p.respondents), 0) FROM polls p JOIN projects pr ON pr.id = p.project_id WHERE pr.user_id = ?1)`,
		userID,
	).Scan(&u.TotalProjects, &u.TotalPolls, &u.TotalResponses)
	if err != nil {
		return plan.Usage{}, apperror.Unavailable(fmt.Errorf("sqlite: counting usage of %s: %w", userID, err))
	}
	return u, nil
}
