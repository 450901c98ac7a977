package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"
	"github.com/sakif/pollar/internal/apperror"
	"github.com/sakif/pollar/internal/model"
	"github.com/sakif/pollar/internal/plan"
	"github.com/sakif/pollar/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, name, password_hash, avatar_url, plan, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u    model.User
		tier string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.AvatarURL, &tier, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	// An unknown stored tier degrades to FREE rather than failing the read.
	u.Plan, _ = plan.ParseTier(tier)
	return &u, nil
}

// CreateUser inserts a new account. The caller's struct receives the
// generated ID and timestamps.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := db.now()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Name, user.PasswordHash, user.AvatarURL,
		user.Plan.String(), user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.New(apperror.ErrDuplicateEmail, "email", "An account with this email already exists")
		}
		return apperror.Unavailable(fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err))
	}
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, apperror.Unavailable(fmt.Errorf("sqlite: getting user %s: %w", id, err))
	}
	return u, nil
}

// GetUserByEmail looks a user up by email, ignoring case.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, apperror.Unavailable(fmt.Errorf("sqlite: getting user by email: %w", err))
	}
	return u, nil
}

// UpdateProfile writes the mutable profile fields: name and avatar.
// Email, plan and password are not touched here.
func (db *DB) UpdateProfile(ctx context.Context, user *model.User) error {
	user.UpdatedAt = db.now()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET name = ?, avatar_url = ?, updated_at = ? WHERE id = ?`,
		user.Name, user.AvatarURL, user.UpdatedAt, user.ID,
	)
	if err != nil {
		return apperror.Unavailable(fmt.Errorf("sqlite: updating user %s: %w", user.ID, err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

// UpsertIdentity signs in an external identity.
//
// The user row is keyed by email. An existing row gets its name and avatar
// refreshed when the provider supplied them; a missing row is created on
// the FREE plan. Either way the (user, provider) pair is recorded once.
// Everything happens in one transaction so two simultaneous first sign-ins
// with the same email cannot create two users.
func (db *DB) UpsertIdentity(ctx context.Context, id model.Identity) (*model.User, error) {
	var user *model.User

	err := db.inTx(ctx, func(tx *sql.Tx) error {
		now := db.now()

		u, err := scanUser(tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = ?`, id.Email))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			u = &model.User{
				ID:        xid.New().String(),
				Email:     id.Email,
				Name:      id.Name,
				AvatarURL: id.AvatarURL,
				Plan:      plan.Free,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				u.ID, u.Email, u.Name, u.PasswordHash, u.AvatarURL, u.Plan.String(), u.CreatedAt, u.UpdatedAt,
			); err != nil {
				return fmt.Errorf("inserting user: %w", err)
			}
		case err != nil:
			return fmt.Errorf("looking up user: %w", err)
		default:
			if id.Name != "" {
				u.Name = id.Name
			}
			if id.AvatarURL != "" {
				u.AvatarURL = id.AvatarURL
			}
			u.UpdatedAt = now
			if _, err := tx.ExecContext(ctx,
				`UPDATE users SET name = ?, avatar_url = ?, updated_at = ? WHERE id = ?`,
				u.Name, u.AvatarURL, u.UpdatedAt, u.ID,
			); err != nil {
				return fmt.Errorf("updating user: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO providers (id, user_id, name, created_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (user_id, name) DO NOTHING`,
			xid.New().String(), u.ID, id.Provider, now,
		); err != nil {
			return fmt.Errorf("recording provider: %w", err)
		}

		user = u
		return nil
	})
	if err != nil {
		return nil, apperror.Unavailable(fmt.Errorf("sqlite: upserting identity %s/%s: %w", id.Provider, id.Email, err))
	}
	return user, nil
}

// ListProviders returns the identity providers a user has signed in with,
// oldest first.
func (db *DB) ListProviders(ctx context.Context, userID string) ([]model.Provider, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, name, created_at FROM providers WHERE user_id = ? ORDER BY created_at, name`,
		userID,
	)
	if err != nil {
		return nil, apperror.Unavailable(fmt.Errorf("sqlite: listing providers for %s: %w", userID, err))
	}
	defer rows.Close()

	providers := []model.Provider{}
	for rows.Next() {
		var p model.Provider
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.CreatedAt); err != nil {
			return nil, apperror.Unavailable(fmt.Errorf("sqlite: scanning provider: %w", err))
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Unavailable(fmt.Errorf("sqlite: iterating providers: %w", err))
	}
	return providers, nil
}
