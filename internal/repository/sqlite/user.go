package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/bookworm/internal/apperror"
	"github.com/sakif/bookworm/internal/model"
	"github.com/sakif/bookworm/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB stores accounts in the users table.
type UserDB struct {
	conn *sql.DB
}

const userColumns = `id, username, email, password_hash, profile_image, github_id, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u        model.User
		githubID sql.NullInt64
	)
	if err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.ProfileImage,
		&githubID,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.GitHubID = githubID.Int64
	return &u, nil
}

func nullableGitHubID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

// Create inserts a new user, filling in ID and timestamps.
// Duplicate usernames or emails come back as conflict errors.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.ProfileImage,
		nullableGitHubID(user.GitHubID),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if conflict := uniqueViolation(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}
	return nil
}

// GetByID returns apperror.ErrNotFound if no user has that ID.
func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return user, nil
}

// GetByEmail matches case-insensitively; emails are stored lower-cased.
func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := scanUser(u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return user, nil
}

func (u *UserDB) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	user, err := scanUser(u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE github_id = ?`, githubID))
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("user", fmt.Sprintf("github:%d", githubID))
		}
		return nil, fmt.Errorf("sqlite: getting user by github_id %d: %w", githubID, err)
	}
	return user, nil
}

// FindConflict looks for a different user already holding username or email.
// Empty arguments are not matched. Returns (nil, nil) when there is no conflict.
//
// A row matching the username is preferred so callers can report the
// username conflict first when both collide.
func (u *UserDB) FindConflict(ctx context.Context, excludeID, username, email string) (*model.User, error) {
	if username == "" && email == "" {
		return nil, nil
	}
	email = strings.ToLower(email)

	user, err := scanUser(u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE id <> ?
		   AND ((? <> '' AND username = ?) OR (? <> '' AND email = ?))
		 ORDER BY CASE WHEN username = ? THEN 0 ELSE 1 END
		 LIMIT 1`,
		excludeID,
		username, username,
		email, email,
		username,
	))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: checking username/email conflict: %w", err)
	}
	return user, nil
}

// UpdateProfile writes the non-nil fields in one UPDATE and returns the stored row.
// An empty field set only reads the current row back.
func (u *UserDB) UpdateProfile(ctx context.Context, id string, fields repository.ProfileFields) (*model.User, error) {
	if fields.Empty() {
		return u.GetByID(ctx, id)
	}

	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if fields.Username != nil {
		sets = append(sets, "username = ?")
		args = append(args, *fields.Username)
	}
	if fields.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, strings.ToLower(*fields.Email))
	}
	if fields.ProfileImage != nil {
		sets = append(sets, "profile_image = ?")
		args = append(args, *fields.ProfileImage)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	result, err := u.conn.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		if conflict := uniqueViolation(err); conflict != nil {
			return nil, conflict
		}
		return nil, fmt.Errorf("sqlite: updating profile of user %s: %w", id, err)
	}
	if err := expectOneRow(result, "user", id); err != nil {
		return nil, err
	}
	return u.GetByID(ctx, id)
}

func (u *UserDB) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	result, err := u.conn.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: updating password of user %s: %w", id, err)
	}
	return expectOneRow(result, "user", id)
}

// LinkGitHub attaches a GitHub account to an existing user.
func (u *UserDB) LinkGitHub(ctx context.Context, id string, githubID int64) error {
	result, err := u.conn.ExecContext(ctx,
		`UPDATE users SET github_id = ?, updated_at = ? WHERE id = ?`,
		githubID, time.Now().UTC(), id)
	if err != nil {
		if conflict := uniqueViolation(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("sqlite: linking github account to user %s: %w", id, err)
	}
	return expectOneRow(result, "user", id)
}

// expectOneRow turns "0 rows affected" into a NotFound error.
func expectOneRow(result sql.Result, resource, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
