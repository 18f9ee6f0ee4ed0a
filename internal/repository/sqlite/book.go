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

var _ repository.BookRepository = (*BookDB)(nil)

// BookDB stores recommendations in the books table. Reads join the creator's
// username and avatar from users.
type BookDB struct {
	conn *sql.DB
}

const bookSelect = `
	SELECT b.id, b.title, b.caption, b.rating, b.image, b.user_id, b.created_at, b.updated_at,
	       COALESCE(u.username, ''), COALESCE(u.profile_image, '')
	FROM books b
	LEFT JOIN users u ON u.id = b.user_id`

// orderBy maps listing sort keys to ORDER BY clauses. The id tiebreak keeps
// pages stable when timestamps or ratings are equal.
var orderBy = map[string]string{
	repository.SortNewest:     "b.created_at DESC, b.id DESC",
	repository.SortOldest:     "b.created_at ASC, b.id ASC",
	repository.SortRatingDesc: "b.rating DESC, b.created_at DESC, b.id DESC",
	repository.SortRatingAsc:  "b.rating ASC, b.created_at DESC, b.id DESC",
}

func scanBook(row rowScanner) (*model.Book, error) {
	var (
		b       model.Book
		creator model.BookCreator
	)
	if err := row.Scan(
		&b.ID,
		&b.Title,
		&b.Caption,
		&b.Rating,
		&b.Image,
		&b.UserID,
		&b.CreatedAt,
		&b.UpdatedAt,
		&creator.Username,
		&creator.ProfileImage,
	); err != nil {
		return nil, err
	}
	creator.ID = b.UserID
	b.User = &creator
	return &b, nil
}

// Create inserts a book owned by book.UserID and fills in ID and timestamps.
func (r *BookDB) Create(ctx context.Context, book *model.Book) error {
	now := time.Now().UTC()
	book.ID = xid.New().String()
	book.CreatedAt = now
	book.UpdatedAt = now

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO books (id, title, caption, rating, image, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		book.ID,
		book.Title,
		book.Caption,
		book.Rating,
		book.Image,
		book.UserID,
		book.CreatedAt,
		book.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating book: %w", err)
	}
	return nil
}

func (r *BookDB) GetByID(ctx context.Context, id string) (*model.Book, error) {
	book, err := scanBook(r.conn.QueryRowContext(ctx, bookSelect+` WHERE b.id = ?`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, apperror.NotFound("book", id)
		}
		return nil, fmt.Errorf("sqlite: getting book %s: %w", id, err)
	}
	return book, nil
}

// List returns one page of books and the count of all books matching the
// title filter. opts is normalised first; an unknown sort key is a
// validation error.
func (r *BookDB) List(ctx context.Context, opts repository.ListOptions) ([]model.Book, int, error) {
	opts = opts.Normalize()
	order, ok := orderBy[opts.Sort]
	if !ok {
		return nil, 0, apperror.ValidationFailed("sort", fmt.Sprintf("invalid sort %q", opts.Sort))
	}

	where := ""
	var args []any
	if title := strings.TrimSpace(opts.Title); title != "" {
		// LIKE is case-insensitive for ASCII in SQLite.
		where = ` WHERE b.title LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(title)+"%")
	}

	var total int
	if err := r.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM books b`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting books: %w", err)
	}

	rows, err := r.conn.QueryContext(ctx,
		bookSelect+where+` ORDER BY `+order+` LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset())...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing books: %w", err)
	}
	defer rows.Close()

	books, err := collectBooks(rows, opts.Limit)
	if err != nil {
		return nil, 0, err
	}
	return books, total, nil
}

// ListByUser returns every book the user created, newest first.
func (r *BookDB) ListByUser(ctx context.Context, userID string) ([]model.Book, error) {
	rows, err := r.conn.QueryContext(ctx,
		bookSelect+` WHERE b.user_id = ? ORDER BY b.created_at DESC, b.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing books of user %s: %w", userID, err)
	}
	defer rows.Close()

	return collectBooks(rows, 0)
}

func (r *BookDB) Delete(ctx context.Context, id string) error {
	result, err := r.conn.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting book %s: %w", id, err)
	}
	return expectOneRow(result, "book", id)
}

func collectBooks(rows *sql.Rows, capacity int) ([]model.Book, error) {
	books := make([]model.Book, 0, capacity)
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning book row: %w", err)
		}
		books = append(books, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating books: %w", err)
	}
	return books, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
