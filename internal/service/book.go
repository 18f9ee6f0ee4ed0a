package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/bookworm/internal/apperror"
	"github.com/sakif/bookworm/internal/media"
	"github.com/sakif/bookworm/internal/model"
	"github.com/sakif/bookworm/internal/repository"
)

// Book field limits.
const (
	MaxTitleLength   = 200
	MaxCaptionLength = 2000
)

// BookService creates, lists and deletes recommendations. Cover images are
// uploaded to the media host before the row is written.
type BookService struct {
	books  repository.BookRepository
	media  media.Host
	logger *slog.Logger
}

func NewBookService(books repository.BookRepository, host media.Host, logger *slog.Logger) *BookService {
	return &BookService{
		books:  books,
		media:  host,
		logger: logger,
	}
}

// CreateBookInput carries the cover as a base64 data URL.
type CreateBookInput struct {
	Title   string `json:"title" validate:"max=200"`
	Caption string `json:"caption" validate:"max=2000"`
	Rating  int    `json:"rating" validate:"min=1,max=5"`
	Image   string `json:"image"`
}

var bookMessages = messages{
	"title.max":   fmt.Sprintf("Title should be at most %d characters long", MaxTitleLength),
	"caption.max": fmt.Sprintf("Caption should be at most %d characters long", MaxCaptionLength),
	"rating.min":  "Rating must be between 1 and 5",
	"rating.max":  "Rating must be between 1 and 5",
}

// Create validates the input, uploads the cover and stores the book.
func (s *BookService) Create(ctx context.Context, userID string, in CreateBookInput) (*model.Book, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Caption = strings.TrimSpace(in.Caption)

	if in.Title == "" || in.Caption == "" || in.Rating == 0 || strings.TrimSpace(in.Image) == "" {
		return nil, apperror.ValidationFailed("", "Please provide all fields")
	}
	if err := validateStruct(in, bookMessages); err != nil {
		return nil, err
	}

	data, contentType, err := media.DecodeDataURL(in.Image)
	if err != nil {
		return nil, apperror.ValidationFailed("image", "Please provide a valid image")
	}

	imageURL, err := s.media.Upload(ctx, data, contentType)
	if err != nil {
		return nil, apperror.Upstream("Image upload failed", err)
	}

	book := &model.Book{
		Title:   in.Title,
		Caption: in.Caption,
		Rating:  in.Rating,
		Image:   imageURL,
		UserID:  userID,
	}
	if err := s.books.Create(ctx, book); err != nil {
		destroyHosted(ctx, s.media, imageURL, s.logger)
		return nil, wrapUnlessDomain(err, "service/book: creating book")
	}

	s.logger.Info("book created", slog.String("bookID", book.ID), slog.String("userID", userID))
	return book, nil
}

// List returns one page of the feed. An empty sort means newest first.
func (s *BookService) List(ctx context.Context, opts repository.ListOptions) (*model.BookPage, error) {
	if opts.Sort != "" && !repository.ValidSort(opts.Sort) {
		return nil, apperror.ValidationFailed("sort",
			fmt.Sprintf("Invalid sort %q. Use one of -createdAt, createdAt, -rating, rating", opts.Sort))
	}
	opts = opts.Normalize()

	books, total, err := s.books.List(ctx, opts)
	if err != nil {
		return nil, wrapUnlessDomain(err, "service/book: listing books")
	}

	return &model.BookPage{
		Books:       books,
		CurrentPage: opts.Page,
		TotalBooks:  total,
		TotalPages:  (total + opts.Limit - 1) / opts.Limit,
	}, nil
}

// ListByUser returns the caller's books, newest first.
func (s *BookService) ListByUser(ctx context.Context, userID string) ([]model.Book, error) {
	books, err := s.books.ListByUser(ctx, userID)
	if err != nil {
		return nil, wrapUnlessDomain(err, "service/book: listing user books")
	}
	return books, nil
}

// Delete removes a book owned by userID, then deletes its hosted cover.
func (s *BookService) Delete(ctx context.Context, userID, bookID string) error {
	book, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NotFound("Book", bookID)
		}
		return fmt.Errorf("service/book: loading book %s: %w", bookID, err)
	}
	if book.UserID != userID {
		return apperror.Forbidden("You can only delete your own books")
	}

	if err := s.books.Delete(ctx, bookID); err != nil {
		return wrapUnlessDomain(err, "service/book: deleting book")
	}

	destroyHosted(ctx, s.media, book.Image, s.logger)
	s.logger.Info("book deleted", slog.String("bookID", bookID), slog.String("userID", userID))
	return nil
}
