package model

import "time"

// Book is a single recommendation in the feed.
//
// UserID is the owning user's ID as stored; User is the denormalised creator
// (username and avatar) joined in at read time for display.
type Book struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Caption   string       `json:"caption"`
	Rating    int          `json:"rating"`
	Image     string       `json:"image"`
	UserID    string       `json:"-"`
	User      *BookCreator `json:"user,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// BookCreator is the public slice of a User shown next to a book.
type BookCreator struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	ProfileImage string `json:"profileImage"`
}

// BookPage is one page of the book listing plus the totals the client needs
// to decide whether more pages remain.
type BookPage struct {
	Books       []Book `json:"books"`
	CurrentPage int    `json:"currentPage"`
	TotalBooks  int    `json:"totalBooks"`
	TotalPages  int    `json:"totalPages"`
}
