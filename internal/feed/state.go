// Package feed is the client-side Feed Reconciler: it pages through the
// book listing and keeps one de-duplicated, ordered list of what has been
// seen so far.
//
// The pieces:
//
//   - Reduce is the pure merge of a fetched page into a State.
//   - Loader owns one State, fetches pages through a Fetcher and enforces
//     single flight.
//   - Session decides when to load: debounced search, immediate sort change,
//     refresh and load-more.
package feed

import (
	"errors"
	"fmt"
	"slices"

	"github.com/sakif/bookworm/internal/model"
)

// Server-side sort keys.
const (
	SortNewest     = "-createdAt"
	SortOldest     = "createdAt"
	SortRatingDesc = "-rating"
	SortRatingAsc  = "rating"
)

var ErrUnknownSort = errors.New("feed: unknown sort")

var sortAliases = map[string]string{
	"newest":      SortNewest,
	"oldest":      SortOldest,
	"rating-desc": SortRatingDesc,
	"rating-asc":  SortRatingAsc,
}

// ResolveSort accepts a server key or one of the aliases newest, oldest,
// rating-desc and rating-asc. Empty means newest.
func ResolveSort(s string) (string, error) {
	switch s {
	case "":
		return SortNewest, nil
	case SortNewest, SortOldest, SortRatingDesc, SortRatingAsc:
		return s, nil
	}
	if key, ok := sortAliases[s]; ok {
		return key, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownSort, s)
}

// Query identifies the listing a State was built from. A State only ever
// holds books from a single Query.
type Query struct {
	Search string
	Sort   string
}

// Page is one response of the paginated listing.
type Page struct {
	Books      []model.Book
	Page       int
	TotalPages int
	TotalBooks int
}

// State is the accumulated feed. Books keeps arrival order and never holds
// two entries with the same ID.
type State struct {
	Books      []model.Book
	Page       int
	HasMore    bool
	TotalBooks int
	Query      Query
}

// Len is the number of distinct books seen.
func (s State) Len() int { return len(s.Books) }

func (s State) clone() State {
	s.Books = slices.Clone(s.Books)
	return s
}

// Reduce merges page into prev and returns the new State; prev is not
// modified.
//
// With reset, or when prev is empty, the page replaces the feed. Otherwise
// books already present keep their position and take the incoming copy,
// and new IDs are appended in page order. Duplicates within one page
// collapse to the first position with the last copy's content.
func Reduce(prev State, page Page, reset bool) State {
	next := State{
		Page:       page.Page,
		HasMore:    page.Page < page.TotalPages,
		TotalBooks: page.TotalBooks,
		Query:      prev.Query,
	}

	var base []model.Book
	if !reset {
		base = prev.Books
	}

	books := make([]model.Book, 0, len(base)+len(page.Books))
	index := make(map[string]int, len(base)+len(page.Books))
	for _, b := range base {
		index[b.ID] = len(books)
		books = append(books, b)
	}
	for _, b := range page.Books {
		if i, ok := index[b.ID]; ok {
			books[i] = b
			continue
		}
		index[b.ID] = len(books)
		books = append(books, b)
	}

	next.Books = books
	return next
}
