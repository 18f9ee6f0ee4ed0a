package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultLimit is the page size when none is configured.
const DefaultLimit = 10

var (
	// ErrLoadInFlight is returned when an equivalent load is already running.
	ErrLoadInFlight = errors.New("feed: load already in flight")

	// ErrStaleLoad is returned for a load whose result arrived after a newer
	// reset started. The result is dropped.
	ErrStaleLoad = errors.New("feed: load superseded by a newer reset")
)

// PageRequest is one call to the paginated listing.
type PageRequest struct {
	Page   int
	Limit  int
	Search string
	Sort   string
}

// Fetcher fetches one page of the listing. internal/client implements it
// over HTTP.
type Fetcher interface {
	FetchPage(ctx context.Context, req PageRequest) (Page, error)
}

// Loader owns one State and applies fetched pages to it.
//
// At most one next-page load and one reset load run at a time. A reset may
// start while a next-page load is running; that load's result is then
// dropped with ErrStaleLoad so it never merges into the reset feed. A reset
// for a different query supersedes a running reset the same way.
type Loader struct {
	fetcher Fetcher
	limit   int
	logger  *slog.Logger

	mu         sync.Mutex
	state      State
	gen        uint64 // bumped by every reset
	appending  bool
	resetting  bool
	resetQuery Query
}

func NewLoader(fetcher Fetcher, limit int, logger *slog.Logger) *Loader {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{
		fetcher: fetcher,
		limit:   limit,
		logger:  logger,
	}
}

// State returns a copy of the current feed.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.clone()
}

// LoadPage fetches page and merges it into the feed.
//
// The feed is reset (replaced by the page) when isRefresh is set, when page
// is 1, or when search or sort differ from the feed's query. On any error
// the feed is left exactly as it was. There are no retries.
func (l *Loader) LoadPage(ctx context.Context, page int, isRefresh bool, search, sort string) (State, error) {
	sortKey, err := ResolveSort(sort)
	if err != nil {
		return l.State(), err
	}
	if page < 1 {
		page = 1
	}
	q := Query{Search: search, Sort: sortKey}

	l.mu.Lock()
	reset := isRefresh || page == 1 || q != l.state.Query
	if reset {
		if l.resetting && l.resetQuery == q {
			l.mu.Unlock()
			return l.State(), ErrLoadInFlight
		}
		l.gen++
		l.resetting = true
		l.resetQuery = q
	} else {
		if l.appending || l.resetting {
			l.mu.Unlock()
			return l.State(), ErrLoadInFlight
		}
		l.appending = true
	}
	gen := l.gen
	l.mu.Unlock()

	fetched, fetchErr := l.fetcher.FetchPage(ctx, PageRequest{
		Page:   page,
		Limit:  l.limit,
		Search: q.Search,
		Sort:   q.Sort,
	})

	l.mu.Lock()
	defer l.mu.Unlock()

	current := gen == l.gen
	if reset {
		if current {
			l.resetting = false
		}
	} else {
		l.appending = false
	}

	if fetchErr != nil {
		l.logger.Warn("feed page load failed",
			slog.Int("page", page),
			slog.Bool("reset", reset),
			slog.Any("error", fetchErr),
		)
		return l.state.clone(), fmt.Errorf("feed: loading page %d: %w", page, fetchErr)
	}
	if !current {
		l.logger.Debug("dropping stale feed page", slog.Int("page", page))
		return l.state.clone(), ErrStaleLoad
	}

	if fetched.Page == 0 {
		fetched.Page = page
	}
	next := Reduce(l.state, fetched, reset)
	next.Query = q
	l.state = next

	l.logger.Debug("feed page merged",
		slog.Int("page", next.Page),
		slog.Int("books", next.Len()),
		slog.Bool("hasMore", next.HasMore),
	)
	return l.state.clone(), nil
}
