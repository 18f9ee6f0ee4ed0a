package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultDebounce is how long search input must settle before it loads.
const DefaultDebounce = 500 * time.Millisecond

// Options configure a Session.
type Options struct {
	Limit    int
	Debounce time.Duration
	Sort     string // initial sort, key or alias
	Logger   *slog.Logger

	// OnUpdate receives the outcome of loads the caller did not start
	// directly, i.e. debounced searches. It runs on the timer goroutine.
	OnUpdate func(State, error)
}

// Session turns user intent into loads: search input is debounced, sort
// changes and refreshes load immediately, LoadMore pages forward.
type Session struct {
	ctx      context.Context
	cancel   context.CancelFunc
	loader   *Loader
	debounce *Debouncer
	logger   *slog.Logger
	onUpdate func(State, error)

	mu    sync.Mutex
	query Query // what the user asked for; the feed catches up on the next load
}

// NewSession builds a session. ctx bounds the debounced loads; Close
// cancels it.
func NewSession(ctx context.Context, fetcher Fetcher, opts Options) (*Session, error) {
	sortKey, err := ResolveSort(opts.Sort)
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		ctx:      ctx,
		cancel:   cancel,
		loader:   NewLoader(fetcher, opts.Limit, opts.Logger),
		debounce: NewDebouncer(opts.Debounce),
		logger:   opts.Logger,
		onUpdate: opts.OnUpdate,
		query:    Query{Sort: sortKey},
	}, nil
}

// State returns the current feed.
func (s *Session) State() State {
	return s.loader.State()
}

// Query returns the search and sort the user last asked for.
func (s *Session) Query() Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// SearchPending reports whether a debounced search has not fired yet.
func (s *Session) SearchPending() bool {
	return s.debounce.Pending()
}

// Start loads the first page.
func (s *Session) Start(ctx context.Context) (State, error) {
	q := s.Query()
	return s.loader.LoadPage(ctx, 1, false, q.Search, q.Sort)
}

// SetSearch records the new search term and schedules a reset load once
// input has been quiet for the debounce period. Each call restarts the
// wait; only the last term is loaded.
func (s *Session) SetSearch(term string) {
	s.mu.Lock()
	s.query.Search = term
	s.mu.Unlock()

	s.debounce.Trigger(func() {
		q := s.Query()
		st, err := s.loader.LoadPage(s.ctx, 1, false, q.Search, q.Sort)
		s.notify(st, err)
	})
}

// SetSort switches the sort and reloads page 1 immediately. A pending
// search is folded into this load.
func (s *Session) SetSort(ctx context.Context, sort string) (State, error) {
	key, err := ResolveSort(sort)
	if err != nil {
		return s.State(), err
	}

	s.mu.Lock()
	s.query.Sort = key
	q := s.query
	s.mu.Unlock()

	s.debounce.Stop()
	return s.loader.LoadPage(ctx, 1, false, q.Search, q.Sort)
}

// Refresh reloads page 1 of the current query and replaces the feed.
func (s *Session) Refresh(ctx context.Context) (State, error) {
	q := s.Query()
	s.debounce.Stop()
	return s.loader.LoadPage(ctx, 1, true, q.Search, q.Sort)
}

// LoadMore fetches the page after the last one seen, for the query the feed
// was built from. Without more pages it returns the feed unchanged.
func (s *Session) LoadMore(ctx context.Context) (State, error) {
	st := s.loader.State()
	if !st.HasMore {
		return st, nil
	}
	return s.loader.LoadPage(ctx, st.Page+1, false, st.Query.Search, st.Query.Sort)
}

// Close cancels any pending search and in-flight debounced load.
func (s *Session) Close() {
	s.debounce.Stop()
	s.cancel()
}

func (s *Session) notify(st State, err error) {
	switch {
	case errors.Is(err, ErrStaleLoad), errors.Is(err, context.Canceled):
		s.logger.Debug("debounced search dropped", slog.Any("error", err))
		return
	case err != nil:
		s.logger.Warn("debounced search failed", slog.Any("error", err))
	}
	if s.onUpdate != nil {
		s.onUpdate(st, err)
	}
}
