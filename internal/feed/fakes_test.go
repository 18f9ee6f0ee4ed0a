package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sakif/bookworm/internal/model"
)

func book(id string) model.Book {
	return model.Book{ID: id, Title: "Book " + id, Rating: 3}
}

func books(ids ...string) []model.Book {
	out := make([]model.Book, 0, len(ids))
	for _, id := range ids {
		out = append(out, book(id))
	}
	return out
}

func ids(bs []model.Book) []string {
	out := make([]string, 0, len(bs))
	for _, b := range bs {
		out = append(out, b.ID)
	}
	return out
}

// fakeFetcher pages through an in-memory catalogue like the API does:
// case-insensitive title filter, fixed order, ceil(total/limit) pages.
type fakeFetcher struct {
	mu       sync.Mutex
	catalog  []model.Book
	requests []PageRequest
	err      error

	// gates blocks FetchPage for the given page until the channel is closed.
	gates   map[int]chan struct{}
	started chan PageRequest
}

func newFakeFetcher(catalog []model.Book) *fakeFetcher {
	return &fakeFetcher{
		catalog: catalog,
		gates:   map[int]chan struct{}{},
		started: make(chan PageRequest, 64),
	}
}

func (f *fakeFetcher) gate(page int) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[page] = ch
	return ch
}

func (f *fakeFetcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeFetcher) calls() []PageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PageRequest(nil), f.requests...)
}

func (f *fakeFetcher) FetchPage(ctx context.Context, req PageRequest) (Page, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	gate := f.gates[req.Page]
	delete(f.gates, req.Page)
	f.mu.Unlock()

	f.started <- req
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Page{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Page{}, f.err
	}

	var matched []model.Book
	for _, b := range f.catalog {
		if strings.Contains(strings.ToLower(b.Title), strings.ToLower(req.Search)) {
			matched = append(matched, b)
		}
	}

	start := (req.Page - 1) * req.Limit
	end := min(start+req.Limit, len(matched))
	var pageBooks []model.Book
	if start < len(matched) {
		pageBooks = append(pageBooks, matched[start:end]...)
	}
	return Page{
		Books:      pageBooks,
		Page:       req.Page,
		TotalPages: (len(matched) + req.Limit - 1) / req.Limit,
		TotalBooks: len(matched),
	}, nil
}

func catalog(n int) []model.Book {
	out := make([]model.Book, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, book(fmt.Sprintf("b%02d", i)))
	}
	return out
}
