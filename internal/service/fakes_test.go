package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/bookworm/internal/apperror"
	"github.com/sakif/bookworm/internal/model"
	"github.com/sakif/bookworm/internal/repository"
)

// =========================================================================
// FAKE USER REPOSITORY
// =========================================================================

// fakeUserRepo is an in-memory repository.UserRepository. Set the *Err
// fields to simulate store failures.
type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User
	nextID int

	updateErr   error
	updateCalls int
	conflictErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

// add stores a copy of u with a generated ID and returns the stored copy.
func (f *fakeUserRepo) add(u model.User) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u.ID = fmt.Sprintf("user-%d", f.nextID)
	u.Email = strings.ToLower(u.Email)
	f.users[u.ID] = &u
	cp := u
	return &cp
}

// get returns a copy of the stored user, for assertions.
func (f *fakeUserRepo) get(id string) model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.users[id]
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	f.mu.Lock()
	for _, u := range f.users {
		if u.Username == user.Username {
			f.mu.Unlock()
			return apperror.AlreadyExists("username", "Username")
		}
		if u.Email == strings.ToLower(user.Email) {
			f.mu.Unlock()
			return apperror.AlreadyExists("email", "Email")
		}
	}
	f.mu.Unlock()

	stored := f.add(*user)
	*user = *stored
	user.CreatedAt = time.Now()
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == strings.ToLower(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) GetByGitHubID(_ context.Context, githubID int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.GitHubID != 0 && u.GitHubID == githubID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", fmt.Sprint(githubID))
}

func (f *fakeUserRepo) FindConflict(_ context.Context, excludeID, username, email string) (*model.User, error) {
	if f.conflictErr != nil {
		return nil, f.conflictErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var emailMatch *model.User
	for _, u := range f.users {
		if u.ID == excludeID {
			continue
		}
		if username != "" && u.Username == username {
			cp := *u
			return &cp, nil
		}
		if email != "" && u.Email == strings.ToLower(email) && emailMatch == nil {
			cp := *u
			emailMatch = &cp
		}
	}
	return emailMatch, nil
}

func (f *fakeUserRepo) UpdateProfile(_ context.Context, id string, fields repository.ProfileFields) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	if fields.Username != nil {
		u.Username = *fields.Username
	}
	if fields.Email != nil {
		u.Email = *fields.Email
	}
	if fields.ProfileImage != nil {
		u.ProfileImage = *fields.ProfileImage
	}
	u.UpdatedAt = time.Now()
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.PasswordHash = passwordHash
	return nil
}

func (f *fakeUserRepo) LinkGitHub(_ context.Context, id string, githubID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.GitHubID = githubID
	return nil
}

// =========================================================================
// FAKE BOOK REPOSITORY
// =========================================================================

type fakeBookRepo struct {
	books     map[string]*model.Book
	order     []string // insertion order, oldest first
	createErr error
	lastList  repository.ListOptions
}

func newFakeBookRepo() *fakeBookRepo {
	return &fakeBookRepo{books: make(map[string]*model.Book)}
}

func (f *fakeBookRepo) Create(_ context.Context, book *model.Book) error {
	if f.createErr != nil {
		return f.createErr
	}
	book.ID = fmt.Sprintf("book-%d", len(f.order)+1)
	book.CreatedAt = time.Now()
	cp := *book
	f.books[book.ID] = &cp
	f.order = append(f.order, book.ID)
	return nil
}

func (f *fakeBookRepo) GetByID(_ context.Context, id string) (*model.Book, error) {
	b, ok := f.books[id]
	if !ok {
		return nil, apperror.NotFound("book", id)
	}
	cp := *b
	return &cp, nil
}

// List ignores sort and title; it pages over newest-first insertion order.
func (f *fakeBookRepo) List(_ context.Context, opts repository.ListOptions) ([]model.Book, int, error) {
	f.lastList = opts
	all := f.newestFirst("")
	start := min(opts.Offset(), len(all))
	end := min(start+opts.Limit, len(all))
	return all[start:end], len(all), nil
}

func (f *fakeBookRepo) ListByUser(_ context.Context, userID string) ([]model.Book, error) {
	return f.newestFirst(userID), nil
}

func (f *fakeBookRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.books[id]; !ok {
		return apperror.NotFound("book", id)
	}
	delete(f.books, id)
	return nil
}

func (f *fakeBookRepo) newestFirst(userID string) []model.Book {
	var out []model.Book
	for i := len(f.order) - 1; i >= 0; i-- {
		b, ok := f.books[f.order[i]]
		if !ok || (userID != "" && b.UserID != userID) {
			continue
		}
		out = append(out, *b)
	}
	return out
}

// =========================================================================
// FAKE MEDIA HOST
// =========================================================================

const fakeHostBase = "https://cdn.test/bookworm/"

// fakeHost records uploads and deletions. Owns matches fakeHostBase.
type fakeHost struct {
	mu         sync.Mutex
	uploads    [][]byte
	types      []string
	destroyed  []string
	uploadErr  error
	destroyErr error
	next       int
}

func (h *fakeHost) Upload(_ context.Context, data []byte, contentType string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.uploadErr != nil {
		return "", h.uploadErr
	}
	h.next++
	h.uploads = append(h.uploads, data)
	h.types = append(h.types, contentType)
	return fmt.Sprintf("%supload-%d", fakeHostBase, h.next), nil
}

func (h *fakeHost) Destroy(_ context.Context, publicID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.destroyed = append(h.destroyed, publicID)
	return h.destroyErr
}

func (h *fakeHost) Owns(url string) bool {
	return strings.Contains(url, fakeHostBase)
}

func (h *fakeHost) destroyedIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := append([]string(nil), h.destroyed...)
	sort.Strings(out)
	return out
}

// =========================================================================
// HELPERS
// =========================================================================

var errStore = errors.New("database is locked")

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// pngBytes returns a small valid PNG.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{G: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return buf.Bytes()
}
