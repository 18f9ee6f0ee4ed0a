// Package client talks to the bookworm HTTP API. It implements
// feed.Fetcher so a feed.Session can page through the listing.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/sakif/bookworm/internal/feed"
	"github.com/sakif/bookworm/internal/model"
)

// Config for New. BaseURL is the server root, e.g. http://localhost:3000.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// APIError is a non-2xx response. Message is the envelope's message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

// ErrNoToken is returned by authenticated calls before Login or SetToken.
var ErrNoToken = errors.New("client: no auth token")

type Client struct {
	base *url.URL
	http *http.Client

	mu    sync.RWMutex
	token string
}

var _ feed.Fetcher = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("client: invalid base URL %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base:  base,
		http:  &http.Client{Timeout: timeout},
		token: cfg.Token,
	}, nil
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Token   string          `json:"token"`
	User    *model.User     `json:"user"`
	Data    json.RawMessage `json:"data"`
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*model.User, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, fmt.Errorf("client: encoding login: %w", err)
	}

	env, err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, body, false)
	if err != nil {
		return nil, err
	}
	if env.Token == "" {
		return nil, errors.New("client: login response carried no token")
	}
	c.SetToken(env.Token)
	return env.User, nil
}

type bookPage struct {
	Books       []model.Book `json:"books"`
	CurrentPage int          `json:"currentPage"`
	TotalBooks  int          `json:"totalBooks"`
	TotalPages  int          `json:"totalPages"`
}

// FetchPage implements feed.Fetcher against GET /api/books.
func (c *Client) FetchPage(ctx context.Context, req feed.PageRequest) (feed.Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(req.Page))
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Search != "" {
		q.Set("title", req.Search)
	}
	if req.Sort != "" {
		q.Set("sort", req.Sort)
	}

	env, err := c.do(ctx, http.MethodGet, "/api/books", q, nil, true)
	if err != nil {
		return feed.Page{}, err
	}

	var page bookPage
	if err := json.Unmarshal(env.Data, &page); err != nil {
		return feed.Page{}, fmt.Errorf("client: decoding book page: %w", err)
	}
	if page.CurrentPage == 0 {
		page.CurrentPage = req.Page
	}
	return feed.Page{
		Books:      page.Books,
		Page:       page.CurrentPage,
		TotalPages: page.TotalPages,
		TotalBooks: page.TotalBooks,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, authed bool) (*envelope, error) {
	u := c.base.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return nil, fmt.Errorf("client: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		token := c.Token()
		if token == "" {
			return nil, ErrNoToken
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 32<<20)).Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Message
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("client: decoding %s %s: %w", method, path, decodeErr)
	}
	return &env, nil
}
