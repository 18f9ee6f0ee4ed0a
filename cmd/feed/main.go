// Command feed is a terminal client for the book feed. It logs in, loads
// the first page and then reads commands from stdin:
//
//	more             load the next page
//	refresh          start over at page 1
//	search <term>    filter by title (debounced, like typing in a search box)
//	sort <key>       newest, oldest, rating-desc, rating-asc or a raw key
//	show             print the feed again
//	quit
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sakif/bookworm/internal/client"
	"github.com/sakif/bookworm/internal/feed"
	"github.com/sakif/bookworm/internal/logging"
)

type options struct {
	baseURL  string
	email    string
	password string
	token    string
	limit    int
	sort     string
	search   string
	debounce time.Duration
	logLevel string
}

func main() {
	opts := parseFlags()
	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, "feed:", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.baseURL, "url", envOr("BOOKWORM_URL", "http://localhost:3000"), "API base URL")
	flag.StringVar(&o.email, "email", os.Getenv("BOOKWORM_EMAIL"), "login email")
	flag.StringVar(&o.password, "password", os.Getenv("BOOKWORM_PASSWORD"), "login password")
	flag.StringVar(&o.token, "token", os.Getenv("BOOKWORM_TOKEN"), "existing JWT; skips login")
	flag.IntVar(&o.limit, "limit", 2, "books per page")
	flag.StringVar(&o.sort, "sort", "newest", "initial sort")
	flag.StringVar(&o.search, "search", "", "initial title search")
	flag.DurationVar(&o.debounce, "debounce", feed.DefaultDebounce, "search debounce")
	flag.StringVar(&o.logLevel, "log-level", "warn", "debug, info, warn or error")
	flag.Parse()
	return o
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(o options) error {
	level, err := logging.ParseLevel(o.logLevel)
	if err != nil {
		return err
	}
	logger := slog.New(logging.NewHandler(os.Stderr, "text", level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api, err := client.New(client.Config{BaseURL: o.baseURL, Token: o.token})
	if err != nil {
		return err
	}
	if o.token == "" {
		if o.email == "" || o.password == "" {
			return errors.New("set -token, or -email and -password")
		}
		user, err := api.Login(ctx, o.email, o.password)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		fmt.Printf("logged in as %s\n", user.Username)
	}

	out := &printer{w: os.Stdout}
	session, err := feed.NewSession(ctx, api, feed.Options{
		Limit:    o.limit,
		Debounce: o.debounce,
		Sort:     o.sort,
		Logger:   logger,
		OnUpdate: out.update,
	})
	if err != nil {
		return err
	}
	defer session.Close()

	if o.search != "" {
		session.SetSearch(o.search)
	} else {
		st, err := session.Start(ctx)
		out.update(st, err)
	}

	return repl(ctx, session, out, os.Stdin)
}

func repl(ctx context.Context, s *feed.Session, out *printer, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
			arg = strings.TrimSpace(arg)

			switch cmd {
			case "":
			case "more", "m":
				st, err := s.LoadMore(ctx)
				if err == nil && !st.HasMore {
					out.note("no more books")
				}
				out.update(st, err)
			case "refresh", "r":
				out.update(s.Refresh(ctx))
			case "search", "s":
				s.SetSearch(arg)
			case "sort":
				out.update(s.SetSort(ctx, arg))
			case "show":
				out.update(s.State(), nil)
				if s.SearchPending() {
					out.note("search pending")
				}
			case "quit", "q", "exit":
				return nil
			default:
				out.note("commands: more, refresh, search <term>, sort <key>, show, quit")
			}
		}
	}
}

// printer serialises output from the REPL and the debounce timer.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) note(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, msg)
}

func (p *printer) update(st feed.State, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		fmt.Fprintln(p.w, "error:", err)
		return
	}

	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "#\tTITLE\tRATING\tBY\n")
	for i, b := range st.Books {
		by := ""
		if b.User != nil {
			by = b.User.Username
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, b.Title, strings.Repeat("*", b.Rating), by)
	}
	tw.Flush()

	more := ""
	if st.HasMore {
		more = ", more available"
	}
	fmt.Fprintf(p.w, "-- page %d, %d of %d books, sort %s, search %q%s\n",
		st.Page, st.Len(), st.TotalBooks, st.Query.Sort, st.Query.Search, more)
}
