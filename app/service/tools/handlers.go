package tools

import (
	"context"
	"fmt"
	"forager/app/client/reddit"
	"forager/app/config"
	"forager/app/service/ingest"
	"forager/app/service/knowledge"
	"strings"
	"unicode/utf8"

	"github.com/samber/do"
)

const (
	redditURL = "https://www.reddit.com"

	maxOutputChars   = 4000
	maxPreviewChars  = 2000
	defaultResults   = 5
	maxSearchResults = 20
	defaultLimit     = 5
	maxListingLimit  = 100
)

type Searcher interface {
	Search(ctx context.Context, q knowledge.Query) ([]knowledge.Result, error)
}

type Seeder interface {
	Seed(ctx context.Context, subreddit string, limit int) (ingest.Result, error)
}

var (
	_ Searcher = (*knowledge.Store)(nil)
	_ Seeder   = (*ingest.Service)(nil)
)

type SearchArgs struct {
	Query     string `json:"query" validate:"required"`
	Subreddit string `json:"subreddit"`
	DocType   string `json:"doc_type" validate:"omitempty,oneof=thread_content summary"`
	NResults  int    `json:"n_results"`
}

type FetchThreadArgs struct {
	ThreadID string `json:"thread_id" validate:"required"`
}

type FetchPostsArgs struct {
	Subreddit string `json:"subreddit" validate:"required"`
	Sort      string `json:"sort" validate:"omitempty,oneof=hot new top"`
	Limit     int    `json:"limit"`
}

type SeedArgs struct {
	Subreddit string `json:"subreddit" validate:"required"`
	Limit     int    `json:"limit"`
}

func New(di *do.Injector) (*Registry, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewStandard(
		do.MustInvoke[*knowledge.Store](di),
		do.MustInvoke[reddit.Source](di),
		do.MustInvoke[*ingest.Service](di),
		cfg.Agent.MaxSeedThreads,
	)
}

// NewStandard builds the registry backed by the live store and source.
func NewStandard(store Searcher, source reddit.Source, seeder Seeder, maxSeedThreads int) (*Registry, error) {
	h := &handlers{
		store:  store,
		source: source,
		seeder: seeder,
	}

	return NewRegistry(Catalogue(maxSeedThreads), map[string]Handler{
		NameSearchKnowledgeBase: Typed(h.search),
		NameFetchThread:         Typed(h.fetchThread),
		NameFetchSubredditPosts: Typed(h.fetchPosts),
		NameSeedSubreddit:       Typed(h.seed),
	})
}

type handlers struct {
	store  Searcher
	source reddit.Source
	seeder Seeder
}

func (h *handlers) search(ctx context.Context, args SearchArgs) (string, error) {
	n := args.NResults
	if n <= 0 {
		n = defaultResults
	}

	results, err := h.store.Search(ctx, knowledge.Query{
		Text:      args.Query,
		N:         min(n, maxSearchResults),
		Subreddit: NormalizeSubreddit(args.Subreddit),
		DocType:   args.DocType,
	})
	if err != nil {
		return "", fmt.Errorf("searching knowledge base: %w", err)
	}

	return FormatSearchResults(results), nil
}

func (h *handlers) fetchThread(ctx context.Context, args FetchThreadArgs) (string, error) {
	id := ParseThreadID(args.ThreadID)

	th, err := h.source.FetchThread(ctx, id)
	if err != nil {
		return "", fmt.Errorf("fetching thread %s: %w", id, err)
	}

	title, _, _ := strings.Cut(th.Submission.Content, "\n")

	text := fmt.Sprintf("Thread: %s\nURL: %s%s\nScore: %d | Comments: %d\nAuthor: %s | Date: %s\n\n%s",
		title,
		redditURL, th.Submission.Permalink,
		th.Submission.Score, th.Submission.NumComments,
		th.Submission.Author, th.Submission.Date,
		th.Text(),
	)

	return Truncate(text, maxOutputChars), nil
}

func (h *handlers) fetchPosts(ctx context.Context, args FetchPostsArgs) (string, error) {
	subreddit := NormalizeSubreddit(args.Subreddit)
	sort := reddit.ParseSort(args.Sort)

	limit := args.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxListingLimit)

	var lines []string
	for item, err := range h.source.ListFeed(ctx, subreddit, sort, limit) {
		if err != nil {
			return "", fmt.Errorf("fetching r/%s: %w", subreddit, err)
		}

		title, _, _ := strings.Cut(item.Submission.Content, "\n")
		lines = append(lines, fmt.Sprintf("%d. [%d pts, %d comments] %s\n   %s%s",
			len(lines)+1,
			item.Submission.Score, item.Submission.NumComments,
			title,
			redditURL, item.Submission.Permalink,
		))
	}

	text := fmt.Sprintf("Latest %s posts from r/%s:\n\n", sort, subreddit) + strings.Join(lines, "\n\n")

	return Truncate(text, maxOutputChars), nil
}

func (h *handlers) seed(ctx context.Context, args SeedArgs) (string, error) {
	subreddit := NormalizeSubreddit(args.Subreddit)

	limit := args.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	result, err := h.seeder.Seed(ctx, subreddit, limit)
	if err != nil {
		return "", fmt.Errorf("seeding r/%s: %w", subreddit, err)
	}

	return Truncate(FormatSeedResult(subreddit, result), maxOutputChars), nil
}

func FormatSeedResult(subreddit string, result ingest.Result) string {
	return fmt.Sprintf("Successfully seeded %d threads (%d documents) from r/%s into the knowledge base.",
		result.Threads, result.Documents, subreddit)
}

func FormatSearchResults(results []knowledge.Result) string {
	if len(results) == 0 {
		return "No results found in the knowledge base."
	}

	formatted := make([]string, 0, len(results))
	for i, r := range results {
		formatted = append(formatted, fmt.Sprintf(
			"Result %d (r/%s, %s, distance=%.3f):\nThread: %s%s\nDate: %s\nContent:\n%s",
			i+1,
			orUnknown(r.Metadata.Subreddit), orUnknown(r.Metadata.DocType), r.Distance,
			redditURL, r.Metadata.Permalink,
			orUnknown(r.Metadata.Date),
			Truncate(r.Document, maxPreviewChars),
		))
	}

	return strings.Join(formatted, "\n\n---\n\n")
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

// NormalizeSubreddit strips an "r/" prefix and surrounding whitespace.
func NormalizeSubreddit(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "/")
	name = strings.TrimPrefix(name, "r/")
	return strings.TrimSuffix(name, "/")
}

// ParseThreadID accepts a bare id, a t3_ fullname or a thread URL.
func ParseThreadID(s string) string {
	s = strings.TrimSpace(s)

	if _, rest, ok := strings.Cut(s, "/comments/"); ok {
		id, _, _ := strings.Cut(rest, "/")
		return id
	}

	return strings.TrimPrefix(s, "t3_")
}

// Truncate cuts s to at most n characters.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	runes := []rune(s)
	return string(runes[:n])
}
