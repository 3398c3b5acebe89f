package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"forager/app/config"
	"forager/app/thread"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samber/do"
	"github.com/samber/oops"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	publicBaseURL = "https://www.reddit.com"
	oauthBaseURL  = "https://oauth.reddit.com"
	tokenURL      = "https://www.reddit.com/api/v1/access_token"

	requestTimeout = 30 * time.Second
	maxPageSize    = 100
)

var ErrNotFound = errors.New("not found")

type Sort string

const (
	SortHot Sort = "hot"
	SortNew Sort = "new"
	SortTop Sort = "top"
)

// ParseSort maps anything outside hot/new/top to hot.
func ParseSort(s string) Sort {
	switch Sort(strings.ToLower(strings.TrimSpace(s))) {
	case SortNew:
		return SortNew
	case SortTop:
		return SortTop
	default:
		return SortHot
	}
}

// Source is the content platform as seen by the rest of the system.
type Source interface {
	FetchThread(ctx context.Context, id string) (*thread.Thread, error)
	// ListFeed lazily yields listing items. Items carry the submission only,
	// comments are fetched through FetchThread.
	ListFeed(ctx context.Context, subreddit string, sort Sort, limit int) iter.Seq2[*thread.Thread, error]
}

var _ Source = (*Client)(nil)

type Client struct {
	httpClient *http.Client
	baseURL    string
}

type Options struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	// BaseURL overrides the API host, mostly for tests.
	BaseURL  string
	TokenURL string
}

func NewClient(di *do.Injector) (*Client, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return New(Options{
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		UserAgent:    cfg.Reddit.UserAgent,
	}), nil
}

// New builds a client. Without credentials it talks to the public JSON
// endpoints, with them it uses app-only OAuth.
func New(opts Options) *Client {
	uaClient := &http.Client{
		Timeout: requestTimeout,
		Transport: &userAgentTransport{
			base:      http.DefaultTransport,
			userAgent: opts.UserAgent,
		},
	}

	baseURL := opts.BaseURL
	if opts.ClientID == "" {
		if baseURL == "" {
			baseURL = publicBaseURL
		}
		return &Client{httpClient: uaClient, baseURL: strings.TrimRight(baseURL, "/")}
	}

	if baseURL == "" {
		baseURL = oauthBaseURL
	}
	tokenEndpoint := opts.TokenURL
	if tokenEndpoint == "" {
		tokenEndpoint = tokenURL
	}

	credentials := clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     tokenEndpoint,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, uaClient)
	httpClient := credentials.Client(tokenCtx)
	httpClient.Timeout = requestTimeout

	return &Client{httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *Client) FetchThread(ctx context.Context, id string) (*thread.Thread, error) {
	id = strings.TrimPrefix(strings.TrimSpace(id), "t3_")
	if id == "" {
		return nil, oops.In("reddit").Errorf("thread id is empty")
	}

	var listings []listing
	if err := c.get(ctx, "/comments/"+url.PathEscape(id)+".json", url.Values{"raw_json": {"1"}}, &listings); err != nil {
		return nil, fmt.Errorf("failed to fetch thread %s: %w", id, err)
	}

	if len(listings) == 0 || len(listings[0].Data.Children) == 0 {
		return nil, fmt.Errorf("thread %s: %w", id, ErrNotFound)
	}

	var post postData
	if err := json.Unmarshal(listings[0].Data.Children[0].Data, &post); err != nil {
		return nil, oops.In("reddit").Errorf("failed to decode submission %s: %w", id, err)
	}

	result := &thread.Thread{Submission: post.toSubmission()}
	if len(listings) > 1 {
		comments, err := flattenComments(listings[1].Data.Children)
		if err != nil {
			return nil, oops.In("reddit").Errorf("failed to decode comments of %s: %w", id, err)
		}
		result.Comments = comments
	}

	return result, nil
}

func (c *Client) ListFeed(ctx context.Context, subreddit string, sort Sort, limit int) iter.Seq2[*thread.Thread, error] {
	return func(yield func(*thread.Thread, error) bool) {
		subreddit = normalizeSubreddit(subreddit)
		if subreddit == "" {
			yield(nil, oops.In("reddit").Errorf("subreddit is empty"))
			return
		}

		path := fmt.Sprintf("/r/%s/%s.json", url.PathEscape(subreddit), ParseSort(string(sort)))
		after := ""
		yielded := 0

		for yielded < limit {
			query := url.Values{
				"limit":    {strconv.Itoa(min(limit-yielded, maxPageSize))},
				"raw_json": {"1"},
			}
			if after != "" {
				query.Set("after", after)
			}

			var page listing
			if err := c.get(ctx, path, query, &page); err != nil {
				yield(nil, fmt.Errorf("failed to list r/%s: %w", subreddit, err))
				return
			}

			for _, child := range page.Data.Children {
				if child.Kind != "t3" {
					continue
				}

				var post postData
				if err := json.Unmarshal(child.Data, &post); err != nil {
					if !yield(nil, oops.In("reddit").Errorf("failed to decode listing item: %w", err)) {
						return
					}
					continue
				}

				if !yield(&thread.Thread{Submission: post.toSubmission()}, nil) {
					return
				}

				yielded++
				if yielded >= limit {
					return
				}
			}

			if page.Data.After == "" || len(page.Data.Children) == 0 {
				return
			}
			after = page.Data.After
		}
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return oops.In("reddit").
			With("status", resp.StatusCode).
			Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

func normalizeSubreddit(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "/")
	name = strings.TrimPrefix(name, "r/")
	return strings.Trim(name, "/")
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req)
}
