package eval

import (
	"context"
	"fmt"
	"forager/app/config"
	"forager/app/service/agent"
	"forager/app/service/ingest"
	"forager/app/service/tools"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
	"github.com/tmc/langchaingo/llms"
)

const conversationID = "eval"

type Case struct {
	Name          string
	Prompt        string
	ExpectedTools []string
}

type Result struct {
	Case
	ActualTools []string
	Response    string
	Passed      bool
	Reason      string
}

var Cases = []Case{
	{
		Name:          "Knowledge base search",
		Prompt:        "What are people saying about Python type hints?",
		ExpectedTools: []string{tools.NameSearchKnowledgeBase},
	},
	{
		Name:          "Live subreddit browse",
		Prompt:        "What's trending on r/python right now?",
		ExpectedTools: []string{tools.NameFetchSubredditPosts},
	},
	{
		Name:          "Explicit seed request",
		Prompt:        "Please seed r/learnpython with 2 threads",
		ExpectedTools: []string{tools.NameSeedSubreddit},
	},
	{
		Name:          "Specific thread fetch",
		Prompt:        "Can you fetch the Reddit thread with ID abc123?",
		ExpectedTools: []string{tools.NameFetchThread},
	},
}

// CannedResponses lets the agent finish its loop without touching Reddit or
// the vector index.
var CannedResponses = map[string]string{
	tools.NameSearchKnowledgeBase: "Result 1 (r/python, summary, distance=0.234):\n" +
		"Thread: https://www.reddit.com/r/python/comments/abc123/test/\n" +
		"Date: 2026-02-19\n" +
		"Content: Discussion about Python 3.13 new features including " +
		"pattern matching improvements and performance gains.",
	tools.NameFetchThread: "Thread: What's new in Python 3.13\n" +
		"URL: https://www.reddit.com/r/python/comments/abc123/\n" +
		"Score: 150 | Comments: 45\n" +
		"Author: python_dev (2026-02-19)\n\n" +
		"Discussion about the new features in Python 3.13.",
	tools.NameFetchSubredditPosts: "Latest hot posts from r/python:\n\n" +
		"1. [150 pts, 45 comments] What's new in Python 3.13\n" +
		"   https://www.reddit.com/r/python/comments/abc123/\n\n" +
		"2. [89 pts, 23 comments] Best practices for async Python\n" +
		"   https://www.reddit.com/r/python/comments/def456/",
	tools.NameSeedSubreddit: "Successfully seeded 3 threads (6 documents) from r/python " +
		"into the knowledge base.",
}

type Service struct {
	model          llms.Model
	maxSeedThreads int
	maxToolRounds  int
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(do.MustInvoke[llms.Model](di), cfg.Agent.MaxSeedThreads, cfg.Agent.MaxToolRounds), nil
}

func NewService(model llms.Model, maxSeedThreads, maxToolRounds int) *Service {
	return &Service{
		model:          model,
		maxSeedThreads: maxSeedThreads,
		maxToolRounds:  maxToolRounds,
	}
}

func (s *Service) Run(ctx context.Context, cases []Case) []Result {
	results := make([]Result, 0, len(cases))

	for _, c := range cases {
		slog.Info("Running eval", "name", c.Name)

		result := s.runCase(ctx, c)
		slog.Info("Eval finished", "name", c.Name, "passed", result.Passed, "reason", result.Reason)

		results = append(results, result)
	}

	return results
}

func (s *Service) runCase(ctx context.Context, c Case) Result {
	result := Result{Case: c}

	registry, err := tools.NewRegistry(tools.Catalogue(s.maxSeedThreads), tools.Static(CannedResponses))
	if err != nil {
		result.Reason = fmt.Sprintf("Error: %v", err)
		return result
	}

	recorder := &recordingDispatcher{Registry: registry}
	agentSvc := agent.NewService(s.model, recorder, fixedCounter(10), cannedSeeder{}, agent.Options{
		MaxToolRounds: s.maxToolRounds,
	})

	result.Response, err = agentSvc.Chat(ctx, conversationID, c.Prompt)
	result.ActualTools = recorder.names()
	if err != nil {
		result.Reason = fmt.Sprintf("Error: %v", err)
		return result
	}

	missing := pie.Filter(c.ExpectedTools, func(name string) bool {
		return !slices.Contains(result.ActualTools, name)
	})
	if len(missing) == 0 {
		result.Passed = true
		result.Reason = fmt.Sprintf("Correct tools called: %v", result.ActualTools)
	} else {
		result.Reason = fmt.Sprintf("Missing expected tools: %v. Actually called: %v", missing, result.ActualTools)
	}

	return result
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	return pie.All(results, func(r Result) bool { return r.Passed })
}

func Report(w io.Writer, results []Result) {
	line := strings.Repeat("=", 80)

	_, _ = fmt.Fprintf(w, "\n%s\nAGENT EVALUATION RESULTS\n%s\n", line, line)

	for _, r := range results {
		status := "FAIL"
		if r.Passed {
			status = "PASS"
		}

		_, _ = fmt.Fprintf(w, "\n%s  %s\n", status, r.Name)
		_, _ = fmt.Fprintf(w, "  Prompt:    %s\n", r.Prompt)
		_, _ = fmt.Fprintf(w, "  Expected:  %v\n", r.ExpectedTools)
		_, _ = fmt.Fprintf(w, "  Actual:    %v\n", r.ActualTools)
		_, _ = fmt.Fprintf(w, "  Reason:    %s\n", r.Reason)
	}

	passed := len(pie.Filter(results, func(r Result) bool { return r.Passed }))
	_, _ = fmt.Fprintf(w, "\n%s\nResults: %d/%d passed\n%s\n", strings.Repeat("-", 80), passed, len(results), line)
}

type recordingDispatcher struct {
	*tools.Registry

	mu    sync.Mutex
	calls []string
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, name, arguments string) string {
	d.mu.Lock()
	d.calls = append(d.calls, name)
	d.mu.Unlock()

	return d.Registry.Dispatch(ctx, name, arguments)
}

func (d *recordingDispatcher) names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.calls...)
}

type fixedCounter int

func (c fixedCounter) Count(context.Context) (int, error) {
	return int(c), nil
}

type cannedSeeder struct{}

func (cannedSeeder) Seed(context.Context, string, int) (ingest.Result, error) {
	return ingest.Result{Threads: 3, Documents: 6}, nil
}
