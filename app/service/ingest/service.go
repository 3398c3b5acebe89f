package ingest

import (
	"context"
	"fmt"
	"forager/app/client/reddit"
	"forager/app/config"
	"forager/app/service/knowledge"
	"forager/app/service/summarizer"
	"forager/app/thread"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

const (
	threadSummariesFile = "thread_summaries.txt"
	finalSummaryFile    = "final_summary.txt"
)

type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
	SummarizeCollection(ctx context.Context, collection *thread.Collection) (string, error)
}

type Store interface {
	AddCollection(ctx context.Context, c *thread.Collection, subreddit string) (int, error)
}

var (
	_ Summarizer = (*summarizer.Service)(nil)
	_ Store      = (*knowledge.Store)(nil)
)

type Service struct {
	source     reddit.Source
	summarizer Summarizer
	store      Store
	maxThreads int
}

type Result struct {
	Threads   int
	Documents int
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(
		do.MustInvoke[reddit.Source](di),
		do.MustInvoke[*summarizer.Service](di),
		do.MustInvoke[*knowledge.Store](di),
		cfg.Agent.MaxSeedThreads,
	), nil
}

func NewService(source reddit.Source, summarizer Summarizer, store Store, maxThreads int) *Service {
	return &Service{
		source:     source,
		summarizer: summarizer,
		store:      store,
		maxThreads: maxThreads,
	}
}

// ClampLimit bounds a requested seed size to [1, max seed threads].
func (s *Service) ClampLimit(limit int) int {
	return min(max(limit, 1), s.maxThreads)
}

// Seed fetches the newest threads of a subreddit, summarizes them and stores
// them in the knowledge base. The limit is silently clamped.
func (s *Service) Seed(ctx context.Context, subreddit string, limit int) (Result, error) {
	limit = s.ClampLimit(limit)

	collection, err := s.Collect(ctx, subreddit, reddit.SortNew, limit)
	if err != nil {
		return Result{}, err
	}

	if err = s.summarize(ctx, collection); err != nil {
		return Result{}, err
	}

	documents, err := s.store.AddCollection(ctx, collection, subreddit)
	if err != nil {
		return Result{}, err
	}

	slog.Info("Seeded subreddit",
		"subreddit", subreddit,
		"threads", len(collection.Threads),
		"documents", documents,
	)

	return Result{Threads: len(collection.Threads), Documents: documents}, nil
}

// Collect lists a feed and fetches every listed thread with its comments.
func (s *Service) Collect(ctx context.Context, subreddit string, sort reddit.Sort, limit int) (*thread.Collection, error) {
	var ids []string
	for item, err := range s.source.ListFeed(ctx, subreddit, sort, limit) {
		if err != nil {
			return nil, fmt.Errorf("failed to list r/%s: %w", subreddit, err)
		}
		ids = append(ids, item.Submission.ID)
	}

	threads := make([]*thread.Thread, len(ids))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(max(s.maxThreads, 1))

	for i, id := range ids {
		group.Go(func() error {
			th, err := s.source.FetchThread(groupCtx, id)
			if err != nil {
				return fmt.Errorf("failed to fetch thread %s: %w", id, err)
			}
			th.SetContent(th.Text())
			threads[i] = th
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return &thread.Collection{Threads: threads}, nil
}

// summarize fills in missing summaries, keeping thread order.
func (s *Service) summarize(ctx context.Context, collection *thread.Collection) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(max(s.maxThreads, 1))

	for _, th := range collection.Threads {
		if th.SummaryText() != "" {
			continue
		}

		group.Go(func() error {
			summary, err := s.summarizer.Summarize(groupCtx, th.ContentText())
			if err != nil {
				return fmt.Errorf("failed to summarize thread %s: %w", th.Submission.ID, err)
			}
			th.SetSummary(summary)
			slog.Info("Summarised thread", "thread_id", th.Submission.ID)
			return nil
		})
	}

	return group.Wait()
}

// Extract saves the newest threads of a subreddit as <dir>/<id>.json.
func (s *Service) Extract(ctx context.Context, subreddit string, sort reddit.Sort, limit int, dir string) (int, error) {
	collection, err := s.Collect(ctx, subreddit, sort, limit)
	if err != nil {
		return 0, err
	}

	if err = os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	for _, th := range collection.Threads {
		slog.Info("Saving thread", "thread_id", th.Submission.ID)

		if err = thread.SaveThread(filepath.Join(dir, th.Submission.ID+".json"), th); err != nil {
			return 0, err
		}
	}

	return len(collection.Threads), nil
}

// SummarizeDir summarizes every thread file in inDir, writes the summaries
// back and produces the per-thread and final summary files in outDir.
func (s *Service) SummarizeDir(ctx context.Context, inDir, outDir string) (string, error) {
	collection, err := thread.LoadCollectionDir(inDir)
	if err != nil {
		return "", err
	}

	if err = s.summarize(ctx, collection); err != nil {
		return "", err
	}

	for _, th := range collection.Threads {
		if err = thread.SaveThread(filepath.Join(inDir, th.Submission.ID+".json"), th); err != nil {
			return "", err
		}
	}

	final, err := s.summarizer.SummarizeCollection(ctx, collection)
	if err != nil {
		return "", err
	}
	collection.Summary = &final

	if err = os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", outDir, err)
	}

	files := map[string]string{
		threadSummariesFile: collection.JoinedSummaries(),
		finalSummaryFile:    final,
	}
	for name, content := range files {
		if err = os.WriteFile(filepath.Join(outDir, name), []byte(content), 0o644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	return final, nil
}

// IngestDir stores every thread file in dir under the given subreddit.
func (s *Service) IngestDir(ctx context.Context, dir, subreddit string) (Result, error) {
	collection, err := thread.LoadCollectionDir(dir)
	if err != nil {
		return Result{}, err
	}

	documents, err := s.store.AddCollection(ctx, collection, subreddit)
	if err != nil {
		return Result{}, err
	}

	return Result{Threads: len(collection.Threads), Documents: documents}, nil
}
