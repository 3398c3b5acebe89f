package knowledge

import (
	"context"
	"fmt"
	"forager/app/config"
	"forager/app/thread"
	"log/slog"
	"strings"

	"github.com/samber/do"
	"github.com/samber/oops"
	"github.com/tmc/langchaingo/embeddings"
)

const defaultResults = 5

var _ do.Shutdownable = (*Store)(nil)

type Store struct {
	index         Index
	embedder      embeddings.Embedder
	maxChunkChars int
}

type Query struct {
	Text      string
	N         int
	Subreddit string
	DocType   string
}

type Result struct {
	Document string
	Metadata Metadata
	Distance float32
}

func New(di *do.Injector) (*Store, error) {
	cfg := do.MustInvoke[*config.Config](di)

	index, err := NewIndex(cfg.Vector)
	if err != nil {
		return nil, err
	}

	store := NewStore(index, do.MustInvoke[embeddings.Embedder](di), cfg.Vector.MaxChunkChars)

	count, err := index.Count(context.Background())
	if err != nil {
		return nil, oops.In("knowledge").Errorf("failed to count documents: %w", err)
	}
	slog.Info("Knowledge store initialised",
		"backend", cfg.Vector.Backend,
		"collection", cfg.Vector.Collection,
		"documents", count,
	)

	return store, nil
}

func NewStore(index Index, embedder embeddings.Embedder, maxChunkChars int) *Store {
	return &Store{
		index:         index,
		embedder:      embedder,
		maxChunkChars: maxChunkChars,
	}
}

// AddThread upserts the content chunks and summary of t and returns the
// number of documents written.
func (s *Store) AddThread(ctx context.Context, t *thread.Thread, subreddit string) (int, error) {
	base := Metadata{
		Subreddit: subreddit,
		ThreadID:  t.Submission.ID,
		Permalink: t.Submission.Permalink,
		Date:      t.Submission.Date,
		Author:    t.Submission.Author,
	}

	var docs []Document

	for i, chunk := range ChunkText(t.ContentText(), s.maxChunkChars) {
		if strings.TrimSpace(chunk) == "" {
			continue
		}

		meta := base
		meta.DocType = DocTypeContent
		meta.ChunkIndex = i

		docs = append(docs, Document{
			ID:       MakeID(t.Submission.ID, DocTypeContent, i),
			Content:  chunk,
			Metadata: meta,
		})
	}

	if summary := t.SummaryText(); summary != "" {
		meta := base
		meta.DocType = DocTypeSummary

		docs = append(docs, Document{
			ID:       MakeID(t.Submission.ID, DocTypeSummary, 0),
			Content:  summary,
			Metadata: meta,
		})
	}

	if len(docs) == 0 {
		return 0, nil
	}

	texts := make([]string, 0, len(docs))
	for _, doc := range docs {
		texts = append(texts, doc.Content)
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed thread %s: %w", t.Submission.ID, err)
	}
	if len(vectors) != len(docs) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	for i := range docs {
		docs[i].Embedding = vectors[i]
	}

	if err = s.index.Upsert(ctx, docs); err != nil {
		return 0, fmt.Errorf("failed to store thread %s: %w", t.Submission.ID, err)
	}

	slog.Info("Stored thread documents", "thread_id", t.Submission.ID, "documents", len(docs))

	return len(docs), nil
}

func (s *Store) AddCollection(ctx context.Context, c *thread.Collection, subreddit string) (int, error) {
	total := 0
	for _, t := range c.Threads {
		n, err := s.AddThread(ctx, t, subreddit)
		if err != nil {
			return total, err
		}
		total += n
	}

	slog.Info("Stored collection documents", "subreddit", subreddit, "documents", total)

	return total, nil
}

// Search returns the nearest documents, never asking the index for more
// results than it holds.
func (s *Store) Search(ctx context.Context, q Query) ([]Result, error) {
	count, err := s.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	n := q.N
	if n <= 0 {
		n = defaultResults
	}
	k := max(min(n, count), 1)

	vector, err := s.embedder.EmbedQuery(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := s.index.Query(ctx, vector, k, Filter{Subreddit: q.Subreddit, DocType: q.DocType})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		results = append(results, Result{
			Document: m.Content,
			Metadata: m.Metadata,
			Distance: m.Distance,
		})
	}

	return results, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	return s.index.Count(ctx)
}

func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	return s.deleteWhere(ctx, Filter{ThreadID: threadID})
}

func (s *Store) DeleteSubreddit(ctx context.Context, subreddit string) error {
	return s.deleteWhere(ctx, Filter{Subreddit: subreddit})
}

func (s *Store) deleteWhere(ctx context.Context, filter Filter) error {
	if filter.IsEmpty() {
		return nil
	}

	before, err := s.index.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count documents: %w", err)
	}
	if before == 0 {
		return nil
	}

	if err = s.index.DeleteWhere(ctx, filter); err != nil {
		return err
	}

	after, err := s.index.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count documents: %w", err)
	}

	if deleted := before - after; deleted > 0 {
		slog.Info("Deleted documents",
			"thread_id", filter.ThreadID,
			"subreddit", filter.Subreddit,
			"documents", deleted,
		)
	}

	return nil
}

func (s *Store) Shutdown() error {
	return s.index.Close()
}
