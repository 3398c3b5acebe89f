package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/philippgille/chromem-go"
	"github.com/samber/oops"
)

var _ Index = (*ChromemIndex)(nil)

// ChromemIndex keeps vectors in process, persisted to a directory when one is
// given.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
}

func NewChromemIndex(persistDir string, compress bool, name string) (*ChromemIndex, error) {
	var (
		db  *chromem.DB
		err error
	)

	if persistDir == "" {
		db = chromem.NewDB()
		slog.Info("Created in-memory vector database")
	} else {
		db, err = chromem.NewPersistentDB(persistDir, compress)
		if err != nil {
			return nil, oops.In("knowledge").Errorf("failed to open vector database %s: %w", persistDir, err)
		}
		slog.Info("Opened vector database", "path", persistDir)
	}

	// vectors are always computed by the store before they reach the index
	embed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("embedding function called but vectors should be pre-computed")
	}

	collection, err := db.GetOrCreateCollection(name, nil, embed)
	if err != nil {
		return nil, oops.In("knowledge").Errorf("failed to get collection %q: %w", name, err)
	}

	return &ChromemIndex{
		db:         db,
		collection: collection,
	}, nil
}

func (i *ChromemIndex) Upsert(ctx context.Context, docs []Document) error {
	chromemDocs := make([]chromem.Document, 0, len(docs))
	for _, doc := range docs {
		chromemDocs = append(chromemDocs, chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  doc.Metadata.fields(),
			Embedding: doc.Embedding,
		})
	}

	if err := i.collection.AddDocuments(ctx, chromemDocs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to upsert documents: %w", err)
	}

	return nil
}

func (i *ChromemIndex) Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Match, error) {
	var where map[string]string
	if !filter.IsEmpty() {
		where = filter.fields()
	}

	results, err := i.collection.QueryEmbedding(ctx, vector, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: metadataFromFields(r.Metadata),
			Distance: 1 - r.Similarity,
		})
	}

	return matches, nil
}

func (i *ChromemIndex) DeleteWhere(ctx context.Context, filter Filter) error {
	if filter.IsEmpty() {
		return errors.New("refusing to delete with an empty filter")
	}

	if err := i.collection.Delete(ctx, filter.fields(), nil); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}

	return nil
}

func (i *ChromemIndex) Count(_ context.Context) (int, error) {
	return i.collection.Count(), nil
}

func (i *ChromemIndex) Close() error {
	return nil
}
