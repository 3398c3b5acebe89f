package knowledge

import (
	"context"
	"errors"
	"fmt"
	"forager/app/config"
	"strconv"
	"strings"
	"sync"

	"github.com/qdrant/go-client/qdrant"
	"github.com/samber/oops"
)

const (
	payloadDocID    = "doc_id"
	payloadDocument = "document"
)

var _ Index = (*QdrantIndex)(nil)

// QdrantIndex stores vectors in a remote Qdrant collection. The collection is
// created with cosine distance on first write, sized by the first vector.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string

	mu    sync.Mutex
	ready bool
}

func NewQdrantIndex(cfg config.Qdrant, collection string) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, oops.In("knowledge").Errorf("failed to create qdrant client for %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return &QdrantIndex{
		client:     client,
		collection: collection,
	}, nil
}

// pointID maps the 16 hex digit document id onto a numeric point id.
func pointID(docID string) (*qdrant.PointId, error) {
	num, err := strconv.ParseUint(docID, 16, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid document id %q: %w", docID, err)
	}
	return qdrant.NewIDNum(num), nil
}

func (i *QdrantIndex) exists(ctx context.Context) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.ready {
		return true, nil
	}

	exists, err := i.client.CollectionExists(ctx, i.collection)
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}
	i.ready = exists

	return exists, nil
}

func (i *QdrantIndex) ensureCollection(ctx context.Context, size int) error {
	exists, err := i.exists(ctx)
	if err != nil || exists {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	err = i.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: i.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(size),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	i.ready = true

	return nil
}

func (i *QdrantIndex) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	if err := i.ensureCollection(ctx, len(docs[0].Embedding)); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, doc := range docs {
		id, err := pointID(doc.ID)
		if err != nil {
			return err
		}

		payload := map[string]any{
			payloadDocID:    doc.ID,
			payloadDocument: doc.Content,
		}
		for key, value := range doc.Metadata.fields() {
			payload[key] = value
		}

		points = append(points, &qdrant.PointStruct{
			Id:      id,
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := i.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: i.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	return nil
}

func (i *QdrantIndex) Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Match, error) {
	exists, err := i.exists(ctx)
	if err != nil || !exists {
		return nil, err
	}

	points, err := i.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: i.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         buildFilter(filter),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}

	matches := make([]Match, 0, len(points))
	for _, point := range points {
		fields := make(map[string]string, len(point.Payload))
		for key, value := range point.Payload {
			fields[key] = value.GetStringValue()
		}

		matches = append(matches, Match{
			ID:       fields[payloadDocID],
			Content:  fields[payloadDocument],
			Metadata: metadataFromFields(fields),
			Distance: 1 - point.Score,
		})
	}

	return matches, nil
}

func (i *QdrantIndex) DeleteWhere(ctx context.Context, filter Filter) error {
	if filter.IsEmpty() {
		return errors.New("refusing to delete with an empty filter")
	}

	exists, err := i.exists(ctx)
	if err != nil || !exists {
		return err
	}

	_, err = i.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: i.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(buildFilter(filter)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}

	return nil
}

func (i *QdrantIndex) Count(ctx context.Context) (int, error) {
	exists, err := i.exists(ctx)
	if err != nil || !exists {
		return 0, err
	}

	count, err := i.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: i.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}

	return int(count), nil
}

func (i *QdrantIndex) Close() error {
	return i.client.Close()
}

func buildFilter(filter Filter) *qdrant.Filter {
	if filter.IsEmpty() {
		return nil
	}

	fields := filter.fields()
	conditions := make([]*qdrant.Condition, 0, len(fields))
	for key, value := range fields {
		conditions = append(conditions, qdrant.NewMatch(key, value))
	}

	return &qdrant.Filter{
		Must: conditions,
	}
}
