package knowledge

import (
	"context"
	"forager/app/config"
	"strconv"

	"github.com/samber/oops"
)

const (
	DocTypeContent = "thread_content"
	DocTypeSummary = "summary"
)

const (
	keySubreddit = "subreddit"
	keyThreadID  = "thread_id"
	keyPermalink = "permalink"
	keyDate      = "date"
	keyAuthor    = "author"
	keyDocType   = "doc_type"
	keyChunk     = "chunk"
)

type Metadata struct {
	Subreddit  string `json:"subreddit"`
	ThreadID   string `json:"thread_id"`
	Permalink  string `json:"permalink"`
	Date       string `json:"date"`
	Author     string `json:"author"`
	DocType    string `json:"doc_type"`
	ChunkIndex int    `json:"chunk"`
}

func (m Metadata) fields() map[string]string {
	return map[string]string{
		keySubreddit: m.Subreddit,
		keyThreadID:  m.ThreadID,
		keyPermalink: m.Permalink,
		keyDate:      m.Date,
		keyAuthor:    m.Author,
		keyDocType:   m.DocType,
		keyChunk:     strconv.Itoa(m.ChunkIndex),
	}
}

func metadataFromFields(fields map[string]string) Metadata {
	chunk, _ := strconv.Atoi(fields[keyChunk])

	return Metadata{
		Subreddit:  fields[keySubreddit],
		ThreadID:   fields[keyThreadID],
		Permalink:  fields[keyPermalink],
		Date:       fields[keyDate],
		Author:     fields[keyAuthor],
		DocType:    fields[keyDocType],
		ChunkIndex: chunk,
	}
}

type Document struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  Metadata
}

// Filter restricts a query or deletion by metadata equality. Empty fields
// match everything.
type Filter struct {
	Subreddit string
	ThreadID  string
	DocType   string
}

func (f Filter) fields() map[string]string {
	result := make(map[string]string, 3)
	if f.Subreddit != "" {
		result[keySubreddit] = f.Subreddit
	}
	if f.ThreadID != "" {
		result[keyThreadID] = f.ThreadID
	}
	if f.DocType != "" {
		result[keyDocType] = f.DocType
	}
	return result
}

func (f Filter) IsEmpty() bool {
	return f == Filter{}
}

// Match is a query hit. Distance is cosine distance, lower is closer.
type Match struct {
	ID       string
	Content  string
	Metadata Metadata
	Distance float32
}

// Index is the vector search backend behind the store.
type Index interface {
	// Upsert writes documents, replacing any with the same id.
	Upsert(ctx context.Context, docs []Document) error
	// Query returns up to k nearest documents ordered by ascending distance.
	// k must not exceed Count.
	Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Match, error)
	// DeleteWhere removes every document matching a non-empty filter.
	DeleteWhere(ctx context.Context, filter Filter) error
	Count(ctx context.Context) (int, error)
	Close() error
}

func NewIndex(cfg config.Vector) (Index, error) {
	switch cfg.Backend {
	case "", "chromem":
		return NewChromemIndex(cfg.PersistDir, cfg.Compress, cfg.Collection)
	case "qdrant":
		return NewQdrantIndex(cfg.Qdrant, cfg.Collection)
	default:
		return nil, oops.In("knowledge").Errorf("unknown vector backend %q", cfg.Backend)
	}
}
