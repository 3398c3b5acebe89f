package thread

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	DateLayout    = "2006-01-02 15:04:05"
	DeletedAuthor = "[deleted]"
)

type Submission struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"`
	Author      string  `json:"author"`
	Type        string  `json:"type"`
	Content     string  `json:"content"`
	Permalink   string  `json:"permalink"`
	Score       int     `json:"score"`
	UpvoteRatio float64 `json:"upvote_ratio"`
	NumComments int     `json:"num_comments"`
}

type Comment struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Author    string `json:"author"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	Permalink string `json:"permalink"`
	Score     int    `json:"score"`
	LinkID    string `json:"link_id"`
	ParentID  string `json:"parent_id"`
}

// Thread is a submission with its flattened comments. ThreadContent and
// Summary are derived during seeding.
type Thread struct {
	Submission    Submission `json:"submission"`
	Comments      []Comment  `json:"comments"`
	ThreadContent *string    `json:"thread_content"`
	Summary       *string    `json:"summary"`
}

type Collection struct {
	Threads []*Thread `json:"threads"`
	Summary *string   `json:"summary,omitempty"`
}

func FormatDate(unix float64) string {
	return time.Unix(int64(unix), 0).UTC().Format(DateLayout)
}

// Text renders the thread the way it is fed to the summarizer and chunker.
func (t *Thread) Text() string {
	var b strings.Builder

	b.WriteString("Submission:\n")
	fmt.Fprintf(&b, "%s (%s): %s\n", t.Submission.Author, t.Submission.Date, t.Submission.Content)
	b.WriteString("Comments:\n")

	for i, c := range t.Comments {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Comment by %s (%s): %s", c.Author, c.Date, c.Content)
	}

	return b.String()
}

// ContentText returns the stored content text, computing it when absent.
func (t *Thread) ContentText() string {
	if t.ThreadContent != nil && *t.ThreadContent != "" {
		return *t.ThreadContent
	}
	return t.Text()
}

func (t *Thread) SummaryText() string {
	if t.Summary == nil {
		return ""
	}
	return *t.Summary
}

func (t *Thread) SetContent(text string) {
	t.ThreadContent = &text
}

func (t *Thread) SetSummary(summary string) {
	t.Summary = &summary
}

func (c *Collection) JoinedSummaries() string {
	parts := make([]string, 0, len(c.Threads))
	for i, t := range c.Threads {
		parts = append(parts, fmt.Sprintf("Thread Summary %d:\n%s", i+1, t.SummaryText()))
	}
	return strings.Join(parts, "\n")
}

func LoadThread(path string) (*Thread, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read thread file: %w", err)
	}

	var t Thread
	if err = json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse thread file %s: %w", path, err)
	}

	if t.Submission.ID == "" {
		return nil, fmt.Errorf("thread file %s has no submission id", path)
	}

	return &t, nil
}

func SaveThread(path string, t *Thread) error {
	return writeJSON(path, t)
}

// LoadCollectionDir reads every *.json thread file in dir, ordered by name.
func LoadCollectionDir(dir string) (*Collection, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	sort.Strings(paths)

	collection := &Collection{Threads: make([]*Thread, 0, len(paths))}
	for _, path := range paths {
		t, err := LoadThread(path)
		if err != nil {
			return nil, err
		}
		collection.Threads = append(collection.Threads, t)
	}

	return collection, nil
}

func LoadCollection(path string) (*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection file: %w", err)
	}

	var c Collection
	if err = json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse collection file %s: %w", path, err)
	}

	return &c, nil
}

func SaveCollection(path string, c *Collection) error {
	return writeJSON(path, c)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}

	if err = os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}
