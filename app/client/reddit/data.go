package reddit

import (
	"bytes"
	"encoding/json"
	"forager/app/thread"
	"strings"
)

type listing struct {
	Kind string `json:"kind"`
	Data struct {
		After    string  `json:"after"`
		Children []thing `json:"children"`
	} `json:"data"`
}

type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type postData struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	SelfText    string  `json:"selftext"`
	Author      string  `json:"author"`
	CreatedUTC  float64 `json:"created_utc"`
	Permalink   string  `json:"permalink"`
	Score       int     `json:"score"`
	UpvoteRatio float64 `json:"upvote_ratio"`
	NumComments int     `json:"num_comments"`
}

type commentData struct {
	ID         string  `json:"id"`
	Author     string  `json:"author"`
	Body       string  `json:"body"`
	CreatedUTC float64 `json:"created_utc"`
	Permalink  string  `json:"permalink"`
	Score      int     `json:"score"`
	LinkID     string  `json:"link_id"`
	ParentID   string  `json:"parent_id"`
	// Replies is either an empty string or a nested listing.
	Replies json.RawMessage `json:"replies"`
}

func (p postData) toSubmission() thread.Submission {
	content := p.Title
	if body := strings.TrimSpace(p.SelfText); body != "" {
		content += "\n\n" + body
	}

	return thread.Submission{
		ID:          p.ID,
		Date:        thread.FormatDate(p.CreatedUTC),
		Author:      authorName(p.Author),
		Type:        "submission",
		Content:     content,
		Permalink:   p.Permalink,
		Score:       p.Score,
		UpvoteRatio: p.UpvoteRatio,
		NumComments: p.NumComments,
	}
}

func (c commentData) toComment() thread.Comment {
	return thread.Comment{
		ID:        c.ID,
		Date:      thread.FormatDate(c.CreatedUTC),
		Author:    authorName(c.Author),
		Type:      "comment",
		Content:   c.Body,
		Permalink: c.Permalink,
		Score:     c.Score,
		LinkID:    c.LinkID,
		ParentID:  c.ParentID,
	}
}

func authorName(name string) string {
	if name == "" {
		return thread.DeletedAuthor
	}
	return name
}

// flattenComments walks the comment forest breadth first, skipping "more" stubs.
func flattenComments(roots []thing) ([]thread.Comment, error) {
	var result []thread.Comment

	queue := roots
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.Kind != "t1" {
			continue
		}

		var c commentData
		if err := json.Unmarshal(current.Data, &c); err != nil {
			return nil, err
		}
		result = append(result, c.toComment())

		replies := bytes.TrimSpace(c.Replies)
		if len(replies) == 0 || replies[0] != '{' {
			continue
		}

		var nested listing
		if err := json.Unmarshal(replies, &nested); err != nil {
			return nil, err
		}
		queue = append(queue, nested.Data.Children...)
	}

	return result, nil
}
