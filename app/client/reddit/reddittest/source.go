// Package reddittest provides an in-memory reddit.Source.
package reddittest

import (
	"context"
	"fmt"
	"forager/app/client/reddit"
	"forager/app/thread"
	"iter"
	"strings"
	"sync"
)

var _ reddit.Source = (*Source)(nil)

type Source struct {
	mu       sync.Mutex
	threads  map[string]*thread.Thread
	feeds    map[string][]string
	fetches  []string
	listings []string

	// Err fails every call when set.
	Err error
}

func New() *Source {
	return &Source{
		threads: make(map[string]*thread.Thread),
		feeds:   make(map[string][]string),
	}
}

// Add appends th to the feed of subreddit.
func (s *Source) Add(subreddit string, th *thread.Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.threads[th.Submission.ID] = th
	s.feeds[subreddit] = append(s.feeds[subreddit], th.Submission.ID)
}

func (s *Source) FetchThread(_ context.Context, id string) (*thread.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetches = append(s.fetches, id)
	if s.Err != nil {
		return nil, s.Err
	}

	th, ok := s.threads[strings.TrimPrefix(id, "t3_")]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", id, reddit.ErrNotFound)
	}

	return &thread.Thread{
		Submission: th.Submission,
		Comments:   append([]thread.Comment(nil), th.Comments...),
	}, nil
}

func (s *Source) ListFeed(_ context.Context, subreddit string, _ reddit.Sort, limit int) iter.Seq2[*thread.Thread, error] {
	return func(yield func(*thread.Thread, error) bool) {
		s.mu.Lock()
		s.listings = append(s.listings, subreddit)
		err := s.Err
		ids := append([]string(nil), s.feeds[strings.TrimPrefix(subreddit, "r/")]...)
		s.mu.Unlock()

		if err != nil {
			yield(nil, err)
			return
		}

		for i, id := range ids {
			if i >= limit {
				return
			}

			s.mu.Lock()
			item := &thread.Thread{Submission: s.threads[id].Submission}
			s.mu.Unlock()

			if !yield(item, nil) {
				return
			}
		}
	}
}

func (s *Source) Fetches() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.fetches...)
}

func (s *Source) Listings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.listings...)
}

// MakeThread builds a thread with one comment per body.
func MakeThread(id, title string, bodies ...string) *thread.Thread {
	th := &thread.Thread{
		Submission: thread.Submission{
			ID:          id,
			Date:        "2026-02-19 12:00:00",
			Author:      "op",
			Type:        "submission",
			Content:     title,
			Permalink:   "/r/test/comments/" + id + "/",
			Score:       42,
			UpvoteRatio: 0.9,
			NumComments: len(bodies),
		},
	}

	for i, body := range bodies {
		th.Comments = append(th.Comments, thread.Comment{
			ID:        fmt.Sprintf("%s_c%d", id, i),
			Date:      "2026-02-19 12:05:00",
			Author:    fmt.Sprintf("user%d", i),
			Type:      "comment",
			Content:   body,
			Permalink: fmt.Sprintf("/r/test/comments/%s/c%d/", id, i),
			Score:     1,
			LinkID:    "t3_" + id,
			ParentID:  "t3_" + id,
		})
	}

	return th
}
