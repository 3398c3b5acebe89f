package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"forager/app/service/knowledge"
	"forager/app/service/usage"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	conversationID string
	identity       string
	err            error
}

func (f *fakeProcessor) Process(_ context.Context, conversationID, identity, text string) (string, error) {
	f.conversationID = conversationID
	f.identity = identity
	if f.err != nil {
		return "", f.err
	}
	return "reply to " + text, nil
}

type fakeAgent struct {
	cleared string
	seeded  string
	limit   int
}

func (f *fakeAgent) ClearHistory(conversationID string) {
	f.cleared = conversationID
}

func (f *fakeAgent) DocumentCount(context.Context) (int, error) {
	return 3, nil
}

func (f *fakeAgent) Seed(_ context.Context, subreddit string, limit int) (string, error) {
	f.seeded = subreddit
	f.limit = limit
	return "seeded " + subreddit, nil
}

type fakeSearcher struct {
	query knowledge.Query
}

func (f *fakeSearcher) Search(_ context.Context, q knowledge.Query) ([]knowledge.Result, error) {
	f.query = q
	return []knowledge.Result{{
		Document: "typed python",
		Metadata: knowledge.Metadata{Subreddit: "python", Permalink: "/r/python/comments/x/", DocType: knowledge.DocTypeSummary},
		Distance: 0.25,
	}}, nil
}

type fixture struct {
	svc       *Service
	processor *fakeProcessor
	agent     *fakeAgent
	searcher  *fakeSearcher
}

func newFixture() *fixture {
	f := &fixture{
		processor: &fakeProcessor{},
		agent:     &fakeAgent{},
		searcher:  &fakeSearcher{},
	}
	f.svc = NewService(":0", f.processor, f.agent, f.searcher)
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) (*http.Response, string) {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.svc.App().Test(req)
	require.NoError(t, err)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(data)
}

func TestChat(t *testing.T) {
	f := newFixture()

	resp, body := f.do(t, http.MethodPost, "/api/chat", `{"conversation_id":"c1","identity":"alice","text":"hi"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out ChatResponse
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.Equal(t, "reply to hi", out.Reply)
	assert.Equal(t, "http:c1", f.processor.conversationID)
	assert.Equal(t, "http:alice", f.processor.identity)
}

func TestChatValidation(t *testing.T) {
	f := newFixture()

	resp, _ := f.do(t, http.MethodPost, "/api/chat", `{"conversation_id":"c1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/chat", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatRejected(t *testing.T) {
	f := newFixture()
	f.processor.err = &usage.Rejection{Limit: usage.LimitHourly, Reason: "slow down"}

	resp, body := f.do(t, http.MethodPost, "/api/chat", `{"conversation_id":"c1","text":"hi"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.JSONEq(t, `{"error":"slow down"}`, body)
}

func TestChatFailureHidesDetails(t *testing.T) {
	f := newFixture()
	f.processor.err = errors.New("secret upstream detail")

	resp, body := f.do(t, http.MethodPost, "/api/chat", `{"conversation_id":"c1","text":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotContains(t, body, "secret")
}

func TestClearAndStatus(t *testing.T) {
	f := newFixture()

	resp, _ := f.do(t, http.MethodDelete, "/api/conversations/c9", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http:c9", f.agent.cleared)

	resp, body := f.do(t, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"documents":3}`, body)
}

func TestSeed(t *testing.T) {
	f := newFixture()

	resp, body := f.do(t, http.MethodPost, "/api/seed", `{"subreddit":"golang","limit":2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"result":"seeded golang"}`, body)
	assert.Equal(t, 2, f.agent.limit)
}

func TestSearch(t *testing.T) {
	f := newFixture()

	resp, body := f.do(t, http.MethodGet, "/api/search?q=type+hints&subreddit=r/python&n=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []SearchResult
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "https://www.reddit.com/r/python/comments/x/", out[0].ThreadURL)

	assert.Equal(t, knowledge.Query{Text: "type hints", N: 2, Subreddit: "python"}, f.searcher.query)

	resp, _ = f.do(t, http.MethodGet, "/api/search", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/search?q=x&doc_type=bogus", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	f := newFixture()

	resp, body := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "go_goroutines")
}
