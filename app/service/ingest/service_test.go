package ingest

import (
	"context"
	"errors"
	"fmt"
	"forager/app/client/reddit"
	"forager/app/client/reddit/reddittest"
	"forager/app/config"
	"forager/app/service/knowledge"
	"forager/app/service/summarizer"
	"forager/app/thread"
	"forager/app/util/llmtest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc    *Service
	source *reddittest.Source
	model  *llmtest.ScriptedModel
	store  *knowledge.Store
}

func newFixture(t *testing.T, threads int) *fixture {
	t.Helper()

	source := reddittest.New()
	for i := range threads {
		source.Add("python", reddittest.MakeThread(fmt.Sprintf("t%02d", i), fmt.Sprintf("Post %d", i), "first", "second"))
	}

	repeat := llmtest.Text("a summary")
	model := &llmtest.ScriptedModel{Repeat: &repeat}
	sum := summarizer.NewWithModel(model, config.Summary{TopP: 0.5, ThreadMaxTokens: 1000, FinalMaxTokens: 300})

	index, err := knowledge.NewChromemIndex("", false, "test")
	require.NoError(t, err)
	store := knowledge.NewStore(index, &llmtest.HashEmbedder{}, 6000)

	return &fixture{
		svc:    NewService(source, sum, store, 3),
		source: source,
		model:  model,
		store:  store,
	}
}

func TestSeedClampsToCeiling(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)

	result, err := f.svc.Seed(ctx, "python", 10)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Threads)
	// every thread fits in one chunk and carries a summary
	assert.Equal(t, 3*(1+1), result.Documents)
	assert.ElementsMatch(t, []string{"t00", "t01", "t02"}, f.source.Fetches())
	assert.Len(t, f.model.Calls(), 3)

	count, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, count)
}

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	_, err := f.svc.Seed(ctx, "python", 3)
	require.NoError(t, err)
	_, err = f.svc.Seed(ctx, "python", 3)
	require.NoError(t, err)

	count, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestClampLimit(t *testing.T) {
	f := newFixture(t, 0)

	assert.Equal(t, 1, f.svc.ClampLimit(0))
	assert.Equal(t, 1, f.svc.ClampLimit(-4))
	assert.Equal(t, 2, f.svc.ClampLimit(2))
	assert.Equal(t, 3, f.svc.ClampLimit(100))
}

func TestSeedSourceError(t *testing.T) {
	f := newFixture(t, 3)
	f.source.Err = errors.New("503 service unavailable")

	_, err := f.svc.Seed(context.Background(), "python", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestSeedSummarizerError(t *testing.T) {
	f := newFixture(t, 1)
	boom := errors.New("model down")
	f.model.Repeat = &llmtest.Step{Err: boom}

	_, err := f.svc.Seed(context.Background(), "python", 1)
	assert.ErrorIs(t, err, boom)

	count, err := f.store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestExtractSummarizeIngest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	extractDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "summaries")

	n, err := f.svc.Extract(ctx, "python", reddit.SortNew, 5, extractDir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	saved, err := thread.LoadThread(filepath.Join(extractDir, "t00.json"))
	require.NoError(t, err)
	assert.Len(t, saved.Comments, 2)
	assert.Equal(t, saved.Text(), saved.ContentText())
	assert.Nil(t, saved.Summary)

	final, err := f.svc.SummarizeDir(ctx, extractDir, outDir)
	require.NoError(t, err)
	assert.Equal(t, "a summary", final)

	joined, err := os.ReadFile(filepath.Join(outDir, threadSummariesFile))
	require.NoError(t, err)
	assert.Equal(t, "Thread Summary 1:\na summary\nThread Summary 2:\na summary", string(joined))

	finalFile, err := os.ReadFile(filepath.Join(outDir, finalSummaryFile))
	require.NoError(t, err)
	assert.Equal(t, "a summary", string(finalFile))

	saved, err = thread.LoadThread(filepath.Join(extractDir, "t01.json"))
	require.NoError(t, err)
	assert.Equal(t, "a summary", saved.SummaryText())

	result, err := f.svc.IngestDir(ctx, extractDir, "python")
	require.NoError(t, err)
	assert.Equal(t, Result{Threads: 2, Documents: 4}, result)
}
