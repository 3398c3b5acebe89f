package cli

import (
	"bytes"
	"context"
	"forager/app/service/agent"
	"forager/app/service/ingest"
	"forager/app/service/knowledge"
	"forager/app/service/tools"
	"forager/app/util/llmtest"
	"strings"
	"testing"

	"github.com/elliotchance/pie/v2"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopSeeder struct{}

func (nopSeeder) Seed(context.Context, string, int) (ingest.Result, error) {
	return ingest.Result{}, nil
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCommand()

	names := pie.Map(root.Commands(), func(c *cobra.Command) string { return c.Name() })
	for _, name := range []string{"run", "chat", "seed", "status", "search", "delete", "extract", "summarise", "ingest", "eval", "mcp"} {
		assert.Contains(t, names, name)
	}

	flag := root.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "config.yaml", flag.DefValue)
}

func TestRepl(t *testing.T) {
	index, err := knowledge.NewChromemIndex("", false, "test")
	require.NoError(t, err)
	store := knowledge.NewStore(index, &llmtest.HashEmbedder{}, 6000)

	registry, err := tools.NewRegistry(tools.Catalogue(3), tools.Static(map[string]string{
		tools.NameSearchKnowledgeBase: "nothing",
		tools.NameFetchThread:         "nothing",
		tools.NameFetchSubredditPosts: "nothing",
		tools.NameSeedSubreddit:       "nothing",
	}))
	require.NoError(t, err)

	model := llmtest.NewScriptedModel(llmtest.Text("first answer"), llmtest.Text("second answer"))
	agentSvc := agent.NewService(model, registry, store, nopSeeder{}, agent.Options{})

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetIn(strings.NewReader("hello\n\n/clear\nagain\n/quit\nignored\n"))
	cmd.SetOut(&out)

	require.NoError(t, repl(cmd, agentSvc))

	text := out.String()
	assert.Contains(t, text, "first answer")
	assert.Contains(t, text, "Conversation history cleared.")
	assert.Contains(t, text, "second answer")
	assert.Len(t, model.Calls(), 2)

	// history was cleared before the second question
	assert.Len(t, model.Calls()[1].Messages, 2)
}
