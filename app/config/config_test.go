package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.OpenAI.Token)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, "text-embedding-3-small", cfg.OpenAI.EmbeddingModel)
	assert.Equal(t, 10, cfg.Agent.MaxToolRounds)
	assert.Equal(t, 50, cfg.Agent.MaxHistory)
	assert.Equal(t, 3, cfg.Agent.MaxSeedThreads)
	assert.Equal(t, 6000, cfg.Vector.MaxChunkChars)
	assert.Equal(t, "chromem", cfg.Vector.Backend)
	assert.Equal(t, 20, cfg.Usage.HourlyLimit)
	assert.Equal(t, 200, cfg.Usage.DailyLimit)
	assert.Equal(t, 4096, cfg.Telegram.MessageLimit)
	assert.InDelta(t, 0.5, cfg.Summary.TopP, 1e-9)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoadReadsYAMLAndEnvWins(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
openai:
  token: from-file
  model: gpt-4o
agent:
  max_tool_rounds: 4
  mcp_servers:
    - name: memory
      command: docker
      args: [run, --rm, -i, mcp/memory]
vector:
  backend: qdrant
  qdrant:
    host: qdrant.internal
`), 0o644))
	t.Setenv("OPENAI_API_KEY", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.OpenAI.Token)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)
	assert.Equal(t, 4, cfg.Agent.MaxToolRounds)
	require.Len(t, cfg.Agent.MCPServers, 1)
	assert.Equal(t, MCPServer{
		Name:    "memory",
		Command: "docker",
		Args:    []string{"run", "--rm", "-i", "mcp/memory"},
	}, cfg.Agent.MCPServers[0])
	assert.Equal(t, "qdrant", cfg.Vector.Backend)
	assert.Equal(t, "qdrant.internal", cfg.Vector.Qdrant.Host)
	assert.Equal(t, 6334, cfg.Vector.Qdrant.Port)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("OPENAI_API_KEY", "")

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vector:\n  backend: pinecone\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to validate config")
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("openai: [unterminated"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML config")
}

func TestLoadRejectsMCPServerWithoutCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent:\n  mcp_servers:\n    - name: memory\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to validate config")
}
