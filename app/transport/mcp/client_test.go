package mcp

import (
	"context"
	"errors"
	"forager/app/config"
	"forager/app/service/tools"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inProcessDialer(t *testing.T, registry *tools.Registry) Dialer {
	t.Helper()

	return func(config.MCPServer) (client.MCPClient, error) {
		svc, err := NewService(registry)
		if err != nil {
			return nil, err
		}

		c, err := client.NewInProcessClient(svc.Server())
		if err != nil {
			return nil, err
		}

		return c, c.Start(context.Background())
	}
}

func TestConnectPrefixesAndExtendsRegistry(t *testing.T) {
	remoteRegistry, source := standardRegistry(t)

	remotes, err := Connect(context.Background(), []config.MCPServer{
		{Name: "upstream", Command: "unused"},
	}, inProcessDialer(t, remoteRegistry))
	require.NoError(t, err)
	t.Cleanup(func() { _ = remotes.Shutdown() })

	require.Len(t, remotes.Tools(), 4)

	local, _ := standardRegistry(t)
	require.NoError(t, local.Extend(remotes.Tools()...))
	assert.Contains(t, local.Names(), "upstream_"+tools.NameFetchSubredditPosts)

	var schema map[string]any
	for _, c := range local.Capabilities() {
		if c.Name == "upstream_"+tools.NameFetchSubredditPosts {
			schema = c.Schema()
		}
	}
	require.NotNil(t, schema)
	assert.Contains(t, schema["properties"], "subreddit")

	result := local.Dispatch(context.Background(), "upstream_"+tools.NameFetchSubredditPosts, `{"subreddit":"golang"}`)
	assert.Contains(t, result, "Generics in practice")
	assert.Equal(t, []string{"golang"}, source.Listings())
}

func TestConnectWithoutServers(t *testing.T) {
	remotes, err := Connect(context.Background(), nil, func(config.MCPServer) (client.MCPClient, error) {
		t.Fatal("dialer must not be called")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Empty(t, remotes.Tools())
	assert.NoError(t, remotes.Shutdown())
}

func TestConnectDialFailure(t *testing.T) {
	registry, _ := standardRegistry(t)
	good := inProcessDialer(t, registry)

	calls := 0
	_, err := Connect(context.Background(), []config.MCPServer{
		{Name: "first", Command: "ok"},
		{Name: "second", Command: "missing"},
	}, func(server config.MCPServer) (client.MCPClient, error) {
		calls++
		if server.Name == "second" {
			return nil, errors.New("executable not found")
		}
		return good(server)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second")
	assert.Equal(t, 2, calls)
}
