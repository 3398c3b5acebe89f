package tools

import (
	"forager/app/service/knowledge"
	"strconv"

	"github.com/tmc/langchaingo/llms"
)

const (
	NameSearchKnowledgeBase = "search_knowledge_base"
	NameFetchThread         = "fetch_reddit_thread"
	NameFetchSubredditPosts = "fetch_subreddit_posts"
	NameSeedSubreddit       = "seed_subreddit"
)

type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
)

type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Enum        []string
}

// Capability describes one callable tool as the model sees it.
type Capability struct {
	Name        string
	Description string
	Params      []Param
	// RawSchema replaces the schema rendered from Params when set.
	RawSchema map[string]any
}

// Schema renders the parameters as a JSON schema object.
func (c Capability) Schema() map[string]any {
	if c.RawSchema != nil {
		return c.RawSchema
	}

	properties := make(map[string]any, len(c.Params))
	required := make([]string, 0, len(c.Params))

	for _, p := range c.Params {
		property := map[string]any{
			"type":        string(p.Type),
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			property["enum"] = p.Enum
		}
		properties[p.Name] = property

		if p.Required {
			required = append(required, p.Name)
		}
	}

	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func (c Capability) Definition() llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        c.Name,
			Description: c.Description,
			Parameters:  c.Schema(),
		},
	}
}

// Catalogue returns the capabilities offered to the model.
func Catalogue(maxSeedThreads int) []Capability {
	return []Capability{
		{
			Name: NameSearchKnowledgeBase,
			Description: "Search the knowledge base of stored Reddit threads and summaries. " +
				"Use this when the user asks about topics that may have been previously ingested.",
			Params: []Param{
				{
					Name:        "query",
					Type:        TypeString,
					Description: "The search query describing what you're looking for.",
					Required:    true,
				},
				{
					Name:        "subreddit",
					Type:        TypeString,
					Description: "Optional: filter results to a specific subreddit (e.g. 'python').",
				},
				{
					Name:        "doc_type",
					Type:        TypeString,
					Description: "Optional: filter to only thread content or only summaries.",
					Enum:        []string{knowledge.DocTypeContent, knowledge.DocTypeSummary},
				},
				{
					Name:        "n_results",
					Type:        TypeInteger,
					Description: "Number of results to return. Default is 5.",
				},
			},
		},
		{
			Name: NameFetchThread,
			Description: "Fetch a specific Reddit thread by its URL or ID. " +
				"Use this when the user references a specific thread or you need fresh data for a particular post.",
			Params: []Param{
				{
					Name:        "thread_id",
					Type:        TypeString,
					Description: "The Reddit thread/submission ID (e.g. '1abc23d').",
					Required:    true,
				},
			},
		},
		{
			Name: NameFetchSubredditPosts,
			Description: "Fetch the latest posts from a subreddit. " +
				"Use this when the user wants to know what's currently being discussed in a subreddit.",
			Params: []Param{
				{
					Name:        "subreddit",
					Type:        TypeString,
					Description: "The subreddit name (e.g. 'python', 'worldnews').",
					Required:    true,
				},
				{
					Name:        "sort",
					Type:        TypeString,
					Description: "How to sort posts. Default is 'hot'.",
					Enum:        []string{"hot", "new", "top"},
				},
				{
					Name:        "limit",
					Type:        TypeInteger,
					Description: "Number of posts to fetch. Default is 5.",
				},
			},
		},
		{
			Name: NameSeedSubreddit,
			Description: "Extract, summarise, and store threads from a subreddit into the knowledge base. " +
				"Use this when the user explicitly asks to add/seed/ingest content from a subreddit. " +
				"Maximum " + strconv.Itoa(maxSeedThreads) + " threads per call.",
			Params: []Param{
				{
					Name:        "subreddit",
					Type:        TypeString,
					Description: "The subreddit name to ingest (e.g. 'python').",
					Required:    true,
				},
				{
					Name:        "limit",
					Type:        TypeInteger,
					Description: "Number of threads to ingest. Default is 5.",
				},
			},
		},
	}
}
