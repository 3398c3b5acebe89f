package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config.yaml"

type Config struct {
	Log      Log      `yaml:"log"`
	OpenAI   OpenAI   `yaml:"openai"`
	Reddit   Reddit   `yaml:"reddit"`
	Vector   Vector   `yaml:"vector"`
	Agent    Agent    `yaml:"agent"`
	Summary  Summary  `yaml:"summary"`
	Usage    Usage    `yaml:"usage"`
	Telegram Telegram `yaml:"telegram"`
	HTTP     HTTP     `yaml:"http"`
	Engine   Engine   `yaml:"engine"`
}

type OpenAI struct {
	// OpenAI compatible base url
	BaseURL string `yaml:"base_url" example:"https://api.openai.com/v1"`
	// OpenAI token
	Token string `yaml:"token" example:"sk-proj-abc123456789DEF789ghi012JKL345mno678PQR901stu234VWX" validate:"required"`
	// Chat model used by the agent loop and the summarizer
	Model string `yaml:"model" example:"gpt-4o-mini" validate:"required"`
	// Embedding model used by the knowledge store
	EmbeddingModel string `yaml:"embedding_model" example:"text-embedding-3-small" validate:"required"`
	// Per-call timeout in seconds
	TimeoutSeconds int `yaml:"timeout_seconds" example:"60" validate:"gt=0"`
}

type Reddit struct {
	// Client ID of the reddit script application
	ClientID string `yaml:"client_id" example:"a1b2c3d4e5f6g7"`
	// Client secret of the reddit script application
	ClientSecret string `yaml:"client_secret" example:"abc123def456ghi789jkl012mno"`
	// User agent sent with every request
	UserAgent string `yaml:"user_agent" example:"go:forager:v0.2" validate:"required"`
}

type Vector struct {
	// Index backend
	Backend string `yaml:"backend" example:"chromem" validate:"oneof=chromem qdrant"`
	// Collection name
	Collection string `yaml:"collection" example:"forager" validate:"required"`
	// Directory for the embedded index
	PersistDir string `yaml:"persist_dir" example:"chroma_data"`
	// Compress the embedded index on disk
	Compress bool `yaml:"compress" example:"false"`
	// Max characters per stored chunk
	MaxChunkChars int    `yaml:"max_chunk_chars" example:"6000" validate:"gt=0"`
	Qdrant        Qdrant `yaml:"qdrant"`
}

type Qdrant struct {
	Host   string `yaml:"host" example:"localhost"`
	Port   int    `yaml:"port" example:"6334"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls" example:"false"`
}

type Agent struct {
	// Max think/act rounds per message
	MaxToolRounds int `yaml:"max_tool_rounds" example:"10" validate:"gt=0"`
	// Max stored turns per conversation, system turn included
	MaxHistory int `yaml:"max_history" example:"50" validate:"gt=1"`
	// Conversations kept in memory, 0 means unbounded
	ConversationCacheSize int `yaml:"conversation_cache_size" example:"1000" validate:"gte=0"`
	// Hard ceiling on threads ingested by one seed call
	MaxSeedThreads int `yaml:"max_seed_threads" example:"3" validate:"gt=0"`
	// External MCP servers whose tools are offered next to the built-in ones
	MCPServers []MCPServer `yaml:"mcp_servers" validate:"dive"`
}

type MCPServer struct {
	// Prefix for the server's tool names
	Name string `yaml:"name" example:"memory" validate:"required"`
	// Executable speaking MCP over stdio
	Command string   `yaml:"command" example:"docker" validate:"required"`
	Args    []string `yaml:"args" example:"run,--rm,-i,mcp/memory"`
	// Extra environment in KEY=VALUE form
	Env []string `yaml:"env"`
}

type Summary struct {
	Temperature     float64 `yaml:"temperature" example:"0"`
	TopP            float64 `yaml:"top_p" example:"0.5"`
	ThreadMaxTokens int     `yaml:"thread_max_tokens" example:"1000" validate:"gt=0"`
	FinalMaxTokens  int     `yaml:"final_max_tokens" example:"300" validate:"gt=0"`
}

type Usage struct {
	// Messages per identity in a sliding hour
	HourlyLimit int `yaml:"hourly_limit" example:"20" validate:"gt=0"`
	// Messages across all identities per UTC day
	DailyLimit int `yaml:"daily_limit" example:"200" validate:"gt=0"`
}

type Telegram struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Max characters per outgoing message
	MessageLimit int `yaml:"message_limit" example:"4096" validate:"gt=0"`
}

type HTTP struct {
	// Listen address, "off" disables the HTTP API
	Addr string `yaml:"addr" example:":8080"`
}

// HTTPDisabled is the Addr value that turns the HTTP API off.
const HTTPDisabled = "off"

type Engine struct {
	Workers   int `yaml:"workers" example:"4" validate:"gt=0"`
	QueueSize int `yaml:"queue_size" example:"64" validate:"gt=0"`
}

type Log struct {
	// Minimum level: debug, info, warn, error
	Level string `yaml:"level" example:"info" validate:"omitempty,oneof=debug info warn error"`
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, oops.In("config").Errorf("failed to load .env file: %w", err)
	}

	var result Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, oops.In("config").Errorf("failed to read config file: %w", err)
	default:
		if err = yaml.Unmarshal(data, &result); err != nil {
			return nil, oops.In("config").Errorf("failed to parse YAML config: %w", err)
		}
	}

	applyEnv(&result)
	ApplyDefaults(&result)

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.In("config").Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}

func applyEnv(cfg *Config) {
	overrides := []struct {
		env    string
		target *string
	}{
		{"OPENAI_API_KEY", &cfg.OpenAI.Token},
		{"OPENAI_BASE_URL", &cfg.OpenAI.BaseURL},
		{"REDDIT_CLIENT_ID", &cfg.Reddit.ClientID},
		{"REDDIT_CLIENT_SECRET", &cfg.Reddit.ClientSecret},
		{"TELEGRAM_BOT_TOKEN", &cfg.Telegram.Token},
	}

	for _, o := range overrides {
		if value, ok := os.LookupEnv(o.env); ok && value != "" {
			*o.target = value
		}
	}
}

// ApplyDefaults fills every zero field with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.OpenAI.EmbeddingModel == "" {
		cfg.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.OpenAI.TimeoutSeconds == 0 {
		cfg.OpenAI.TimeoutSeconds = 60
	}
	if cfg.Reddit.UserAgent == "" {
		cfg.Reddit.UserAgent = "go:forager:v0.2"
	}
	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = "chromem"
	}
	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = "forager"
	}
	if cfg.Vector.PersistDir == "" {
		cfg.Vector.PersistDir = "chroma_data"
	}
	if cfg.Vector.MaxChunkChars == 0 {
		cfg.Vector.MaxChunkChars = 6000
	}
	if cfg.Vector.Qdrant.Host == "" {
		cfg.Vector.Qdrant.Host = "localhost"
	}
	if cfg.Vector.Qdrant.Port == 0 {
		cfg.Vector.Qdrant.Port = 6334
	}
	if cfg.Agent.MaxToolRounds == 0 {
		cfg.Agent.MaxToolRounds = 10
	}
	if cfg.Agent.MaxHistory == 0 {
		cfg.Agent.MaxHistory = 50
	}
	if cfg.Agent.MaxSeedThreads == 0 {
		cfg.Agent.MaxSeedThreads = 3
	}
	if cfg.Summary.TopP == 0 {
		cfg.Summary.TopP = 0.5
	}
	if cfg.Summary.ThreadMaxTokens == 0 {
		cfg.Summary.ThreadMaxTokens = 1000
	}
	if cfg.Summary.FinalMaxTokens == 0 {
		cfg.Summary.FinalMaxTokens = 300
	}
	if cfg.Usage.HourlyLimit == 0 {
		cfg.Usage.HourlyLimit = 20
	}
	if cfg.Usage.DailyLimit == 0 {
		cfg.Usage.DailyLimit = 200
	}
	if cfg.Telegram.MessageLimit == 0 {
		cfg.Telegram.MessageLimit = 4096
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.Engine.Workers == 0 {
		cfg.Engine.Workers = 4
	}
	if cfg.Engine.QueueSize == 0 {
		cfg.Engine.QueueSize = 64
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
