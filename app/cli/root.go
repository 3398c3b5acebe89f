package cli

import (
	"context"
	"forager/app/client/llm"
	"forager/app/client/reddit"
	"forager/app/config"
	"forager/app/service/agent"
	"forager/app/service/engine"
	"forager/app/service/eval"
	"forager/app/service/ingest"
	"forager/app/service/knowledge"
	"forager/app/service/queue"
	"forager/app/service/summarizer"
	"forager/app/service/tools"
	"forager/app/service/usage"
	"forager/app/transport/httpapi"
	"forager/app/transport/mcp"
	"forager/app/transport/telegram"
	"forager/app/util/mylog"
	"log/slog"

	"github.com/samber/do"
	"github.com/spf13/cobra"
)

type options struct {
	configPath string
}

func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "forager",
		Short:         "Conversational agent over Reddit threads",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", config.DefaultPath, "path to config file")

	root.AddCommand(
		newRunCommand(opts),
		newChatCommand(opts),
		newSeedCommand(opts),
		newStatusCommand(opts),
		newSearchCommand(opts),
		newDeleteCommand(opts),
		newExtractCommand(opts),
		newSummariseCommand(opts),
		newIngestCommand(opts),
		newEvalCommand(opts),
		newMCPCommand(opts),
	)

	return root
}

// bootstrap loads the config and registers every service lazily, so a
// command only constructs what it invokes.
func bootstrap(ctx context.Context, opts *options) (*do.Injector, *config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, err
	}

	if err = mylog.Init(cfg); err != nil {
		return nil, nil, err
	}

	di := do.New()
	do.ProvideValue(di, ctx)
	do.ProvideValue(di, cfg)

	do.Provide(di, llm.NewModel)
	do.Provide(di, llm.NewEmbedder)
	do.Provide(di, func(i *do.Injector) (reddit.Source, error) {
		return reddit.NewClient(i)
	})
	do.Provide(di, knowledge.New)
	do.Provide(di, summarizer.New)
	do.Provide(di, ingest.New)
	do.Provide(di, mcp.NewRemotes)
	do.Provide(di, func(i *do.Injector) (*tools.Registry, error) {
		registry, err := tools.New(i)
		if err != nil {
			return nil, err
		}

		remotes, err := do.Invoke[*mcp.Remotes](i)
		if err != nil {
			return nil, err
		}

		if err = registry.Extend(remotes.Tools()...); err != nil {
			return nil, err
		}

		return registry, nil
	})
	do.Provide(di, agent.New)
	do.Provide(di, usage.New)
	do.Provide(di, queue.New)
	do.Provide(di, engine.New)
	do.Provide(di, telegram.New)
	do.Provide(di, httpapi.New)
	do.Provide(di, mcp.New)
	do.Provide(di, eval.New)

	return di, cfg, nil
}

func shutdown(di *do.Injector) {
	if err := di.Shutdown(); err != nil {
		slog.Warn("Shutdown finished with errors", "error", err)
	}
}
