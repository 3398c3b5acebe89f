package cli

import (
	"bufio"
	"errors"
	"fmt"
	"forager/app/client/reddit"
	"forager/app/config"
	"forager/app/service/agent"
	"forager/app/service/engine"
	"forager/app/service/eval"
	"forager/app/service/ingest"
	"forager/app/service/knowledge"
	"forager/app/service/tools"
	"forager/app/transport/httpapi"
	"forager/app/transport/mcp"
	"forager/app/transport/telegram"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/do"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const cliConversation = "cli"

var ErrEvalFailed = errors.New("some eval cases failed")

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Serve the Telegram bot and the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			di, cfg, err := bootstrap(ctx, opts)
			if err != nil {
				return err
			}
			defer shutdown(di)

			engineSvc := do.MustInvoke[*engine.Service](di)

			var bot *telegram.Service
			if cfg.Telegram.Token != "" {
				if bot, err = do.Invoke[*telegram.Service](di); err != nil {
					return err
				}
			} else {
				slog.Warn("Telegram token is not set, bot disabled")
			}

			var api *httpapi.Service
			if cfg.HTTP.Addr != config.HTTPDisabled {
				if api, err = do.Invoke[*httpapi.Service](di); err != nil {
					return err
				}
			}

			group, ctx := errgroup.WithContext(ctx)

			group.Go(func() error {
				engineSvc.Run(ctx)
				return nil
			})

			if bot != nil {
				group.Go(func() error {
					bot.Run(ctx)
					return nil
				})
			}

			if api != nil {
				group.Go(func() error {
					return api.Run(ctx)
				})
			}

			slog.Info("Service started")

			err = group.Wait()

			slog.Info("Waiting for services to finish...")

			return err
		},
	}
}

func newChatCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to the agent in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			di, _, err := bootstrap(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer shutdown(di)

			agentSvc := do.MustInvoke[*agent.Service](di)

			return repl(cmd, agentSvc)
		},
	}
}

func repl(cmd *cobra.Command, agentSvc *agent.Service) error {
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())

	_, _ = fmt.Fprintln(out, "Forager chat. Type /clear to reset the conversation, /quit to leave.")

	for {
		_, _ = fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			agentSvc.ClearHistory(cliConversation)
			_, _ = fmt.Fprintln(out, "Conversation history cleared.")
			continue
		}

		reply, err := agentSvc.Chat(cmd.Context(), cliConversation, text)
		if err != nil {
			slog.Error("Chat failed", "error", err)
			_, _ = fmt.Fprintln(out, engine.ApologyText)
			continue
		}

		_, _ = fmt.Fprintln(out, reply)
	}
}

func newSeedCommand(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "seed <subreddit>",
		Short: "Ingest the newest threads of a subreddit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			di, _, err := bootstrap(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer shutdown(di)

			result, err := do.MustInvoke[*agent.Service](di).Seed(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), result)
			return err
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "number of threads, capped by agent.max_seed_threads")

	return cmd
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the knowledge base size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			di, _, err := bootstrap(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer shutdown(di)

			count, err := do.MustInvoke[*knowledge.Store](di).Count(cmd.Context())
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Knowledge base contains %d document(s).\n", count)
			return err
		},
	}
}

func newSearchCommand(opts *options) *cobra.Command {
	var (
		subreddit string
		docType   string
		n         int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Query the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			di, _, err := bootstrap(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer shutdown(di)

			results, err := do.MustInvoke[*knowledge.Store](di).Search(cmd.Context(), knowledge.Query{
				Text:      strings.Join(args, " "),
				N:         n,
				Subreddit: tools.NormalizeSubreddit(subreddit),
				DocType:   docType,
			})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), tools.FormatSearchResults(results))
			return err
		},
	}

	cmd.Flags().StringVarP(&subreddit, "subreddit", "s", "", "only match this subreddit")
	cmd.Flags().StringVarP(&docType, "doc-type", "t", "", "thread_content or summary")
	cmd.Flags().IntVarP(&n, "results", "n", 5, "number of results")

	return cmd
}

func newDeleteCommand(opts *options) *cobra.Command {
	var threadID, subreddit string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove documents of a thread or a subreddit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			di, _, err := bootstrap(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer shutdown(di)

			store := do.MustInvoke[*knowledge.Store](di)
			if threadID != "" {
				return store.DeleteThread(cmd.Context(), tools.ParseThreadID(threadID))
			}

			return store.DeleteSubreddit(cmd.Context(), tools.NormalizeSubreddit(subreddit))
		},
	}

	cmd.Flags().StringVar(&threadID, "thread", "", "thread id or url")
	cmd.Flags().StringVar(&subreddit, "subreddit", "", "subreddit name")
	cmd.MarkFlagsMutuallyExclusive("thread", "subreddit")
	cmd.MarkFlagsOneRequired("thread", "subreddit")

	return cmd
}

func newExtractCommand(opts *options) *cobra.Command {
	var (
		sort  string
		limit int
		out   string
	)

	cmd := &cobra.Command{
		Use:   "extract <subreddit>",
		Short: "Save threads of a subreddit as JSON files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			di, _, err := bootstrap(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer shutdown(di)

			subreddit := tools.NormalizeSubreddit(args[0])
			if out == "" {
				out = subreddit
			}

			n, err := do.MustInvoke[*ingest.Service](di).Extract(cmd.Context(), subreddit, reddit.ParseSort(sort), limit, out)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Saved %d threads to %s\n", n, out)
			return err
		},
	}

	cmd.Flags().StringVar(&sort, "sort", string(reddit.SortNew), "hot, new or top")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of threads")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory, defaults to the subreddit name")

	return cmd
}

func newSummariseCommand(opts *options) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:     "summarise <dir>",
		Aliases: []string{"summarize"},
		Short:   "Summarise extracted thread files",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			di, _, err := bootstrap(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer shutdown(di)

			if out == "" {
				out = args[0]
			}

			summary, err := do.MustInvoke[*ingest.Service](di).SummarizeDir(cmd.Context(), args[0], out)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), summary)
			return err
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory, defaults to the input directory")

	return cmd
}

func newIngestCommand(opts *options) *cobra.Command {
	var subreddit string

	cmd := &cobra.Command{
		Use:   "ingest <dir>",
		Short: "Load thread files into the knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			di, _, err := bootstrap(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer shutdown(di)

			result, err := do.MustInvoke[*ingest.Service](di).IngestDir(cmd.Context(), args[0], tools.NormalizeSubreddit(subreddit))
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d threads (%d documents)\n", result.Threads, result.Documents)
			return err
		},
	}

	cmd.Flags().StringVarP(&subreddit, "subreddit", "s", "", "subreddit the threads belong to")
	_ = cmd.MarkFlagRequired("subreddit")

	return cmd
}

func newEvalCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "eval",
		Short: "Check that the model picks the right tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			di, _, err := bootstrap(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer shutdown(di)

			results := do.MustInvoke[*eval.Service](di).Run(cmd.Context(), eval.Cases)
			eval.Report(cmd.OutOrStdout(), results)

			if !eval.AllPassed(results) {
				return ErrEvalFailed
			}

			return nil
		},
	}
}

func newMCPCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Expose the tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			di, _, err := bootstrap(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer shutdown(di)

			return do.MustInvoke[*mcp.Service](di).Serve(cmd.Context(), os.Stdin, os.Stdout)
		},
	}
}
