package main

import (
	"context"
	"forager/app/cli"
	"forager/app/util/mylog"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	mylog.Preinit()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		slog.Error("Command failed", "error", err)
		cancel()
		os.Exit(1)
	}
}
