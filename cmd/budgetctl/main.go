package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"budgetbook/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(cli.OpenFromConfig).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "budgetctl:", err)
		stop()
		os.Exit(1)
	}
}
