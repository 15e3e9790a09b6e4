package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"regsim/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	result, err := cli.Run(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "regsim:", err)
	}
	os.Exit(result.ExitCode)
}
