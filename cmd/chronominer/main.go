// Command chronominer chunks large text files, dispatches each chunk to a
// pluggable LLM provider, and aggregates the structured responses into a
// per-file dataset.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/chronominer/chronominer/cmd/root"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := root.Execute(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]...); err != nil {
		os.Exit(1)
	}
}
