// Package main is the entry point for the explainer CLI.
//
// Usage:
//
//	explainer [flags] <command> [args]
//
// Commands:
//
//	analyze    - explain a text and play the narration
//	summarize  - summarize a text
//	session    - interactive session (analyze, ask, stop, replay, export, ...)
//	serve      - websocket bridge for a browser or app front end
//	history    - list or clear recent inputs
//	config     - manage contexts
//	version    - show version information
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/haivivi/explainer/cmd/explainer/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Execute(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
