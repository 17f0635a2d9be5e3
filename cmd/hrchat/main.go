// Command hrchat is a terminal client for the HR chatbot backend.
//
// Usage:
//
//	hrchat chat [flags]            interactive TUI
//	hrchat send [flags] MESSAGE    one-shot, streams the reply to stdout
//	hrchat stub [flags]            serve a local stub backend
//
// Every flag can also be set through an HRCHAT_* environment variable
// (e.g. HRCHAT_BASE_URL) or a .env file in the working directory.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "hrchat: %v\n", err)
		os.Exit(1)
	}
}
