// Package main provides the webapp command line tool.
// It drives browser sessions through playwright, chromedp or rod and runs
// site workflows such as signing in to GitHub.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
)

const version = "0.1.0"

func main() {
	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\n\nShutting down gracefully...")
		cancel()
	}()

	cli := newCLI()
	err := cli.rootCommand().ExecuteContext(ctx)

	// Every session is closed whether or not the command failed
	if teardownErr := cli.teardown(); teardownErr != nil {
		log.Printf("Shutdown finished with errors: %v", teardownErr)
	}

	cancel()
	if err != nil {
		os.Exit(1)
	}
}
