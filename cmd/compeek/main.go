// Package main is the compeek binary. One executable serves the tool server
// inside a desktop container, bridges it to MCP clients over stdio, runs
// agent workflows from the command line and hosts the run service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(version).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
