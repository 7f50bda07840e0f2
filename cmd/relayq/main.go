package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/relayq/relayq/cmd/relayq/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cli.ExecuteContext(ctx)
}
