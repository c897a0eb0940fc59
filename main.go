package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fasmide/portname/command"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// cobra has already printed the error
	err := command.Root().ExecuteContext(ctx)
	if err != nil {
		stop()
		os.Exit(1)
	}
}
