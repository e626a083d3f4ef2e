package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ndustrialio/contxt-go/internal/cli"
)

func main() {
	cfg, err := cli.LoadConfig("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "contxt: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := cli.New(cfg, os.Stdin, os.Stdout, os.Stderr)
	if err := app.Run(ctx, os.Args[1:]); err != nil {
		stop()
		if cli.IsUsageError(err) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "contxt: %v\n", err)
		os.Exit(1)
	}
}
