package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rvemu/rvemu/rvgo/cmd"
)

func main() {
	app := cmd.NewApp()
	ctx, cancel := context.WithCancel(context.Background())

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for {
			<-c
			cancel()
			fmt.Fprintln(os.Stderr, "\r\nExiting...")
		}
	}()

	err := app.RunContext(ctx, os.Args)
	if err != nil {
		var exitErr *cmd.ExitError
		switch {
		case errors.As(err, &exitErr):
			os.Exit(exitErr.Code)
		case errors.Is(err, ctx.Err()):
			_, _ = fmt.Fprintln(os.Stderr, "command interrupted")
			os.Exit(130)
		default:
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
}
