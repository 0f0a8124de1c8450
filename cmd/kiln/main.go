package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Iron-Ham/kiln/internal/cmd"
	"github.com/Iron-Ham/kiln/internal/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()
	if err != nil {
		cmd.RenderError(os.Stderr, err)
		if errors.Is(err, errors.ErrCanceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
