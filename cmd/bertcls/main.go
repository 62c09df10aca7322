// Command bertcls fine-tunes a multi-class text classifier on top of a
// frozen pre-trained encoder.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	internal "github.com/ZanzyTHEbar/bertcls/bertcls"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger := internal.GetLogger()
		logger.Error().Err(err).Msg("bertcls failed")
		stop()
		os.Exit(1)
	}
}
