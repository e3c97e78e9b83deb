package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/DRSN-tech/visual-search/pkg/logger"
)

func main() {
	log := logger.NewSlogLoggerWithFormat(os.Stderr, logger.ParseLevel(os.Getenv("LOG_LEVEL")), logger.FormatText)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd(log).ExecuteContext(ctx); err != nil {
		log.Errorf(err, "snapshotctl failed")
		os.Exit(1)
	}
}
