package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vlikcc/yargisalzeka.V2/internal/cli"
	apperrors "github.com/vlikcc/yargisalzeka.V2/pkg/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewIndexerCommand().ExecuteContext(ctx); err != nil {
		if errors.Is(err, apperrors.ErrCancelled) {
			slog.Warn("indexer interrupted", "error", err)
		} else {
			slog.Error("indexer failed", "error", err)
		}
		stop()
		os.Exit(apperrors.ExitCode(err))
	}
}
