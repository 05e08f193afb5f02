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

	if err := cli.NewIngestionCommand().ExecuteContext(ctx); err != nil {
		if errors.Is(err, apperrors.ErrCancelled) {
			slog.Warn("ingestion interrupted", "error", err)
		} else {
			slog.Error("ingestion failed", "error", err)
		}
		stop()
		os.Exit(apperrors.ExitCode(err))
	}
}
