package engine

import (
	"context"
	"log/slog"
)

// ProcessingContext is shared by every processor call made by one pipeline worker.
type ProcessingContext struct {
	context.Context
	Log *slog.Logger
}
