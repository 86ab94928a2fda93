package workers

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// ErrorHandler logs job errors and panics.
type ErrorHandler struct{}

// HandleError is called when a job returns an error.
func (h *ErrorHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	attrs := []any{
		"job_kind", job.Kind,
		"job_id", job.ID,
		"attempt", job.Attempt,
		"max_attempts", job.MaxAttempts,
		"error", err,
	}

	if job.Attempt >= job.MaxAttempts {
		slog.ErrorContext(ctx, "job failed, giving up", attrs...)
	} else {
		slog.WarnContext(ctx, "job failed, will retry", attrs...)
	}

	// nil keeps River's default retry behavior.
	return nil
}

// HandlePanic is called when a job panics.
func (h *ErrorHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	slog.ErrorContext(ctx, "job panicked",
		"job_kind", job.Kind,
		"job_id", job.ID,
		"attempt", job.Attempt,
		"panic_value", panicVal,
		"stack_trace", trace,
	)

	return nil
}
