package activity

import "context"

type executionIDKey struct{}

// WithExecutionID attaches an execution ID to ctx so Invoke can report
// phase progress against it through the Executor's jobtracker, without
// widening Invoke/InvokeWithRetry's signature for callers that don't
// care. Mirrors internal/telemetry's Inject/Extract-over-context
// pattern for trace propagation.
func WithExecutionID(ctx context.Context, executionID string) context.Context {
	if executionID == "" {
		return ctx
	}
	return context.WithValue(ctx, executionIDKey{}, executionID)
}

func executionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(executionIDKey{}).(string)
	return id
}
