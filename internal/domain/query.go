package domain

import "context"

type queryNameKey struct{}

// WithQueryName labels the queries issued with ctx for logs and metrics.
func WithQueryName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, queryNameKey{}, name)
}

// QueryName returns the label set by WithQueryName, or "unnamed".
func QueryName(ctx context.Context) string {
	if name, ok := ctx.Value(queryNameKey{}).(string); ok {
		return name
	}
	return "unnamed"
}
