package log

import "context"

type ctxKey struct{}

// WithContext returns a new context that carries the given Logger
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the Logger stored in ctx, or Nop() if none is present
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok && l != nil {
		return l
	}
	return Nop()
}

// FromContextOK is FromContext that also reports whether a logger was set,
// for callers with their own fallback.
func FromContextOK(ctx context.Context) (Logger, bool) {
	l, ok := ctx.Value(ctxKey{}).(Logger)
	return l, ok && l != nil
}
