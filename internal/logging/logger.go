// Package logging is the structured, context-aware logger shared by the
// ledger node, the relay and the CLI.
//
// Besides explicit key-value arguments, a record carries the attributes
// attached to its context with ContextWith, so a request id set once by an
// interceptor shows up on every line logged while serving that request.
package logging

import "context"

// Logger takes key-value pairs after the message:
//
//	log.Info(ctx, "submitted", "tx", id, "sequence", seq)
type Logger interface {
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes args.
	With(args ...any) Logger
}

type ctxKey struct{}

// ContextWith returns a copy of ctx carrying args in addition to any
// attributes already attached.
func ContextWith(ctx context.Context, args ...any) context.Context {
	prev := FromContext(ctx)
	merged := make([]any, 0, len(prev)+len(args))
	merged = append(merged, prev...)
	merged = append(merged, args...)
	return context.WithValue(ctx, ctxKey{}, merged)
}

// FromContext returns the attributes attached with ContextWith.
func FromContext(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	args, _ := ctx.Value(ctxKey{}).([]any)
	return args
}
