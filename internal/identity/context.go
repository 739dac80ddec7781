package identity

import "context"

type callerKey struct{}

// WithCaller stores the caller on the context.
func WithCaller(ctx context.Context, caller *Caller) context.Context {
	if caller == nil {
		return ctx
	}
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller stored on ctx, or nil.
func CallerFromContext(ctx context.Context) *Caller {
	if ctx == nil {
		return nil
	}
	caller, _ := ctx.Value(callerKey{}).(*Caller)
	return caller
}
