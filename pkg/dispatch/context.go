package dispatch

import "context"

type controlContextKey struct{}

func withControlContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, controlContextKey{}, true)
}

// IsControlContext reports whether ctx descends from the control loop,
// meaning the caller is already executing on the control goroutine.
func IsControlContext(ctx context.Context) bool {
	v, ok := ctx.Value(controlContextKey{}).(bool)
	return ok && v
}
