// Package tracectx carries the request trace id through context.Context so
// outbound calls (the ledger gateway) can forward it.
package tracectx

import "context"

// Header is the HTTP header the trace id travels in, inbound and outbound.
const Header = "X-Trace-Id"

type key struct{}

func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, key{}, id)
}

// ID returns the trace id stored in ctx, or "".
func ID(ctx context.Context) string {
	id, _ := ctx.Value(key{}).(string)
	return id
}
