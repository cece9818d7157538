package ward

import "context"

type contextKey uint8

const (
	contextKeyClientIP contextKey = iota
	contextKeyClientID
)

// WithClientIP returns a context carrying the caller's network address.
// Engine operations read it into audit events and new-device tracking; an
// absent value is recorded as empty, never an error.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, contextKeyClientIP, ip)
}

// ClientIPFromContext returns the address set by [WithClientIP], or "".
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(contextKeyClientIP).(string)
	return ip
}

// WithClientID returns a context carrying an opaque client identifier such
// as a user agent or app build string.
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyClientID, id)
}

// ClientIDFromContext returns the identifier set by [WithClientID], or "".
func ClientIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyClientID).(string)
	return id
}
