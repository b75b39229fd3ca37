package security

import (
	"context"

	"github.com/emmdurin/georchestra-gateway/pkg/identity"
)

// Context key type for the per-request identity holder
type contextKey string

const identityContextKey contextKey = "gateway-identity"

// identityHolder is the per-request slot holding the currently resolved
// identity. It is created empty at pipeline entry, written at most a
// handful of times (once per resolving stage), and discarded with the
// request context. Ownership is the single in-flight request, so no
// synchronization is needed.
type identityHolder struct {
	user *identity.Identity
}

// WithIdentityHolder returns a context carrying a fresh, empty identity
// slot. The gateway installs one at pipeline entry; stages and downstream
// collaborators share it through the request context.
func WithIdentityHolder(ctx context.Context) context.Context {
	return context.WithValue(ctx, identityContextKey, &identityHolder{})
}

// Store writes the resolved identity into the request's slot, replacing any
// previous value. Storing nil clears the slot. Returns false if the context
// carries no holder (the request never entered the pipeline).
func Store(ctx context.Context, user *identity.Identity) bool {
	holder, ok := ctx.Value(identityContextKey).(*identityHolder)
	if !ok {
		return false
	}
	holder.user = user
	return true
}

// Resolve returns the identity currently held by the request's slot, or
// (nil, false) when the slot is empty or absent.
func Resolve(ctx context.Context) (*identity.Identity, bool) {
	holder, ok := ctx.Value(identityContextKey).(*identityHolder)
	if !ok || holder.user == nil {
		return nil, false
	}
	return holder.user, true
}
