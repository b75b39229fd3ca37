// Package events defines the outbound account-lifecycle events the gateway
// emits after a successful provisioning transaction, and the sink interface
// adapters implement. Delivery is best-effort: the provisioning caller logs
// sink failures and never fails the request over them.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/emmdurin/georchestra-gateway/internal/logger"
)

// AccountCreated is emitted once per successfully provisioned account.
type AccountCreated struct {
	// ID is a unique event id, assigned at creation.
	ID string `json:"id"`

	// Username is the new account's directory key.
	Username string `json:"username"`

	// Roles is the canonical prefixed role set assigned to the account.
	Roles []string `json:"roles"`

	// CreatedAt is the event timestamp.
	CreatedAt time.Time `json:"created_at"`
}

// NewAccountCreated builds an AccountCreated event with a fresh id.
func NewAccountCreated(username string, roles []string) AccountCreated {
	return AccountCreated{
		ID:        uuid.NewString(),
		Username:  username,
		Roles:     roles,
		CreatedAt: time.Now().UTC(),
	}
}

// Sink receives account-lifecycle events. Implementations must be safe for
// concurrent use and should honor context cancellation; they must not
// assume the caller retries.
type Sink interface {
	// Publish delivers one event. Errors are reported but callers treat
	// delivery as fire-and-forget.
	Publish(ctx context.Context, event AccountCreated) error
}

// LogSink writes events to the application log. It is the default sink
// when no message bus is configured.
type LogSink struct{}

// NewLogSink creates a LogSink.
func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) Publish(ctx context.Context, event AccountCreated) error {
	logger.InfoCtx(ctx, "account created",
		logger.KeyEventID, event.ID,
		logger.KeyUsername, event.Username,
		logger.KeyRoles, event.Roles,
	)
	return nil
}
