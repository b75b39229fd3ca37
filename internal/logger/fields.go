package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so log aggregation
// and querying see uniform attribute names.
const (
	// Distributed tracing
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// Request identification
	KeyRequestID = "request_id" // Per-request correlation id assigned at pipeline entry
	KeyClientIP  = "client_ip"  // Client IP address
	KeyMethod    = "method"     // HTTP method
	KeyPath      = "path"       // Request path

	// Identity resolution
	KeyUsername   = "username"    // Resolved username
	KeyAuthSource = "auth_source" // Resolver that produced the identity: token, headers
	KeyProvider   = "provider"    // External OAuth2 provider id, when present
	KeyRole       = "role"        // Single role name
	KeyRoles      = "roles"       // Full role set
	KeyOrg        = "org"         // Organization

	// Directory operations
	KeyBackend   = "backend"   // Directory backend: memory, ldap, sql
	KeyOperation = "operation" // Directory operation: insert, delete, add_user_to_role

	// Events
	KeyExchange = "exchange" // Message-bus exchange name
	KeyEventID  = "event_id" // Outbound event id

	// Operation metadata
	KeyError      = "error"       // Error message
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyComponent  = "component"   // Subsystem name: security, accounts, directory, events
)

// Err returns a standard error attribute, or an empty attr for nil errors.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// WithComponent returns a logger with the component field pre-bound.
// Subsystems grab one of these at construction time.
func WithComponent(name string) *slog.Logger {
	return With(KeyComponent, name)
}
