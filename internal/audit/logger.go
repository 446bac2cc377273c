// Package audit emits structured decision events. Every issuance, denial,
// revocation, and config mutation is recorded with enough detail to
// reconstruct why it happened; denial reasons are never collapsed.
package audit

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// Event represents an audit log event.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Action    string    `json:"action"`
	Owner     string    `json:"owner,omitempty"`  // Owning organization/identity
	Target    string    `json:"target,omitempty"` // Config or token ID
	Reason    string    `json:"reason,omitempty"` // Denial reason or detail
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

var auditLogger = log.Output(os.Stdout).With().Logger()

// Log records an audit event.
func Log(service, action, owner, target, reason string, success bool, err error) {
	event := Event{
		Timestamp: time.Now().UTC(),
		Service:   service,
		Action:    action,
		Owner:     owner,
		Target:    target,
		Reason:    reason,
		Success:   success,
	}
	if err != nil {
		event.Error = err.Error()
	}

	entry, marshalErr := json.Marshal(event)
	if marshalErr != nil {
		// Fallback to unstructured logging if JSON marshaling fails
		log.Error().Err(marshalErr).Msg("Failed to marshal audit event to JSON")
		auditLogger.Error().
			Str("service", service).
			Str("action", action).
			Str("owner", owner).
			Str("target", target).
			Str("reason", reason).
			Bool("success", success).
			Err(err).
			Msg("Audit Log (fallback)")
		return
	}
	auditLogger.Log().RawJSON("audit_event", entry).Msg("")
}
