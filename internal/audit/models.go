package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - organization_id is required for tenancy isolation.
// - actor capture is best-effort; audit failures never block the operation being audited.
type Event struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`

	Type EventType `json:"type" db:"type"`

	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// TargetID is the agent or call id, depending on Type.
	TargetID string `json:"target_id,omitempty" db:"target_id"`

	Message  string `json:"message,omitempty" db:"message"`
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventCredentialSaved   EventType = "bolna_key_saved"
	EventCredentialCleared EventType = "bolna_key_cleared"
	EventAgentCreated      EventType = "voice_agent_created"
	EventAgentDeleted      EventType = "voice_agent_deleted"
	EventCallPlaced        EventType = "voice_call_placed"
)
