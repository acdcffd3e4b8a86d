package agents

import (
	"context"
	"errors"
	"time"
)

// Agent mirrors a voice agent registered with Bolna.
//
// BolnaAgentID is set once at creation and never changes.
type Agent struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	BolnaAgentID   string    `json:"bolnaAgentId"`
	Name           string    `json:"name"`
	WelcomeMessage string    `json:"welcomeMessage"`
	Instructions   string    `json:"instructions"`
	Language       string    `json:"language"`
	VoiceID        *string   `json:"voiceId"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Summary is an agent annotated with how many calls it has placed.
type Summary struct {
	Agent
	CallCount int `json:"callCount"`
}

const DefaultLanguage = "en"

type CreateInput struct {
	Name           string  `json:"name" validate:"required,max=200"`
	WelcomeMessage string  `json:"welcomeMessage" validate:"required,max=2000"`
	Instructions   string  `json:"instructions" validate:"required,max=20000"`
	Language       string  `json:"language" validate:"omitempty,min=2,max=10"`
	VoiceID        *string `json:"voiceId" validate:"omitempty,max=200"`
}

// UpdateInput is partial: nil fields are left untouched.
type UpdateInput struct {
	Name           *string `json:"name" validate:"omitempty,min=1,max=200"`
	WelcomeMessage *string `json:"welcomeMessage" validate:"omitempty,min=1,max=2000"`
	Instructions   *string `json:"instructions" validate:"omitempty,min=1,max=20000"`
	Language       *string `json:"language" validate:"omitempty,min=2,max=10"`
	VoiceID        *string `json:"voiceId" validate:"omitempty,max=200"`
	IsActive       *bool   `json:"isActive"`
}

var (
	ErrNotFound       = errors.New("agents: not found")
	ErrInvalidRequest = errors.New("agents: invalid request")
)

// Repository is the persistence contract for agents. Every method is organization scoped.
type Repository interface {
	Insert(ctx context.Context, a Agent) error
	Get(ctx context.Context, organizationID, id string) (Agent, error)
	List(ctx context.Context, organizationID string) ([]Agent, error)
	Update(ctx context.Context, a Agent) error
	// Delete hard-deletes the agent and every call that references it.
	Delete(ctx context.Context, organizationID, id string) error
	CountCalls(ctx context.Context, organizationID string, agentIDs []string) (map[string]int, error)
}
