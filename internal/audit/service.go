package audit

import (
	"context"
	"errors"
	"time"

	"booking-platform/internal/auth"
	"booking-platform/pkg/logger"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only: there are no Update/Delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records who changed an organization's voice integration.
//
// Audit is internal-only; these records are not exposed to tenant users.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.OrganizationID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// record fills the actor from the request identity and swallows failures after logging them.
func (s *Service) record(ctx context.Context, organizationID string, typ EventType, targetID, message string) {
	if s == nil {
		return
	}
	userID, _ := auth.UserID(ctx)
	role, _ := auth.Role(ctx)
	err := s.Append(ctx, Event{
		OrganizationID: organizationID,
		Type:           typ,
		ActorUserID:    userID,
		ActorRole:      role,
		TargetID:       targetID,
		Message:        message,
	})
	if err != nil {
		logger.From(ctx).Warn("audit append failed", "type", typ, "organization_id", organizationID, "err", err)
	}
}

func (s *Service) CredentialSaved(ctx context.Context, organizationID string) {
	s.record(ctx, organizationID, EventCredentialSaved, "", "bolna api key saved")
}

func (s *Service) CredentialCleared(ctx context.Context, organizationID string) {
	s.record(ctx, organizationID, EventCredentialCleared, "", "bolna api key cleared")
}

func (s *Service) AgentCreated(ctx context.Context, organizationID, agentID string) {
	s.record(ctx, organizationID, EventAgentCreated, agentID, "voice agent created")
}

func (s *Service) AgentDeleted(ctx context.Context, organizationID, agentID string) {
	s.record(ctx, organizationID, EventAgentDeleted, agentID, "voice agent deleted with its calls")
}

func (s *Service) CallPlaced(ctx context.Context, organizationID, callID string) {
	s.record(ctx, organizationID, EventCallPlaced, callID, "voice call placed")
}
