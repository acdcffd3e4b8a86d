package agents

import (
	"context"
	"strings"
	"time"

	"booking-platform/internal/bolna"
	"booking-platform/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Credentials resolves a provider session for an organization. It fails with
// credentials.ErrNotConfigured when no usable key is stored.
type Credentials interface {
	Provider(ctx context.Context, organizationID string) (bolna.Provider, error)
}

// Auditor records agent lifecycle events. Failures never block the operation.
type Auditor interface {
	AgentCreated(ctx context.Context, organizationID, agentID string)
	AgentDeleted(ctx context.Context, organizationID, agentID string)
}

type Service struct {
	repo     Repository
	creds    Credentials
	audit    Auditor
	validate *validator.Validate
	clock    func() time.Time
}

func NewService(repo Repository, creds Credentials, audit Auditor) *Service {
	return &Service{repo: repo, creds: creds, audit: audit, validate: newValidator(), clock: time.Now}
}

// Create registers the agent with Bolna first, then stores it locally. If the local insert fails
// the provider agent is deleted so it is not orphaned.
func (s *Service) Create(ctx context.Context, organizationID string, in CreateInput) (Agent, error) {
	if organizationID == "" {
		return Agent{}, ErrInvalidRequest
	}
	in.Name = strings.TrimSpace(in.Name)
	in.WelcomeMessage = strings.TrimSpace(in.WelcomeMessage)
	in.Instructions = strings.TrimSpace(in.Instructions)
	in.Language = strings.TrimSpace(in.Language)
	if err := validateStruct(s.validate, in); err != nil {
		return Agent{}, err
	}
	if in.Language == "" {
		in.Language = DefaultLanguage
	}

	provider, err := s.creds.Provider(ctx, organizationID)
	if err != nil {
		return Agent{}, err
	}

	cfg := bolna.AgentConfig{
		Name:           in.Name,
		WelcomeMessage: in.WelcomeMessage,
		Instructions:   in.Instructions,
		Language:       in.Language,
	}
	if in.VoiceID != nil {
		cfg.VoiceID = *in.VoiceID
	}
	externalID, err := provider.CreateAgent(ctx, cfg)
	if err != nil {
		return Agent{}, err
	}

	now := s.clock().UTC()
	a := Agent{
		ID:             uuid.NewString(),
		OrganizationID: organizationID,
		BolnaAgentID:   externalID,
		Name:           in.Name,
		WelcomeMessage: in.WelcomeMessage,
		Instructions:   in.Instructions,
		Language:       in.Language,
		VoiceID:        in.VoiceID,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, a); err != nil {
		log := logger.From(ctx)
		log.Error("agent insert failed after provider create", "organization_id", organizationID, "bolna_agent_id", externalID, "err", err)
		if derr := provider.DeleteAgent(ctx, externalID); derr != nil {
			log.Error("compensating provider agent delete failed", "bolna_agent_id", externalID, "err", derr)
		}
		return Agent{}, err
	}
	if s.audit != nil {
		s.audit.AgentCreated(ctx, organizationID, a.ID)
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, organizationID string) ([]Summary, error) {
	if organizationID == "" {
		return nil, ErrInvalidRequest
	}
	rows, err := s.repo.List(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, a := range rows {
		ids = append(ids, a.ID)
	}
	counts, err := s.repo.CountCalls(ctx, organizationID, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(rows))
	for _, a := range rows {
		out = append(out, Summary{Agent: a, CallCount: counts[a.ID]})
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, organizationID, id string) (Summary, error) {
	a, err := s.repo.Get(ctx, organizationID, id)
	if err != nil {
		return Summary{}, err
	}
	counts, err := s.repo.CountCalls(ctx, organizationID, []string{a.ID})
	if err != nil {
		return Summary{}, err
	}
	return Summary{Agent: a, CallCount: counts[a.ID]}, nil
}

// UpdateResult reports whether Bolna accepted the change. Local state is authoritative for
// editable metadata, so a provider failure does not fail the update.
type UpdateResult struct {
	Agent          Agent
	ProviderSynced bool
	ProviderError  error
}

func (s *Service) Update(ctx context.Context, organizationID, id string, in UpdateInput) (UpdateResult, error) {
	in.Name = trimmed(in.Name)
	in.WelcomeMessage = trimmed(in.WelcomeMessage)
	in.Instructions = trimmed(in.Instructions)
	in.Language = trimmed(in.Language)
	if err := validateStruct(s.validate, in); err != nil {
		return UpdateResult{}, err
	}
	a, err := s.repo.Get(ctx, organizationID, id)
	if err != nil {
		return UpdateResult{}, err
	}

	res := UpdateResult{ProviderSynced: true}
	upd := bolna.AgentUpdate{Name: in.Name, WelcomeMessage: in.WelcomeMessage, Instructions: in.Instructions}
	if !upd.Empty() {
		res.ProviderSynced, res.ProviderError = s.syncProvider(ctx, a, upd)
	}

	if in.Name != nil {
		a.Name = *in.Name
	}
	if in.WelcomeMessage != nil {
		a.WelcomeMessage = *in.WelcomeMessage
	}
	if in.Instructions != nil {
		a.Instructions = *in.Instructions
	}
	if in.Language != nil {
		a.Language = *in.Language
	}
	if in.VoiceID != nil {
		a.VoiceID = in.VoiceID
	}
	if in.IsActive != nil {
		a.IsActive = *in.IsActive
	}
	a.UpdatedAt = s.clock().UTC()

	if err := s.repo.Update(ctx, a); err != nil {
		return UpdateResult{}, err
	}
	res.Agent = a
	return res, nil
}

// trimmed returns a copy of *v without surrounding whitespace; nil stays nil.
func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}

func (s *Service) syncProvider(ctx context.Context, a Agent, upd bolna.AgentUpdate) (bool, error) {
	log := logger.From(ctx)
	provider, err := s.creds.Provider(ctx, a.OrganizationID)
	if err != nil {
		log.Warn("skipping provider agent update", "agent_id", a.ID, "err", err)
		return false, err
	}
	if _, err := provider.UpdateAgent(ctx, a.BolnaAgentID, upd); err != nil {
		log.Warn("provider agent update failed; keeping local change", "agent_id", a.ID, "bolna_agent_id", a.BolnaAgentID, "err", err)
		return false, err
	}
	return true, nil
}

// Delete removes the agent at Bolna (best effort) and then locally, cascading to its calls.
func (s *Service) Delete(ctx context.Context, organizationID, id string) error {
	a, err := s.repo.Get(ctx, organizationID, id)
	if err != nil {
		return err
	}
	log := logger.From(ctx)
	if provider, err := s.creds.Provider(ctx, organizationID); err != nil {
		log.Warn("skipping provider agent delete", "agent_id", a.ID, "err", err)
	} else if err := provider.DeleteAgent(ctx, a.BolnaAgentID); err != nil {
		log.Warn("provider agent delete failed", "agent_id", a.ID, "bolna_agent_id", a.BolnaAgentID, "err", err)
	}
	if err := s.repo.Delete(ctx, organizationID, a.ID); err != nil {
		return err
	}
	if s.audit != nil {
		s.audit.AgentDeleted(ctx, organizationID, a.ID)
	}
	return nil
}

// Lookup satisfies the call reconciler's agent dependency.
func (s *Service) Lookup(ctx context.Context, organizationID, id string) (Agent, error) {
	return s.repo.Get(ctx, organizationID, id)
}
