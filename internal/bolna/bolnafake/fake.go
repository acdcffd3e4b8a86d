// Package bolnafake is an in-memory bolna.Factory for service and handler tests.
package bolnafake

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"booking-platform/internal/bolna"
)

type Provider struct {
	mu sync.Mutex

	// Rejected keys fail ValidateKey; every other key passes.
	Rejected map[string]bool

	CreateAgentErr error
	UpdateAgentErr error
	DeleteAgentErr error
	MakeCallErr    error
	StatusErr      error

	// Statuses answers GetCallStatus by provider call id.
	Statuses map[string]bolna.CallStatusReport

	seq     int
	ops     []string
	keys    []string
	agents  map[string]bolna.AgentConfig
	updates []bolna.AgentUpdate
}

func New() *Provider {
	return &Provider{
		Rejected: map[string]bool{},
		Statuses: map[string]bolna.CallStatusReport{},
		agents:   map[string]bolna.AgentConfig{},
	}
}

func (p *Provider) ForKey(apiKey string) bolna.Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, apiKey)
	return &session{p: p, key: apiKey}
}

func (p *Provider) SetStatus(providerCallID string, r bolna.CallStatusReport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Statuses[providerCallID] = r
}

// Ops lists every provider operation in call order.
func (p *Provider) Ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ops...)
}

func (p *Provider) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

func (p *Provider) Agent(externalID string) (bolna.AgentConfig, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.agents[externalID]
	return a, ok
}

func (p *Provider) Updates() []bolna.AgentUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bolna.AgentUpdate(nil), p.updates...)
}

func (p *Provider) record(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, op)
	p.seq++
	return p.seq
}

type session struct {
	p   *Provider
	key string
}

func (s *session) ValidateKey(ctx context.Context) bool {
	s.p.record("validate_key")
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	return len(s.key) >= bolna.MinKeyLength && !s.p.Rejected[s.key]
}

func (s *session) CreateAgent(ctx context.Context, cfg bolna.AgentConfig) (string, error) {
	n := s.p.record("create_agent")
	if s.p.CreateAgentErr != nil {
		return "", s.p.CreateAgentErr
	}
	id := fmt.Sprintf("ag_%d", n)
	s.p.mu.Lock()
	s.p.agents[id] = cfg
	s.p.mu.Unlock()
	return id, nil
}

func (s *session) UpdateAgent(ctx context.Context, externalID string, u bolna.AgentUpdate) (json.RawMessage, error) {
	s.p.record("update_agent")
	if s.p.UpdateAgentErr != nil {
		return nil, s.p.UpdateAgentErr
	}
	s.p.mu.Lock()
	s.p.updates = append(s.p.updates, u)
	s.p.mu.Unlock()
	return json.RawMessage(`{"state":"updated"}`), nil
}

func (s *session) DeleteAgent(ctx context.Context, externalID string) error {
	s.p.record("delete_agent")
	if s.p.DeleteAgentErr != nil {
		return s.p.DeleteAgentErr
	}
	s.p.mu.Lock()
	delete(s.p.agents, externalID)
	s.p.mu.Unlock()
	return nil
}

func (s *session) MakeCall(ctx context.Context, externalAgentID, recipientPhone, fromPhone string) (bolna.CallPlacement, error) {
	n := s.p.record("make_call")
	if s.p.MakeCallErr != nil {
		return bolna.CallPlacement{}, s.p.MakeCallErr
	}
	return bolna.CallPlacement{ProviderCallID: fmt.Sprintf("ex_%d", n), Status: "queued"}, nil
}

func (s *session) GetCallStatus(ctx context.Context, externalCallID string) (bolna.CallStatusReport, error) {
	s.p.record("get_call_status")
	if s.p.StatusErr != nil {
		return bolna.CallStatusReport{}, s.p.StatusErr
	}
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	r, ok := s.p.Statuses[externalCallID]
	if !ok {
		return bolna.CallStatusReport{}, &bolna.APIError{Status: 404, Message: "execution not found"}
	}
	return r, nil
}
