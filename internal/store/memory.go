package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"booking-platform/internal/agents"
	"booking-platform/internal/calls"
	"booking-platform/internal/credentials"
)

// MemoryStore implements the agent, call and credential repositories in process.
// It is used by tests and local runs without Postgres.
type MemoryStore struct {
	mu     sync.Mutex
	orgs   map[string]string
	agents map[string]agents.Agent
	calls  map[string]calls.Call

	// FailCallSaves makes Save return this error; tests use it to exercise persistence paths.
	FailCallSaves error
	// FailAgentInserts makes agent Insert return this error.
	FailAgentInserts error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orgs:   map[string]string{},
		agents: map[string]agents.Agent{},
		calls:  map[string]calls.Call{},
	}
}

// AddOrganization registers an organization row with no key.
func (s *MemoryStore) AddOrganization(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[id]; !ok {
		s.orgs[id] = ""
	}
}

func (s *MemoryStore) Agents() agents.Repository           { return memoryAgents{s} }
func (s *MemoryStore) Calls() calls.Repository             { return memoryCalls{s} }
func (s *MemoryStore) Credentials() credentials.Repository { return memoryCredentials{s} }

type memoryCredentials struct{ s *MemoryStore }

func (r memoryCredentials) GetEncryptedKey(ctx context.Context, organizationID string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.orgs[organizationID]
	if !ok {
		return "", credentials.ErrOrganizationNotFound
	}
	return rec, nil
}

func (r memoryCredentials) SetEncryptedKey(ctx context.Context, organizationID, record string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orgs[organizationID]; !ok {
		return credentials.ErrOrganizationNotFound
	}
	r.s.orgs[organizationID] = record
	return nil
}

func (r memoryCredentials) ClearEncryptedKey(ctx context.Context, organizationID string) error {
	return r.SetEncryptedKey(ctx, organizationID, "")
}

type memoryAgents struct{ s *MemoryStore }

func (r memoryAgents) Insert(ctx context.Context, a agents.Agent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailAgentInserts != nil {
		return r.s.FailAgentInserts
	}
	r.s.agents[a.ID] = a
	return nil
}

func (r memoryAgents) Get(ctx context.Context, organizationID, id string) (agents.Agent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.agents[id]
	if !ok || a.OrganizationID != organizationID {
		return agents.Agent{}, agents.ErrNotFound
	}
	return a, nil
}

func (r memoryAgents) List(ctx context.Context, organizationID string) ([]agents.Agent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []agents.Agent
	for _, a := range r.s.agents {
		if a.OrganizationID == organizationID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r memoryAgents) Update(ctx context.Context, a agents.Agent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.agents[a.ID]
	if !ok || cur.OrganizationID != a.OrganizationID {
		return agents.ErrNotFound
	}
	a.BolnaAgentID = cur.BolnaAgentID
	a.CreatedAt = cur.CreatedAt
	r.s.agents[a.ID] = a
	return nil
}

func (r memoryAgents) Delete(ctx context.Context, organizationID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.agents[id]
	if !ok || a.OrganizationID != organizationID {
		return agents.ErrNotFound
	}
	for cid, c := range r.s.calls {
		if c.AgentID == id {
			delete(r.s.calls, cid)
		}
	}
	delete(r.s.agents, id)
	return nil
}

func (r memoryAgents) CountCalls(ctx context.Context, organizationID string, agentIDs []string) (map[string]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	want := make(map[string]bool, len(agentIDs))
	for _, id := range agentIDs {
		want[id] = true
	}
	out := make(map[string]int, len(agentIDs))
	for _, c := range r.s.calls {
		if c.OrganizationID == organizationID && want[c.AgentID] {
			out[c.AgentID]++
		}
	}
	return out, nil
}

type memoryCalls struct{ s *MemoryStore }

func (r memoryCalls) Insert(ctx context.Context, c calls.Call) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.providerIDTaken(c) {
		return calls.ErrDuplicateCallID
	}
	r.s.calls[c.ID] = c
	return nil
}

// providerIDTaken mirrors the UNIQUE constraint on voice_calls.bolna_call_id. Callers hold mu.
func (r memoryCalls) providerIDTaken(c calls.Call) bool {
	if c.BolnaCallID == nil {
		return false
	}
	for id, other := range r.s.calls {
		if id != c.ID && other.BolnaCallID != nil && *other.BolnaCallID == *c.BolnaCallID {
			return true
		}
	}
	return false
}

func (r memoryCalls) Get(ctx context.Context, organizationID, id string) (calls.Call, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.calls[id]
	if !ok || c.OrganizationID != organizationID {
		return calls.Call{}, calls.ErrNotFound
	}
	return c, nil
}

func (r memoryCalls) GetByProviderID(ctx context.Context, providerCallID string) (calls.Call, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.calls {
		if c.BolnaCallID != nil && *c.BolnaCallID == providerCallID {
			return c, nil
		}
	}
	return calls.Call{}, calls.ErrNotFound
}

func (r memoryCalls) Save(ctx context.Context, c calls.Call) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailCallSaves != nil {
		return r.s.FailCallSaves
	}
	cur, ok := r.s.calls[c.ID]
	if !ok {
		return calls.ErrNotFound
	}
	if r.providerIDTaken(c) {
		return calls.ErrDuplicateCallID
	}
	c.AgentID, c.OrganizationID, c.RecipientPhone, c.CreatedAt = cur.AgentID, cur.OrganizationID, cur.RecipientPhone, cur.CreatedAt
	r.s.calls[c.ID] = c
	return nil
}

func (r memoryCalls) matching(organizationID string, f calls.Filter) []calls.Call {
	var out []calls.Call
	for _, c := range r.s.calls {
		if c.OrganizationID == organizationID && f.Matches(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r memoryCalls) List(ctx context.Context, organizationID string, f calls.Filter) ([]calls.Call, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := r.matching(organizationID, f)
	start := f.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + f.Limit
	if f.Limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (r memoryCalls) Stats(ctx context.Context, organizationID string, f calls.Filter) (calls.Stats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return calls.ComputeStats(r.matching(organizationID, f)), nil
}

func (r memoryCalls) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]calls.Call, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []calls.Call
	for _, c := range r.s.calls {
		if c.Status.Terminal() || c.BolnaCallID == nil || !c.UpdatedAt.Before(cutoff) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
