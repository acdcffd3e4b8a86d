package calls

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"booking-platform/internal/agents"
	"booking-platform/internal/bolna"
	"booking-platform/internal/observability/metrics"
	"booking-platform/pkg/logger"

	"github.com/google/uuid"
)

// AgentLookup resolves an organization's agent; it fails with agents.ErrNotFound.
type AgentLookup interface {
	Lookup(ctx context.Context, organizationID, id string) (agents.Agent, error)
}

// Credentials resolves a provider session for an organization; it fails with
// credentials.ErrNotConfigured when no usable key is stored.
type Credentials interface {
	Provider(ctx context.Context, organizationID string) (bolna.Provider, error)
}

// Limiter caps in-flight placements per organization.
type Limiter interface {
	Acquire(ctx context.Context, scope string) (bool, error)
	Release(ctx context.Context, scope string) error
}

type Auditor interface {
	CallPlaced(ctx context.Context, organizationID, callID string)
}

type Options struct {
	FromPhone string
	Limiter   Limiter
	Metrics   *metrics.VoiceMetrics
	Audit     Auditor
	Clock     func() time.Time
}

// Reconciler owns the call state machine. Placement, status pulls, webhooks and the sweep all
// funnel through it so they share one mapping and one monotonic-progress rule.
type Reconciler struct {
	repo      Repository
	agents    AgentLookup
	creds     Credentials
	limiter   Limiter
	metrics   *metrics.VoiceMetrics
	audit     Auditor
	fromPhone string
	clock     func() time.Time
}

func NewReconciler(repo Repository, agents AgentLookup, creds Credentials, opts Options) *Reconciler {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Reconciler{
		repo:      repo,
		agents:    agents,
		creds:     creds,
		limiter:   opts.Limiter,
		metrics:   opts.Metrics,
		audit:     opts.Audit,
		fromPhone: strings.TrimSpace(opts.FromPhone),
		clock:     clock,
	}
}

func (r *Reconciler) now() time.Time { return r.clock().UTC() }

type PlaceInput struct {
	AgentID        string `json:"agentId"`
	RecipientPhone string `json:"recipientPhone"`
}

// PlaceCall writes an INITIATED row before contacting Bolna. On success the row moves to
// RINGING with the provider call id; on failure it moves to FAILED with the error message and
// the provider error is returned.
func (r *Reconciler) PlaceCall(ctx context.Context, organizationID string, in PlaceInput) (Call, error) {
	agentID := strings.TrimSpace(in.AgentID)
	phone := strings.TrimSpace(in.RecipientPhone)
	if organizationID == "" || agentID == "" || phone == "" {
		return Call{}, fmt.Errorf("%w: agentId and recipientPhone are required", ErrInvalidRequest)
	}
	if !validE164(phone) {
		return Call{}, ErrInvalidPhone
	}

	agent, err := r.agents.Lookup(ctx, organizationID, agentID)
	if err != nil {
		if errors.Is(err, agents.ErrNotFound) {
			return Call{}, ErrAgentNotFound
		}
		return Call{}, err
	}
	provider, err := r.creds.Provider(ctx, organizationID)
	if err != nil {
		return Call{}, err
	}

	log := logger.From(ctx).With("organization_id", organizationID, "agent_id", agent.ID)

	if r.limiter != nil {
		ok, err := r.limiter.Acquire(ctx, organizationID)
		switch {
		case err != nil:
			log.Warn("call concurrency cap unavailable; placing without cap", "err", err)
		case !ok:
			return Call{}, ErrTooManyCalls
		default:
			defer func() {
				if err := r.limiter.Release(context.WithoutCancel(ctx), organizationID); err != nil {
					log.Warn("call concurrency slot release failed", "err", err)
				}
			}()
		}
	}

	now := r.now()
	c := Call{
		ID:              uuid.NewString(),
		AgentID:         agent.ID,
		OrganizationID:  organizationID,
		RecipientPhone:  phone,
		RecipientRegion: regionOf(phone),
		Status:          StatusInitiated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := r.repo.Insert(ctx, c); err != nil {
		return Call{}, err
	}
	r.metrics.ObserveTransition("placement", string(StatusInitiated))

	placement, callErr := provider.MakeCall(ctx, agent.BolnaAgentID, phone, r.fromPhone)
	if callErr != nil {
		msg := bolna.MessageOf(callErr)
		if msg == "" {
			msg = callErr.Error()
		}
		failedAt := r.now()
		c.Status = StatusFailed
		c.ErrorMessage = &msg
		c.CompletedAt = &failedAt
		c.UpdatedAt = failedAt
		// Save on a detached context so a cancelled request does not leave the row INITIATED.
		if err := r.repo.Save(context.WithoutCancel(ctx), c); err != nil {
			log.Error("failed to record call placement failure", "call_id", c.ID, "err", err)
		} else {
			r.metrics.ObserveTransition("placement", string(StatusFailed))
		}
		log.Warn("call placement failed", "call_id", c.ID, "err", callErr)
		return c, callErr
	}

	providerID := placement.ProviderCallID
	c.BolnaCallID = &providerID
	c.Status = StatusRinging
	c.UpdatedAt = r.now()
	if err := r.repo.Save(context.WithoutCancel(ctx), c); err != nil {
		log.Error("call placed at provider but local update failed", "call_id", c.ID, "bolna_call_id", providerID, "err", err)
		return c, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	r.metrics.ObserveTransition("placement", string(StatusRinging))
	if r.audit != nil {
		r.audit.CallPlaced(ctx, organizationID, c.ID)
	}
	log.Info("call placed", "call_id", c.ID, "bolna_call_id", providerID)
	return c, nil
}

// GetCall returns the call after an on-demand status pull. Pull failures are logged and the
// stored row is returned unchanged.
func (r *Reconciler) GetCall(ctx context.Context, organizationID, id string) (Call, error) {
	c, err := r.repo.Get(ctx, organizationID, id)
	if err != nil {
		return Call{}, err
	}
	if c.Status.Terminal() || c.BolnaCallID == nil || *c.BolnaCallID == "" {
		return c, nil
	}
	provider, err := r.creds.Provider(ctx, organizationID)
	if err != nil {
		logger.From(ctx).Debug("skipping status pull", "call_id", c.ID, "err", err)
		return c, nil
	}
	return r.refresh(ctx, provider, c, "poll")
}

// refresh pulls the provider status for c and applies it. Only persistence errors are returned.
func (r *Reconciler) refresh(ctx context.Context, provider bolna.Provider, c Call, source string) (Call, error) {
	log := logger.From(ctx).With("call_id", c.ID, "bolna_call_id", *c.BolnaCallID)

	rep, err := provider.GetCallStatus(ctx, *c.BolnaCallID)
	if err != nil {
		log.Warn("call status pull failed; returning stored row", "err", err)
		return c, nil
	}
	mapped, ok := mapPollStatus(rep.Status)
	if !ok {
		log.Warn("unmapped provider call status", "status", rep.Status)
		return c, nil
	}
	if mapped == c.Status {
		return c, nil
	}
	if mapped.Rank() < c.Status.Rank() {
		log.Warn("ignoring call status regression", "stored", c.Status, "reported", mapped, "source", source)
		return c, nil
	}

	now := r.now()
	next := c
	next.Status = mapped
	next.Duration = durationOr(rep.Duration, c.Duration)
	next.RecordingURL = orString(rep.RecordingURL, c.RecordingURL)
	next.Transcript = orString(rep.Transcript, c.Transcript)
	if mapped == StatusCompleted {
		next.CompletedAt = &now
	}
	next.UpdatedAt = now
	if err := r.repo.Save(ctx, next); err != nil {
		return c, err
	}
	r.metrics.ObserveTransition(source, string(mapped))
	log.Info("call status updated", "from", c.Status, "to", mapped, "source", source)
	return next, nil
}

type WebhookOutcome string

const (
	WebhookApplied     WebhookOutcome = "applied"
	WebhookUnchanged   WebhookOutcome = "unchanged"
	WebhookUnknownCall WebhookOutcome = "unknown_call"
)

// ApplyWebhook folds a provider push into the matching call. Unknown calls are acknowledged
// without a write. Regressions and terminal-to-different-terminal changes keep the stored
// status but still apply duration/recording/transcript corrections. A replayed event is a no-op.
func (r *Reconciler) ApplyWebhook(ctx context.Context, ev bolna.WebhookEvent) (WebhookOutcome, error) {
	if strings.TrimSpace(ev.CallID) == "" {
		r.metrics.ObserveWebhook("rejected")
		return "", ErrMissingCallID
	}
	log := logger.From(ctx).With("bolna_call_id", ev.CallID, "event", ev.Event)

	c, err := r.repo.GetByProviderID(ctx, ev.CallID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Info("webhook for unknown call; acknowledging")
			r.metrics.ObserveWebhook(string(WebhookUnknownCall))
			return WebhookUnknownCall, nil
		}
		r.metrics.ObserveWebhook("error")
		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	next := c
	if mapped, ok := mapWebhookStatus(ev.Status); !ok {
		log.Warn("unmapped webhook status; applying fields only", "status", ev.Status)
	} else {
		switch {
		case mapped.Rank() < c.Status.Rank():
			log.Warn("ignoring call status regression", "stored", c.Status, "reported", mapped, "source", "webhook")
		case c.Status.Terminal() && mapped != c.Status:
			log.Warn("ignoring terminal status change", "stored", c.Status, "reported", mapped)
		default:
			next.Status = mapped
		}
	}
	next.Duration = durationOr(ev.Duration, c.Duration)
	next.RecordingURL = orString(ev.RecordingURL, c.RecordingURL)
	next.Transcript = orString(ev.Transcript, c.Transcript)

	now := r.now()
	if next.Status.Terminal() && next.CompletedAt == nil {
		next.CompletedAt = &now
	}
	if sameState(c, next) {
		r.metrics.ObserveWebhook(string(WebhookUnchanged))
		return WebhookUnchanged, nil
	}
	next.UpdatedAt = now
	if err := r.repo.Save(ctx, next); err != nil {
		r.metrics.ObserveWebhook("error")
		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if next.Status != c.Status {
		r.metrics.ObserveTransition("webhook", string(next.Status))
	}
	r.metrics.ObserveWebhook(string(WebhookApplied))
	log.Info("webhook applied", "call_id", c.ID, "from", c.Status, "to", next.Status)
	return WebhookApplied, nil
}

// ListCalls returns one page of the organization's calls plus stats over the whole filter.
func (r *Reconciler) ListCalls(ctx context.Context, organizationID string, f Filter) (Page, error) {
	if organizationID == "" {
		return Page{}, ErrInvalidRequest
	}
	f = f.normalized()
	if f.Status != "" && !f.Status.Valid() {
		return Page{}, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, f.Status)
	}
	if !f.StartDate.IsZero() && !f.EndDate.IsZero() && f.EndDate.Before(f.StartDate) {
		return Page{}, fmt.Errorf("%w: endDate before startDate", ErrInvalidRequest)
	}

	rows, total, err := r.repo.List(ctx, organizationID, f)
	if err != nil {
		return Page{}, err
	}
	stats, err := r.repo.Stats(ctx, organizationID, f)
	if err != nil {
		return Page{}, err
	}
	if rows == nil {
		rows = []Call{}
	}
	return Page{
		Calls:      rows,
		Stats:      stats,
		Page:       f.Page,
		Limit:      f.Limit,
		Total:      total,
		TotalPages: (total + f.Limit - 1) / f.Limit,
	}, nil
}

// maxDuration matches the INTEGER duration column.
const maxDuration = math.MaxInt32

// durationOr keeps fallback when v is absent or outside 0..maxDuration.
func durationOr(v, fallback *int) *int {
	if v == nil || *v < 0 || *v > maxDuration {
		return fallback
	}
	return v
}

func orString(v, fallback *string) *string {
	if v != nil {
		return v
	}
	return fallback
}

func sameState(a, b Call) bool {
	return a.Status == b.Status &&
		eqInt(a.Duration, b.Duration) &&
		eqString(a.RecordingURL, b.RecordingURL) &&
		eqString(a.Transcript, b.Transcript) &&
		eqTime(a.CompletedAt, b.CompletedAt)
}

func eqInt(a, b *int) bool       { return (a == nil) == (b == nil) && (a == nil || *a == *b) }
func eqString(a, b *string) bool { return (a == nil) == (b == nil) && (a == nil || *a == *b) }
func eqTime(a, b *time.Time) bool {
	return (a == nil) == (b == nil) && (a == nil || a.Equal(*b))
}
