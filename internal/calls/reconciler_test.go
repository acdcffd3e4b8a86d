package calls_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"booking-platform/internal/agents"
	"booking-platform/internal/bolna"
	"booking-platform/internal/bolna/bolnafake"
	"booking-platform/internal/calls"
	"booking-platform/internal/credentials"
	"booking-platform/internal/store"
	"booking-platform/internal/vault"
	"booking-platform/pkg/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const goodKey = "bn-live-0123456789"

type fixture struct {
	rec      *calls.Reconciler
	store    *store.MemoryStore
	provider *bolnafake.Provider
	creds    *credentials.Service
	now      time.Time
}

type fixtureOpts struct {
	noKey   bool
	limiter calls.Limiter
}

func newFixture(t *testing.T, o fixtureOpts) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	st.AddOrganization("org-1")
	st.AddOrganization("org-2")
	v, err := vault.New(vault.Config{Secret: "test-secret"})
	require.NoError(t, err)
	fp := bolnafake.New()
	creds := credentials.NewService(st.Credentials(), v, fp, nil)
	if !o.noKey {
		require.NoError(t, creds.SaveAPIKey(context.Background(), "org-1", goodKey))
	}
	require.NoError(t, st.Agents().Insert(context.Background(), agents.Agent{
		ID: "agent-1", OrganizationID: "org-1", BolnaAgentID: "ag_remote", Name: "Reminder Bot", Language: "en", IsActive: true,
	}))

	f := &fixture{store: st, provider: fp, creds: creds, now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	agentSvc := agents.NewService(st.Agents(), creds, nil)
	f.rec = calls.NewReconciler(st.Calls(), agentSvc, creds, calls.Options{
		Limiter: o.limiter,
		Clock:   func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) seedCall(t *testing.T, id, providerID string, status calls.Status) calls.Call {
	t.Helper()
	c := calls.Call{
		ID:             id,
		AgentID:        "agent-1",
		OrganizationID: "org-1",
		BolnaCallID:    &providerID,
		RecipientPhone: "+14155550123",
		Status:         status,
		CreatedAt:      f.now.Add(-time.Hour),
		UpdatedAt:      f.now.Add(-time.Hour),
	}
	require.NoError(t, f.store.Calls().Insert(context.Background(), c))
	return c
}

func (f *fixture) load(t *testing.T, id string) calls.Call {
	t.Helper()
	c, err := f.store.Calls().Get(context.Background(), "org-1", id)
	require.NoError(t, err)
	return c
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	_, total, err := f.store.Calls().List(context.Background(), "org-1", calls.Filter{Limit: 100})
	require.NoError(t, err)
	return total
}

func intp(v int) *int       { return &v }
func strp(v string) *string { return &v }

// --- placement ---

func TestPlaceCall_RejectsNonE164WithoutRow(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	for _, phone := range []string{"12345", "+0123456789", "4155550123", "+1-415-555-0123"} {
		_, err := f.rec.PlaceCall(context.Background(), "org-1", calls.PlaceInput{AgentID: "agent-1", RecipientPhone: phone})
		require.ErrorIs(t, err, calls.ErrInvalidPhone, phone)
		require.Contains(t, err.Error(), "E.164")
	}
	require.Zero(t, f.count(t))
	require.NotContains(t, f.provider.Ops(), "make_call")
}

func TestPlaceCall_RequiresFields(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	_, err := f.rec.PlaceCall(context.Background(), "org-1", calls.PlaceInput{RecipientPhone: "+14155550123"})
	require.ErrorIs(t, err, calls.ErrInvalidRequest)
}

func TestPlaceCall_Success(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	c, err := f.rec.PlaceCall(context.Background(), "org-1", calls.PlaceInput{AgentID: "agent-1", RecipientPhone: "+14155550123"})
	require.NoError(t, err)
	require.Equal(t, calls.StatusRinging, c.Status)
	require.NotNil(t, c.BolnaCallID)
	require.Equal(t, "US", c.RecipientRegion)

	stored := f.load(t, c.ID)
	require.Equal(t, calls.StatusRinging, stored.Status)
	require.Equal(t, *c.BolnaCallID, *stored.BolnaCallID)
	require.Nil(t, stored.CompletedAt)
	require.Equal(t, 1, f.count(t))
}

func TestPlaceCall_ProviderFailureMarksSameRowFailed(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.provider.MakeCallErr = &bolna.APIError{Status: 400, Message: "insufficient balance"}

	c, err := f.rec.PlaceCall(context.Background(), "org-1", calls.PlaceInput{AgentID: "agent-1", RecipientPhone: "+14155550123"})
	var apiErr *bolna.APIError
	require.True(t, errors.As(err, &apiErr))

	require.Equal(t, 1, f.count(t))
	stored := f.load(t, c.ID)
	require.Equal(t, calls.StatusFailed, stored.Status)
	require.Equal(t, "insufficient balance", *stored.ErrorMessage)
	require.NotNil(t, stored.CompletedAt)
	require.Nil(t, stored.BolnaCallID)
}

func TestPlaceCall_UnreachableProviderAlsoFails(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.provider.MakeCallErr = &bolna.TransportError{Op: "make_call", Err: context.DeadlineExceeded}

	c, err := f.rec.PlaceCall(context.Background(), "org-1", calls.PlaceInput{AgentID: "agent-1", RecipientPhone: "+14155550123"})
	require.ErrorIs(t, err, bolna.ErrUnreachable)
	require.Equal(t, calls.StatusFailed, f.load(t, c.ID).Status)
}

func TestPlaceCall_UnknownOrForeignAgent(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	_, err := f.rec.PlaceCall(context.Background(), "org-1", calls.PlaceInput{AgentID: "nope", RecipientPhone: "+14155550123"})
	require.ErrorIs(t, err, calls.ErrAgentNotFound)

	_, err = f.rec.PlaceCall(context.Background(), "org-2", calls.PlaceInput{AgentID: "agent-1", RecipientPhone: "+14155550123"})
	require.ErrorIs(t, err, calls.ErrAgentNotFound)
	require.Zero(t, f.count(t))
}

func TestPlaceCall_NoKeyConfigured(t *testing.T) {
	f := newFixture(t, fixtureOpts{noKey: true})
	_, err := f.rec.PlaceCall(context.Background(), "org-1", calls.PlaceInput{AgentID: "agent-1", RecipientPhone: "+14155550123"})
	require.ErrorIs(t, err, credentials.ErrNotConfigured)
	require.Zero(t, f.count(t))
}

func TestPlaceCall_ConcurrencyCap(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	limiter := utils.NewConcurrencyCap(rdb, "calls:inflight:", 1, time.Minute)

	f := newFixture(t, fixtureOpts{limiter: limiter})
	ctx := context.Background()

	_, err := f.rec.PlaceCall(ctx, "org-1", calls.PlaceInput{AgentID: "agent-1", RecipientPhone: "+14155550123"})
	require.NoError(t, err, "slot is released after placement")

	ok, err := limiter.Acquire(ctx, "org-1")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.rec.PlaceCall(ctx, "org-1", calls.PlaceInput{AgentID: "agent-1", RecipientPhone: "+14155550123"})
	require.ErrorIs(t, err, calls.ErrTooManyCalls)
	require.Equal(t, 1, f.count(t))
}

// --- status pull ---

func TestGetCall_PullAppliesCompletion(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.seedCall(t, "c1", "ex_1", calls.StatusRinging)
	f.provider.SetStatus("ex_1", bolna.CallStatusReport{Status: "COMPLETED", Duration: intp(42), RecordingURL: strp("https://rec/1")})

	c, err := f.rec.GetCall(context.Background(), "org-1", "c1")
	require.NoError(t, err)
	require.Equal(t, calls.StatusCompleted, c.Status)
	require.Equal(t, 42, *c.Duration)
	require.Equal(t, "https://rec/1", *c.RecordingURL)
	require.NotNil(t, c.CompletedAt)
	require.Equal(t, c, f.load(t, "c1"))
}

func TestGetCall_PullToOtherTerminalDoesNotStampCompletedAt(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.seedCall(t, "c1", "ex_1", calls.StatusRinging)
	f.provider.SetStatus("ex_1", bolna.CallStatusReport{Status: "no_answer"})

	c, err := f.rec.GetCall(context.Background(), "org-1", "c1")
	require.NoError(t, err)
	require.Equal(t, calls.StatusNoAnswer, c.Status)
	require.Nil(t, c.CompletedAt)
}

func TestGetCall_ProviderFailureReturnsStoredRow(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	seeded := f.seedCall(t, "c1", "ex_1", calls.StatusInProgress)
	f.provider.StatusErr = &bolna.TransportError{Op: "get_call_status", Err: errors.New("connection refused")}

	c, err := f.rec.GetCall(context.Background(), "org-1", "c1")
	require.NoError(t, err)
	require.Equal(t, seeded, c)
}

func TestGetCall_TerminalSkipsProvider(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.seedCall(t, "c1", "ex_1", calls.StatusCompleted)
	f.provider.SetStatus("ex_1", bolna.CallStatusReport{Status: "ringing"})

	c, err := f.rec.GetCall(context.Background(), "org-1", "c1")
	require.NoError(t, err)
	require.Equal(t, calls.StatusCompleted, c.Status)
	require.NotContains(t, f.provider.Ops(), "get_call_status")
}

func TestGetCall_RegressionIsIgnored(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.seedCall(t, "c1", "ex_1", calls.StatusInProgress)
	f.provider.SetStatus("ex_1", bolna.CallStatusReport{Status: "ringing"})

	c, err := f.rec.GetCall(context.Background(), "org-1", "c1")
	require.NoError(t, err)
	require.Equal(t, calls.StatusInProgress, c.Status)
}

func TestGetCall_NoKeyReturnsStoredRow(t *testing.T) {
	f := newFixture(t, fixtureOpts{noKey: true})
	f.seedCall(t, "c1", "ex_1", calls.StatusRinging)

	c, err := f.rec.GetCall(context.Background(), "org-1", "c1")
	require.NoError(t, err)
	require.Equal(t, calls.StatusRinging, c.Status)
}

func TestGetCall_OrganizationScoped(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.seedCall(t, "c1", "ex_1", calls.StatusRinging)
	_, err := f.rec.GetCall(context.Background(), "org-2", "c1")
	require.ErrorIs(t, err, calls.ErrNotFound)
}

// --- webhook ---

func TestApplyWebhook_CompletesCall(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.seedCall(t, "c1", "abc", calls.StatusRinging)

	out, err := f.rec.ApplyWebhook(context.Background(), bolna.WebhookEvent{CallID: "abc", Status: "completed", Duration: intp(42)})
	require.NoError(t, err)
	require.Equal(t, calls.WebhookApplied, out)

	c := f.load(t, "c1")
	require.Equal(t, calls.StatusCompleted, c.Status)
	require.Equal(t, 42, *c.Duration)
	require.NotNil(t, c.CompletedAt)
}

func TestApplyWebhook_IgnoresOutOfRangeDuration(t *testing.T) {
	big := int64(3_000_000_000)
	for _, d := range []*int{intp(-5), intp(int(big))} {
		f := newFixture(t, fixtureOpts{})
		f.seedCall(t, "c1", "abc", calls.StatusRinging)

		out, err := f.rec.ApplyWebhook(context.Background(), bolna.WebhookEvent{CallID: "abc", Status: "completed", Duration: d})
		require.NoError(t, err)
		require.Equal(t, calls.WebhookApplied, out)

		c := f.load(t, "c1")
		require.Equal(t, calls.StatusCompleted, c.Status)
		require.Nil(t, c.Duration)
	}
}

func TestApplyWebhook_OutOfRangeDurationKeepsStoredValue(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.seedCall(t, "c1", "abc", calls.StatusRinging)
	_, err := f.rec.ApplyWebhook(context.Background(), bolna.WebhookEvent{CallID: "abc", Status: "completed", Duration: intp(42)})
	require.NoError(t, err)

	out, err := f.rec.ApplyWebhook(context.Background(), bolna.WebhookEvent{CallID: "abc", Status: "completed", Duration: intp(-5)})
	require.NoError(t, err)
	require.Equal(t, calls.WebhookUnchanged, out)
	require.Equal(t, 42, *f.load(t, "c1").Duration)
}

func TestGetCall_PullIgnoresOutOfRangeDuration(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.seedCall(t, "c1", "ex_1", calls.StatusRinging)
	f.provider.SetStatus("ex_1", bolna.CallStatusReport{Status: "completed", Duration: intp(-5)})

	c, err := f.rec.GetCall(context.Background(), "org-1", "c1")
	require.NoError(t, err)
	require.Equal(t, calls.StatusCompleted, c.Status)
	require.Nil(t, c.Duration)
	require.Equal(t, c, f.load(t, "c1"))
}

func TestApplyWebhook_UnknownCallIsAcknowledgedWithoutWrite(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.seedCall(t, "c1", "abc", calls.StatusRinging)
	before := f.load(t, "c1")

	out, err := f.rec.ApplyWebhook(context.Background(), bolna.WebhookEvent{CallID: "zzz", Status: "completed"})
	require.NoError(t, err)
	require.Equal(t, calls.WebhookUnknownCall, out)
	require.Equal(t, before, f.load(t, "c1"))
}

func TestApplyWebhook_MissingCallID(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	_, err := f.rec.ApplyWebhook(context.Background(), bolna.WebhookEvent{Status: "completed"})
	require.ErrorIs(t, err, calls.ErrMissingCallID)
}

func TestApplyWebhook_HyphenAndUnderscoreAgree(t *testing.T) {
	for _, status := range []string{"in_progress", "in-progress"} {
		f := newFixture(t, fixtureOpts{})
		f.seedCall(t, "c1", "abc", calls.StatusRinging)
		_, err := f.rec.ApplyWebhook(context.Background(), bolna.WebhookEvent{CallID: "abc", Status: status})
		require.NoError(t, err)
		require.Equal(t, calls.StatusInProgress, f.load(t, "c1").Status, status)
	}
}

func TestApplyWebhook_ReplayIsIdempotent(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.seedCall(t, "c1", "abc", calls.StatusInProgress)
	ev := bolna.WebhookEvent{CallID: "abc", Status: "completed", Duration: intp(42), Transcript: strp("hello")}

	_, err := f.rec.ApplyWebhook(context.Background(), ev)
	require.NoError(t, err)
	once := f.load(t, "c1")

	f.now = f.now.Add(5 * time.Minute)
	out, err := f.rec.ApplyWebhook(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, calls.WebhookUnchanged, out)
	require.Equal(t, once, f.load(t, "c1"))
}

func TestApplyWebhook_LateCorrectionOnTerminalCall(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.seedCall(t, "c1", "abc", calls.StatusRinging)
	_, err := f.rec.ApplyWebhook(context.Background(), bolna.WebhookEvent{CallID: "abc", Status: "completed", Duration: intp(40)})
	require.NoError(t, err)
	first := f.load(t, "c1")

	f.now = f.now.Add(time.Minute)
	_, err = f.rec.ApplyWebhook(context.Background(), bolna.WebhookEvent{CallID: "abc", Status: "completed", RecordingURL: strp("https://rec/abc")})
	require.NoError(t, err)

	c := f.load(t, "c1")
	require.Equal(t, calls.StatusCompleted, c.Status)
	require.Equal(t, 40, *c.Duration)
	require.Equal(t, "https://rec/abc", *c.RecordingURL)
	require.True(t, first.CompletedAt.Equal(*c.CompletedAt), "completedAt is preserved")
}

func TestApplyWebhook_RegressionKeepsStatusButAppliesFields(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.seedCall(t, "c1", "abc", calls.StatusCompleted)

	_, err := f.rec.ApplyWebhook(context.Background(), bolna.WebhookEvent{CallID: "abc", Status: "ringing", Transcript: strp("late transcript")})
	require.NoError(t, err)
	c := f.load(t, "c1")
	require.Equal(t, calls.StatusCompleted, c.Status)
	require.Equal(t, "late transcript", *c.Transcript)

	_, err = f.rec.ApplyWebhook(context.Background(), bolna.WebhookEvent{CallID: "abc", Status: "failed"})
	require.NoError(t, err)
	require.Equal(t, calls.StatusCompleted, f.load(t, "c1").Status, "terminal status does not flip to another terminal")
}

func TestApplyWebhook_CancelledIsTerminal(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.seedCall(t, "c1", "abc", calls.StatusRinging)
	_, err := f.rec.ApplyWebhook(context.Background(), bolna.WebhookEvent{CallID: "abc", Status: "canceled"})
	require.NoError(t, err)
	c := f.load(t, "c1")
	require.Equal(t, calls.StatusCancelled, c.Status)
	require.NotNil(t, c.CompletedAt)
}

func TestApplyWebhook_PersistenceFailureIsRetryable(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	f.seedCall(t, "c1", "abc", calls.StatusRinging)
	f.store.FailCallSaves = errors.New("connection reset")

	_, err := f.rec.ApplyWebhook(context.Background(), bolna.WebhookEvent{CallID: "abc", Status: "completed"})
	require.ErrorIs(t, err, calls.ErrPersistence)
}

// --- listing ---

func TestListCalls_PaginatesAndAggregates(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()
	statuses := []calls.Status{calls.StatusCompleted, calls.StatusCompleted, calls.StatusFailed, calls.StatusRinging, calls.StatusNoAnswer}
	durations := []*int{intp(30), intp(61), nil, nil, intp(0)}
	for i, st := range statuses {
		require.NoError(t, f.store.Calls().Insert(ctx, calls.Call{
			ID: string(rune('a' + i)), AgentID: "agent-1", OrganizationID: "org-1", Status: st, Duration: durations[i],
			CreatedAt: f.now.Add(time.Duration(i) * time.Minute),
		}))
	}

	page, err := f.rec.ListCalls(ctx, "org-1", calls.Filter{Limit: 2, Page: 2})
	require.NoError(t, err)
	require.Equal(t, 5, page.Total)
	require.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Calls, 2)
	require.Equal(t, "c", page.Calls[0].ID)
	require.Equal(t, calls.Stats{Total: 5, Completed: 2, Failed: 1, AvgDuration: 30.33}, page.Stats)

	page, err = f.rec.ListCalls(ctx, "org-1", calls.Filter{Limit: 1000, Status: calls.StatusCompleted})
	require.NoError(t, err)
	require.Equal(t, 100, page.Limit)
	require.Equal(t, 1, page.Page)
	require.Equal(t, 2, page.Total)

	page, err = f.rec.ListCalls(ctx, "org-2", calls.Filter{})
	require.NoError(t, err)
	require.Equal(t, 20, page.Limit)
	require.NotNil(t, page.Calls)
	require.Empty(t, page.Calls)
}

func TestListCalls_RejectsBadFilters(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	_, err := f.rec.ListCalls(context.Background(), "org-1", calls.Filter{Status: "LOST"})
	require.ErrorIs(t, err, calls.ErrInvalidRequest)

	_, err = f.rec.ListCalls(context.Background(), "org-1", calls.Filter{StartDate: f.now, EndDate: f.now.Add(-time.Hour)})
	require.ErrorIs(t, err, calls.ErrInvalidRequest)
}
