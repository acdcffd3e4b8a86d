package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"booking-platform/internal/agents"
	"booking-platform/internal/auth"
	"booking-platform/internal/bolna"
	"booking-platform/internal/calls"
	"booking-platform/internal/credentials"
	"booking-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse input, call internal services, return the envelope.
type Handlers struct {
	Credentials *credentials.Service
	Agents      *agents.Service
	Calls       *calls.Reconciler
}

func organizationOf(c *gin.Context) (string, bool) {
	org, err := auth.OrganizationID(c.Request.Context())
	if err != nil || org == "" {
		fail(c, http.StatusUnauthorized, "Organization required")
		return "", false
	}
	return org, true
}

// --- API key ---

type apiKeyRequest struct {
	APIKey string `json:"apiKey"`
}

func (h Handlers) SaveAPIKey(c *gin.Context) {
	org, ok := organizationOf(c)
	if !ok {
		return
	}
	var req apiKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := h.Credentials.SaveAPIKey(c.Request.Context(), org, req.APIKey); err != nil {
		writeError(c, err)
		return
	}
	respondMessage(c, "Bolna API key saved")
}

func (h Handlers) APIKeyStatus(c *gin.Context) {
	org, ok := organizationOf(c)
	if !ok {
		return
	}
	st, err := h.Credentials.Status(c.Request.Context(), org)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "", st)
}

func (h Handlers) ClearAPIKey(c *gin.Context) {
	org, ok := organizationOf(c)
	if !ok {
		return
	}
	if err := h.Credentials.Clear(c.Request.Context(), org); err != nil {
		writeError(c, err)
		return
	}
	respondMessage(c, "Bolna API key removed")
}

// --- Agents ---

func (h Handlers) CreateAgent(c *gin.Context) {
	org, ok := organizationOf(c)
	if !ok {
		return
	}
	var in agents.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	a, err := h.Agents.Create(c.Request.Context(), org, in)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, "Agent created", gin.H{"agent": a})
}

func (h Handlers) ListAgents(c *gin.Context) {
	org, ok := organizationOf(c)
	if !ok {
		return
	}
	list, err := h.Agents.List(c.Request.Context(), org)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []agents.Summary{}
	}
	respond(c, http.StatusOK, "", gin.H{"agents": list})
}

func (h Handlers) GetAgent(c *gin.Context) {
	org, ok := organizationOf(c)
	if !ok {
		return
	}
	a, err := h.Agents.Get(c.Request.Context(), org, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"agent": a})
}

// UpdateAgent always persists locally; a failed provider sync is reported in the message.
func (h Handlers) UpdateAgent(c *gin.Context) {
	org, ok := organizationOf(c)
	if !ok {
		return
	}
	var in agents.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	res, err := h.Agents.Update(c.Request.Context(), org, c.Param("id"), in)
	if err != nil {
		writeError(c, err)
		return
	}
	msg := "Agent updated"
	if res.ProviderError != nil {
		msg = "Agent updated locally; Bolna sync failed: " + bolna.MessageOf(res.ProviderError)
	}
	respond(c, http.StatusOK, msg, gin.H{"agent": res.Agent, "providerSynced": res.ProviderSynced})
}

func (h Handlers) DeleteAgent(c *gin.Context) {
	org, ok := organizationOf(c)
	if !ok {
		return
	}
	if err := h.Agents.Delete(c.Request.Context(), org, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	respondMessage(c, "Agent deleted")
}

// --- Calls ---

func (h Handlers) PlaceCall(c *gin.Context) {
	org, ok := organizationOf(c)
	if !ok {
		return
	}
	var in calls.PlaceInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	call, err := h.Calls.PlaceCall(c.Request.Context(), org, in)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, "Call initiated", gin.H{"call": call})
}

func (h Handlers) ListCalls(c *gin.Context) {
	org, ok := organizationOf(c)
	if !ok {
		return
	}
	f, err := parseCallFilter(c)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.Calls.ListCalls(c.Request.Context(), org, f)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{
		"calls": page.Calls,
		"stats": page.Stats,
		"pagination": gin.H{
			"page":       page.Page,
			"limit":      page.Limit,
			"total":      page.Total,
			"totalPages": page.TotalPages,
		},
	})
}

// GetCall pulls the latest status from Bolna before answering.
func (h Handlers) GetCall(c *gin.Context) {
	org, ok := organizationOf(c)
	if !ok {
		return
	}
	call, err := h.Calls.GetCall(c.Request.Context(), org, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"call": call})
}

// Webhook is provider-originated and unauthenticated. Only an unreadable body, a missing call id
// or a local persistence failure produce a non-200 answer.
func (h Handlers) Webhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		fail(c, http.StatusBadRequest, "Unreadable body")
		return
	}
	ev, err := bolna.DecodeWebhook(body)
	if err != nil {
		fail(c, http.StatusBadRequest, "Malformed webhook body")
		return
	}
	outcome, err := h.Calls.ApplyWebhook(c.Request.Context(), ev)
	switch {
	case errors.Is(err, calls.ErrMissingCallID):
		fail(c, http.StatusBadRequest, "call_id is required")
		return
	case err != nil:
		logger.FromGin(c).Error("webhook persistence failed", "bolna_call_id", ev.CallID, "err", err)
		fail(c, http.StatusInternalServerError, "Webhook could not be stored")
		return
	}
	respond(c, http.StatusOK, "Webhook received", gin.H{"outcome": outcome})
}

func respondMessage(c *gin.Context, message string) { respond(c, http.StatusOK, message, nil) }

func parseCallFilter(c *gin.Context) (calls.Filter, error) {
	var f calls.Filter
	var err error
	if f.Page, err = queryInt(c, "page"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(c, "limit"); err != nil {
		return f, err
	}
	f.AgentID = strings.TrimSpace(c.Query("agentId"))
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		st, valid := calls.ParseStatus(v)
		if !valid {
			return f, errors.New("status must be one of INITIATED, RINGING, IN_PROGRESS, COMPLETED, FAILED, NO_ANSWER, BUSY, CANCELLED")
		}
		f.Status = st
	}
	if f.StartDate, err = queryDate(c, "startDate", false); err != nil {
		return f, err
	}
	if f.EndDate, err = queryDate(c, "endDate", true); err != nil {
		return f, err
	}
	return f, nil
}

func queryInt(c *gin.Context, name string) (int, error) {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return n, nil
}

// queryDate accepts RFC 3339 or a bare date. A bare endDate covers the whole day.
func queryDate(c *gin.Context, name string, endOfDay bool) (time.Time, error) {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, errors.New(name + " must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// Health reports liveness. A ping func that errors turns it into 503.
func Health(ping func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
