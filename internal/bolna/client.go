package bolna

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"booking-platform/internal/observability/metrics"
)

const (
	defaultBaseURL        = "https://api.bolna.ai"
	defaultUserAgent      = "booking-platform-voice/1.0"
	defaultRequestTimeout = 15 * time.Second
	defaultProbeTimeout   = 5 * time.Second

	// MinKeyLength is the shortest string accepted as an API key before any probing.
	MinKeyLength = 10
)

// probeCandidates are tried in order by ValidateKey until one answers definitively.
var probeCandidates = []string{"/v2/agent/all", "/agent/all", "/user/me"}

// Provider is the per-organization view of the Bolna API.
type Provider interface {
	ValidateKey(ctx context.Context) bool
	CreateAgent(ctx context.Context, cfg AgentConfig) (string, error)
	UpdateAgent(ctx context.Context, externalID string, u AgentUpdate) (json.RawMessage, error)
	DeleteAgent(ctx context.Context, externalID string) error
	MakeCall(ctx context.Context, externalAgentID, recipientPhone, fromPhone string) (CallPlacement, error)
	GetCallStatus(ctx context.Context, externalCallID string) (CallStatusReport, error)
}

// Factory binds a decrypted organization key to a Provider.
type Factory interface {
	ForKey(apiKey string) Provider
}

// Config controls how the Bolna client behaves.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	ProbeTimeout   time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger
	Metrics        *metrics.VoiceMetrics
	UserAgent      string
}

// Client holds shared transport state. It is safe for concurrent use; keys are bound per
// request through ForKey.
type Client struct {
	baseURL        string
	requestTimeout time.Duration
	probeTimeout   time.Duration
	httpClient     *http.Client
	logger         *slog.Logger
	metrics        *metrics.VoiceMetrics
	userAgent      string
}

func New(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		baseURL:        baseURL,
		requestTimeout: requestTimeout,
		probeTimeout:   probeTimeout,
		httpClient:     httpClient,
		logger:         logger,
		metrics:        cfg.Metrics,
		userAgent:      userAgent,
	}
}

func (c *Client) ForKey(apiKey string) Provider {
	return &session{c: c, apiKey: strings.TrimSpace(apiKey)}
}

type session struct {
	c      *Client
	apiKey string
}

// ValidateKey is lenient: only a 401/403 from a candidate endpoint rejects the key. A 200 or 404
// proves authentication passed. If no candidate answers definitively the key is accepted and
// real validation is deferred to first use.
func (s *session) ValidateKey(ctx context.Context) bool {
	if len(s.apiKey) < MinKeyLength {
		return false
	}
	for _, path := range probeCandidates {
		status, err := s.probe(ctx, path)
		if err != nil {
			s.c.logger.Debug("bolna key probe failed", "path", path, "err", err)
			continue
		}
		switch status {
		case http.StatusOK, http.StatusNotFound:
			return true
		case http.StatusUnauthorized, http.StatusForbidden:
			return false
		}
		s.c.logger.Debug("bolna key probe inconclusive", "path", path, "status", status)
	}
	s.c.logger.Warn("bolna key validation inconclusive; accepting provisionally")
	return true
}

func (s *session) probe(ctx context.Context, path string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.c.probeTimeout)
	defer cancel()

	req, err := s.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	resp, err := s.c.httpClient.Do(req)
	if err != nil {
		s.c.metrics.ObserveProviderRequest("validate_key", "unreachable", time.Since(start).Seconds())
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	s.c.metrics.ObserveProviderRequest("validate_key", outcomeFor(resp.StatusCode), time.Since(start).Seconds())
	return resp.StatusCode, nil
}

func (s *session) CreateAgent(ctx context.Context, cfg AgentConfig) (string, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return "", errors.New("bolna: agent name required")
	}
	data, err := s.invoke(ctx, "create_agent", http.MethodPost, "/v2/agent", buildCreateAgentBody(cfg))
	if err != nil {
		return "", err
	}
	var out createAgentResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("bolna: decode create agent response: %w", err)
	}
	id := out.AgentID
	if id == "" {
		id = out.ID
	}
	if id == "" {
		return "", errors.New("bolna: create agent response missing agent_id")
	}
	return id, nil
}

func (s *session) UpdateAgent(ctx context.Context, externalID string, u AgentUpdate) (json.RawMessage, error) {
	if strings.TrimSpace(externalID) == "" {
		return nil, errors.New("bolna: agent id required")
	}
	data, err := s.invoke(ctx, "update_agent", http.MethodPatch, "/v2/agent/"+url.PathEscape(externalID), buildUpdateAgentBody(u))
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func (s *session) DeleteAgent(ctx context.Context, externalID string) error {
	if strings.TrimSpace(externalID) == "" {
		return errors.New("bolna: agent id required")
	}
	_, err := s.invoke(ctx, "delete_agent", http.MethodDelete, "/v2/agent/"+url.PathEscape(externalID), nil)
	return err
}

func (s *session) MakeCall(ctx context.Context, externalAgentID, recipientPhone, fromPhone string) (CallPlacement, error) {
	if strings.TrimSpace(externalAgentID) == "" || strings.TrimSpace(recipientPhone) == "" {
		return CallPlacement{}, errors.New("bolna: agent id and recipient phone required")
	}
	data, err := s.invoke(ctx, "make_call", http.MethodPost, "/call", makeCallBody{
		AgentID:              externalAgentID,
		RecipientPhoneNumber: recipientPhone,
		FromPhoneNumber:      strings.TrimSpace(fromPhone),
	})
	if err != nil {
		return CallPlacement{}, err
	}
	var out makeCallResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return CallPlacement{}, fmt.Errorf("bolna: decode make call response: %w", err)
	}
	id := firstNonEmpty(out.ExecutionID, out.CallID, out.ID)
	if id == "" {
		return CallPlacement{}, errors.New("bolna: make call response missing execution_id")
	}
	return CallPlacement{ProviderCallID: id, Status: out.Status}, nil
}

func (s *session) GetCallStatus(ctx context.Context, externalCallID string) (CallStatusReport, error) {
	if strings.TrimSpace(externalCallID) == "" {
		return CallStatusReport{}, errors.New("bolna: call id required")
	}
	data, err := s.invoke(ctx, "get_call_status", http.MethodGet, "/executions/"+url.PathEscape(externalCallID), nil)
	if err != nil {
		return CallStatusReport{}, err
	}
	var out executionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return CallStatusReport{}, fmt.Errorf("bolna: decode execution: %w", err)
	}
	return out.report(), nil
}

func (s *session) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.c.baseURL+"/"+strings.TrimLeft(path, "/"), body)
	if err != nil {
		return nil, fmt.Errorf("bolna: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// invoke performs one bounded request. Non-2xx becomes *APIError; no response at all becomes
// *TransportError.
func (s *session) invoke(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("bolna: marshal %s body: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	ctx, cancel := context.WithTimeout(ctx, s.c.requestTimeout)
	defer cancel()

	req, err := s.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := s.c.httpClient.Do(req)
	if err != nil {
		s.c.metrics.ObserveProviderRequest(op, "unreachable", time.Since(start).Seconds())
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		s.c.metrics.ObserveProviderRequest(op, "unreachable", time.Since(start).Seconds())
		return nil, &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	s.c.metrics.ObserveProviderRequest(op, outcomeFor(resp.StatusCode), time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeAPIError(resp.StatusCode, data)
		s.c.logger.Warn("bolna request failed", "op", op, "status", resp.StatusCode, "message", apiErr.Message)
		return nil, apiErr
	}
	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte("{}")
	}
	return data, nil
}

func outcomeFor(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "ok"
	case status >= 500:
		return "server_error"
	default:
		return "client_error"
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
