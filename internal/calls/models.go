package calls

import (
	"context"
	"errors"
	"time"
)

// Call is one outbound phone call placed through a voice agent.
//
// Multi-tenant invariant: OrganizationID is required on every row and matches the agent's.
// BolnaCallID, once set, is unique across all rows; webhooks correlate on it.
type Call struct {
	ID              string     `json:"id"`
	AgentID         string     `json:"agentId"`
	OrganizationID  string     `json:"organizationId"`
	BolnaCallID     *string    `json:"bolnaCallId"`
	RecipientPhone  string     `json:"recipientPhone"`
	RecipientRegion string     `json:"recipientRegion,omitempty"`
	Status          Status     `json:"status"`
	Duration        *int       `json:"duration"`
	RecordingURL    *string    `json:"recordingUrl"`
	Transcript      *string    `json:"transcript"`
	ErrorMessage    *string    `json:"errorMessage"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	CompletedAt     *time.Time `json:"completedAt"`
}

// Filter narrows ListCalls. Zero values mean "no filter".
type Filter struct {
	AgentID   string
	Status    Status
	StartDate time.Time
	EndDate   time.Time

	Page  int
	Limit int
}

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

func (f Filter) normalized() Filter {
	if f.Page < 1 {
		f.Page = defaultPage
	}
	if f.Limit < 1 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	return f
}

func (f Filter) Offset() int { return (f.Page - 1) * f.Limit }

// Stats aggregates every call matching a filter, ignoring pagination.
type Stats struct {
	Total       int     `json:"total"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	AvgDuration float64 `json:"avgDuration"`
}

type Page struct {
	Calls      []Call `json:"calls"`
	Stats      Stats  `json:"stats"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	Total      int    `json:"total"`
	TotalPages int    `json:"totalPages"`
}

var (
	ErrNotFound       = errors.New("calls: not found")
	ErrInvalidRequest = errors.New("calls: invalid request")
	ErrInvalidPhone   = errors.New("calls: recipient phone must be in E.164 format (e.g. +14155550123)")
	ErrAgentNotFound  = errors.New("calls: agent not found")
	ErrTooManyCalls   = errors.New("calls: too many concurrent calls for organization")
	ErrMissingCallID  = errors.New("calls: webhook missing call_id")
	ErrPersistence    = errors.New("calls: persistence failure")
	// ErrDuplicateCallID is returned by repositories when a Bolna call id is already on another row.
	ErrDuplicateCallID = errors.New("calls: bolna call id already recorded")
)

// Repository is the persistence contract for calls. Every read is organization scoped except
// GetByProviderID, which webhooks use because the provider only knows its own id.
type Repository interface {
	Insert(ctx context.Context, c Call) error
	Get(ctx context.Context, organizationID, id string) (Call, error)
	GetByProviderID(ctx context.Context, providerCallID string) (Call, error)
	// Save overwrites the mutable columns of an existing row.
	Save(ctx context.Context, c Call) error
	List(ctx context.Context, organizationID string, f Filter) ([]Call, int, error)
	Stats(ctx context.Context, organizationID string, f Filter) (Stats, error)
	// ListStale returns non-terminal calls with a provider id last updated before cutoff.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]Call, error)
}
