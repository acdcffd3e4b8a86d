package calls

import "strings"

type Status string

const (
	StatusInitiated  Status = "INITIATED"
	StatusRinging    Status = "RINGING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusNoAnswer   Status = "NO_ANSWER"
	StatusBusy       Status = "BUSY"
	StatusCancelled  Status = "CANCELLED"
)

// Rank orders statuses for the monotonic-progress check. All terminals share the top rank.
func (s Status) Rank() int {
	switch s {
	case StatusInitiated:
		return 0
	case StatusRinging:
		return 1
	case StatusInProgress:
		return 2
	case StatusCompleted, StatusFailed, StatusNoAnswer, StatusBusy, StatusCancelled:
		return 3
	default:
		return -1
	}
}

func (s Status) Terminal() bool { return s.Rank() == 3 }

func (s Status) Valid() bool { return s.Rank() >= 0 }

// ParseStatus accepts an internal status name in any case, for list filters.
func ParseStatus(v string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	return s, s.Valid()
}

var pollStatuses = map[string]Status{
	"initiated":   StatusInitiated,
	"ringing":     StatusRinging,
	"in_progress": StatusInProgress,
	"completed":   StatusCompleted,
	"failed":      StatusFailed,
	"no_answer":   StatusNoAnswer,
	"busy":        StatusBusy,
}

var webhookStatuses = func() map[string]Status {
	m := make(map[string]Status, len(pollStatuses)+2)
	for k, v := range pollStatuses {
		m[k] = v
	}
	m["cancelled"] = StatusCancelled
	m["canceled"] = StatusCancelled
	return m
}()

// mapPollStatus maps a provider status from GetCallStatus. Only lower-casing is applied.
func mapPollStatus(provider string) (Status, bool) {
	s, ok := pollStatuses[strings.ToLower(strings.TrimSpace(provider))]
	return s, ok
}

var webhookNormalizer = strings.NewReplacer("-", "_", " ", "_")

// mapWebhookStatus maps a pushed status; "in-progress", "in progress" and "in_progress" agree.
func mapWebhookStatus(provider string) (Status, bool) {
	key := webhookNormalizer.Replace(strings.ToLower(strings.TrimSpace(provider)))
	s, ok := webhookStatuses[key]
	return s, ok
}
