package bolna

import (
	"encoding/json"
	"fmt"
	"strings"
)

// WebhookEvent is an inbound provider push about one call.
type WebhookEvent struct {
	Event        string
	CallID       string
	Status       string
	Duration     *int
	RecordingURL *string
	Transcript   *string
}

type webhookBody struct {
	Event         string         `json:"event"`
	CallID        string         `json:"call_id"`
	ExecutionID   string         `json:"execution_id"`
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	Duration      flexSeconds    `json:"duration"`
	RecordingURL  *string        `json:"recording_url"`
	Transcript    *string        `json:"transcript"`
	TelephonyData *telephonyData `json:"telephony_data"`
}

// DecodeWebhook parses a webhook body. A missing call id is not an error here; the reconciler
// rejects it so the HTTP layer can answer 400.
func DecodeWebhook(data []byte) (WebhookEvent, error) {
	var body webhookBody
	if err := json.Unmarshal(data, &body); err != nil {
		return WebhookEvent{}, fmt.Errorf("bolna: decode webhook: %w", err)
	}
	report := executionResponse{
		Status:        body.Status,
		Duration:      body.Duration,
		RecordingURL:  body.RecordingURL,
		Transcript:    body.Transcript,
		TelephonyData: body.TelephonyData,
	}.report()

	return WebhookEvent{
		Event:        strings.TrimSpace(body.Event),
		CallID:       strings.TrimSpace(firstNonEmpty(body.CallID, body.ExecutionID, body.ID)),
		Status:       report.Status,
		Duration:     report.Duration,
		RecordingURL: report.RecordingURL,
		Transcript:   report.Transcript,
	}, nil
}
