package bolna

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// AgentConfig is the caller-facing description of a voice agent.
type AgentConfig struct {
	Name           string
	WelcomeMessage string
	Instructions   string
	Language       string
	VoiceID        string
}

// AgentUpdate carries only the fields the caller supplied.
type AgentUpdate struct {
	Name           *string
	WelcomeMessage *string
	Instructions   *string
}

func (u AgentUpdate) Empty() bool {
	return u.Name == nil && u.WelcomeMessage == nil && u.Instructions == nil
}

type CallPlacement struct {
	ProviderCallID string
	Status         string
}

// CallStatusReport is the provider's current view of one call. Optional fields are nil when
// the provider omitted them.
type CallStatusReport struct {
	Status       string
	Duration     *int
	RecordingURL *string
	Transcript   *string
}

const (
	defaultLanguage = "en"
	defaultVoice    = "Nila"
)

// Wire shapes for POST /v2/agent.

type createAgentBody struct {
	AgentConfig  agentConfig            `json:"agent_config"`
	AgentPrompts map[string]agentPrompt `json:"agent_prompts"`
}

type agentPrompt struct {
	SystemPrompt string `json:"system_prompt"`
}

type agentConfig struct {
	AgentName           string      `json:"agent_name"`
	AgentWelcomeMessage string      `json:"agent_welcome_message"`
	AgentType           string      `json:"agent_type"`
	Tasks               []agentTask `json:"tasks"`
}

type agentTask struct {
	TaskType    string         `json:"task_type"`
	ToolsConfig toolsConfig    `json:"tools_config"`
	Toolchain   toolchain      `json:"toolchain"`
	TaskConfig  map[string]any `json:"task_config"`
}

type toolsConfig struct {
	LLMAgent    llmAgent    `json:"llm_agent"`
	Synthesizer synthesizer `json:"synthesizer"`
	Transcriber transcriber `json:"transcriber"`
	Input       ioConfig    `json:"input"`
	Output      ioConfig    `json:"output"`
}

type llmAgent struct {
	AgentType     string         `json:"agent_type"`
	AgentFlowType string         `json:"agent_flow_type"`
	LLMConfig     map[string]any `json:"llm_config"`
}

type synthesizer struct {
	Provider       string         `json:"provider"`
	ProviderConfig map[string]any `json:"provider_config"`
	Stream         bool           `json:"stream"`
	BufferSize     int            `json:"buffer_size"`
	AudioFormat    string         `json:"audio_format"`
}

type transcriber struct {
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	Language    string `json:"language"`
	Stream      bool   `json:"stream"`
	Endpointing int    `json:"endpointing"`
}

type ioConfig struct {
	Provider string `json:"provider"`
	Format   string `json:"format"`
}

type toolchain struct {
	Execution string     `json:"execution"`
	Pipelines [][]string `json:"pipelines"`
}

func buildCreateAgentBody(cfg AgentConfig) createAgentBody {
	lang := strings.TrimSpace(cfg.Language)
	if lang == "" {
		lang = defaultLanguage
	}
	voice := strings.TrimSpace(cfg.VoiceID)
	if voice == "" {
		voice = defaultVoice
	}
	return createAgentBody{
		AgentConfig: agentConfig{
			AgentName:           cfg.Name,
			AgentWelcomeMessage: cfg.WelcomeMessage,
			AgentType:           "other",
			Tasks: []agentTask{{
				TaskType: "conversation",
				ToolsConfig: toolsConfig{
					LLMAgent: llmAgent{
						AgentType:     "simple_llm_agent",
						AgentFlowType: "streaming",
						LLMConfig: map[string]any{
							"provider":    "openai",
							"model":       "gpt-4o-mini",
							"max_tokens":  150,
							"temperature": 0.2,
						},
					},
					Synthesizer: synthesizer{
						Provider:       "elevenlabs",
						ProviderConfig: map[string]any{"voice": voice, "model": "eleven_turbo_v2_5"},
						Stream:         true,
						BufferSize:     250,
						AudioFormat:    "wav",
					},
					Transcriber: transcriber{
						Provider:    "deepgram",
						Model:       "nova-2",
						Language:    lang,
						Stream:      true,
						Endpointing: 100,
					},
					Input:  ioConfig{Provider: "plivo", Format: "wav"},
					Output: ioConfig{Provider: "plivo", Format: "wav"},
				},
				Toolchain: toolchain{
					Execution: "parallel",
					Pipelines: [][]string{{"transcriber", "llm", "synthesizer"}},
				},
				TaskConfig: map[string]any{"hangup_after_silence": 10, "call_terminate": 300},
			}},
		},
		AgentPrompts: map[string]agentPrompt{
			"task_1": {SystemPrompt: cfg.Instructions},
		},
	}
}

type updateAgentConfig struct {
	AgentName           *string `json:"agent_name,omitempty"`
	AgentWelcomeMessage *string `json:"agent_welcome_message,omitempty"`
}

type updateAgentBody struct {
	AgentConfig  *updateAgentConfig     `json:"agent_config,omitempty"`
	AgentPrompts map[string]agentPrompt `json:"agent_prompts,omitempty"`
}

func buildUpdateAgentBody(u AgentUpdate) updateAgentBody {
	var out updateAgentBody
	if u.Name != nil || u.WelcomeMessage != nil {
		out.AgentConfig = &updateAgentConfig{AgentName: u.Name, AgentWelcomeMessage: u.WelcomeMessage}
	}
	if u.Instructions != nil {
		out.AgentPrompts = map[string]agentPrompt{"task_1": {SystemPrompt: *u.Instructions}}
	}
	return out
}

type createAgentResponse struct {
	AgentID string `json:"agent_id"`
	ID      string `json:"id"`
}

type makeCallBody struct {
	AgentID              string `json:"agent_id"`
	RecipientPhoneNumber string `json:"recipient_phone_number"`
	FromPhoneNumber      string `json:"from_phone_number,omitempty"`
}

type makeCallResponse struct {
	ExecutionID string `json:"execution_id"`
	CallID      string `json:"call_id"`
	ID          string `json:"id"`
	Status      string `json:"status"`
}

type telephonyData struct {
	Duration     flexSeconds `json:"duration"`
	RecordingURL *string     `json:"recording_url"`
	Transcript   *string     `json:"transcript"`
}

type executionResponse struct {
	Status               string         `json:"status"`
	Duration             flexSeconds    `json:"duration"`
	ConversationDuration flexSeconds    `json:"conversation_duration"`
	RecordingURL         *string        `json:"recording_url"`
	Transcript           *string        `json:"transcript"`
	TelephonyData        *telephonyData `json:"telephony_data"`
}

func (r executionResponse) report() CallStatusReport {
	out := CallStatusReport{
		Status:       r.Status,
		Duration:     r.Duration.ptr(),
		RecordingURL: nonEmpty(r.RecordingURL),
		Transcript:   nonEmpty(r.Transcript),
	}
	if out.Duration == nil {
		out.Duration = r.ConversationDuration.ptr()
	}
	if td := r.TelephonyData; td != nil {
		if out.Duration == nil {
			out.Duration = td.Duration.ptr()
		}
		if out.RecordingURL == nil {
			out.RecordingURL = nonEmpty(td.RecordingURL)
		}
		if out.Transcript == nil {
			out.Transcript = nonEmpty(td.Transcript)
		}
	}
	return out
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

// flexSeconds accepts a JSON number or numeric string and rounds to whole seconds. Values that
// are not finite or fall outside 0..MaxInt32 are left unset so they never reach the duration column.
type flexSeconds struct {
	v   int
	set bool
}

func (f *flexSeconds) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil
	}
	n = math.Round(n)
	if n < 0 || n > math.MaxInt32 {
		return nil
	}
	f.v, f.set = int(n), true
	return nil
}

func (f flexSeconds) ptr() *int {
	if !f.set {
		return nil
	}
	v := f.v
	return &v
}

var _ json.Unmarshaler = (*flexSeconds)(nil)
