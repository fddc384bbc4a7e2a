package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// APICallPrefix marks a BOT message content as an API invocation.
// API-call messages are encoded as `<Call API> name({"param": "value"})`.
const APICallPrefix = "<Call API> "

// APIResponsePrefix marks a SYSTEM message carrying an API response.
const APIResponsePrefix = "<API response> "

// APICall is one structured API invocation attached to a message.
type APICall struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

// Message is a single utterance within a conversation.
//
// Prompt and LLMResponse keep the raw model exchange for auditing.
// ContentPredict holds the live bot's prediction when a reference
// conversation is replayed in teacher-forced mode; Content then holds
// the reference (ground truth) utterance.
type Message struct {
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Prompt         string    `json:"prompt,omitempty"`
	LLMResponse    string    `json:"llm_response,omitempty"`
	ConversationID string    `json:"conversation_id"`
	UtteranceID    int       `json:"utterance_id"`
	Type           string    `json:"type,omitempty"`
	APIs           []APICall `json:"apis,omitempty"`
	ContentPredict string    `json:"content_predict,omitempty"`
}

// String renders the message with its role prefix.
func (m Message) String() string {
	return m.Role.Prefix() + m.Content
}

// IsAPICall reports whether the message content encodes an API invocation.
func (m Message) IsAPICall() bool {
	return m.Role == RoleBot && strings.HasPrefix(m.Content, APICallPrefix)
}

var apiCallRe = regexp.MustCompile(`(?s)^(.*?)\((.*)\)$`)

// ParseAPICall decodes an API-call content string into name and parameters.
func ParseAPICall(content string) (string, map[string]any, error) {
	if !strings.HasPrefix(content, APICallPrefix) {
		return "", nil, fmt.Errorf("not an API call: %q", content)
	}
	body := strings.TrimSpace(strings.TrimPrefix(content, APICallPrefix))
	match := apiCallRe.FindStringSubmatch(body)
	if match == nil {
		return "", nil, fmt.Errorf("malformed API call: %q", body)
	}
	name := strings.TrimSpace(match[1])
	params := map[string]any{}
	if raw := strings.TrimSpace(match[2]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return "", nil, fmt.Errorf("parse API call params: %w", err)
		}
	}
	return name, params, nil
}

// FormatAPICall encodes an API invocation into message content.
func FormatAPICall(name string, params map[string]any) string {
	raw, err := json.Marshal(params)
	if err != nil {
		raw = []byte("{}")
	}
	return fmt.Sprintf("%s%s(%s)", APICallPrefix, name, raw)
}

// APICallInfo decodes the message content as an API call.
func (m Message) APICallInfo() (string, map[string]any, error) {
	return ParseAPICall(m.Content)
}
