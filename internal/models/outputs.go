package models

import "strings"

// EndFlag is the marker a simulated user emits to finish the conversation.
const EndFlag = "[END]"

// UserOutput is the parsed result of one user turn.
type UserOutput struct {
	Response string
}

// IsEnd reports whether the user signalled the end of the conversation.
func (u UserOutput) IsEnd() bool {
	return strings.Contains(u.Response, EndFlag)
}

// BotActionType distinguishes the two kinds of bot output.
type BotActionType string

const (
	// BotActionRespond is a final natural-language response to the user.
	BotActionRespond BotActionType = "RESPONSE"
	// BotActionCall is a request to invoke an API.
	BotActionCall BotActionType = "ACTION"
)

// BotOutput is the parsed result of one bot prediction.
type BotOutput struct {
	Thought     string
	Action      string
	ActionInput map[string]any
	Response    string
}

// Type returns whether the output is an API call or a user-facing response.
func (b BotOutput) Type() BotActionType {
	if b.Action != "" {
		return BotActionCall
	}
	return BotActionRespond
}

// APIOutput is the parsed result of one simulated API invocation.
type APIOutput struct {
	Name       string
	Request    map[string]any
	StatusCode int
	Data       string
}
