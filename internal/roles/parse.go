package roles

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/raphaelgruber/flowsim-go/internal/models"
)

var codeFenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*\n?(.*?)```")

// StripCodeFence unwraps a fenced code block if the text carries one.
// Models regularly wrap structured replies in fences despite instructions.
func StripCodeFence(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	if m := codeFenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(strings.ReplaceAll(s, "```", ""))
}

// ExtractSlots pulls labelled fields out of a model reply. A slot value
// runs from its label to the next labelled line or the end of the text.
// Repeated labels keep the last occurrence.
func ExtractSlots(s string, slots []string) map[string]string {
	quoted := make([]string, len(slots))
	for i, slot := range slots {
		quoted[i] = regexp.QuoteMeta(slot)
	}
	re := regexp.MustCompile(`(?m)^(` + strings.Join(quoted, "|") + `):`)

	locs := re.FindAllStringSubmatchIndex(s, -1)
	result := make(map[string]string, len(locs))
	for i, loc := range locs {
		field := s[loc[2]:loc[3]]
		end := len(s)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		result[field] = strings.TrimSpace(s[loc[1]:end])
	}
	return result
}

// User reply slots.
const slotResponse = "Response"

// parseUserOutput extracts the user's reply. A reply without the Response
// label is taken verbatim; simulated users drift off-format occasionally
// and the content is still usable.
func parseUserOutput(s string) models.UserOutput {
	s = StripCodeFence(s)
	result := ExtractSlots(s, []string{slotResponse})
	response, ok := result[slotResponse]
	if !ok {
		response = strings.TrimSpace(s)
	}
	return models.UserOutput{Response: response}
}

// Bot reply slots.
const (
	slotThought     = "Thought"
	slotAction      = "Action"
	slotActionInput = "Action Input"
)

// apiNamePrefix is stripped from action names; some models echo it from
// the toolbox rendering.
const apiNamePrefix = "API_"

// parseBotOutput extracts a bot prediction in ReAct form. An Action must
// come with a JSON Action Input; otherwise a Response is required.
func parseBotOutput(s string) (models.BotOutput, error) {
	s = StripCodeFence(s)
	result := ExtractSlots(s, []string{slotThought, slotAction, slotActionInput, slotResponse})

	out := models.BotOutput{Thought: result[slotThought]}
	if action, ok := result[slotAction]; ok {
		rawInput, ok := result[slotActionInput]
		if !ok {
			return out, fmt.Errorf("Action without Action Input in bot reply: %q", s)
		}
		var input map[string]any
		if err := json.Unmarshal([]byte(rawInput), &input); err != nil {
			return out, fmt.Errorf("Action Input is not a JSON object: %q", rawInput)
		}
		out.Action = strings.TrimPrefix(action, apiNamePrefix)
		out.ActionInput = input
		return out, nil
	}

	response, ok := result[slotResponse]
	if !ok {
		return out, fmt.Errorf("neither Action nor Response in bot reply: %q", s)
	}
	out.Response = response
	return out, nil
}

// API reply slots.
const (
	slotStatusCode = "Status Code"
	slotData       = "Data"
)

// parseAPIOutput extracts the simulated API's status and payload.
func parseAPIOutput(s string, call models.BotOutput) (models.APIOutput, error) {
	s = StripCodeFence(s)
	result := ExtractSlots(s, []string{slotStatusCode, slotData})

	rawStatus, ok := result[slotStatusCode]
	if !ok {
		return models.APIOutput{}, fmt.Errorf("Status Code not in API reply: %q", s)
	}
	data, ok := result[slotData]
	if !ok {
		return models.APIOutput{}, fmt.Errorf("Data not in API reply: %q", s)
	}
	var status int
	if _, err := fmt.Sscanf(strings.TrimSpace(rawStatus), "%d", &status); err != nil {
		return models.APIOutput{}, fmt.Errorf("Status Code %q is not a number", rawStatus)
	}
	return models.APIOutput{
		Name:       call.Action,
		Request:    call.ActionInput,
		StatusCode: status,
		Data:       data,
	}, nil
}
