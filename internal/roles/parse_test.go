package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/flowsim-go/internal/models"
)

func TestExtractSlots(t *testing.T) {
	s := "Thought: the user wants a room.\nIt spans two lines.\nAction: check_hotel\nAction Input: {\"city\": \"Vienna\"}"
	result := ExtractSlots(s, []string{"Thought", "Action", "Action Input"})

	assert.Equal(t, "the user wants a room.\nIt spans two lines.", result["Thought"])
	assert.Equal(t, "check_hotel", result["Action"])
	assert.Equal(t, `{"city": "Vienna"}`, result["Action Input"])
}

func TestExtractSlotsKeepsLastOccurrence(t *testing.T) {
	s := "Response: first\nResponse: second"
	result := ExtractSlots(s, []string{"Response"})
	assert.Equal(t, "second", result["Response"])
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, "Response: hi", StripCodeFence("```\nResponse: hi\n```"))
	assert.Equal(t, "Response: hi", StripCodeFence("```text\nResponse: hi\n```"))
	assert.Equal(t, "no fence here", StripCodeFence("no fence here"))
}

func TestParseUserOutput(t *testing.T) {
	out := parseUserOutput("Response: I want to book a room")
	assert.Equal(t, "I want to book a room", out.Response)
	assert.False(t, out.IsEnd())

	out = parseUserOutput("Response: thanks, that is all! [END]")
	assert.True(t, out.IsEnd())

	// Off-format replies are taken verbatim.
	out = parseUserOutput("just plain text")
	assert.Equal(t, "just plain text", out.Response)
}

func TestParseBotOutputAction(t *testing.T) {
	s := "Thought: need availability first\nAction: check_hotel\nAction Input: {\"city\": \"Vienna\", \"nights\": 2}"
	out, err := parseBotOutput(s)
	require.NoError(t, err)
	assert.Equal(t, models.BotActionCall, out.Type())
	assert.Equal(t, "check_hotel", out.Action)
	assert.Equal(t, "Vienna", out.ActionInput["city"])
	assert.Equal(t, "need availability first", out.Thought)
}

func TestParseBotOutputStripsAPIPrefix(t *testing.T) {
	out, err := parseBotOutput("Action: API_check_hotel\nAction Input: {}")
	require.NoError(t, err)
	assert.Equal(t, "check_hotel", out.Action)
}

func TestParseBotOutputResponse(t *testing.T) {
	out, err := parseBotOutput("Thought: done\nResponse: Your room is booked.")
	require.NoError(t, err)
	assert.Equal(t, models.BotActionRespond, out.Type())
	assert.Equal(t, "Your room is booked.", out.Response)
}

func TestParseBotOutputErrors(t *testing.T) {
	_, err := parseBotOutput("Action: check_hotel")
	assert.ErrorContains(t, err, "Action Input")

	_, err = parseBotOutput("Action: check_hotel\nAction Input: not json")
	assert.ErrorContains(t, err, "JSON")

	_, err = parseBotOutput("Thought: hmm")
	assert.ErrorContains(t, err, "neither")
}

func TestParseBotOutputFenced(t *testing.T) {
	s := "```\nThought: ok\nResponse: hello\n```"
	out, err := parseBotOutput(s)
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Response)
}

func TestParseAPIOutput(t *testing.T) {
	call := models.BotOutput{Action: "check_hotel", ActionInput: map[string]any{"city": "Vienna"}}

	out, err := parseAPIOutput("Status Code: 200\nData: {\"available\": true}", call)
	require.NoError(t, err)
	assert.Equal(t, 200, out.StatusCode)
	assert.Equal(t, `{"available": true}`, out.Data)
	assert.Equal(t, "check_hotel", out.Name)

	_, err = parseAPIOutput("Status Code: maybe\nData: {}", call)
	assert.ErrorContains(t, err, "not a number")

	_, err = parseAPIOutput("Data: {}", call)
	assert.ErrorContains(t, err, "Status Code")

	_, err = parseAPIOutput("Status Code: 200", call)
	assert.ErrorContains(t, err, "Data")
}
