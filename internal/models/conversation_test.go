package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleDecodeNormalizesCase(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"role":"BOT","content":"hi"}`), &msg))
	assert.Equal(t, RoleBot, msg.Role)

	var bad Message
	err := json.Unmarshal([]byte(`{"role":"agent"}`), &bad)
	assert.ErrorContains(t, err, "invalid role")
}

func TestFromMessagesNormalizesRoles(t *testing.T) {
	conv, err := FromMessages([]Message{
		{Role: "USER", Content: "hi", ConversationID: "c1"},
		{Role: "Bot", Content: "hello", ConversationID: "c1"},
	})
	require.NoError(t, err)
	assert.Equal(t, RoleUser, conv.Msgs[0].Role)
	assert.Equal(t, RoleBot, conv.Msgs[1].Role)

	_, err = FromMessages([]Message{{Role: "narrator", ConversationID: "c1"}})
	assert.ErrorContains(t, err, "invalid role")
}

func TestAppendAssignsUtteranceIDs(t *testing.T) {
	conv := NewConversation("c1")
	conv.Append(Message{Role: RoleUser, Content: "hi"})
	conv.Append(Message{Role: RoleBot, Content: "hello"})
	conv.Append(Message{Role: RoleSystem, Content: "noted"})

	require.Equal(t, 3, conv.Len())
	for i, msg := range conv.Msgs {
		assert.Equal(t, i, msg.UtteranceID)
		assert.Equal(t, "c1", msg.ConversationID)
	}
}

func TestSubstituteKeepsIndexAndRecordsPrediction(t *testing.T) {
	conv := NewConversation("c1")
	conv.Append(Message{Role: RoleUser, Content: "book a table"})
	conv.Append(Message{Role: RoleBot, Content: "predicted reply"})

	ref := Message{Role: RoleBot, Content: "reference reply"}
	require.NoError(t, conv.Substitute(-1, ref))

	got := conv.At(-1)
	assert.Equal(t, "reference reply", got.Content)
	assert.Equal(t, "predicted reply", got.ContentPredict)
	assert.Equal(t, 1, got.UtteranceID)
	assert.Equal(t, "c1", got.ConversationID)
}

func TestSubstituteOutOfRange(t *testing.T) {
	conv := NewConversation("c1")
	err := conv.Substitute(0, Message{Role: RoleBot, Content: "x"})
	assert.Error(t, err)
}

func TestCalledAPIs(t *testing.T) {
	conv := NewConversation("c1")
	conv.Append(Message{Role: RoleUser, Content: "find me a hotel"})
	conv.Append(Message{Role: RoleBot, Content: FormatAPICall("search_hotel", map[string]any{"city": "Vienna"})})
	conv.Append(Message{Role: RoleSystem, Content: APIResponsePrefix + `{"hotels": []}`})
	conv.Append(Message{Role: RoleBot, Content: "No hotels found."})
	conv.Append(Message{Role: RoleBot, Content: FormatAPICall("book_hotel", map[string]any{"id": float64(3)})})

	assert.Equal(t, []string{"search_hotel", "book_hotel"}, conv.CalledAPIs())
}

func TestParseAPICallRoundTrip(t *testing.T) {
	content := FormatAPICall("check_order", map[string]any{"order_id": "A-17"})
	name, params, err := ParseAPICall(content)
	require.NoError(t, err)
	assert.Equal(t, "check_order", name)
	assert.Equal(t, map[string]any{"order_id": "A-17"}, params)
}

func TestParseAPICallRejectsMalformed(t *testing.T) {
	_, _, err := ParseAPICall("just a response")
	assert.Error(t, err)

	_, _, err = ParseAPICall(APICallPrefix + "no_parens")
	assert.Error(t, err)
}

func TestLoadTranscriptContinuationLines(t *testing.T) {
	conv := LoadTranscript("[USER] hello\n[BOT] line one\nline two\n[SYSTEM] done")
	require.Equal(t, 3, conv.Len())
	assert.Equal(t, "line one\nline two", conv.At(1).Content)
	assert.Equal(t, RoleSystem, conv.At(2).Role)
}

func TestUserOutputEndFlag(t *testing.T) {
	assert.False(t, UserOutput{Response: "thanks"}.IsEnd())
	assert.True(t, UserOutput{Response: "thanks, bye " + EndFlag}.IsEnd())
}

func TestBotOutputType(t *testing.T) {
	assert.Equal(t, BotActionCall, BotOutput{Action: "search"}.Type())
	assert.Equal(t, BotActionRespond, BotOutput{Response: "hi"}.Type())
}
