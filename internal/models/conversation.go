package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Conversation is an append-only ordered sequence of messages sharing one id.
// Utterance ids are assigned at insertion and always equal the insertion
// position; they are never reused.
type Conversation struct {
	ID   string
	Msgs []Message
}

// NewConversation creates an empty conversation. If id is empty a fresh
// UUID is generated.
func NewConversation(id string) *Conversation {
	if id == "" {
		id = uuid.New().String()
	}
	return &Conversation{ID: id}
}

// Append adds a message, stamping it with the conversation id and the next
// utterance id.
func (c *Conversation) Append(msg Message) {
	msg.ConversationID = c.ID
	msg.UtteranceID = len(c.Msgs)
	c.Msgs = append(c.Msgs, msg)
}

// Substitute replaces the message at idx in place, preserving its utterance
// id and recording the replaced content as the prediction. Used by
// teacher-forced replay: the bot's freshly appended prediction is swapped
// for the reference message, which keeps the prediction in ContentPredict.
// Negative idx counts from the end.
func (c *Conversation) Substitute(idx int, msg Message) error {
	if idx < 0 {
		idx += len(c.Msgs)
	}
	if idx < 0 || idx >= len(c.Msgs) {
		return fmt.Errorf("substitute index %d out of range (len %d)", idx, len(c.Msgs))
	}
	msg.ConversationID = c.ID
	msg.UtteranceID = c.Msgs[idx].UtteranceID
	msg.ContentPredict = c.Msgs[idx].Content
	c.Msgs[idx] = msg
	return nil
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.Msgs)
}

// Last returns the most recent message, or nil when empty.
func (c *Conversation) Last() *Message {
	if len(c.Msgs) == 0 {
		return nil
	}
	return &c.Msgs[len(c.Msgs)-1]
}

// At returns the message at idx. Negative idx counts from the end.
func (c *Conversation) At(idx int) Message {
	if idx < 0 {
		idx += len(c.Msgs)
	}
	return c.Msgs[idx]
}

// Slice returns a shallow copy holding messages [0, end).
func (c *Conversation) Slice(end int) *Conversation {
	if end < 0 {
		end += len(c.Msgs)
	}
	if end > len(c.Msgs) {
		end = len(c.Msgs)
	}
	out := &Conversation{ID: c.ID}
	out.Msgs = append(out.Msgs, c.Msgs[:end]...)
	return out
}

// CalledAPIs collects the names of all API calls made by the bot, in order.
func (c *Conversation) CalledAPIs() []string {
	var names []string
	for _, msg := range c.Msgs {
		if !msg.IsAPICall() {
			continue
		}
		if name, _, err := msg.APICallInfo(); err == nil {
			names = append(names, name)
		}
	}
	return names
}

// String renders the transcript as prefixed lines.
func (c *Conversation) String() string {
	lines := make([]string, len(c.Msgs))
	for i, msg := range c.Msgs {
		lines[i] = msg.String()
	}
	return strings.Join(lines, "\n")
}

// FromMessages reconstructs a conversation from stored messages. The
// conversation id is taken from the first message.
func FromMessages(msgs []Message) (*Conversation, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("conversation must have at least one message")
	}
	conv := &Conversation{ID: msgs[0].ConversationID}
	conv.Msgs = msgs
	for i := range conv.Msgs {
		role, err := ParseRole(string(conv.Msgs[i].Role))
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		conv.Msgs[i].Role = role
	}
	return conv, nil
}

// LoadTranscript parses a prefixed-line transcript back into a conversation.
// Lines without a role prefix continue the previous message.
func LoadTranscript(s string) *Conversation {
	conv := NewConversation("")
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "[BOT] "):
			conv.Append(Message{Role: RoleBot, Content: line[len("[BOT] "):]})
		case strings.HasPrefix(line, "[USER] "):
			conv.Append(Message{Role: RoleUser, Content: line[len("[USER] "):]})
		case strings.HasPrefix(line, "[SYSTEM] "):
			conv.Append(Message{Role: RoleSystem, Content: line[len("[SYSTEM] "):]})
		default:
			if len(conv.Msgs) > 0 {
				conv.Msgs[len(conv.Msgs)-1].Content += "\n" + line
			}
		}
	}
	return conv
}
