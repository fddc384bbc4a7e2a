package sim

import (
	"errors"
	"fmt"

	"github.com/raphaelgruber/flowsim-go/internal/graph"
	"github.com/raphaelgruber/flowsim-go/internal/models"
	"github.com/raphaelgruber/flowsim-go/internal/workflow"
)

// Checker validates a bot API call before it is executed. A failing check
// appends a SYSTEM message explaining the rejection, which becomes part
// of the bot's context for its next prediction.
type Checker interface {
	Check(out models.BotOutput) bool
}

// DependencyChecker admits API calls against the procedure document's
// action graph. State accumulates over the conversation: an action stays
// activated once admitted.
type DependencyChecker struct {
	conv  *models.Conversation
	graph *graph.Graph
}

// NewDependencyChecker builds the action graph for a procedure document.
func NewDependencyChecker(conv *models.Conversation, pdl *workflow.PDL) (*DependencyChecker, error) {
	g, err := pdl.Graph()
	if err != nil {
		return nil, fmt.Errorf("building dependency graph: %w", err)
	}
	return &DependencyChecker{conv: conv, graph: g}, nil
}

func (c *DependencyChecker) Check(out models.BotOutput) bool {
	err := c.graph.Admit(out.Action)
	if err == nil {
		return true
	}

	var content string
	var pre *graph.PreconditionError
	switch {
	case errors.As(err, &pre):
		content = fmt.Sprintf("Precondition check failed! %s not activated for %s!", pre.Blocking, pre.Action)
	case errors.Is(err, graph.ErrUnknownAction):
		content = fmt.Sprintf("ERROR! Action %s not found!", out.Action)
	default:
		content = fmt.Sprintf("ERROR! %v", err)
	}
	c.conv.Append(models.Message{Role: models.RoleSystem, Content: content})
	return false
}

// duplicateRejection is what the bot sees after repeating itself.
const duplicateRejection = "Too many duplicated API call! try another action instead."

// DuplicateChecker rejects an API call once the bot has produced the same
// call content threshold times in a row. The scan walks backward from the
// bot's latest message; other roles' messages in between do not break the
// streak, a differing bot message does.
type DuplicateChecker struct {
	conv      *models.Conversation
	threshold int
}

// NewDuplicateChecker creates a duplicate guard with the given threshold.
func NewDuplicateChecker(conv *models.Conversation, threshold int) *DuplicateChecker {
	return &DuplicateChecker{conv: conv, threshold: threshold}
}

func (c *DuplicateChecker) Check(models.BotOutput) bool {
	last := c.conv.Last()
	if last == nil {
		return true
	}
	count := 0
	for i := c.conv.Len() - 1; i >= 0; i-- {
		msg := c.conv.At(i)
		if msg.Role != models.RoleBot {
			continue
		}
		if msg.Content != last.Content {
			break
		}
		count++
		if count >= c.threshold {
			c.conv.Append(models.Message{Role: models.RoleSystem, Content: duplicateRejection})
			return false
		}
	}
	return true
}
