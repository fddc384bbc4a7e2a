// Package sim runs single simulated conversations: the user/bot/api loop,
// the action checks guarding bot API calls, and teacher-forced replay of
// reference conversations.
package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/flowsim-go/internal/config"
	"github.com/raphaelgruber/flowsim-go/internal/metrics"
	"github.com/raphaelgruber/flowsim-go/internal/models"
	"github.com/raphaelgruber/flowsim-go/internal/registry"
	"github.com/raphaelgruber/flowsim-go/internal/roles"
)

// Controller drives one conversation to completion.
type Controller struct {
	env      *roles.Env
	user     roles.User
	bot      roles.Bot
	api      roles.API
	checkers []Checker

	collector *metrics.Collector
}

// NewController wires the configured roles. Session mode needs all three
// roles; turn mode replays a reference conversation and only needs the bot.
func NewController(ctx context.Context, env *roles.Env, collector *metrics.Collector) (*Controller, error) {
	bot, err := roles.NewBot(ctx, env)
	if err != nil {
		return nil, err
	}
	c := &Controller{env: env, bot: bot, collector: collector}

	if env.Cfg.ExpMode == config.ExpModeSession {
		if c.user, err = roles.NewUser(ctx, env); err != nil {
			return nil, err
		}
		if c.api, err = roles.NewAPI(ctx, env); err != nil {
			return nil, err
		}
		if bot.SupportsActionChecks() {
			if env.Cfg.CheckDependencies {
				dep, err := NewDependencyChecker(env.Conv, env.Workflow.PDL)
				if err != nil {
					return nil, err
				}
				c.checkers = append(c.checkers, dep)
			}
			if env.Cfg.CheckDuplicates {
				c.checkers = append(c.checkers, NewDuplicateChecker(env.Conv, env.Cfg.DuplicateThreshold))
			}
		}
	}
	return c, nil
}

// Run executes the conversation in the configured mode.
func (c *Controller) Run(ctx context.Context) (*models.Conversation, error) {
	start := time.Now()
	defer func() {
		if c.collector != nil {
			c.collector.RecordTiming(metrics.OpSimulate, time.Since(start))
		}
	}()

	if c.env.Cfg.ExpMode == config.ExpModeTurn {
		return c.runTeacherForced(ctx)
	}
	return c.runSession(ctx)
}

// runSession is the main loop. The user speaks first; only the user ends
// the conversation, by emitting the end marker. Each user turn is followed
// by a bot phase in which the bot may chain several API calls before it
// responds; rejected calls feed their rejection back to the bot without
// consuming the action budget.
func (c *Controller) runSession(ctx context.Context) (*models.Conversation, error) {
	turns := 0
	for {
		if err := ctx.Err(); err != nil {
			return c.env.Conv, err
		}

		userOut, err := c.user.Process(ctx)
		if err != nil {
			return c.env.Conv, fmt.Errorf("user turn: %w", err)
		}
		c.logLast()
		if userOut.IsEnd() {
			c.env.Log.Info("conversation ended by user", "conversation_id", c.env.Conv.ID)
			break
		}

		actions := 0
		for {
			if err := ctx.Err(); err != nil {
				return c.env.Conv, err
			}
			botOut, err := c.bot.Process(ctx)
			if err != nil {
				return c.env.Conv, fmt.Errorf("bot turn: %w", err)
			}
			c.logLast()
			if botOut.Type() == models.BotActionRespond {
				break
			}

			if !c.checkAction(botOut) {
				c.logLast()
				continue
			}
			if _, err := c.api.Process(ctx, botOut); err != nil {
				return c.env.Conv, fmt.Errorf("api call: %w", err)
			}
			c.logLast()

			actions++
			if actions >= c.env.Cfg.BotActionLimit {
				c.env.Log.Info("bot action limit reached", "conversation_id", c.env.Conv.ID)
				break
			}
		}

		turns++
		if turns >= c.env.Cfg.ConversationTurnLimit {
			c.env.Log.Info("conversation turn limit reached", "conversation_id", c.env.Conv.ID)
			break
		}
	}
	return c.env.Conv, nil
}

// checkAction runs the admission checks. A failing checker has already
// appended its rejection message.
func (c *Controller) checkAction(out models.BotOutput) bool {
	for _, checker := range c.checkers {
		if !checker.Check(out) {
			return false
		}
	}
	return true
}

// runTeacherForced replays the persona's reference conversation. Non-bot
// messages are copied verbatim. At bot positions the live bot predicts
// against the reference history, then the reference utterance replaces the
// prediction so later turns see ground truth; the prediction is kept on
// the message for turn-level judging.
func (c *Controller) runTeacherForced(ctx context.Context) (*models.Conversation, error) {
	refs := c.env.Workflow.ReferenceConversations
	if c.env.PersonaID < 0 || c.env.PersonaID >= len(refs) {
		return c.env.Conv, fmt.Errorf("persona %d out of range, workflow has %d reference conversations",
			c.env.PersonaID, len(refs))
	}
	ref := refs[c.env.PersonaID].Conversation

	for _, msg := range ref.Msgs {
		if err := ctx.Err(); err != nil {
			return c.env.Conv, err
		}
		if msg.Role != models.RoleBot {
			c.env.Conv.Append(msg)
			continue
		}
		if _, err := c.bot.Process(ctx); err != nil {
			return c.env.Conv, fmt.Errorf("bot turn: %w", err)
		}
		if err := c.env.Conv.Substitute(-1, msg); err != nil {
			return c.env.Conv, err
		}
		last := c.env.Conv.Last()
		c.env.Log.Info("teacher forced turn",
			"ground_truth", last.Content, "predicted", last.ContentPredict)
	}
	return c.env.Conv, nil
}

func (c *Controller) logLast() {
	if last := c.env.Conv.Last(); last != nil {
		c.env.Log.Debug("utterance", "role", last.Role, "content", last.Content)
	}
}

// RunUnit runs one persona/workflow unit end to end: skip if already
// recorded, simulate, then persist the conversation and the run record.
// The returned skipped flag tells batch accounting apart from fresh runs.
// With LogToStore disabled the registry is bypassed entirely, so nothing
// is recorded and nothing dedups.
func RunUnit(ctx context.Context, env *roles.Env, reg *registry.Registry, collector *metrics.Collector) (conversationID string, skipped bool, err error) {
	if env.Cfg.LogToStore {
		rec, err := reg.HasRun(ctx, env.Cfg, env.PersonaID, env.Cfg.ForceRerun)
		if err != nil {
			return "", false, err
		}
		if rec != nil {
			env.Log.Info("unit already run, skipping",
				"conversation_id", rec.ConversationID, "persona_id", env.PersonaID)
			return rec.ConversationID, true, nil
		}
	}

	ctrl, err := NewController(ctx, env, collector)
	if err != nil {
		return "", false, err
	}
	conv, err := ctrl.Run(ctx)
	if err != nil {
		return "", false, err
	}
	if !env.Cfg.LogToStore {
		return conv.ID, false, nil
	}
	if err := reg.Record(ctx, env.Cfg, env.PersonaID, conv); err != nil {
		return "", false, err
	}
	return conv.ID, false, nil
}
