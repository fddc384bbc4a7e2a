package roles

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/flowsim-go/internal/config"
	"github.com/raphaelgruber/flowsim-go/internal/llm"
	"github.com/raphaelgruber/flowsim-go/internal/models"
	"github.com/raphaelgruber/flowsim-go/internal/prompt"
	"github.com/raphaelgruber/flowsim-go/internal/retry"
)

const timeLayout = "2006-01-02 15:04:05"

// reactBot predicts in ReAct form against the workflow document, whatever
// format it is written in.
type reactBot struct {
	env   *Env
	model *llm.Model

	// pdl switches the prompt to the procedure-document template and
	// enables action admission checks.
	pdl bool
}

func newReactBot(ctx context.Context, env *Env) (Bot, error) {
	model, err := env.Models.Get(ctx, env.Cfg.BotLLM, env.Cfg.BotRetryLimit)
	if err != nil {
		return nil, err
	}
	return &reactBot{env: env, model: model}, nil
}

func newPDLBot(ctx context.Context, env *Env) (Bot, error) {
	if env.Cfg.WorkflowFormat != config.FormatPDL || env.Workflow.PDL == nil {
		return nil, fmt.Errorf("bot mode %q needs a pdl workflow, got format %q",
			env.Cfg.BotMode, env.Cfg.WorkflowFormat)
	}
	base, err := newReactBot(ctx, env)
	if err != nil {
		return nil, err
	}
	bot := base.(*reactBot)
	bot.pdl = true
	return bot, nil
}

func (b *reactBot) SupportsActionChecks() bool {
	return b.pdl
}

func (b *reactBot) Process(ctx context.Context) (models.BotOutput, error) {
	promptText, err := b.buildPrompt()
	if err != nil {
		return models.BotOutput{}, err
	}

	type genOut struct {
		raw    string
		output models.BotOutput
	}
	out, err := retry.Do(ctx, b.env.Cfg.BotRetryLimit, "bot_process", b.env.Log, func() (genOut, error) {
		raw, err := b.model.Generate(ctx, promptText)
		if err != nil {
			return genOut{}, err
		}
		output, err := parseBotOutput(raw)
		if err != nil {
			return genOut{}, err
		}
		return genOut{raw: raw, output: output}, nil
	})
	if err != nil {
		return models.BotOutput{}, err
	}

	msg := models.Message{
		Role:        models.RoleBot,
		Prompt:      promptText,
		LLMResponse: out.raw,
	}
	if out.output.Type() == models.BotActionCall {
		msg.Content = models.FormatAPICall(out.output.Action, out.output.ActionInput)
		msg.APIs = []models.APICall{{Name: out.output.Action, Params: out.output.ActionInput}}
	} else {
		msg.Content = out.output.Response
	}
	b.env.Conv.Append(msg)
	return out.output, nil
}

func (b *reactBot) buildPrompt() (string, error) {
	now := time.Now().Format(timeLayout)
	if b.pdl {
		return prompt.Render(prompt.BotPDL, map[string]string{
			"PDL":          b.env.Workflow.PDL.StringWithoutAPIs(),
			"Toolbox":      b.env.Workflow.Toolbox.String(),
			"CurrentState": "Current time: " + now,
			"History":      b.env.Conv.String(),
		})
	}
	return prompt.Render(prompt.BotReact, map[string]string{
		"TaskDescription": b.env.Workflow.TaskDescription,
		"Workflow":        b.env.Workflow.Document,
		"Toolbox":         b.env.Workflow.Toolbox.String(),
		"CurrentTime":     now,
		"History":         b.env.Conv.String(),
	})
}
