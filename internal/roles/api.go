package roles

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/flowsim-go/internal/llm"
	"github.com/raphaelgruber/flowsim-go/internal/models"
	"github.com/raphaelgruber/flowsim-go/internal/prompt"
	"github.com/raphaelgruber/flowsim-go/internal/retry"
)

// simulatedAPI answers bot API calls with model-generated responses that
// are plausible for the toolbox definition.
type simulatedAPI struct {
	env   *Env
	model *llm.Model
}

func newSimulatedAPI(ctx context.Context, env *Env) (API, error) {
	model, err := env.Models.Get(ctx, env.Cfg.APILLM, env.Cfg.BotRetryLimit)
	if err != nil {
		return nil, err
	}
	return &simulatedAPI{env: env, model: model}, nil
}

func (a *simulatedAPI) Process(ctx context.Context, call models.BotOutput) (models.APIOutput, error) {
	if _, ok := a.env.Workflow.Toolbox.Find(call.Action); !ok {
		errMsg := fmt.Sprintf("<Calling API Error> : %s not in %v", call.Action, a.env.Workflow.Toolbox.Names())
		a.env.Conv.Append(models.Message{Role: models.RoleSystem, Content: errMsg})
		return models.APIOutput{
			Name:       call.Action,
			Request:    call.ActionInput,
			StatusCode: 400,
			Data:       errMsg,
		}, nil
	}

	promptText, err := prompt.Render(prompt.APISim, map[string]any{
		"Toolbox":  a.env.Workflow.Toolbox.String(),
		"APIName":  call.Action,
		"APIInput": call.ActionInput,
	})
	if err != nil {
		return models.APIOutput{}, err
	}

	type genOut struct {
		raw    string
		output models.APIOutput
	}
	out, err := retry.Do(ctx, a.env.Cfg.BotRetryLimit, "api_process", a.env.Log, func() (genOut, error) {
		raw, err := a.model.Generate(ctx, promptText)
		if err != nil {
			return genOut{}, err
		}
		output, err := parseAPIOutput(raw, call)
		if err != nil {
			return genOut{}, err
		}
		return genOut{raw: raw, output: output}, nil
	})
	if err != nil {
		return models.APIOutput{}, err
	}

	content := models.APIResponsePrefix + out.output.Data
	if out.output.StatusCode != 200 {
		content = fmt.Sprintf("%s%d %s", models.APIResponsePrefix, out.output.StatusCode, out.output.Data)
	}
	a.env.Conv.Append(models.Message{
		Role:        models.RoleSystem,
		Content:     content,
		Prompt:      promptText,
		LLMResponse: out.raw,
	})
	return out.output, nil
}
