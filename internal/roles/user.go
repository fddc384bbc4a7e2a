package roles

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/raphaelgruber/flowsim-go/internal/llm"
	"github.com/raphaelgruber/flowsim-go/internal/models"
	"github.com/raphaelgruber/flowsim-go/internal/prompt"
	"github.com/raphaelgruber/flowsim-go/internal/retry"
)

// simulatedUser plays a persona from the workflow's profile set.
type simulatedUser struct {
	env     *Env
	model   *llm.Model
	profile models.UserProfile

	// out-of-workflow injection; zero ratio disables it
	oowRatio   float64
	intentions []models.OOWIntention
	rng        func() float64
}

func newSimulatedUser(ctx context.Context, env *Env) (User, error) {
	model, err := env.Models.Get(ctx, env.Cfg.UserLLM, env.Cfg.UserRetryLimit)
	if err != nil {
		return nil, err
	}
	if env.PersonaID < 0 || env.PersonaID >= len(env.Workflow.Profiles) {
		return nil, fmt.Errorf("persona %d out of range, workflow has %d profiles",
			env.PersonaID, len(env.Workflow.Profiles))
	}
	return &simulatedUser{
		env:     env,
		model:   model,
		profile: env.Workflow.Profiles[env.PersonaID],
	}, nil
}

func newOOWUser(ctx context.Context, env *Env) (User, error) {
	base, err := newSimulatedUser(ctx, env)
	if err != nil {
		return nil, err
	}
	u := base.(*simulatedUser)
	if len(env.Workflow.OOWIntentions) == 0 {
		return nil, fmt.Errorf("user mode %q needs an out-of-workflow catalogue", env.Cfg.UserMode)
	}
	u.oowRatio = env.Cfg.UserOOWRatio
	u.intentions = env.Workflow.OOWIntentions
	u.rng = rand.Float64
	return u, nil
}

func (u *simulatedUser) Process(ctx context.Context) (models.UserOutput, error) {
	// Occasionally push the persona off the workflow's rails.
	var intention *models.OOWIntention
	if u.oowRatio > 0 && u.rng() < u.oowRatio {
		intention = &u.intentions[u.env.PersonaID%len(u.intentions)]
	}

	promptText, err := u.buildPrompt(intention)
	if err != nil {
		return models.UserOutput{}, err
	}

	type genOut struct {
		raw    string
		output models.UserOutput
	}
	out, err := retry.Do(ctx, u.env.Cfg.UserRetryLimit, "user_process", u.env.Log, func() (genOut, error) {
		raw, err := u.model.Generate(ctx, promptText)
		if err != nil {
			return genOut{}, err
		}
		return genOut{raw: raw, output: parseUserOutput(raw)}, nil
	})
	if err != nil {
		return models.UserOutput{}, err
	}

	msg := models.Message{
		Role:        models.RoleUser,
		Content:     out.output.Response,
		Prompt:      promptText,
		LLMResponse: out.raw,
	}
	if intention != nil {
		msg.Type = intention.Name
	}
	u.env.Conv.Append(msg)
	return out.output, nil
}

func (u *simulatedUser) buildPrompt(intention *models.OOWIntention) (string, error) {
	profile := u.profile
	name := prompt.UserSim
	if intention != nil {
		profile.AdditionalConstraints = intention.String()
		name = prompt.UserOOW
	}
	return prompt.Render(name, map[string]string{
		"AssistantDescription": u.env.Workflow.TaskDescription,
		"UserProfile":          profile.String(),
		"History":              u.env.Conv.String(),
	})
}

// manualUser reads user turns from an input stream, for interactive runs.
type manualUser struct {
	env    *Env
	reader *bufio.Reader
	out    io.Writer
}

func newManualUser(_ context.Context, env *Env) (User, error) {
	return &manualUser{env: env, reader: bufio.NewReader(os.Stdin), out: os.Stdout}, nil
}

func (u *manualUser) Process(_ context.Context) (models.UserOutput, error) {
	var input string
	for strings.TrimSpace(input) == "" {
		fmt.Fprint(u.out, "[USER] ")
		line, err := u.reader.ReadString('\n')
		if err != nil {
			return models.UserOutput{}, fmt.Errorf("reading user input: %w", err)
		}
		input = line
	}
	input = strings.TrimSpace(input)
	u.env.Conv.Append(models.Message{Role: models.RoleUser, Content: input})
	return models.UserOutput{Response: input}, nil
}
