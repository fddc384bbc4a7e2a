package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/flowsim-go/internal/config"
	"github.com/raphaelgruber/flowsim-go/internal/metrics"
	"github.com/raphaelgruber/flowsim-go/internal/retry"
)

// Providers.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

const backoffBase = 500 * time.Millisecond

// ProviderFor infers the provider from the model name. Bedrock model ids
// carry a vendor prefix, hosted models use their vendor's naming, and
// anything unrecognized is assumed to be served by a local ollama.
func ProviderFor(modelName string) string {
	switch {
	case strings.HasPrefix(modelName, "anthropic."),
		strings.HasPrefix(modelName, "amazon."),
		strings.HasPrefix(modelName, "meta."),
		strings.HasPrefix(modelName, "mistral."):
		return ProviderBedrock
	case strings.HasPrefix(modelName, "gpt-"), strings.HasPrefix(modelName, "o1"):
		return ProviderOpenAI
	case strings.HasPrefix(modelName, "claude-"):
		return ProviderAnthropic
	default:
		return ProviderOllama
	}
}

// Model wraps a langchaingo LLM for text generation with bounded retry
// and usage accounting.
type Model struct {
	llm        llms.Model
	modelName  string
	collector  *metrics.Collector
	retryLimit int
}

// NewModel creates a model client for the named model; the provider is
// inferred from the name.
func NewModel(ctx context.Context, cfg config.Config, modelName string, retryLimit int, collector *metrics.Collector) (*Model, error) {
	var model llms.Model
	var err error

	switch provider := ProviderFor(modelName); provider {
	case ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(modelName),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case ProviderBedrock:
		awscfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := bedrockruntime.NewFromConfig(awscfg)
		model, err = bedrock.New(
			bedrock.WithClient(client),
			bedrock.WithModel(modelName),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}

	if retryLimit < 1 {
		retryLimit = 1
	}
	return &Model{
		llm:        model,
		modelName:  modelName,
		collector:  collector,
		retryLimit: retryLimit,
	}, nil
}

// Generate generates text based on a prompt. Transient failures are
// retried with exponential backoff up to the configured limit.
func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < m.retryLimit; attempt++ {
		if attempt > 0 {
			if err := retry.Sleep(ctx, backoffBase, attempt-1); err != nil {
				return "", err
			}
		}
		start := time.Now()
		response, err := m.llm.GenerateContent(ctx, []llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeHuman, prompt),
		})
		if err != nil {
			lastErr = err
			continue
		}
		if len(response.Choices) == 0 {
			lastErr = fmt.Errorf("no response choices")
			continue
		}
		choice := response.Choices[0]
		if m.collector != nil {
			in, out := usageFromGenerationInfo(choice.GenerationInfo)
			m.collector.RecordLLMUsage(metrics.OpLLMGenerate, time.Since(start), in, out)
		}
		return choice.Content, nil
	}
	return "", fmt.Errorf("generate with %s: %w", m.modelName, lastErr)
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// usageFromGenerationInfo pulls token counts out of the provider-specific
// generation info, where available.
func usageFromGenerationInfo(info map[string]any) (in, out int64) {
	for _, key := range []string{"PromptTokens", "input_tokens", "prompt_tokens"} {
		if v, ok := asInt64(info[key]); ok {
			in = v
			break
		}
	}
	for _, key := range []string{"CompletionTokens", "output_tokens", "completion_tokens"} {
		if v, ok := asInt64(info[key]); ok {
			out = v
			break
		}
	}
	return in, out
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// Factory creates and caches model clients by name, so that the handful
// of models one experiment uses are constructed once and shared across
// workers.
type Factory struct {
	cfg       config.Config
	collector *metrics.Collector

	mu     sync.Mutex
	models map[string]*Model
}

// NewFactory creates a model factory.
func NewFactory(cfg config.Config, collector *metrics.Collector) *Factory {
	return &Factory{
		cfg:       cfg,
		collector: collector,
		models:    make(map[string]*Model),
	}
}

// Get returns the cached client for the named model, creating it on
// first use.
func (f *Factory) Get(ctx context.Context, modelName string, retryLimit int) (*Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.models[modelName]; ok {
		return m, nil
	}
	m, err := NewModel(ctx, f.cfg, modelName, retryLimit, f.collector)
	if err != nil {
		return nil, err
	}
	f.models[modelName] = m
	return m, nil
}
