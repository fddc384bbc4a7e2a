package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Experiment modes. Session runs the full user/bot/api loop; turn replays
// a reference conversation and records the bot's prediction at every bot
// position.
const (
	ExpModeSession = "session"
	ExpModeTurn    = "turn"
)

// Workflow document formats.
const (
	FormatText      = "text"
	FormatCode      = "code"
	FormatFlowchart = "flowchart"
	FormatPDL       = "pdl"
)

// RunConfig describes one experiment: which workflow to run, which role
// implementations and models to use, the validation switches, and the
// batch and judging settings. It is loaded from a YAML file with
// environment variables expanded, so API keys and hosts never need to be
// committed alongside experiment definitions.
type RunConfig struct {
	DataDir string `yaml:"data_dir"`

	WorkflowDataset string `yaml:"workflow_dataset"`
	WorkflowFormat  string `yaml:"workflow_format"`
	WorkflowID      string `yaml:"workflow_id"`

	ExpVersion string `yaml:"exp_version"`
	ExpMode    string `yaml:"exp_mode"`

	UserMode       string  `yaml:"user_mode"`
	UserLLM        string  `yaml:"user_llm"`
	UserProfileID  int     `yaml:"user_profile_id"`
	UserRetryLimit int     `yaml:"user_retry_limit"`
	UserOOWRatio   float64 `yaml:"user_oow_ratio"`

	BotMode        string `yaml:"bot_mode"`
	BotLLM         string `yaml:"bot_llm"`
	BotActionLimit int    `yaml:"bot_action_limit"`
	BotRetryLimit  int    `yaml:"bot_retry_limit"`

	CheckDependencies  bool `yaml:"check_dependencies"`
	CheckDuplicates    bool `yaml:"check_duplicates"`
	DuplicateThreshold int  `yaml:"duplicate_threshold"`

	APIMode string `yaml:"api_mode"`
	APILLM  string `yaml:"api_llm"`

	ConversationTurnLimit int `yaml:"conversation_turn_limit"`

	SimulateNumPersona int  `yaml:"simulate_num_persona"`
	SimulateMaxWorkers int  `yaml:"simulate_max_workers"`
	ForceRerun         bool `yaml:"force_rerun"`

	JudgeMaxWorkers     int    `yaml:"judge_max_workers"`
	JudgeModel          string `yaml:"judge_model"`
	JudgeConversationID string `yaml:"judge_conversation_id"`
	JudgeRetryLimit     int    `yaml:"judge_retry_limit"`
	ForceRejudge        bool   `yaml:"force_rejudge"`

	LogToStore bool `yaml:"log_to_store"`
}

// DefaultRunConfig returns a RunConfig with every knob at its default.
// Loading a file overrides only the keys it sets.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		DataDir:        "data",
		WorkflowFormat: FormatPDL,
		ExpMode:        ExpModeSession,

		UserMode:       "simulated",
		UserLLM:        "gpt-4o",
		UserProfileID:  0,
		UserRetryLimit: 3,
		UserOOWRatio:   0,

		BotMode:        "react",
		BotLLM:         "gpt-4o",
		BotActionLimit: 5,
		BotRetryLimit:  3,

		CheckDependencies:  true,
		CheckDuplicates:    true,
		DuplicateThreshold: 2,

		APIMode: "simulated",
		APILLM:  "gpt-4o",

		ConversationTurnLimit: 20,

		SimulateNumPersona: -1,
		SimulateMaxWorkers: 10,

		JudgeMaxWorkers: 10,
		JudgeModel:      "gpt-4o",
		JudgeRetryLimit: 3,

		LogToStore: true,
	}
}

// LoadRunConfig reads an experiment definition from a YAML file. Values of
// the form ${VAR} or $VAR are expanded from the environment before parsing.
func LoadRunConfig(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading run config: %w", err)
	}
	expanded := os.Expand(string(data), os.Getenv)

	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, fmt.Errorf("parsing run config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("run config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields that later stages assume to be well-formed.
func (c RunConfig) Validate() error {
	if c.WorkflowDataset == "" {
		return fmt.Errorf("workflow_dataset is required")
	}
	if c.ExpVersion == "" {
		return fmt.Errorf("exp_version is required")
	}
	switch c.ExpMode {
	case ExpModeSession, ExpModeTurn:
	default:
		return fmt.Errorf("exp_mode must be %q or %q, got %q", ExpModeSession, ExpModeTurn, c.ExpMode)
	}
	switch c.WorkflowFormat {
	case FormatText, FormatCode, FormatFlowchart, FormatPDL:
	default:
		return fmt.Errorf("unknown workflow_format %q", c.WorkflowFormat)
	}
	if c.ConversationTurnLimit <= 0 {
		return fmt.Errorf("conversation_turn_limit must be positive")
	}
	if c.DuplicateThreshold <= 0 {
		return fmt.Errorf("duplicate_threshold must be positive")
	}
	return nil
}

// Map returns the config as a generic map for persisting alongside run
// records. Keys follow the YAML names.
func (c RunConfig) Map() map[string]any {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
