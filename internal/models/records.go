package models

import "time"

// RunRecord marks one simulated conversation as tracked. Its key fields form
// the identity used for idempotent re-runs; Config snapshots the full run
// configuration so judging can reconstruct it later.
type RunRecord struct {
	ExpVersion      string         `json:"exp_version"`
	ExpMode         string         `json:"exp_mode"`
	WorkflowDataset string         `json:"workflow_dataset"`
	WorkflowFormat  string         `json:"workflow_format"`
	WorkflowID      string         `json:"workflow_id"`
	PersonaID       int            `json:"persona_id"`
	ConversationID  string         `json:"conversation_id"`
	Config          map[string]any `json:"config"`
	CreatedAt       time.Time      `json:"created_at"`
}

// SessionVerdict is the LLM judge's whole-conversation result.
type SessionVerdict struct {
	Pass              bool   `json:"pass"`
	GoalsTotal        int    `json:"goals_total"`
	GoalsAccomplished int    `json:"goals_accomplished"`
	Reason            string `json:"reason,omitempty"`
}

// APIStat is the deterministic precision/recall/F1 statistic over the set
// of distinct API names the bot invoked vs the persona's required set.
// It never depends on the LLM scorer.
type APIStat struct {
	Required  []string `json:"required"`
	Called    []string `json:"called"`
	Precision float64  `json:"precision"`
	Recall    float64  `json:"recall"`
	F1        float64  `json:"f1"`
}

// TurnScore is the LLM judge's per-bot-utterance score in turn mode.
// Type carries the out-of-workflow tag of the preceding user turn.
type TurnScore struct {
	UtteranceID int    `json:"utterance_id"`
	Score       int    `json:"score"`
	Type        string `json:"type,omitempty"`
}

// TurnAPIPair pairs the ground-truth API call of a reference bot turn with
// the live bot's predicted call at the same position. Either side may be
// nil when that turn was a plain response.
type TurnAPIPair struct {
	GT   *APICall `json:"gt,omitempty"`
	Pred *APICall `json:"pred,omitempty"`
}

// JudgeRecord is the persisted outcome of judging one conversation.
// Written at most once per conversation id unless force-rejudge clears it.
type JudgeRecord struct {
	ConversationID  string `json:"conversation_id"`
	ExpVersion      string `json:"exp_version"`
	WorkflowDataset string `json:"workflow_dataset"`
	WorkflowFormat  string `json:"workflow_format"`
	WorkflowID      string `json:"workflow_id"`
	Mode            string `json:"mode"`
	NumMessages     int    `json:"num_messages"`

	Session     *SessionVerdict `json:"session,omitempty"`
	SessionStat *APIStat        `json:"session_stat,omitempty"`
	Turns       []TurnScore     `json:"turns,omitempty"`
	TurnStat    []TurnAPIPair   `json:"turn_stat,omitempty"`

	JudgeModel  string    `json:"judge_model"`
	RawResponse string    `json:"raw_response,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
