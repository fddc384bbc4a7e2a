package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- MESSAGE TABLE (one row per conversation utterance)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS message SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS role ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS prompt ON message TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS llm_response ON message TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS conversation_id ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS utterance_id ON message TYPE int;
    DEFINE FIELD IF NOT EXISTS type ON message TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS apis ON message TYPE option<array<object>> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS content_predict ON message TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON message TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS message_conversation ON message FIELDS conversation_id;

    -- ==========================================================================
    -- RUN_RECORD TABLE (marks a persona/workflow unit as completed)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS run_record SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS exp_version ON run_record TYPE string;
    DEFINE FIELD IF NOT EXISTS exp_mode ON run_record TYPE string;
    DEFINE FIELD IF NOT EXISTS workflow_dataset ON run_record TYPE string;
    DEFINE FIELD IF NOT EXISTS workflow_format ON run_record TYPE string;
    DEFINE FIELD IF NOT EXISTS workflow_id ON run_record TYPE string;
    DEFINE FIELD IF NOT EXISTS persona_id ON run_record TYPE int;
    DEFINE FIELD IF NOT EXISTS conversation_id ON run_record TYPE string;
    DEFINE FIELD IF NOT EXISTS config ON run_record TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS created_at ON run_record TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS run_record_version ON run_record FIELDS exp_version;
    -- Identity key: two workers racing on the same unit collide here and
    -- the loser treats the unit as already run.
    DEFINE INDEX IF NOT EXISTS run_record_identity ON run_record
        FIELDS exp_version, exp_mode, workflow_dataset, workflow_format, workflow_id, persona_id UNIQUE;

    -- ==========================================================================
    -- EVALUATION TABLE (judge verdicts, one per conversation)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS evaluation SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS conversation_id ON evaluation TYPE string;
    DEFINE FIELD IF NOT EXISTS exp_version ON evaluation TYPE string;
    DEFINE FIELD IF NOT EXISTS workflow_dataset ON evaluation TYPE string;
    DEFINE FIELD IF NOT EXISTS workflow_format ON evaluation TYPE string;
    DEFINE FIELD IF NOT EXISTS workflow_id ON evaluation TYPE string;
    DEFINE FIELD IF NOT EXISTS mode ON evaluation TYPE string;
    DEFINE FIELD IF NOT EXISTS num_messages ON evaluation TYPE int;
    DEFINE FIELD IF NOT EXISTS session ON evaluation TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS session_stat ON evaluation TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS turns ON evaluation TYPE option<array<object>> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS turn_stat ON evaluation TYPE option<array<object>> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS judge_model ON evaluation TYPE string;
    DEFINE FIELD IF NOT EXISTS raw_response ON evaluation TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON evaluation TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS evaluation_conversation ON evaluation FIELDS conversation_id UNIQUE;
    DEFINE INDEX IF NOT EXISTS evaluation_version ON evaluation FIELDS exp_version;
`
