package db

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/flowsim-go/internal/models"
)

// filterKeyPattern restricts filter map keys to plain field names, since
// they are interpolated into the query text.
var filterKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// whereClause builds a WHERE clause from an equality filter. Keys are
// validated; values are passed as query parameters.
func whereClause(filter map[string]any) (string, map[string]any, error) {
	if len(filter) == 0 {
		return "", nil, fmt.Errorf("empty filter")
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		if !filterKeyPattern.MatchString(k) {
			return "", nil, fmt.Errorf("invalid filter field %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, len(keys))
	vars := make(map[string]any, len(keys))
	for i, k := range keys {
		clauses[i] = fmt.Sprintf("%s = $%s", k, k)
		vars[k] = filter[k]
	}
	return "WHERE " + strings.Join(clauses, " AND "), vars, nil
}

// InsertMessages stores the messages of a conversation.
func (c *Client) InsertMessages(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	defer c.record(time.Now())
	_, err := surrealdb.Query[any](ctx, c.db, `INSERT INTO message $msgs`, map[string]any{
		"msgs": msgs,
	})
	if err != nil {
		return fmt.Errorf("insert messages: %w", wrapQueryError(err))
	}
	return nil
}

// QueryConversation loads a conversation's messages ordered by utterance.
func (c *Client) QueryConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	defer c.record(time.Now())
	results, err := surrealdb.Query[[]models.Message](ctx, c.db, `
		SELECT * FROM message WHERE conversation_id = $cid ORDER BY utterance_id ASC
	`, map[string]any{"cid": conversationID})
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}

// DeleteConversation removes all messages of a conversation. Returns the
// number of deleted messages.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) (int, error) {
	defer c.record(time.Now())
	results, err := surrealdb.Query[[]models.Message](ctx, c.db, `
		DELETE message WHERE conversation_id = $cid RETURN BEFORE
	`, map[string]any{"cid": conversationID})
	if err != nil {
		return 0, fmt.Errorf("delete conversation: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

// InsertRunRecord marks a run unit as completed. Returns ErrAlreadyExists
// when another worker recorded the same identity first.
func (c *Client) InsertRunRecord(ctx context.Context, rec models.RunRecord) error {
	defer c.record(time.Now())
	_, err := surrealdb.Query[any](ctx, c.db, `CREATE run_record CONTENT $rec`, map[string]any{
		"rec": rec,
	})
	if err != nil {
		return fmt.Errorf("insert run record: %w", wrapQueryError(err))
	}
	return nil
}

// QueryRunRecords returns run records matching an equality filter.
func (c *Client) QueryRunRecords(ctx context.Context, filter map[string]any) ([]models.RunRecord, error) {
	where, vars, err := whereClause(filter)
	if err != nil {
		return nil, fmt.Errorf("query run records: %w", err)
	}
	defer c.record(time.Now())
	results, err := surrealdb.Query[[]models.RunRecord](ctx, c.db,
		"SELECT * FROM run_record "+where+" ORDER BY created_at ASC", vars)
	if err != nil {
		return nil, fmt.Errorf("query run records: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}

// DeleteRunRecords removes run records matching an equality filter and
// returns how many were deleted.
func (c *Client) DeleteRunRecords(ctx context.Context, filter map[string]any) (int, error) {
	where, vars, err := whereClause(filter)
	if err != nil {
		return 0, fmt.Errorf("delete run records: %w", err)
	}
	defer c.record(time.Now())
	results, err := surrealdb.Query[[]models.RunRecord](ctx, c.db,
		"DELETE run_record "+where+" RETURN BEFORE", vars)
	if err != nil {
		return 0, fmt.Errorf("delete run records: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

// InsertEvaluation stores a judge verdict. Returns ErrAlreadyExists when
// the conversation was judged concurrently.
func (c *Client) InsertEvaluation(ctx context.Context, rec models.JudgeRecord) error {
	defer c.record(time.Now())
	_, err := surrealdb.Query[any](ctx, c.db, `CREATE evaluation CONTENT $rec`, map[string]any{
		"rec": rec,
	})
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", wrapQueryError(err))
	}
	return nil
}

// QueryEvaluations returns judge verdicts matching an equality filter.
func (c *Client) QueryEvaluations(ctx context.Context, filter map[string]any) ([]models.JudgeRecord, error) {
	where, vars, err := whereClause(filter)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer c.record(time.Now())
	results, err := surrealdb.Query[[]models.JudgeRecord](ctx, c.db,
		"SELECT * FROM evaluation "+where+" ORDER BY created_at ASC", vars)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}

// DeleteEvaluations removes judge verdicts matching an equality filter
// and returns how many were deleted.
func (c *Client) DeleteEvaluations(ctx context.Context, filter map[string]any) (int, error) {
	where, vars, err := whereClause(filter)
	if err != nil {
		return 0, fmt.Errorf("delete evaluations: %w", err)
	}
	defer c.record(time.Now())
	results, err := surrealdb.Query[[]models.JudgeRecord](ctx, c.db,
		"DELETE evaluation "+where+" RETURN BEFORE", vars)
	if err != nil {
		return 0, fmt.Errorf("delete evaluations: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}
