package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"datawarden/internal/governance"
	"datawarden/internal/healing"
	"datawarden/internal/metrics"
)

// QueryToolName is the registered name of the customer data query tool.
const QueryToolName = "query_customer_data"

// QuerySchema constrains the query tool's arguments before execution.
var QuerySchema = []byte(`{
	"type": "object",
	"required": ["table", "column"],
	"additionalProperties": false,
	"properties": {
		"table": {"type": "string", "minLength": 1},
		"column": {"type": "string", "minLength": 1},
		"filter": {"type": "string"}
	}
}`)

// QueryTool runs single-column reads through the self-healing executor.
type QueryTool struct {
	Executor *healing.Executor
}

func NewQueryTool(exec *healing.Executor) *QueryTool {
	return &QueryTool{Executor: exec}
}

func (t *QueryTool) Name() string { return QueryToolName }

func (t *QueryTool) Invoke(ctx context.Context, req governance.Request) (any, error) {
	if t == nil || t.Executor == nil {
		return nil, errors.New("query executor required")
	}
	table := stringArg(req.Args, "table")
	column := stringArg(req.Args, "column")
	if table == "" || column == "" {
		return nil, errors.New("table and column required")
	}
	res := t.Executor.QueryWithHealing(ctx, table, column, stringArg(req.Args, "filter"))

	outcome := "failure"
	if res.Success {
		outcome = "success"
		if res.HealingApplied {
			outcome = "healed"
		}
	}
	metrics.HealingAttemptsTotal.WithLabelValues(outcome).Inc()

	// Failures are part of the result payload, not a tool error. The
	// executor already exhausted its retries and explains why.
	return resultPayload(res)
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

// resultPayload flattens the executor result into plain maps and slices
// so the masking pass can walk it.
func resultPayload(res healing.Result) (map[string]any, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
