// Package healing executes constrained queries with automatic recovery
// from schema drift: when a referenced column no longer exists, the
// executor searches semantic alternatives, consults an oracle, rewrites
// the query and retries within a bounded, loop-safe budget.
package healing

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// Backend runs a query and returns row maps. It reports schema problems
// through the typed errors in this package.
type Backend interface {
	Execute(ctx context.Context, query string) ([]map[string]any, error)
}

// Oracle is the external consultative service asked to pick the best
// column correction. Its failure must never surface to the caller; the
// executor falls back deterministically.
type Oracle interface {
	Complete(ctx context.Context, prompt, system string) (string, error)
}

// Attempt records one healing step of a single call.
type Attempt struct {
	FailedColumn    string   `json:"failed_column"`
	Alternatives    []string `json:"alternatives"`
	SuggestedColumn string   `json:"suggested_column"`
	OracleResponse  string   `json:"oracle_raw_response,omitempty"`
}

// Result is the outcome of one QueryWithHealing call.
type Result struct {
	Success        bool             `json:"success"`
	Query          string           `json:"query"`
	Rows           []map[string]any `json:"result,omitempty"`
	Attempt        int              `json:"attempt"`
	HealingApplied bool             `json:"healing_applied"`
	History        []Attempt        `json:"healing_history,omitempty"`
	Error          string           `json:"error,omitempty"`
	Message        string           `json:"message,omitempty"`
}

type Executor struct {
	Backend  Backend
	Ontology *Ontology
	Mappings MappingStore
	Oracle   Oracle

	// MaxRetries bounds healing steps; <=0 means the default of 2
	// (three executions total).
	MaxRetries int
	// OracleTimeout bounds each oracle consultation.
	OracleTimeout time.Duration
}

const (
	defaultMaxRetries    = 2
	defaultOracleTimeout = 10 * time.Second

	oracleSystemPrompt = "You are a database schema assistant. Answer with a single column name, nothing else."
)

func NewExecutor(backend Backend, ontology *Ontology, mappings MappingStore, oracle Oracle) *Executor {
	return &Executor{
		Backend:  backend,
		Ontology: ontology,
		Mappings: mappings,
		Oracle:   oracle,
	}
}

// QueryWithHealing builds SELECT column FROM table [WHERE filter] and runs
// it, healing column-not-found failures. A correction learned on a prior
// call rewrites the initial query, so repeat calls succeed on the first
// attempt without consulting the oracle.
func (e *Executor) QueryWithHealing(ctx context.Context, table, column, filter string) Result {
	requested := column
	if e.Mappings != nil {
		if corrected, ok, err := e.Mappings.Lookup(ctx, table, column); err == nil && ok {
			column = rewriteColumn(column, column, corrected)
		}
	}
	query := buildQuery(table, column, filter)

	attempted := map[string]bool{}
	var history []Attempt
	attempt := 0
	for {
		attempt++
		rows, err := e.Backend.Execute(ctx, query)
		if err == nil {
			if len(history) > 0 && e.Mappings != nil {
				last := history[len(history)-1]
				_ = e.Mappings.Store(ctx, table, last.FailedColumn, last.SuggestedColumn)
			}
			return Result{
				Success:        true,
				Query:          query,
				Rows:           rows,
				Attempt:        attempt,
				HealingApplied: len(history) > 0,
				History:        history,
			}
		}

		var colErr *ColumnNotFoundError
		if !errors.As(err, &colErr) {
			return Result{
				Query:          query,
				Attempt:        attempt,
				HealingApplied: len(history) > 0,
				History:        history,
				Error:          err.Error(),
				Message:        terminalMessage(err),
			}
		}
		if attempt > e.maxRetries() {
			return Result{
				Query:          query,
				Attempt:        attempt,
				HealingApplied: len(history) > 0,
				History:        history,
				Error:          err.Error(),
				Message:        "Max retries exceeded",
			}
		}

		failed := colErr.Column
		if failed == "" {
			failed = requested
		}
		if attempted[strings.ToLower(failed)] {
			return Result{
				Query:          query,
				Attempt:        attempt,
				HealingApplied: len(history) > 0,
				History:        history,
				Error:          err.Error(),
				Message:        fmt.Sprintf("Healing loop detected for column %q", failed),
			}
		}
		attempted[strings.ToLower(failed)] = true

		alternatives := e.alternatives(ctx, table, failed)
		if len(alternatives) == 0 {
			return Result{
				Query:          query,
				Attempt:        attempt,
				HealingApplied: len(history) > 0,
				History:        history,
				Error:          err.Error(),
				Message:        "No semantic alternatives found",
			}
		}

		suggestion, raw := e.consultOracle(ctx, table, failed, alternatives, err.Error())
		canonical, ok := matchAlternative(alternatives, suggestion)
		if !ok {
			canonical = alternatives[0]
		}

		query = rewriteColumn(query, failed, canonical)
		history = append(history, Attempt{
			FailedColumn:    failed,
			Alternatives:    alternatives,
			SuggestedColumn: canonical,
			OracleResponse:  raw,
		})
	}
}

func (e *Executor) maxRetries() int {
	if e.MaxRetries <= 0 {
		return defaultMaxRetries
	}
	return e.MaxRetries
}

// alternatives returns candidate replacements in priority order: the
// learned mapping first, then ontology concept groups, then the fuzzy
// concept-token fallback.
func (e *Executor) alternatives(ctx context.Context, table, failed string) []string {
	if e.Mappings != nil {
		if corrected, ok, err := e.Mappings.Lookup(ctx, table, failed); err == nil && ok {
			return []string{corrected}
		}
	}
	if alts := e.Ontology.Alternatives(failed); len(alts) > 0 {
		return alts
	}
	return e.Ontology.FuzzyAlternatives(failed)
}

// consultOracle asks the oracle to pick among the alternatives. Any oracle
// failure, including a timeout, degrades to an empty suggestion; this path
// never returns an error.
func (e *Executor) consultOracle(ctx context.Context, table, failed string, alternatives []string, rawError string) (suggestion, raw string) {
	if e.Oracle == nil {
		return "", ""
	}
	timeout := e.OracleTimeout
	if timeout <= 0 {
		timeout = defaultOracleTimeout
	}
	oracleCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prompt := buildHealingPrompt(table, failed, alternatives, rawError)
	reply, err := e.Oracle.Complete(oracleCtx, prompt, oracleSystemPrompt)
	if err != nil {
		return "", ""
	}
	return parseOracleReply(reply), reply
}

func buildHealingPrompt(table, failed string, alternatives []string, rawError string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A query against table %q failed because column %q does not exist.\n", table, failed)
	fmt.Fprintf(&b, "Known alternative columns: %s.\n", strings.Join(alternatives, ", "))
	fmt.Fprintf(&b, "Database error: %s\n", rawError)
	b.WriteString("Reply with the single best replacement column name from the alternatives, or NONE if none fits.")
	return b.String()
}

// oracleReplyPrefixes are boilerplate lead-ins stripped from replies.
var oracleReplyPrefixes = []string{"column name:", "the ", "suggested ", "correct "}

// parseOracleReply extracts a bare column name from the oracle's text.
// An empty result or the literal NONE means "no suggestion".
func parseOracleReply(reply string) string {
	s := strings.Trim(strings.TrimSpace(reply), "\"'`")
	for stripped := true; stripped; {
		stripped = false
		lower := strings.ToLower(s)
		for _, prefix := range oracleReplyPrefixes {
			if strings.HasPrefix(lower, prefix) {
				s = strings.TrimSpace(s[len(prefix):])
				stripped = true
				break
			}
		}
	}
	if fields := strings.Fields(s); len(fields) > 0 {
		s = fields[0]
	}
	s = strings.Trim(s, "\"'`.,:;")
	if s == "" || strings.EqualFold(s, "NONE") {
		return ""
	}
	return s
}

// matchAlternative finds suggestion in alternatives case-insensitively and
// returns the alternative's canonical spelling.
func matchAlternative(alternatives []string, suggestion string) (string, bool) {
	if suggestion == "" {
		return "", false
	}
	for _, alt := range alternatives {
		if strings.EqualFold(alt, suggestion) {
			return alt, true
		}
	}
	return "", false
}

func buildQuery(table, column, filter string) string {
	query := fmt.Sprintf("SELECT %s FROM %s", column, table)
	if strings.TrimSpace(filter) != "" {
		query += " WHERE " + filter
	}
	return query
}

// rewriteColumn replaces every word-boundary occurrence of from with to,
// case-insensitively, preserving a leading capital in the original token.
func rewriteColumn(query, from, to string) string {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(from) + `\b`)
	return re.ReplaceAllStringFunc(query, func(match string) string {
		runes := []rune(match)
		if len(runes) > 0 && unicode.IsUpper(runes[0]) {
			return capitalize(to)
		}
		return to
	})
}

func capitalize(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func terminalMessage(err error) string {
	var tableErr *TableNotFoundError
	if errors.As(err, &tableErr) {
		return "Table not found"
	}
	var typeErr *TypeMismatchError
	if errors.As(err, &typeErr) {
		return "Type mismatch"
	}
	return "Query failed"
}
