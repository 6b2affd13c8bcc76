// Package governance orchestrates a governed tool call: policy validation,
// an attempt audit entry, execution, result masking, and an outcome audit
// entry, in that order. It is the only layer that converts policy denials
// into errors.
package governance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"datawarden/internal/audit"
	"datawarden/internal/masking"
	"datawarden/internal/metrics"
	"datawarden/internal/policy"
)

// DefaultUserID is assumed when a request does not name a user.
const DefaultUserID = "default_user"

// Request is the typed call context. Callers construct it explicitly;
// user and tenant are never inferred from tool signatures.
type Request struct {
	UserID   string         `json:"user_id"`
	TenantID string         `json:"tenant_id,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
}

// Tool is any governed callable. Implementations that do blocking work
// must honor ctx; the middleware imposes no timeout of its own.
type Tool interface {
	Name() string
	Invoke(ctx context.Context, req Request) (any, error)
}

type toolFunc struct {
	name string
	fn   func(ctx context.Context, req Request) (any, error)
}

func (t toolFunc) Name() string { return t.name }

func (t toolFunc) Invoke(ctx context.Context, req Request) (any, error) {
	return t.fn(ctx, req)
}

// NewTool wraps a plain function as a Tool.
func NewTool(name string, fn func(ctx context.Context, req Request) (any, error)) Tool {
	return toolFunc{name: name, fn: fn}
}

// Options configure one wrapped tool.
type Options struct {
	// RequiresPII is informational only; PII-touching tools are still
	// auto-detected by the policy engine.
	RequiresPII bool
	Sensitivity masking.Sensitivity
	// InputSchema, when set, is a JSON Schema the call arguments must
	// satisfy before the tool runs.
	InputSchema []byte
}

// SecurityError surfaces a policy denial to the caller.
type SecurityError struct {
	Message      string
	FailedPolicy policy.FailedPolicy
	Suggestions  []string
	Result       policy.ValidationResult
}

func (e *SecurityError) Error() string { return e.Message }

type Middleware struct {
	Policy *policy.Engine
	Audit  audit.Sink

	// Now is injectable for tests.
	Now func() time.Time
}

func NewMiddleware(engine *policy.Engine, sink audit.Sink) *Middleware {
	return &Middleware{Policy: engine, Audit: sink, Now: time.Now}
}

// Execute runs tool under the full governance pipeline and returns the
// masked result. Policy denials come back as *SecurityError; any error
// from the tool itself is audited and re-surfaced unchanged.
func (m *Middleware) Execute(ctx context.Context, tool Tool, opts Options, req Request) (any, error) {
	if req.UserID == "" {
		req.UserID = DefaultUserID
	}
	validation := m.Policy.Validate(policy.Request{
		UserID:   req.UserID,
		TenantID: req.TenantID,
		Tool:     tool.Name(),
		Args:     req.Args,
	})
	recordDecision(validation)

	base := audit.Entry{
		UserID:     req.UserID,
		TenantID:   req.TenantID,
		Tool:       tool.Name(),
		Args:       req.Args,
		Validation: &validation,
	}

	attempt := base
	attempt.Timestamp = m.now()
	attempt.Status = audit.StatusAttempt
	if err := m.append(ctx, attempt); err != nil {
		return nil, fmt.Errorf("audit attempt: %w", err)
	}

	if !validation.Allowed {
		msg := "Security policy violation: " + validation.Reason
		outcome := base
		outcome.Timestamp = m.now()
		outcome.Status = audit.StatusError
		outcome.Error = msg
		m.appendBestEffort(ctx, outcome)
		metrics.ToolExecutionsTotal.WithLabelValues(tool.Name(), "denied").Inc()
		return nil, &SecurityError{
			Message:      msg,
			FailedPolicy: validation.FailedPolicy,
			Suggestions:  validation.Suggestions,
			Result:       validation,
		}
	}

	if len(opts.InputSchema) > 0 {
		if err := validateArgs(opts.InputSchema, req.Args); err != nil {
			outcome := base
			outcome.Timestamp = m.now()
			outcome.Status = audit.StatusError
			outcome.Error = err.Error()
			m.appendBestEffort(ctx, outcome)
			metrics.ToolExecutionsTotal.WithLabelValues(tool.Name(), "invalid_args").Inc()
			return nil, err
		}
	}

	start := m.now()
	result, err := tool.Invoke(ctx, req)
	elapsed := m.now().Sub(start)

	outcome := base
	outcome.Timestamp = m.now()
	outcome.ExecutionTimeMS = elapsed.Milliseconds()
	if err != nil {
		outcome.Status = audit.StatusError
		outcome.Error = err.Error()
		m.appendBestEffort(ctx, outcome)
		metrics.ToolExecutionsTotal.WithLabelValues(tool.Name(), "error").Inc()
		metrics.ToolExecutionDuration.WithLabelValues(tool.Name()).Observe(elapsed.Seconds())
		return nil, err
	}

	masked := masking.Mask(result, opts.Sensitivity)
	outcome.Status = audit.StatusSuccess
	outcome.Result = masked
	m.appendBestEffort(ctx, outcome)
	metrics.ToolExecutionsTotal.WithLabelValues(tool.Name(), "success").Inc()
	metrics.ToolExecutionDuration.WithLabelValues(tool.Name()).Observe(elapsed.Seconds())
	return masked, nil
}

func (m *Middleware) now() time.Time {
	if m.Now == nil {
		return time.Now().UTC()
	}
	return m.Now().UTC()
}

func (m *Middleware) append(ctx context.Context, entry audit.Entry) error {
	err := m.Audit.Append(ctx, entry)
	status := string(entry.Status)
	if err != nil {
		status = "failed"
	}
	metrics.AuditWritesTotal.WithLabelValues(status).Inc()
	return err
}

// appendBestEffort writes the outcome entry. The execution already
// happened, so a sink failure is logged rather than masking the call's
// real result or error.
func (m *Middleware) appendBestEffort(ctx context.Context, entry audit.Entry) {
	if err := m.append(ctx, entry); err != nil {
		slog.Error("audit outcome write failed",
			"tool", entry.Tool,
			"user_id", entry.UserID,
			"error", err)
	}
}

func recordDecision(res policy.ValidationResult) {
	decision := "allow"
	if !res.Allowed {
		decision = string(res.FailedPolicy)
	}
	metrics.PolicyDecisionsTotal.WithLabelValues(decision).Inc()
}
