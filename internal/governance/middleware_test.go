package governance

import (
	"context"
	"errors"
	"testing"
	"time"

	"datawarden/internal/audit"
	"datawarden/internal/masking"
	"datawarden/internal/policy"
)

func newTestMiddleware() (*Middleware, *audit.MemorySink) {
	engine := policy.NewEngine(policy.Config{})
	sink := audit.NewMemorySink()
	m := NewMiddleware(engine, sink)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.Now = func() time.Time { return now }
	return m, sink
}

func echoTool(result any, err error) (Tool, *int) {
	calls := new(int)
	return NewTool("echo", func(ctx context.Context, req Request) (any, error) {
		*calls++
		return result, err
	}), calls
}

func TestExecuteSuccessMasksResult(t *testing.T) {
	m, sink := newTestMiddleware()
	tool, calls := echoTool(map[string]any{
		"contact": "john.doe@example.com",
		"rows":    2,
	}, nil)

	out, err := m.Execute(context.Background(), tool, Options{Sensitivity: masking.SensitivityStandard}, Request{UserID: "bob"})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if *calls != 1 {
		t.Fatalf("calls: %d", *calls)
	}
	masked := out.(map[string]any)
	if masked["contact"] != "***@***.com" || masked["rows"] != 2 {
		t.Fatalf("masked: %v", masked)
	}

	entries, _ := sink.ReadRecent(context.Background(), 0)
	if len(entries) != 2 {
		t.Fatalf("entries: %d", len(entries))
	}
	// Newest first: outcome then attempt.
	if entries[0].Status != audit.StatusSuccess || entries[1].Status != audit.StatusAttempt {
		t.Fatalf("statuses: %s %s", entries[0].Status, entries[1].Status)
	}
	result := entries[0].Result.(map[string]any)
	if result["contact"] != "***@***.com" {
		t.Fatalf("audited result unmasked: %v", result)
	}
	if entries[1].Validation == nil || !entries[1].Validation.Allowed {
		t.Fatalf("attempt validation: %+v", entries[1].Validation)
	}
}

func TestExecuteDeniedRaisesSecurityError(t *testing.T) {
	m, sink := newTestMiddleware()
	tool, calls := echoTool("never", nil)

	_, err := m.Execute(context.Background(), tool, Options{}, Request{UserID: "alice", TenantID: "US"})
	if err == nil {
		t.Fatalf("expected error")
	}
	var secErr *SecurityError
	if !errors.As(err, &secErr) {
		t.Fatalf("err type: %T", err)
	}
	if secErr.FailedPolicy != policy.FailedRLS {
		t.Fatalf("failed policy: %s", secErr.FailedPolicy)
	}
	if len(secErr.Suggestions) == 0 {
		t.Fatalf("suggestions missing")
	}
	if *calls != 0 {
		t.Fatalf("tool executed despite denial")
	}

	entries, _ := sink.ReadRecent(context.Background(), 0)
	if len(entries) != 2 {
		t.Fatalf("entries: %d", len(entries))
	}
	if entries[0].Status != audit.StatusError {
		t.Fatalf("outcome status: %s", entries[0].Status)
	}
	if want := "Security policy violation: "; len(entries[0].Error) <= len(want) || entries[0].Error[:len(want)] != want {
		t.Fatalf("outcome error: %s", entries[0].Error)
	}
}

func TestExecuteToolErrorReRaisedUnchanged(t *testing.T) {
	m, sink := newTestMiddleware()
	sentinel := errors.New("backend exploded")
	tool, _ := echoTool(nil, sentinel)

	_, err := m.Execute(context.Background(), tool, Options{}, Request{UserID: "bob"})
	if !errors.Is(err, sentinel) {
		t.Fatalf("error identity lost: %v", err)
	}
	entries, _ := sink.ReadRecent(context.Background(), 0)
	if len(entries) != 2 || entries[0].Status != audit.StatusError || entries[0].Error != "backend exploded" {
		t.Fatalf("entries: %+v", entries)
	}
}

func TestExecuteDefaultUser(t *testing.T) {
	m, sink := newTestMiddleware()
	tool, _ := echoTool("ok", nil)
	if _, err := m.Execute(context.Background(), tool, Options{}, Request{}); err != nil {
		t.Fatalf("err: %v", err)
	}
	entries, _ := sink.ReadRecent(context.Background(), 1)
	if entries[0].UserID != DefaultUserID {
		t.Fatalf("user: %s", entries[0].UserID)
	}
}

func TestExecuteSchemaValidation(t *testing.T) {
	m, sink := newTestMiddleware()
	tool, calls := echoTool("ok", nil)
	opts := Options{
		InputSchema: []byte(`{"type":"object","required":["table"],"properties":{"table":{"type":"string"}}}`),
	}

	_, err := m.Execute(context.Background(), tool, opts, Request{UserID: "bob", Args: map[string]any{"limit": 5}})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if *calls != 0 {
		t.Fatalf("tool executed with invalid args")
	}
	entries, _ := sink.ReadRecent(context.Background(), 1)
	if entries[0].Status != audit.StatusError {
		t.Fatalf("outcome: %+v", entries[0])
	}

	if _, err := m.Execute(context.Background(), tool, opts, Request{UserID: "bob", Args: map[string]any{"table": "orders"}}); err != nil {
		t.Fatalf("valid args rejected: %v", err)
	}
	if *calls != 1 {
		t.Fatalf("calls: %d", *calls)
	}
}

type failingSink struct{}

func (failingSink) Append(ctx context.Context, entry audit.Entry) error {
	return errors.New("sink down")
}

func (failingSink) ReadRecent(ctx context.Context, limit int) ([]audit.Entry, error) {
	return nil, nil
}

func TestExecuteFailsClosedOnAttemptAuditFailure(t *testing.T) {
	engine := policy.NewEngine(policy.Config{})
	m := NewMiddleware(engine, failingSink{})
	tool, calls := echoTool("ok", nil)
	if _, err := m.Execute(context.Background(), tool, Options{}, Request{UserID: "bob"}); err == nil {
		t.Fatalf("expected error")
	}
	if *calls != 0 {
		t.Fatalf("tool executed without audit trail")
	}
}

func TestExecuteStrictSensitivity(t *testing.T) {
	m, _ := newTestMiddleware()
	tool, _ := echoTool("(555) 123-4567", nil)
	out, err := m.Execute(context.Background(), tool, Options{Sensitivity: masking.SensitivityStrict}, Request{UserID: "bob"})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if out != "(***) ***-****" {
		t.Fatalf("out: %v", out)
	}
}
