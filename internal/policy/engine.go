// Package policy decides whether a governed tool call is allowed. A denial
// is a normal return value, never an error: callers branch on the
// ValidationResult, and only the governance layer converts denials into a
// SecurityError surface.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// FailedPolicy names the first check that denied a request.
type FailedPolicy string

const (
	FailedNone       FailedPolicy = ""
	FailedRateLimit  FailedPolicy = "rate_limit"
	FailedRLS        FailedPolicy = "rls"
	FailedComplexity FailedPolicy = "complexity"
	FailedPIIAccess  FailedPolicy = "pii_access"
)

// Request is the typed context of a single tool call. Callers construct it
// explicitly; nothing is inferred from call signatures.
type Request struct {
	UserID   string         `json:"user_id"`
	TenantID string         `json:"tenant_id,omitempty"`
	Tool     string         `json:"tool"`
	Args     map[string]any `json:"args,omitempty"`
}

// ValidationResult is the immutable outcome of one Validate call. Results
// are cached by value for CacheTTL, so callers must not mutate them.
type ValidationResult struct {
	Allowed      bool           `json:"is_allowed"`
	Reason       string         `json:"reason"`
	Suggestions  []string       `json:"suggestions,omitempty"`
	FailedPolicy FailedPolicy   `json:"failed_policy,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Config holds the tunable limits. Zero values fall back to defaults.
type Config struct {
	MaxCallsPerHour    int
	MaxComplexityScore int
	CacheTTL           time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxCallsPerHour:    100,
		MaxComplexityScore: 100,
		CacheTTL:           5 * time.Minute,
	}
}

const rateWindow = time.Hour

// piiKeywords trigger the PII access check when they appear in the tool
// name or the serialized arguments.
var piiKeywords = []string{"customer", "user", "personal", "pii", "email", "phone", "ssn", "credit"}

type cacheEntry struct {
	result  ValidationResult
	expires time.Time
}

// Engine owns all policy state: rate-limit windows, tenant and PII grants,
// and the validation cache. One instance is constructed at process start
// and shared by reference; every method is safe for concurrent use.
type Engine struct {
	cfg Config

	// Now is injectable for tests.
	Now func() time.Time

	mu      sync.Mutex
	calls   map[string][]time.Time
	tenants map[string]map[string]bool
	pii     map[string]bool
	cache   map[string]cacheEntry
}

func NewEngine(cfg Config) *Engine {
	defaults := DefaultConfig()
	if cfg.MaxCallsPerHour <= 0 {
		cfg.MaxCallsPerHour = defaults.MaxCallsPerHour
	}
	if cfg.MaxComplexityScore <= 0 {
		cfg.MaxComplexityScore = defaults.MaxComplexityScore
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaults.CacheTTL
	}
	return &Engine{
		cfg:     cfg,
		Now:     time.Now,
		calls:   map[string][]time.Time{},
		tenants: map[string]map[string]bool{},
		pii:     map[string]bool{},
		cache:   map[string]cacheEntry{},
	}
}

// Validate runs the policy checks in order, short-circuiting on the first
// failure: cache lookup, rate limit, RLS tenant check, complexity score,
// PII access. The result (pass or fail) is cached under the request key
// before returning. A rate-limit slot is consumed only when the call is
// ultimately allowed; cache hits consume nothing.
func (e *Engine) Validate(req Request) ValidationResult {
	key := requestKey(req)
	now := e.Now().UTC()

	e.mu.Lock()
	defer e.mu.Unlock()

	if entry, ok := e.cache[key]; ok && now.Before(entry.expires) {
		return entry.result
	}

	recent := pruneBefore(e.calls[req.UserID], now.Add(-rateWindow))
	e.calls[req.UserID] = recent

	if len(recent) >= e.cfg.MaxCallsPerHour {
		retryAt := recent[0].Add(rateWindow)
		return e.finish(key, now, ValidationResult{
			Reason:       fmt.Sprintf("Rate limit exceeded: %d calls in the last hour (max %d)", len(recent), e.cfg.MaxCallsPerHour),
			Suggestions:  []string{fmt.Sprintf("Retry after %s", retryAt.Format(time.RFC3339))},
			FailedPolicy: FailedRateLimit,
		})
	}

	if req.TenantID != "" && !e.tenants[req.UserID][req.TenantID] {
		allowed := grantedTenants(e.tenants[req.UserID])
		suggestion := "No tenant access granted for user " + req.UserID
		if len(allowed) > 0 {
			suggestion = "Allowed tenants: " + strings.Join(allowed, ", ")
		}
		return e.finish(key, now, ValidationResult{
			Reason:       fmt.Sprintf("User %s has no access to tenant %s", req.UserID, req.TenantID),
			Suggestions:  []string{suggestion},
			FailedPolicy: FailedRLS,
		})
	}

	score := complexityScore(req.Args)
	if score > e.cfg.MaxComplexityScore {
		return e.finish(key, now, ValidationResult{
			Reason: fmt.Sprintf("Complexity score %d exceeds maximum %d", score, e.cfg.MaxComplexityScore),
			Suggestions: []string{
				"Reduce argument nesting depth",
				"Shorten the query or split it across calls",
			},
			FailedPolicy: FailedComplexity,
		})
	}

	if touchesPII(req.Tool, req.Args) && !e.pii[req.UserID] {
		return e.finish(key, now, ValidationResult{
			Reason:       fmt.Sprintf("User %s lacks PII access for tool %s", req.UserID, req.Tool),
			Suggestions:  []string{"Request a PII grant for user " + req.UserID},
			FailedPolicy: FailedPIIAccess,
		})
	}

	e.calls[req.UserID] = append(recent, now)
	return e.finish(key, now, ValidationResult{
		Allowed: true,
		Reason:  "All policy checks passed",
		Metadata: map[string]any{
			"checks_passed": []string{"rate_limit", "rls", "complexity", "pii_access"},
		},
	})
}

// finish caches the result under key and returns it. Caller holds e.mu.
func (e *Engine) finish(key string, now time.Time, res ValidationResult) ValidationResult {
	e.cache[key] = cacheEntry{result: res, expires: now.Add(e.cfg.CacheTTL)}
	return res
}

// GrantTenant allows user to act within tenant.
func (e *Engine) GrantTenant(user, tenant string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tenants[user] == nil {
		e.tenants[user] = map[string]bool{}
	}
	e.tenants[user][tenant] = true
}

// RevokeTenant removes a tenant grant. Cached validation results keep
// their old outcome until the cache entry expires.
func (e *Engine) RevokeTenant(user, tenant string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.tenants[user], tenant)
}

// GrantPII allows user to call PII-touching tools.
func (e *Engine) GrantPII(user string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pii[user] = true
}

// RevokePII removes a PII grant.
func (e *Engine) RevokePII(user string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pii, user)
}

// Sweep removes expired validation-cache entries and rate-limit timestamps
// older than the trailing window. It returns the number of cache entries
// and timestamps dropped. Validate prunes lazily as well; Sweep keeps
// long-idle keys from pinning memory.
func (e *Engine) Sweep() (cacheRemoved, callsPruned int) {
	now := e.Now().UTC()
	cutoff := now.Add(-rateWindow)

	e.mu.Lock()
	defer e.mu.Unlock()

	for key, entry := range e.cache {
		if !now.Before(entry.expires) {
			delete(e.cache, key)
			cacheRemoved++
		}
	}
	for user, stamps := range e.calls {
		kept := pruneBefore(stamps, cutoff)
		callsPruned += len(stamps) - len(kept)
		if len(kept) == 0 {
			delete(e.calls, user)
			continue
		}
		e.calls[user] = kept
	}
	return cacheRemoved, callsPruned
}

// requestKey derives the deterministic cache key for a request. Arguments
// are canonicalized through encoding/json, which sorts map keys at every
// level.
func requestKey(req Request) string {
	args, err := json.Marshal(req.Args)
	if err != nil {
		args = []byte(fmt.Sprintf("%v", req.Args))
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", req.UserID, req.TenantID, req.Tool, args)
	return hex.EncodeToString(h.Sum(nil))
}

func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	kept := stamps[:0:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

func grantedTenants(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for tenant := range set {
		out = append(out, tenant)
	}
	sort.Strings(out)
	return out
}

// complexityScore estimates how expensive a call is to evaluate:
// 10 base + len(serialized "query" argument)/100 + 5 per argument +
// 10 per level of nesting.
func complexityScore(args map[string]any) int {
	score := 10
	if q, ok := args["query"]; ok {
		score += len(serializeArg(q)) / 100
	}
	score += 5 * len(args)
	score += 10 * nestingDepth(args)
	return score
}

func serializeArg(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(out)
}

func nestingDepth(v any) int {
	switch val := v.(type) {
	case map[string]any:
		max := 0
		for _, item := range val {
			if d := nestingDepth(item); d > max {
				max = d
			}
		}
		return 1 + max
	case []any:
		max := 0
		for _, item := range val {
			if d := nestingDepth(item); d > max {
				max = d
			}
		}
		return 1 + max
	default:
		return 0
	}
}

func touchesPII(tool string, args map[string]any) bool {
	haystack := strings.ToLower(tool + " " + serializeArg(args))
	for _, kw := range piiKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}
