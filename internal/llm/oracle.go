package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"datawarden/internal/metrics"
)

// Completer is one provider backend.
type Completer interface {
	Complete(ctx context.Context, prompt, system string, maxTokens int) (string, error)
}

// Oracle adapts a provider client to the healing executor's consultation
// surface. Prompts are sanitized and redacted before leaving the process:
// healing prompts embed raw database error text, which counts as external
// data.
type Oracle struct {
	Client         Completer
	MaxTokens      int
	RedactPatterns []string
}

const defaultOracleMaxTokens = 64

// NewOracleClient builds a provider client by name. Supported providers
// are "anthropic" (default) and "openai".
func NewOracleClient(provider, apiBase, apiKey, model string) (Completer, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "anthropic":
		return &AnthropicClient{APIBase: apiBase, APIKey: apiKey, Model: model}, nil
	case "openai":
		return &OpenAIClient{APIBase: apiBase, APIKey: apiKey, Model: model}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

func (o *Oracle) Complete(ctx context.Context, prompt, system string) (string, error) {
	cleaned := Redact(SanitizePromptInput(prompt), o.RedactPatterns)
	maxTokens := o.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultOracleMaxTokens
	}
	reply, err := o.Client.Complete(ctx, cleaned, system, maxTokens)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.OracleConsultationsTotal.WithLabelValues(outcome).Inc()
	return reply, err
}

// Redact strips configured secret patterns from a prompt.
func Redact(input string, patterns []string) string {
	out := input
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		out = re.ReplaceAllString(out, "[REDACTED]")
	}
	return strings.TrimSpace(out)
}

// injectionPatterns matches common prompt injection attempts in external data.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?above\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?previous`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?previous`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+a`),
	regexp.MustCompile(`(?i)new\s+instructions?\s*:`),
	regexp.MustCompile(`(?i)system\s*:\s*you`),
	regexp.MustCompile(`(?i)<<\s*SYS\s*>>`),
	regexp.MustCompile(`(?i)\[INST\]`),
	regexp.MustCompile(`(?i)\[/INST\]`),
	regexp.MustCompile(`(?i)<\|im_start\|>`),
	regexp.MustCompile(`(?i)<\|im_end\|>`),
}

// SanitizePromptInput cleans external data before including it in LLM prompts.
// It strips control characters and common prompt injection patterns.
func SanitizePromptInput(input string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, input)

	for _, re := range injectionPatterns {
		cleaned = re.ReplaceAllString(cleaned, "[FILTERED]")
	}

	return cleaned
}
