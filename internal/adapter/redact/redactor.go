package redact

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/user/agent-telemetry/internal/domain"
)

const RedactedPlaceholder = "[REDACTED]"

// Privacy modes. Standard applies the standard rule set; strict applies
// the standard set plus rules tagged strict.
const (
	ModeStandard = "standard"
	ModeStrict   = "strict"
)

// Rule is a named pattern/replacement pair. Rules are ordered and applied
// deterministically. Rules tagged Strict are only active in strict mode.
type Rule struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
	Strict      bool   `yaml:"strict,omitempty"`
}

type compiledRule struct {
	name        string
	re          *regexp.Regexp
	replacement string
}

// Redactor applies privacy rules to outbound records before they are
// persisted or streamed. It is a pure transform: identifiers, timestamps
// and severity are never touched.
type Redactor struct {
	rules  []compiledRule
	logger *slog.Logger
}

// DefaultRules returns the built-in rule set. Callers append file-loaded
// rules after these so the defaults always run first.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "api_key", Pattern: `(?i)(api[_-]?key|secret)["':\s=]+[A-Za-z0-9_\-]{8,}`, Replacement: "$1=" + RedactedPlaceholder},
		{Name: "bearer_token", Pattern: `(?i)bearer\s+[A-Za-z0-9_\-.~+/]+=*`, Replacement: RedactedPlaceholder},
		{Name: "email", Pattern: `[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`, Replacement: RedactedPlaceholder},
		{Name: "file_path", Pattern: `(/[A-Za-z0-9._\-]+){3,}`, Replacement: RedactedPlaceholder, Strict: true},
		{Name: "quoted_literal", Pattern: `"[^"]{24,}"`, Replacement: `"` + RedactedPlaceholder + `"`, Strict: true},
	}
}

// New compiles the given rules for the given privacy mode. Malformed
// patterns are rejected here, at configuration load, never at record time.
func New(rules []Rule, mode string, logger *slog.Logger) (*Redactor, error) {
	strict := mode == ModeStrict

	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Strict && !strict {
			continue
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("redaction rule %q has invalid pattern: %w", rule.Name, err)
		}
		compiled = append(compiled, compiledRule{name: rule.Name, re: re, replacement: rule.Replacement})
	}

	return &Redactor{
		rules:  compiled,
		logger: logger.With("component", "redactor"),
	}, nil
}

// Redact applies every active rule to the record's content and to all
// string values reachable in its metadata. It returns the transformed
// record and whether anything was redacted. A record is never dropped
// because of a redaction failure: on an unexpected internal error the
// entire content field is redacted rather than leaked.
func (r *Redactor) Redact(rec domain.Record) (out domain.Record, wasRedacted bool) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic during redaction, redacting full content", "record_id", rec.ID, "panic", p)
			out = rec
			out.Content = RedactedPlaceholder
			out.Metadata = nil
			wasRedacted = true
		}
	}()

	out = rec

	if out.Content != "" {
		redacted, hit := r.applyAll(out.Content)
		out.Content = redacted
		wasRedacted = wasRedacted || hit
	}

	if len(out.Metadata) > 0 {
		meta, hit, err := r.redactMetadata(out.Metadata)
		if err != nil {
			// Metadata that cannot be parsed cannot be examined, so the
			// whole field is redacted rather than leaked.
			r.logger.Warn("failed to process metadata for redaction, redacting whole field", "record_id", rec.ID, "error", err)
			out.Metadata = json.RawMessage(`{"redacted":true}`)
			return out, true
		}
		if hit {
			out.Metadata = meta
			wasRedacted = true
		}
	}

	return out, wasRedacted
}

func (r *Redactor) redactMetadata(raw json.RawMessage) (json.RawMessage, bool, error) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false, err
	}

	value, hit := r.walk(value)
	if !hit {
		return raw, false, nil
	}

	redacted, err := json.Marshal(value)
	if err != nil {
		return nil, false, err
	}
	return redacted, true, nil
}

// walk applies the rule set to every string nested in the decoded value.
func (r *Redactor) walk(value any) (any, bool) {
	switch v := value.(type) {
	case string:
		return r.applyAll(v)
	case map[string]any:
		hit := false
		for key, elem := range v {
			replaced, h := r.walk(elem)
			if h {
				v[key] = replaced
				hit = true
			}
		}
		return v, hit
	case []any:
		hit := false
		for i, elem := range v {
			replaced, h := r.walk(elem)
			if h {
				v[i] = replaced
				hit = true
			}
		}
		return v, hit
	default:
		return value, false
	}
}

func (r *Redactor) applyAll(s string) (string, bool) {
	hit := false
	for _, rule := range r.rules {
		if !rule.re.MatchString(s) {
			continue
		}
		s = rule.re.ReplaceAllString(s, rule.replacement)
		hit = true
	}
	return s, hit
}
