package sitegen

import "regexp"

// Redaction tokens
const (
	RedactedAPIKey = "[REDACTED_API_KEY]"
	RedactedToken  = "[REDACTED_TOKEN]"
)

// Rule replaces every match of Pattern with Replacement
type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
}

// DefaultRules covers vendor API keys and OAuth/bot token formats. Order
// matters: sk-proj- keys are caught before the generic sk- rule.
var DefaultRules = []Rule{
	{"openai-project-key", regexp.MustCompile(`sk-proj-[a-zA-Z0-9]{40,}`), RedactedAPIKey},
	{"openai-key", regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`), RedactedAPIKey},
	{"moltbook-key", regexp.MustCompile(`moltbook_sk_[a-zA-Z0-9_-]+`), RedactedAPIKey},
	{"github-pat", regexp.MustCompile(`ghp_[a-zA-Z0-9]{36}`), RedactedToken},
	{"github-oauth", regexp.MustCompile(`gho_[a-zA-Z0-9]{36}`), RedactedToken},
	{"github-fine-grained", regexp.MustCompile(`github_pat_[a-zA-Z0-9_]{22,}`), RedactedToken},
	{"slack-bot", regexp.MustCompile(`xoxb-[a-zA-Z0-9-]+`), RedactedToken},
	{"slack-user", regexp.MustCompile(`xoxp-[a-zA-Z0-9-]+`), RedactedToken},
}

// Sanitizer redacts credential-like substrings
type Sanitizer struct {
	rules []Rule
}

// NewSanitizer returns a Sanitizer applying rules in order. Nil rules
// selects DefaultRules.
func NewSanitizer(rules []Rule) *Sanitizer {
	if rules == nil {
		rules = DefaultRules
	}
	return &Sanitizer{rules: rules}
}

// Sanitize applies every rule, in order, to every match in text
func (s *Sanitizer) Sanitize(text string) string {
	if text == "" {
		return text
	}
	for _, rule := range s.rules {
		text = rule.Pattern.ReplaceAllLiteralString(text, rule.Replacement)
	}
	return text
}

// SanitizePtr is Sanitize for optional text; nil stays nil
func (s *Sanitizer) SanitizePtr(text *string) *string {
	if text == nil {
		return nil
	}
	clean := s.Sanitize(*text)
	return &clean
}
