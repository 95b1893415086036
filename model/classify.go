package model

import "strings"

// severityRules is evaluated in order; the first rule whose keywords match
// wins. Order matters: a message mentioning both "network" and "fatal"
// classifies as warning, not critical.
type severityRule struct {
	keywords []string
	severity Severity
}

var severityRules = []severityRule{
	{keywords: []string{"network", "fetch"}, severity: SeverityWarning},
	{keywords: []string{"permission", "security"}, severity: SeverityError},
	{keywords: []string{"critical", "fatal"}, severity: SeverityCritical},
}

// ClassifySeverity assigns a severity from the kind and message. Assigned
// once at record creation and never mutated afterwards.
func ClassifySeverity(kind ErrorKind, message string) Severity {
	haystack := strings.ToLower(string(kind) + " " + message)
	for _, rule := range severityRules {
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) {
				return rule.severity
			}
		}
	}
	return SeverityInfo
}

const DefaultMaxStackLength = 4096

// TruncateStack bounds a stack trace to max bytes, cutting at a line
// boundary when one is near the limit.
func TruncateStack(stack string, max int) string {
	if max <= 0 {
		max = DefaultMaxStackLength
	}
	if len(stack) <= max {
		return stack
	}
	cut := stack[:max]
	if idx := strings.LastIndexByte(cut, '\n'); idx > max/2 {
		cut = cut[:idx]
	}
	return cut
}
