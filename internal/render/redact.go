package render

import "regexp"

var (
	bearerPattern     = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]{16,}`)
	assignmentPattern = regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password)\s*[:=]\s*['"]?[A-Za-z0-9._\-]{8,}['"]?`)
	longTokenPattern  = regexp.MustCompile(`\b[A-Za-z0-9_\-]{32,}\b`)
)

// RedactSecrets scrubs bearer tokens, key=value style credential
// assignments, and standalone long opaque tokens from input. RenderIssue
// applies it to its fully rendered output, and it is also reused by internal/logging so
// log lines get the same treatment as rendered markdown.
func RedactSecrets(input string) string {
	out := bearerPattern.ReplaceAllString(input, "Bearer [REDACTED]")
	out = assignmentPattern.ReplaceAllString(out, "$1=[REDACTED]")
	out = longTokenPattern.ReplaceAllString(out, "[REDACTED]")
	return out
}

func redactSecrets(input string) string {
	return RedactSecrets(input)
}
