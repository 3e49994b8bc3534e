package domain

import (
	"fmt"
	"regexp"
)

// Command templates come from the administrator-curated catalog; parameter
// values come from the caller. Values are therefore screened before they are
// ever substituted into a command, so a value cannot smuggle an extra
// statement past the whitelist.

// dangerousStatement matches statement keywords that never belong inside a
// parameter value, even when the surrounding template is itself privileged.
var dangerousStatement = regexp.MustCompile(
	`(?i)\b(DROP|TRUNCATE|DELETE|ALTER|GRANT|REVOKE|SHUTDOWN|KILL|FLUSH)\b` +
		`|\bSET\s+(GLOBAL|SESSION)\b` +
		`|\bLOAD\s+DATA\b` +
		`|\bINTO\s+OUTFILE\b` +
		`|\bLOAD_FILE\b`)

// injectionPattern matches classic injection shapes: piggybacked statements,
// UNION probes, comment truncation, and quote-breaking boolean clauses.
var injectionPattern = regexp.MustCompile(
	`;` +
		`|(?i)UNION\s+SELECT` +
		`|--` +
		`|/\*` +
		`|(?i)'\s*(OR|AND)\s*'`)

// ScreenParams checks every supplied parameter value against the
// dangerous-statement and injection lists. A rejected value names the
// offending parameter but never echoes the command template.
func ScreenParams(params map[string]string) error {
	for name, value := range params {
		if m := dangerousStatement.FindString(value); m != "" {
			return fmt.Errorf("parameter %q contains a forbidden statement keyword %q", name, m)
		}
		if injectionPattern.MatchString(value) {
			return fmt.Errorf("parameter %q contains an injection pattern", name)
		}
	}
	return nil
}
