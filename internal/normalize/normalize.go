// Package normalize collapses variable tokens in a log line into a
// stable canonical form suitable for clustering.
package normalize

import (
	"regexp"
	"strings"
)

// Order is semantically significant: earlier rules have broader
// matches that later rules must not see. See spec §4.3.
var (
	reISO8601 = regexp.MustCompile(
		`\b\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?\b`)

	reCommonTimestamp = regexp.MustCompile(
		`\b\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(?:\.\d+)?\b|\b\d{2}:\d{2}:\d{2}\b`)

	reUUID = regexp.MustCompile(
		`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)

	reIPv4 = regexp.MustCompile(
		`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`)

	reIPv6 = regexp.MustCompile(
		`\b(?:[0-9a-fA-F]{1,4}:){2,7}[0-9a-fA-F]{1,4}\b|\b::1\b`)

	reHexPrefixed   = regexp.MustCompile(`\b0x[0-9a-fA-F]{8,}\b`)
	reHexUnprefixed = regexp.MustCompile(`\b[0-9a-fA-F]{8,}\b`)
	reHasHexLetter  = regexp.MustCompile(`[a-fA-F]`)

	reDuration = regexp.MustCompile(`\b\d+(?:\.\d+)?(?:ns|µs|us|ms|s|m|h)\b`)

	reNumber = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)

	reWhitespace = regexp.MustCompile(`\s+`)
)

// Normalize transforms a (already ANSI-stripped) line into its
// canonical form by applying the fixed ordered replacement chain.
// The function is pure, deterministic, and idempotent:
// Normalize(Normalize(x)) == Normalize(x).
func Normalize(line string) string {
	s := line

	s = reISO8601.ReplaceAllString(s, "<TS>")
	s = reCommonTimestamp.ReplaceAllString(s, "<TS>")
	s = reUUID.ReplaceAllString(s, "<UUID>")
	s = reIPv4.ReplaceAllString(s, "<IP>")
	s = reIPv6.ReplaceAllString(s, "<IP>")
	s = reHexPrefixed.ReplaceAllString(s, "<HEX>")
	// A bare run of 8+ hex characters is only treated as hex (rather
	// than left for the <NUM> rule below) if it actually contains a
	// letter; an all-digit run of any length is an ordinary number.
	s = reHexUnprefixed.ReplaceAllStringFunc(s, func(match string) string {
		if reHasHexLetter.MatchString(match) {
			return "<HEX>"
		}
		return match
	})
	s = reDuration.ReplaceAllString(s, "<DUR>")
	s = reNumber.ReplaceAllString(s, "<NUM>")

	s = reWhitespace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	return s
}
