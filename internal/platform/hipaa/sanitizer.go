package hipaa

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/ehr/woundcare/internal/platform/audit"
)

// Redaction tokens.
const (
	RedactedSSN   = "[REDACTED-SSN]"
	RedactedPhone = "[REDACTED-PHONE]"
	RedactedEmail = "[REDACTED-EMAIL]"
	RedactedMRN   = "[REDACTED-MRN]"
	RedactedDOB   = "[REDACTED-DOB]"
	RedactedName  = "[REDACTED-NAME]"
	RedactedID    = "[REDACTED-ID]"
)

type pattern struct {
	re   *regexp.Regexp
	repl string
}

// identifierPatterns run in order; SSN must precede phone.
var identifierPatterns = []pattern{
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), RedactedSSN},
	{regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`), RedactedEmail},
	{regexp.MustCompile(`(?:\+?1[\s.-]?)?\(?\b\d{3}\)?[\s.-]\d{3}[\s.-]\d{4}\b`), RedactedPhone},
	{regexp.MustCompile(`(?i)\b(?:MRN|medical record(?: number)?)[\s#:]*[A-Z0-9-]{4,}\b`), RedactedMRN},
	{regexp.MustCompile(`(?i)\b(?:DOB|date of birth|born(?: on)?)[\s:]*\d{1,4}[/.-]\d{1,2}[/.-]\d{1,4}\b`), RedactedDOB},
	{regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Miss|Dr|Patient|Pt)\.?\s+[A-Z][a-z'-]+(?:\s+[A-Z][a-z'-]+)?`), RedactedName},
}

// minIdentifierLen keeps short tokens (e.g. "E", "12") from being redacted
// everywhere they appear.
const minIdentifierLen = 3

// Sanitizer strips direct identifiers from free text. The zero value applies
// only the built-in patterns.
type Sanitizer struct {
	known *regexp.Regexp
}

// NewSanitizer returns a sanitizer that additionally redacts the given known
// identifiers (patient names, MRNs, episode ids) wherever they appear,
// case-insensitively.
func NewSanitizer(identifiers ...string) *Sanitizer {
	var quoted []string
	seen := make(map[string]bool)
	for _, id := range identifiers {
		id = strings.TrimSpace(id)
		if len(id) < minIdentifierLen || seen[strings.ToLower(id)] {
			continue
		}
		seen[strings.ToLower(id)] = true
		quoted = append(quoted, regexp.QuoteMeta(id))
	}
	if len(quoted) == 0 {
		return &Sanitizer{}
	}
	// Longest first so overlapping identifiers redact fully.
	sort.Slice(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })
	return &Sanitizer{known: regexp.MustCompile(`(?i)` + strings.Join(quoted, "|"))}
}

// Sanitize returns s with control characters removed and identifiers
// replaced by redaction tokens.
func (s *Sanitizer) Sanitize(in string) string {
	out := stripControl(in)
	if s != nil && s.known != nil {
		out = s.known.ReplaceAllString(out, RedactedID)
	}
	for _, p := range identifierPatterns {
		out = p.re.ReplaceAllString(out, p.repl)
	}
	return out
}

// SanitizeTrail sanitizes every detail of an audit trail. Codes are fixed
// identifiers and are left as is.
func (s *Sanitizer) SanitizeTrail(t audit.Trail) audit.Trail {
	if t == nil {
		return nil
	}
	return t.Map(s.Sanitize)
}

// SanitizeAll sanitizes a slice of strings in place and returns it.
func (s *Sanitizer) SanitizeAll(in []string) []string {
	for i, v := range in {
		in[i] = s.Sanitize(v)
	}
	return in
}

// ContainsPHI reports whether any built-in pattern matches.
func ContainsPHI(s string) bool {
	for _, p := range identifierPatterns {
		if p.re.MatchString(s) {
			return true
		}
	}
	return false
}

// stripControl removes null bytes and control characters except \n, \r, \t.
func stripControl(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if r == '\x00' {
			continue
		}
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
