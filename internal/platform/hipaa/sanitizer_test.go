package hipaa

import (
	"strings"
	"testing"

	"github.com/ehr/woundcare/internal/platform/audit"
)

func TestSanitize_Patterns(t *testing.T) {
	s := NewSanitizer()
	tests := []struct {
		name  string
		in    string
		want  string
		token string
	}{
		{"ssn", "ssn 123-45-6789 on file", "ssn [REDACTED-SSN] on file", RedactedSSN},
		{"email", "contact jdoe@example.org today", "contact [REDACTED-EMAIL] today", RedactedEmail},
		{"phone", "call (555) 867-5309", "call [REDACTED-PHONE]", RedactedPhone},
		{"mrn", "MRN: A1234567 reviewed", "[REDACTED-MRN] reviewed", RedactedMRN},
		{"dob", "DOB 04/12/1951", RedactedDOB, RedactedDOB},
		{"title name", "seen by Dr. Helen Park", "seen by [REDACTED-NAME]", RedactedName},
		{"patient name", "Patient Ramirez reports pain", "[REDACTED-NAME] reports pain", RedactedName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sanitize(tt.in)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitize_LeavesClinicalTextAlone(t *testing.T) {
	s := NewSanitizer()
	in := "depth rate 3.75 mm/week >= 2.00 at 2024-05-06; area -18.33%"
	if got := s.Sanitize(in); got != in {
		t.Errorf("Sanitize altered clinical text: %q", got)
	}
	if ContainsPHI(in) {
		t.Error("ContainsPHI reported PHI in clinical text")
	}
}

func TestSanitize_KnownIdentifiers(t *testing.T) {
	s := NewSanitizer("Maria Lopez", "EP-99812", "ab", "")
	got := s.Sanitize("episode ep-99812 for MARIA LOPEZ flagged")
	if strings.Contains(strings.ToLower(got), "lopez") || strings.Contains(strings.ToLower(got), "99812") {
		t.Errorf("identifiers not redacted: %q", got)
	}
	if strings.Count(got, RedactedID) != 2 {
		t.Errorf("got %q, want two %s tokens", got, RedactedID)
	}
	if s.Sanitize("tabby cat") != "tabby cat" {
		t.Error("short identifier was redacted")
	}
}

func TestSanitize_StripsControlCharacters(t *testing.T) {
	var s *Sanitizer
	if got := s.Sanitize("a\x00b\x07c\nd"); got != "abc\nd" {
		t.Errorf("got %q", got)
	}
}

func TestSanitizeTrail(t *testing.T) {
	var trail audit.Trail
	trail.Info("note", "call 555-867-5309")
	trail.Outcome("criterion_unmet", "wound present 12 days")

	out := NewSanitizer().SanitizeTrail(trail)
	if out[0].Detail != "call [REDACTED-PHONE]" || out[0].Code != "note" {
		t.Errorf("entry 0 = %+v", out[0])
	}
	if out[1].Detail != "wound present 12 days" {
		t.Errorf("entry 1 = %+v", out[1])
	}
	if trail[0].Detail != "call 555-867-5309" {
		t.Error("SanitizeTrail modified its input")
	}
}
