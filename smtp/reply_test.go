package smtp

import (
	"testing"
)

func TestParseReplyLine(t *testing.T) {
	check := func(line string, ecodes bool, expCode int, expSecode, expText string, expLast bool) {
		t.Helper()
		code, secode, text, last, err := ParseReplyLine(line, ecodes)
		if err != nil {
			t.Fatalf("parsing line %q: %v", line, err)
		}
		if code != expCode || secode != expSecode || text != expText || last != expLast {
			t.Fatalf("parsing line %q: got %d %q %q %v, expected %d %q %q %v", line, code, secode, text, last, expCode, expSecode, expText, expLast)
		}
	}
	checkBad := func(line string, ecodes bool) {
		t.Helper()
		if _, _, _, _, err := ParseReplyLine(line, ecodes); err == nil {
			t.Fatalf("parsing line %q: expected error", line)
		}
	}

	check("220 mail.example ESMTP ready", false, 220, "", "mail.example ESMTP ready", true)
	check("250-PIPELINING", false, 250, "", "PIPELINING", false)
	check("250", false, 250, "", "", true) // Missing space after code is accepted.
	check("334 VXNlcm5hbWU6", false, 334, "", "VXNlcm5hbWU6", true)
	check("235 2.7.0 authentication successful", true, 235, "7.0", "authentication successful", true)
	check("250 2.0.0 ok", true, 250, "0.0", "ok", true)
	check("550 5.7.8 bad credentials", true, 550, "7.8", "bad credentials", true)
	check("550 5.7.8", true, 550, "7.8", "", true)
	check("550-5.7.8 more to come", true, 550, "7.8", "more to come", false)
	// Enhanced code must match the reply class, otherwise it is text.
	check("550 4.7.8 mismatch", true, 550, "", "4.7.8 mismatch", true)
	// Without ENHANCEDSTATUSCODES, the code is left in the text.
	check("550 5.7.8 bad credentials", false, 550, "", "5.7.8 bad credentials", true)

	checkBad("hello", false)
	checkBad("", false)
	checkBad("25 code too short", false)
	checkBad("2500 code too long", false)
	checkBad("250x", false)
	// Codes outside 200-599 are invalid.
	checkBad("199 too low", false)
	checkBad("600 too high", false)
	checkBad("100 continue", false)
}

func TestReplyClass(t *testing.T) {
	classes := map[int]ReplyClass{
		211: ClassPositiveCompletion,
		250: ClassPositiveCompletion,
		299: ClassPositiveCompletion,
		334: ClassPositiveIntermediate,
		354: ClassPositiveIntermediate,
		421: ClassTransientNegative,
		452: ClassTransientNegative,
		500: ClassPermanentNegative,
		554: ClassPermanentNegative,
		599: ClassPermanentNegative,
	}
	for code, exp := range classes {
		r := Reply{Code: code}
		if r.Class() != exp {
			t.Errorf("code %d: got class %d, expected %d", code, r.Class(), exp)
		}
		if r.Permanent() != (exp == ClassPermanentNegative) {
			t.Errorf("code %d: got permanent %v", code, r.Permanent())
		}
	}
}
