package smtp

import (
	"testing"
)

func TestCommandLines(t *testing.T) {
	check := func(got, exp string) {
		t.Helper()
		if got != exp {
			t.Errorf("got command line %q, expected %q", got, exp)
		}
	}

	check(MailFromLine(""), "MAIL FROM:<>")
	check(MailFromLine("mjl@mail.example"), "MAIL FROM:<mjl@mail.example>")
	check(MailFromLine("mjl@mail.example", "SIZE=1234", "BODY=8BITMIME", "SMTPUTF8", "REQUIRETLS"), "MAIL FROM:<mjl@mail.example> SIZE=1234 BODY=8BITMIME SMTPUTF8 REQUIRETLS")
	check(RcptToLine("mjl@mail.example"), "RCPT TO:<mjl@mail.example>")
}
