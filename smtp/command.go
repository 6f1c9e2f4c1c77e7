package smtp

import (
	"strings"
)

// MailFromLine renders a MAIL command line with optional esmtp parameters,
// e.g. "MAIL FROM:<sender@mail.example> SIZE=1234 BODY=8BITMIME". The sender
// must already be in wire form; empty for the null reverse-path used in e.g.
// delivery status notifications. ../rfc/5321:1879
func MailFromLine(sender string, params ...string) string {
	sb := strings.Builder{}
	sb.WriteString("MAIL FROM:<")
	sb.WriteString(sender)
	sb.WriteString(">")
	for _, p := range params {
		sb.WriteString(" ")
		sb.WriteString(p)
	}
	return sb.String()
}

// RcptToLine renders a RCPT command line. ../rfc/5321:1916
func RcptToLine(rcpt string) string {
	return "RCPT TO:<" + rcpt + ">"
}
