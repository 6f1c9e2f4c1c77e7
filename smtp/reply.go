package smtp

import (
	"fmt"
	"strconv"
	"strings"
)

// ReplyClass is the first digit of a reply code, indicating success, error
// and whether an error is transient or permanent. ../rfc/5321:2659
type ReplyClass int

const (
	ClassPositiveCompletion   ReplyClass = 2
	ClassPositiveIntermediate ReplyClass = 3
	ClassTransientNegative    ReplyClass = 4
	ClassPermanentNegative    ReplyClass = 5
)

// Reply is a complete, possibly multiline reply from a server.
type Reply struct {
	Code   int      // Code shared by all lines, in the range 200-599.
	Secode string   // Short enhanced status code, without leading class digit and dot, e.g. "7.8" for "5.7.8". Empty if not present.
	Lines  []string // Raw reply lines as received, without line endings, at least one.
	Texts  []string // Text of each line, without code, separator and enhanced status code.
}

// Class returns the reply class derived from the code.
func (r Reply) Class() ReplyClass {
	return ReplyClass(r.Code / 100)
}

// Permanent returns whether this is a permanent negative reply, i.e. the
// command should not be retried as-is.
func (r Reply) Permanent() bool {
	return r.Class() == ClassPermanentNegative
}

// ParseReplyLine parses a single reply line into its code, enhanced status
// code (only if ecodes is set, for servers announcing ENHANCEDSTATUSCODES),
// remaining text, and whether this line concludes the reply. Replies with
// codes outside of 200-599 are invalid and rejected. ../rfc/5321:2689
func ParseReplyLine(line string, ecodes bool) (code int, secode, text string, last bool, rerr error) {
	i := 0
	for ; i < len(line) && line[i] >= '0' && line[i] <= '9'; i++ {
	}
	if i != 3 {
		rerr = fmt.Errorf("expected reply code: %s", line)
		return
	}
	v, err := strconv.ParseInt(line[:i], 10, 32)
	if err != nil {
		rerr = fmt.Errorf("bad reply code (%s): %s", err, line)
		return
	}
	code = int(v)
	if code < 200 || code > 599 {
		rerr = fmt.Errorf("reply code %d out of range: %s", code, line)
		return
	}
	major := code / 100
	s := line[3:]
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, " ") {
		last = s[0] == ' '
		s = s[1:]
	} else if s == "" {
		// Allow missing space. ../rfc/5321:2570 ../rfc/5321:2612
		last = true
	} else {
		rerr = fmt.Errorf("expected space or dash after reply code: %s", line)
		return
	}

	if ecodes {
		secode, s = parseEcode(major, s)
	}

	return code, secode, s, last, nil
}

func parseEcode(major int, s string) (secode string, remain string) {
	o := 0
	bad := false
	take := func(need bool, a, b byte) bool {
		if !bad && o < len(s) && s[o] >= a && s[o] <= b {
			o++
			return true
		}
		bad = bad || need
		return false
	}
	digit := func(need bool) bool {
		return take(need, '0', '9')
	}
	dot := func() bool {
		return take(true, '.', '.')
	}

	digit(true)
	dot()
	xo := o
	digit(true)
	for digit(false) {
	}
	dot()
	digit(true)
	for digit(false) {
	}
	secode = s[xo:o]
	take(false, ' ', ' ')
	if bad || int(s[0])-int('0') != major {
		return "", s
	}
	return secode, s[o:]
}
