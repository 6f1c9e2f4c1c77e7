package smtp

import (
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Capabilities is the set of extensions a server announced in response to
// EHLO. The zero value is an empty set, as after a HELO fallback. A
// Capabilities is immutable once parsed: accessors return copies. A client
// must replace its set wholesale after a TLS handshake, values announced on
// the plaintext connection have no standing. ../rfc/3207:83
type Capabilities struct {
	// All announced keywords with their parameters, keywords and parameters in
	// upper case, including unrecognized extensions.
	extensions map[string][]string

	// AUTH mechanisms in the order announced.
	authMechanisms []string

	size    bool
	maxSize int64

	limits                                         map[string]string
	limitMailMax, limitRcptMax, limitRcptDomainMax int
}

// ParseCapabilities parses the texts of an EHLO reply after the first line
// (which holds the server greeting name) into the announced capability set.
func ParseCapabilities(texts []string) Capabilities {
	c := Capabilities{extensions: map[string][]string{}}
	for _, s := range texts {
		// Keywords are case-insensitive. ../rfc/5321:1869
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		keyword, rest, _ := strings.Cut(s, " ")
		var params []string
		if rest != "" {
			params = strings.Split(rest, " ")
		}
		c.extensions[keyword] = params
		switch keyword {
		case "SIZE":
			// ../rfc/1870:77
			c.size = true
			if len(params) == 1 {
				if v, err := strconv.ParseInt(params[0], 10, 64); err == nil {
					c.maxSize = v
				}
			}
		case "AUTH":
			c.authMechanisms = params
		case "LIMITS":
			c.limits, c.limitMailMax, c.limitRcptMax, c.limitRcptDomainMax = parseLimits([]byte(s[len("LIMITS"):]))
		}
	}
	return c
}

// Supports returns whether the server announced the extension, by EHLO
// keyword, e.g. "8BITMIME". For SMTPUTF8, any parameters are ignored.
// ../rfc/6531:207
func (c Capabilities) Supports(keyword string) bool {
	_, ok := c.extensions[strings.ToUpper(keyword)]
	return ok
}

// Params returns a copy of the parameters announced after an extension
// keyword, nil if absent or without parameters.
func (c Capabilities) Params(keyword string) []string {
	return slices.Clone(c.extensions[strings.ToUpper(keyword)])
}

// AuthMechanisms returns a copy of the SASL mechanism names announced with
// the AUTH extension, in upper case, in server order. ../rfc/4954:123
func (c Capabilities) AuthMechanisms() []string {
	return slices.Clone(c.authMechanisms)
}

// Size returns whether the SIZE extension was announced, and the fixed
// maximum message size, 0 when the server did not announce a maximum.
func (c Capabilities) Size() (ok bool, max int64) {
	return c.size, c.maxSize
}

// Limits returns a copy of the key/value pairs of the LIMITS extension,
// names in upper case. Nil without the extension or after a syntax error in
// its parameters.
func (c Capabilities) Limits() map[string]string {
	return maps.Clone(c.limits)
}

// LimitMailMax is the maximum number of MAIL commands in a connection, 0 if
// not announced.
func (c Capabilities) LimitMailMax() int {
	return c.limitMailMax
}

// LimitRcptMax is the maximum number of RCPT commands in a transaction, 0 if
// not announced.
func (c Capabilities) LimitRcptMax() int {
	return c.limitRcptMax
}

// LimitRcptDomainMax is the maximum number of different domains in recipients
// in a connection, 0 if not announced.
func (c Capabilities) LimitRcptDomainMax() int {
	return c.limitRcptDomainMax
}

// parse text after "LIMITS", including leading space.
func parseLimits(b []byte) (map[string]string, int, int, int) {
	// ../rfc/9422:150
	var o int
	// Read next " name=value".
	pair := func() ([]byte, []byte) {
		if o >= len(b) || b[o] != ' ' {
			return nil, nil
		}
		o++

		ns := o
		for o < len(b) {
			c := b[o]
			if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_' {
				o++
			} else {
				break
			}
		}
		es := o
		if ns == es || o >= len(b) || b[o] != '=' {
			return nil, nil
		}
		o++
		vs := o
		for o < len(b) {
			c := b[o]
			if c > 0x20 && c < 0x7f && c != ';' {
				o++
			} else {
				break
			}
		}
		if vs == o {
			return nil, nil
		}
		return b[ns:es], b[vs:o]
	}
	limits := map[string]string{}
	var mailMax, rcptMax, rcptDomainMax int
	for o < len(b) {
		name, value := pair()
		if name == nil {
			// We skip the entire LIMITS extension for syntax errors. ../rfc/9422:232
			return nil, 0, 0, 0
		}
		k := strings.ToUpper(string(name))
		if _, ok := limits[k]; ok {
			// Not specified, but we treat duplicates as error.
			return nil, 0, 0, 0
		}
		limits[k] = string(value)
		// For individual value syntax errors, we skip that value, leaving the default 0.
		// ../rfc/9422:254
		switch string(name) {
		case "MAILMAX":
			if v, err := strconv.Atoi(string(value)); err == nil && v > 0 && len(value) <= 6 {
				mailMax = v
			}
		case "RCPTMAX":
			if v, err := strconv.Atoi(string(value)); err == nil && v > 0 && len(value) <= 6 {
				rcptMax = v
			}
		case "RCPTDOMAINMAX":
			if v, err := strconv.Atoi(string(value)); err == nil && v > 0 && len(value) <= 6 {
				rcptDomainMax = v
			}
		}
	}
	return limits, mailMax, rcptMax, rcptDomainMax
}
