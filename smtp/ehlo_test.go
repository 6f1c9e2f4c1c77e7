package smtp

import (
	"reflect"
	"testing"
)

func TestParseCapabilities(t *testing.T) {
	caps := ParseCapabilities([]string{
		"PIPELINING",
		"SIZE 10240000",
		"ENHANCEDSTATUSCODES",
		"starttls",
		"AUTH PLAIN scram-sha-256 LOGIN",
		"8BITMIME",
		"SMTPUTF8 arg",
		"LIMITS RCPTMAX=100",
		"X-UNKNOWN param1 param2",
		"REQUIRETLS",
	})
	for _, kw := range []string{"PIPELINING", "SIZE", "STARTTLS", "starttls", "8BITMIME", "SMTPUTF8", "REQUIRETLS", "X-UNKNOWN", "AUTH", "ENHANCEDSTATUSCODES", "LIMITS"} {
		if !caps.Supports(kw) {
			t.Errorf("capability %s not recognized", kw)
		}
	}
	if caps.Supports("DSN") {
		t.Errorf("unannounced capability DSN recognized")
	}
	if ok, max := caps.Size(); !ok || max != 10240000 {
		t.Errorf("got size %v %d, expected true 10240000", ok, max)
	}
	if mechs := caps.AuthMechanisms(); !reflect.DeepEqual(mechs, []string{"PLAIN", "SCRAM-SHA-256", "LOGIN"}) {
		t.Errorf("got auth mechanisms %v", mechs)
	}
	if caps.LimitRcptMax() != 100 || caps.LimitMailMax() != 0 || caps.LimitRcptDomainMax() != 0 {
		t.Errorf("got limits %d %d %d", caps.LimitRcptMax(), caps.LimitMailMax(), caps.LimitRcptDomainMax())
	}
	if params := caps.Params("X-UNKNOWN"); !reflect.DeepEqual(params, []string{"PARAM1", "PARAM2"}) {
		t.Errorf("got params %v", params)
	}

	// Mutating returned values must not affect the set.
	caps.AuthMechanisms()[0] = "CRAM-MD5"
	if caps.AuthMechanisms()[0] != "PLAIN" {
		t.Errorf("returned mechanisms alias internal state")
	}
	caps.Limits()["RCPTMAX"] = "1"
	if caps.Limits()["RCPTMAX"] != "100" {
		t.Errorf("returned limits alias internal state")
	}

	// SIZE without parameter announces the extension without a fixed maximum.
	if ok, max := ParseCapabilities([]string{"SIZE"}).Size(); !ok || max != 0 {
		t.Errorf("got size %v %d, expected true 0", ok, max)
	}

	// The zero value is the empty set, as after HELO.
	var zero Capabilities
	if zero.Supports("STARTTLS") || zero.AuthMechanisms() != nil {
		t.Errorf("zero capabilities not empty")
	}
}

func TestParseLimits(t *testing.T) {
	check := func(s string, expLimits map[string]string, expMailMax, expRcptMax, expRcptDomainMax int) {
		t.Helper()
		limits, mailmax, rcptMax, rcptDomainMax := parseLimits([]byte(s))
		if !reflect.DeepEqual(limits, expLimits) || mailmax != expMailMax || rcptMax != expRcptMax || rcptDomainMax != expRcptDomainMax {
			t.Errorf("bad limits, got %v %d %d %d, expected %v %d %d %d, for %q", limits, mailmax, rcptMax, rcptDomainMax, expLimits, expMailMax, expRcptMax, expRcptDomainMax, s)
		}
	}
	check(" unknown=a=b -_1oK=xY", map[string]string{"UNKNOWN": "a=b", "-_1OK": "xY"}, 0, 0, 0)
	check(" MAILMAX=123 OTHER=ignored RCPTDOMAINMAX=1 RCPTMAX=321", map[string]string{"MAILMAX": "123", "OTHER": "ignored", "RCPTDOMAINMAX": "1", "RCPTMAX": "321"}, 123, 321, 1)
	check(" MAILMAX=invalid", map[string]string{"MAILMAX": "invalid"}, 0, 0, 0)
	check(" invalid syntax", nil, 0, 0, 0)
	check(" DUP=1 DUP=2", nil, 0, 0, 0)
}
