package sasl

import (
	"strings"
	"testing"
)

func tstep(t *testing.T, a Client, fromServer []byte, expToServer string, expLast bool) {
	t.Helper()
	toServer, last, err := a.Next(fromServer)
	if err != nil {
		t.Fatalf("next: %s", err)
	}
	if string(toServer) != expToServer {
		t.Fatalf("got %q, expected %q", toServer, expToServer)
	}
	if last != expLast {
		t.Fatalf("got last %v, expected %v", last, expLast)
	}
}

func tinfo(t *testing.T, a Client, expName string, expCleartext bool) {
	t.Helper()
	name, cleartext := a.Info()
	if name != expName || cleartext != expCleartext {
		t.Fatalf("got %q %v, expected %q %v", name, cleartext, expName, expCleartext)
	}
}

func TestPlain(t *testing.T) {
	a := NewClientPlain("mjl@mail.example", "test1234")
	tinfo(t, a, "PLAIN", true)
	tstep(t, a, nil, "\u0000mjl@mail.example\u0000test1234", true)
	if _, _, err := a.Next(nil); err == nil {
		t.Fatalf("got another step, expected error")
	}
}

func TestLogin(t *testing.T) {
	a := NewClientLogin("mjl@mail.example", "test1234")
	tinfo(t, a, "LOGIN", true)

	toServer, last, err := a.Next(nil)
	if err != nil {
		t.Fatalf("next: %s", err)
	}
	if toServer != nil || last {
		t.Fatalf("got initial response %q last %v, expected no initial response", toServer, last)
	}
	tstep(t, a, []byte("Username:"), "mjl@mail.example", false)
	tstep(t, a, []byte("Password:"), "test1234", true)
	if _, _, err := a.Next(nil); err == nil {
		t.Fatalf("got another step, expected error")
	}
}

func TestCRAMMD5(t *testing.T) {
	// Known challenge/response pair, challenge from the CRAM-MD5 examples floating around.
	a := NewClientCRAMMD5("user", "pass")
	tinfo(t, a, "CRAM-MD5", false)
	tstep(t, a, nil, "", false)
	tstep(t, a, []byte("<123456.1322876914@testserver>"), "user 287eb355114cf5c471c26a875f1ca4ae", true)

	bad := func(challenge string) {
		t.Helper()
		a := NewClientCRAMMD5("user", "pass")
		if _, _, err := a.Next(nil); err != nil {
			t.Fatalf("next: %s", err)
		}
		if _, _, err := a.Next([]byte(challenge)); err == nil {
			t.Fatalf("got response for challenge %q, expected error", challenge)
		}
	}
	bad("123456.1322876914@testserver")
	bad("<1322876914@testserver>")
	bad("<123456.@testserver>")
	bad("<123456.1322876914@>")
}

func TestSCRAMSHA(t *testing.T) {
	// Full exchanges are tested in package scram and in the smtp client tests, only
	// check the client-first message here.
	a := NewClientSCRAMSHA256("mjl", "test1234", false)
	tinfo(t, a, "SCRAM-SHA-256", false)
	toServer, last, err := a.Next(nil)
	if err != nil {
		t.Fatalf("next: %s", err)
	}
	if !strings.HasPrefix(string(toServer), "n,,n=mjl,r=") {
		t.Fatalf("got client-first %q, expected gs2 header and username", toServer)
	}
	if last {
		t.Fatalf("client-first marked last")
	}

	// With noServerPlus we announce we could have done channel binding.
	a = NewClientSCRAMSHA256("mjl", "test1234", true)
	toServer, _, err = a.Next(nil)
	if err != nil {
		t.Fatalf("next: %s", err)
	}
	if !strings.HasPrefix(string(toServer), "y,,n=mjl,r=") {
		t.Fatalf("got client-first %q, expected gs2 header claiming channel binding support", toServer)
	}

	a = NewClientSCRAMSHA1("mjl", "test1234", false)
	tinfo(t, a, "SCRAM-SHA-1", false)
}

func TestXOAUTH2(t *testing.T) {
	a := NewClientXOAUTH2("mjl@mail.example", "token123")
	tinfo(t, a, "XOAUTH2", true)
	tstep(t, a, nil, "user=mjl@mail.example\x01auth=Bearer token123\x01\x01", true)

	// After a failure challenge the client sends an empty message, not nil.
	toServer, last, err := a.Next([]byte(`{"status":"401","schemes":"bearer"}`))
	if err != nil {
		t.Fatalf("next: %s", err)
	}
	if toServer == nil || len(toServer) != 0 {
		t.Fatalf("got %q, expected empty non-nil response", toServer)
	}
	if !last {
		t.Fatalf("response to failure challenge not marked last")
	}
}
