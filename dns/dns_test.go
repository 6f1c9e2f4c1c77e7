package dns

import (
	"errors"
	"testing"
)

func TestParseDomain(t *testing.T) {
	test := func(s string, exp Domain, expErr error) {
		t.Helper()
		dom, err := ParseDomain(s)
		if (err == nil) != (expErr == nil) || expErr != nil && !errors.Is(err, expErr) {
			t.Fatalf("parse domain %q: err %v, expected %v", s, err, expErr)
		}
		if expErr == nil && dom != exp {
			t.Fatalf("parse domain %q: got %#v, expected %#v", s, dom, exp)
		}
	}

	// We rely on normalization of names throughout the code base.
	test("mail.example", Domain{"mail.example", ""}, nil)
	test("MAIL.EXAMPLE", Domain{"mail.example", ""}, nil)
	test("TEST☺.MAIL.EXAMPLE", Domain{"xn--test-3o3b.mail.example", "test☺.mail.example"}, nil)
	test("ℂᵤⓇℒ。𝐒🄴", Domain{"curl.se", ""}, nil) // https://daniel.haxx.se/blog/2022/12/14/idn-is-crazy/
	test("mail.example.", Domain{}, errTrailingDot)
}

func TestDomainName(t *testing.T) {
	ascii := Domain{ASCII: "mail.example"}
	if ascii.Name() != "mail.example" || ascii.XName(true) != "mail.example" || ascii.LogString() != "mail.example" {
		t.Fatalf("unexpected names for ascii-only domain %#v", ascii)
	}
	idn := Domain{"xn--test-3o3b.mail.example", "test☺.mail.example"}
	if idn.Name() != "test☺.mail.example" {
		t.Fatalf("got name %q, expected unicode name", idn.Name())
	}
	if idn.XName(false) != "xn--test-3o3b.mail.example" {
		t.Fatalf("got xname %q, expected ascii name", idn.XName(false))
	}
	if idn.ASCIIExtra(true) != "xn--test-3o3b.mail.example" {
		t.Fatalf("got asciiextra %q, expected ascii name", idn.ASCIIExtra(true))
	}
	if idn.LogString() != "test☺.mail.example/xn--test-3o3b.mail.example" {
		t.Fatalf("got logstring %q", idn.LogString())
	}
	if ascii.IsZero() || !(Domain{}).IsZero() {
		t.Fatalf("iszero broken")
	}
}
