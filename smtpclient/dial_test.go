package smtpclient

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestDial(t *testing.T) {
	ctxbg := context.Background()

	var gotAddr string
	var gotTimeout time.Duration
	DialHook = func(ctx context.Context, dialer Dialer, timeout time.Duration, addr string) (net.Conn, error) {
		gotAddr = addr
		gotTimeout = timeout
		return nil, nil // No error, nil connection isn't used.
	}
	defer func() {
		DialHook = nil
	}()

	// Without a context deadline, the default timeout applies.
	if _, err := Dial(ctxbg, nil, &net.Dialer{}, "mail.example:25"); err != nil {
		t.Fatalf("dial: %v", err)
	}
	if gotAddr != "mail.example:25" {
		t.Fatalf("dialed addr %q, expected mail.example:25", gotAddr)
	}
	if gotTimeout != 30*time.Second {
		t.Fatalf("dial timeout %v, expected 30s", gotTimeout)
	}

	// With a context deadline, the remaining time is used as timeout.
	ctx, cancel := context.WithTimeout(ctxbg, 10*time.Second)
	defer cancel()
	if _, err := Dial(ctx, nil, &net.Dialer{}, "mail.example:465"); err != nil {
		t.Fatalf("dial: %v", err)
	}
	if gotAddr != "mail.example:465" {
		t.Fatalf("dialed addr %q, expected mail.example:465", gotAddr)
	}
	if gotTimeout <= 0 || gotTimeout > 10*time.Second {
		t.Fatalf("dial timeout %v, expected at most 10s", gotTimeout)
	}
}
