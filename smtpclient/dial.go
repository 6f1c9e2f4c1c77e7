package smtpclient

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/mailiq/smtpcore/mlog"
)

// DialHook can be used during tests to override the regular dialer from being used.
var DialHook func(ctx context.Context, dialer Dialer, timeout time.Duration, addr string) (net.Conn, error)

// Dialer is used to dial mail servers, an interface to facilitate testing.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (c net.Conn, err error)
}

// Dial connects to addr, a host:port, to start an SMTP session on. The host
// can be a name or an IP address. The dial timeout is derived from the
// context deadline when set, with a default of 30 seconds.
//
// The returned connection is not yet an SMTP session, pass it to New.
func Dial(ctx context.Context, elog *slog.Logger, dialer Dialer, addr string) (net.Conn, error) {
	log := mlog.New("smtpclient", elog)

	timeout := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	log.Debug("dialing host", slog.String("addr", addr))
	conn, err := dial(ctx, dialer, timeout, addr)
	if err != nil {
		log.Debugx("connection attempt", err, slog.String("addr", addr))
		return nil, err
	}
	log.Debug("connected to host", slog.String("addr", addr))
	return conn, nil
}

func dial(ctx context.Context, dialer Dialer, timeout time.Duration, addr string) (net.Conn, error) {
	if DialHook != nil {
		return DialHook(ctx, dialer, timeout, addr)
	}

	// If this is a net.Dialer, use its settings and add the timeout. This is the
	// typical case, but SOCKS5 support can use a different dialer.
	if d, ok := dialer.(*net.Dialer); ok {
		nd := *d
		nd.Timeout = timeout
		return nd.DialContext(ctx, "tcp", addr)
	}
	return dialer.DialContext(ctx, "tcp", addr)
}
