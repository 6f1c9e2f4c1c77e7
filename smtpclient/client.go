// Package smtpclient is an SMTP client, for submitting messages to an SMTP
// server or delivering them from a queue.
//
// The client speaks the SMTP protocol on a connection established by the
// caller, e.g. with Dial: any net.Conn will do, the client itself never
// resolves or connects. New initializes a session on the connection: it reads
// the server greeting, identifies itself with EHLO (falling back to HELO),
// optionally upgrades to TLS with STARTTLS and authenticates with a SASL
// mechanism. Deliver and DeliverMultiple then run MAIL FROM/RCPT TO/DATA
// transactions, with per-recipient results and classification of replies into
// transient and permanent failures. The client bounds all reads, applies
// command timeouts through connection deadlines, and uses the SMTP extensions
// commonly needed for delivery and submission, such as PIPELINING, SIZE,
// 8BITMIME, SMTPUTF8 and REQUIRETLS.
package smtpclient

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/mailiq/smtpcore/dns"
	"github.com/mailiq/smtpcore/mlog"
	"github.com/mailiq/smtpcore/sasl"
	"github.com/mailiq/smtpcore/smtp"
	"github.com/mailiq/smtpcore/stub"
	"github.com/mailiq/smtpcore/wireio"
)

var (
	MetricCommands    stub.HistogramVec = stub.HistogramVecIgnore{}
	MetricAuthResults stub.CounterVec   = stub.CounterVecIgnore{}
	MetricPanicInc                      = func() {}
)

var (
	ErrSize                  = errors.New("message too large for remote smtp server") // SMTP server announced a maximum message size and the message to be delivered exceeds it.
	Err8bitmimeUnsupported   = errors.New("remote smtp server does not implement 8bitmime extension, required by message")
	ErrSMTPUTF8Unsupported   = errors.New("remote smtp server does not implement smtputf8 extension, required by message")
	ErrRequireTLSUnsupported = errors.New("remote smtp server does not implement requiretls extension, required for delivery")
	ErrStatus                = errors.New("remote smtp server sent unexpected response status code") // Relatively common, e.g. when a 250 OK was expected and server sent 451 temporary error.
	ErrTransport             = errors.New("transport error")                                         // I/O error on the connection, e.g. timeout or connection closed.
	ErrMalformedReply        = errors.New("malformed smtp reply")                                    // Reply line that does not parse, inconsistent multiline reply, or a reply exceeding the line or line-count bounds.
	ErrUnexpectedReply       = errors.New("unexpected smtp reply")                                   // Reply of a class that is not valid for the current exchange, e.g. an unrequested intermediate (3xx) reply.
	ErrTLS                   = errors.New("tls error")                                               // E.g. handshake failure, or hostname verification was required and failed.
	ErrStartTLSUnsupported   = errors.New("remote smtp server does not announce starttls extension, required by tls mode")
	ErrBotched               = errors.New("smtp connection is botched") // Set on a client, and returned for new operations, after an i/o error or malformed SMTP response.
	ErrClosed                = errors.New("client is closed")
	ErrNoAuthMechanism       = errors.New("no matching authentication mechanism") // None of the configured mechanisms is announced by the server, or they need a TLS connection.
	ErrAuthProtocol          = errors.New("authentication protocol error")        // Server violated the SASL exchange, e.g. bad base64, an overlong challenge, or a continuation after the mechanism completed.
	ErrAuthRejected          = errors.New("authentication rejected")              // Server replied with a permanent error to the exchange, e.g. for bad credentials.
	ErrAuthTransient         = errors.New("authentication temporarily failed")    // Server replied with a transient error to the exchange.
	ErrAllRecipientsRejected = errors.New("no recipients accepted in transaction")
)

// Defaults for the zero values of the corresponding fields in Opts.
const (
	DefaultCommandTimeout = 30 * time.Second
	DefaultMaxReplyLines  = 100
)

// Maximum size of a decoded challenge in an authentication continuation.
// Challenges of the implemented mechanisms are all small, larger challenges
// are a protocol violation.
const maxAuthChallengeSize = 1024

// TLSMode indicates if TLS must, should or must not be used.
type TLSMode string

const (
	// TLS immediately ("implicit TLS"), directly starting TLS on the TCP connection,
	// so not using STARTTLS, before reading the server greeting.
	TLSImmediate TLSMode = "immediate"

	// Required TLS with STARTTLS for SMTP servers. If the server does not announce
	// STARTTLS support, the session fails with ErrStartTLSUnsupported without
	// bringing a STARTTLS command on the wire.
	TLSRequiredStartTLS TLSMode = "requiredstarttls"

	// Use TLS with STARTTLS if remote claims to support it.
	TLSOpportunistic TLSMode = "opportunistic"

	// TLS must not be attempted, e.g. due to earlier TLS handshake error.
	TLSSkip TLSMode = "skip"
)

// State is the phase a session is in, as determined by the replies processed
// so far. Each reply advances the state at most one step. Failures that
// desync or break the connection move it to StateClosed.
type State string

const (
	StateConnected           State = "connected"           // Connection handed to New, greeting not yet read.
	StateGreeted             State = "greeted"             // 220 greeting processed.
	StateEHLO                State = "ehlo"                // EHLO (or HELO fallback) accepted, capabilities known.
	StateTLSNegotiating      State = "tlsnegotiating"      // 220 to STARTTLS processed, handshake running.
	StateAuthenticating      State = "authenticating"      // AUTH exchange in progress.
	StateAuthenticated       State = "authenticated"       // 235 processed.
	StateReady               State = "ready"               // Session initialized, ready for a transaction.
	StateMailStarted         State = "mailstarted"         // 2xx to MAIL FROM processed.
	StateRecipientsAccepted  State = "recipientsaccepted"  // At least one 2xx to RCPT TO processed.
	StateSendingData         State = "sendingdata"         // 354 to DATA processed, message content being written.
	StateTransactionComplete State = "transactioncomplete" // 2xx to end-of-data processed, message accepted.
	StateClosed              State = "closed"              // Closed, possibly after the connection was botched.
)

// Outcome summarizes a transaction for all its recipients.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered" // Message accepted for all recipients.
	OutcomePartial   Outcome = "partial"   // Message accepted, but some recipients were rejected.
	OutcomeAborted   Outcome = "aborted"   // Transaction did not complete, no recipient got the message.
)

// Client is an SMTP client that can deliver messages to a mail server.
//
// Use New to make a new client.
type Client struct {
	// OrigConn is the original (TCP) connection. We'll read from/write to conn, which
	// can be wrapped in a tls.Client. We close origConn instead of conn because
	// closing the TLS connection would send a TLS close notification, which may block
	// for 5s if the server isn't reading it (because it is also sending it).
	origConn              net.Conn
	conn                  net.Conn
	tlsVerifyPKIX         bool
	ignoreTLSVerifyErrors bool
	rootCAs               *x509.CertPool
	remoteHostname        dns.Domain       // TLS with SNI and name verification.
	clientCert            *tls.Certificate // If non-nil, tls client authentication is done.
	tlsConfigOpts         *tls.Config      // If non-nil, tls config to use.

	r             *bufio.Reader
	w             *bufio.Writer
	tr            *wireio.TraceReader // Kept for changing trace levels between cmd/auth/data.
	tw            *wireio.TraceWriter
	log           mlog.Log
	lastlog       time.Time // For adding delta timestamps between log lines.
	cmds          []string  // Last or active command, for generating errors and metrics.
	cmdStart      time.Time // Start of command.
	cmdTimeout    time.Duration
	maxReplyLines int
	tls           bool // Whether connection is TLS protected.

	state    State
	botched  bool // If set, protocol is out of sync and no further commands can be sent.
	needRset bool // If set, a new delivery requires an RSET command.

	remoteHelo string            // From 220 greeting line.
	caps       smtp.Capabilities // From the last EHLO. Replaced wholesale after STARTTLS, empty after a HELO fallback.
}

// Error represents a failure during a session or a delivery.
//
// Code, Secode, Command and Line are only set for SMTP-level errors, and are zero
// values otherwise.
type Error struct {
	// Whether failure is permanent, typically because of 5xx response.
	Permanent bool
	// State the session was in when the failure was raised, e.g. "mailstarted".
	// Paths that render the connection unusable report "closed".
	State State
	// SMTP response status, e.g. 2xx for success, 4xx for transient error and 5xx for
	// permanent failure.
	Code int
	// Short enhanced status, minus first digit and dot. Can be empty, e.g. for io
	// errors or if remote does not send enhanced status codes. If remote responds with
	// "550 5.7.1 ...", the Secode will be "7.1".
	Secode string
	// SMTP command causing failure.
	Command string
	// For errors due to SMTP responses, the full SMTP line excluding CRLF that caused
	// the error. First line of a multi-line response.
	Line string
	// Optional additional lines in case of multi-line SMTP response. Most SMTP
	// responses are single-line, leaving this field empty.
	MoreLines []string
	// Underlying error, e.g. one of the Err variables in this package, or io errors.
	Err error
}

// Response is a result of a command, e.g. for each recipient of a
// transaction. It can hold an error.
type Response Error

// Unwrap returns the underlying Err.
func (e Error) Unwrap() error {
	return e.Err
}

// Error returns a readable error string.
func (e Error) Error() string {
	s := ""
	if e.Err != nil {
		s = e.Err.Error() + ", "
	}
	if e.Permanent {
		s += "permanent"
	} else {
		s += "transient"
	}
	if e.Line != "" {
		s += ": " + e.Line
	}
	return s
}

// Envelope is the sender and recipients of one message transaction. The
// message content is passed separately, as a reader.
type Envelope struct {
	// Email address, or empty for the null reverse-path used in e.g. delivery status
	// notifications.
	Sender string
	// Email addresses, at least one.
	Recipients []string
}

// Check validates the addresses in the envelope, returning the first
// violation. Deliveries validate the envelope before writing any command.
func (e Envelope) Check() error {
	if e.Sender != "" {
		if _, err := smtp.ParseAddress(e.Sender); err != nil {
			return fmt.Errorf("sender %q: %w", e.Sender, err)
		}
	}
	if len(e.Recipients) == 0 {
		return fmt.Errorf("need at least one recipient")
	}
	for _, rcpt := range e.Recipients {
		if _, err := smtp.ParseAddress(rcpt); err != nil {
			return fmt.Errorf("recipient %q: %w", rcpt, err)
		}
	}
	return nil
}

// RecipientResult is the response to the RCPT TO command for one recipient of
// a transaction.
type RecipientResult struct {
	Recipient string   // Address as passed in the envelope.
	Response  Response // Reply to the RCPT TO command. For read errors, Response.Err is set.
}

// Result is the outcome of a transaction for all its recipients.
type Result struct {
	Outcome Outcome
	// One per envelope recipient, in envelope order. Nil if the transaction failed
	// before responses to RCPT TO commands were read.
	Recipients []RecipientResult
}

// Opts influence behaviour of Client.
type Opts struct {
	// If auth is non-nil, authentication will be done with the returned sasl client.
	// The function should select the preferred mechanism. Mechanisms are in upper
	// case. See AuthPreferred for a standard implementation.
	//
	// The TLS connection state can be used for the SCRAM PLUS mechanisms, binding the
	// authentication exchange to a TLS connection. It is only present for TLS
	// connections.
	//
	// If no mechanism is suitable, an error wrapping ErrNoAuthMechanism should be
	// returned, and the session will fail.
	Auth func(mechanisms []string, cs *tls.ConnectionState) (sasl.Client, error)

	// If set, TLS certificate verification errors are ignored. Certificates are still
	// requested and connection details logged, but the connection will continue.
	IgnoreTLSVerifyErrors bool

	// If not nil, used instead of the system default roots for TLS PKIX verification.
	RootCAs *x509.CertPool

	// If set, TLS client certificate authentication is done.
	ClientCert *tls.Certificate

	// If not nil, the TLS config to use instead of the default. Useful for custom
	// certificate verification or TLS parameters. The other TLS/certificate fields in
	// [Opts], and the tlsVerifyPKIX and remoteHostname parameters to [New] have no
	// effect when TLSConfig is set.
	TLSConfig *tls.Config

	// Maximum number of lines accepted in a single, possibly multiline, reply,
	// bounding reads of rogue replies. A reply with more lines is malformed and
	// botches the connection. 0 means DefaultMaxReplyLines.
	MaxReplyLines int

	// Timeout for each reply read and each write, applied as deadline on the
	// connection. A timeout surfaces as a transport error. 0 means
	// DefaultCommandTimeout.
	CommandTimeout time.Duration
}

// New initializes an SMTP session on the given connection, returning a client
// that can be used to deliver messages.
//
// New optionally starts TLS (for submission), reads the server greeting,
// identifies itself with a HELO or EHLO command, initializes TLS with STARTTLS
// if remote supports it and optionally authenticates. If successful, a client
// is returned on which eventually Close must be called. Otherwise an error is
// returned and the caller is responsible for closing the connection.
//
// The connection is typically made with Dial, but any net.Conn works: the
// client never dials or resolves itself.
//
// tlsMode indicates if and how TLS may/must (not) be used.
//
// tlsVerifyPKIX indicates if TLS certificates must be validated against the
// PKIX/WebPKI certificate authorities (if TLS is done).
func New(ctx context.Context, elog *slog.Logger, conn net.Conn, tlsMode TLSMode, tlsVerifyPKIX bool, ehloHostname, remoteHostname dns.Domain, opts Opts) (*Client, error) {
	c := &Client{
		origConn:              conn,
		tlsVerifyPKIX:         tlsVerifyPKIX,
		ignoreTLSVerifyErrors: opts.IgnoreTLSVerifyErrors,
		rootCAs:               opts.RootCAs,
		remoteHostname:        remoteHostname,
		clientCert:            opts.ClientCert,
		tlsConfigOpts:         opts.TLSConfig,
		lastlog:               time.Now(),
		cmds:                  []string{"(none)"},
		cmdTimeout:            opts.CommandTimeout,
		maxReplyLines:         opts.MaxReplyLines,
		state:                 StateConnected,
	}
	if c.cmdTimeout == 0 {
		c.cmdTimeout = DefaultCommandTimeout
	}
	if c.maxReplyLines == 0 {
		c.maxReplyLines = DefaultMaxReplyLines
	}
	c.log = mlog.New("smtpclient", elog).WithFunc(func() []slog.Attr {
		now := time.Now()
		l := []slog.Attr{
			slog.Duration("delta", now.Sub(c.lastlog)),
		}
		c.lastlog = now
		return l
	})

	if tlsMode == TLSImmediate {
		config := c.tlsConfig()
		tlsconn := tls.Client(conn, config)
		if err := tlsconn.HandshakeContext(ctx); err != nil {
			return nil, fmt.Errorf("%w: immediate tls handshake: %v", ErrTLS, err)
		}
		c.conn = tlsconn
		version, ciphersuite := wireio.TLSInfo(tlsconn.ConnectionState())
		c.log.Debug("tls client handshake done",
			slog.String("version", version),
			slog.String("ciphersuite", ciphersuite),
			slog.Any("servername", remoteHostname))
		c.tls = true
	} else {
		c.conn = conn
	}

	// We don't wrap reads in a timeoutReader for fear of an optional TLS wrapper doing
	// reads without the client asking for it. Such reads could result in a timeout
	// error. Read deadlines are set per reply read instead.
	c.tr = wireio.NewTraceReader(c.log, "RS: ", c.conn)
	c.r = bufio.NewReader(c.tr)
	// A single write timeout for all writes.
	// todo future: use different timeouts ../rfc/5321:3610
	c.tw = wireio.NewTraceWriter(c.log, "LC: ", timeoutWriter{c.conn, c.cmdTimeout, c.log})
	c.w = bufio.NewWriter(c.tw)

	if err := c.hello(ctx, tlsMode, ehloHostname, opts.Auth); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) tlsConfig() *tls.Config {
	if c.tlsConfigOpts != nil {
		return c.tlsConfigOpts
	}

	var certs []tls.Certificate
	if c.clientCert != nil {
		certs = []tls.Certificate{*c.clientCert}
	}

	return &tls.Config{
		ServerName:         c.remoteHostname.ASCII, // For SNI.
		MinVersion:         tls.VersionTLS12,       // ../rfc/8996:31 ../rfc/8997:66
		InsecureSkipVerify: !c.tlsVerifyPKIX || c.ignoreTLSVerifyErrors,
		RootCAs:            c.rootCAs,
		Certificates:       certs,
	}
}

// xbotchf generates a temporary error and marks the client as botched. e.g. for
// i/o errors or invalid protocol messages.
func (c *Client) xbotchf(reply smtp.Reply, format string, args ...any) {
	panic(c.botchf(reply, format, args...))
}

// botchf generates a temporary error and marks the client as botched, moving
// it to StateClosed. The error is built first, so it reports the state the
// session was in when the failure occurred.
func (c *Client) botchf(reply smtp.Reply, format string, args ...any) error {
	err := c.errorf(false, reply, format, args...)
	c.botched = true
	c.state = StateClosed
	return err
}

func (c *Client) errorf(permanent bool, reply smtp.Reply, format string, args ...any) error {
	var cmd string
	if len(c.cmds) > 0 {
		cmd = c.cmds[0]
	}
	return Error{permanent, c.state, reply.Code, reply.Secode, cmd, firstLine(reply), moreLines(reply), fmt.Errorf(format, args...)}
}

func (c *Client) xerrorf(permanent bool, reply smtp.Reply, format string, args ...any) {
	panic(c.errorf(permanent, reply, format, args...))
}

// xstatusf fails a command that got an unexpected concluding reply, wrapping
// err. An intermediate (3xx) reply where a concluding reply is expected means
// client and server no longer agree on who sends next: the connection is
// botched and err is overridden with ErrUnexpectedReply.
func (c *Client) xstatusf(err error, reply smtp.Reply, format string, args ...any) {
	args = append([]any{err}, args...)
	if reply.Class() == smtp.ClassPositiveIntermediate {
		args[0] = ErrUnexpectedReply
		panic(c.botchf(reply, "%w: "+format, args...))
	}
	c.xerrorf(reply.Permanent(), reply, "%w: "+format, args...)
}

func firstLine(reply smtp.Reply) string {
	if len(reply.Lines) > 0 {
		return reply.Lines[0]
	}
	return ""
}

func moreLines(reply smtp.Reply) []string {
	if len(reply.Lines) > 1 {
		return reply.Lines[1:]
	}
	return nil
}

// timeoutWriter passes each Write on to conn after setting a write deadline on conn based on
// timeout.
type timeoutWriter struct {
	conn    net.Conn
	timeout time.Duration
	log     mlog.Log
}

func (w timeoutWriter) Write(buf []byte) (int, error) {
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
		w.log.Errorx("setting write deadline", err)
	}

	return w.conn.Write(buf)
}

var bufs = wireio.NewBufpool(8, 2*1024)

func (c *Client) readline() (string, error) {
	// todo: could have per-operation timeouts. and rfc suggests higher minimum timeouts. ../rfc/5321:3610
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cmdTimeout)); err != nil {
		c.log.Errorx("setting read deadline", err)
	}

	line, err := bufs.Readline(c.log, c.r)
	if err != nil {
		if errors.Is(err, wireio.ErrLineTooLong) {
			return line, c.botchf(smtp.Reply{}, "%w: %s: %s", ErrMalformedReply, strings.Join(c.cmds, ","), err)
		}
		return line, c.botchf(smtp.Reply{}, "%w: %s: %w", ErrTransport, strings.Join(c.cmds, ","), err)
	}
	return line, nil
}

func (c *Client) xtrace(level slog.Level) func() {
	c.xflush()
	c.tr.SetTrace(level)
	c.tw.SetTrace(level)
	return func() {
		c.xflush()
		c.tr.SetTrace(mlog.LevelTrace)
		c.tw.SetTrace(mlog.LevelTrace)
	}
}

func (c *Client) xwritelinef(format string, args ...any) {
	c.xbwritelinef(format, args...)
	c.xflush()
}

func (c *Client) xwriteline(line string) {
	c.xbwriteline(line)
	c.xflush()
}

func (c *Client) xbwritelinef(format string, args ...any) {
	c.xbwriteline(fmt.Sprintf(format, args...))
}

func (c *Client) xbwriteline(line string) {
	_, err := fmt.Fprintf(c.w, "%s\r\n", line)
	if err != nil {
		c.xbotchf(smtp.Reply{}, "%w: write: %w", ErrTransport, err)
	}
}

func (c *Client) xflush() {
	err := c.w.Flush()
	if err != nil {
		c.xbotchf(smtp.Reply{}, "%w: writes: %w", ErrTransport, err)
	}
}

// read reads a full reply, with enhanced status codes parsed if the server
// announced ENHANCEDSTATUSCODES.
func (c *Client) read() (smtp.Reply, error) {
	return c.readReply(c.caps.Supports("ENHANCEDSTATUSCODES"))
}

func (c *Client) xread() smtp.Reply {
	reply, err := c.read()
	if err != nil {
		panic(err)
	}
	return reply
}

func (c *Client) xreadecode(ecodes bool) smtp.Reply {
	reply, err := c.readReply(ecodes)
	if err != nil {
		panic(err)
	}
	return reply
}

// readReply reads a reply, possibly multiline. If ecodes, enhanced status
// codes are parsed from the reply texts. All lines must carry the same code,
// and the number of lines is bounded by Opts.MaxReplyLines; violations are
// malformed replies that botch the connection. Each concluded reply is
// recorded in metrics and logged with the command that caused it, except AUTH
// continuations, which do not conclude the AUTH command.
func (c *Client) readReply(ecodes bool) (smtp.Reply, error) {
	var reply smtp.Reply
	for {
		line, err := c.readline()
		if err != nil {
			return reply, err
		}
		code, secode, text, last, perr := smtp.ParseReplyLine(line, ecodes)
		if perr != nil {
			reply.Code, reply.Secode = 0, ""
			reply.Lines = append(reply.Lines, line)
			return reply, c.botchf(reply, "%w: %s", ErrMalformedReply, perr)
		}
		reply.Lines = append(reply.Lines, line)
		reply.Texts = append(reply.Texts, text)
		if reply.Code != 0 && code != reply.Code {
			// ../rfc/5321:2771
			prev := reply.Code
			reply.Code, reply.Secode = 0, ""
			return reply, c.botchf(reply, "%w: multiline reply with different codes, previous %d, last %d", ErrMalformedReply, prev, code)
		}
		if len(reply.Lines) > c.maxReplyLines {
			reply.Code, reply.Secode = 0, ""
			return reply, c.botchf(reply, "%w: more than %d lines in reply", ErrMalformedReply, c.maxReplyLines)
		}
		reply.Code = code
		reply.Secode = secode
		if !last {
			continue
		}
		if code != smtp.C334ContinueAuth {
			cmd := ""
			if len(c.cmds) > 0 {
				cmd = c.cmds[0]
				// We only keep the last, so we're not creating new slices all the time.
				if len(c.cmds) > 1 {
					c.cmds = c.cmds[1:]
				}
			}
			MetricCommands.ObserveLabels(float64(time.Since(c.cmdStart))/float64(time.Second), cmd, fmt.Sprintf("%d", code), secode)
			c.log.Debug("smtpclient command result",
				slog.String("cmd", cmd),
				slog.Int("code", code),
				slog.String("secode", secode),
				slog.Duration("duration", time.Since(c.cmdStart)))
		}
		return reply, nil
	}
}

func (c *Client) recover(rerr *error) {
	x := recover()
	if x == nil {
		return
	}
	cerr, ok := x.(Error)
	if !ok {
		MetricPanicInc()
		panic(x)
	}
	*rerr = cerr
}

func (c *Client) hello(ctx context.Context, tlsMode TLSMode, ehloHostname dns.Domain, auth func(mechanisms []string, cs *tls.ConnectionState) (sasl.Client, error)) (rerr error) {
	defer c.recover(&rerr)

	// perform EHLO handshake, falling back to HELO if server does not appear to
	// implement EHLO.
	hello := func(heloOK bool) {
		// Write EHLO and parse the announced extensions.
		// ../rfc/5321:987
		c.cmds[0] = "ehlo"
		c.cmdStart = time.Now()
		// Syntax: ../rfc/5321:1827
		c.xwritelinef("EHLO %s", ehloHostname.ASCII)
		reply := c.xreadecode(false)
		switch reply.Code {
		// ../rfc/5321:997
		// ../rfc/5321:3098
		case smtp.C500BadSyntax, smtp.C501BadParamSyntax, smtp.C502CmdNotImpl, smtp.C503BadCmdSeq, smtp.C504ParamNotImpl:
			if !heloOK {
				c.xerrorf(true, reply, "%w: remote claims ehlo is not supported", ErrStatus)
			}
			// ../rfc/5321:996
			c.cmds[0] = "helo"
			c.cmdStart = time.Now()
			c.xwritelinef("HELO %s", ehloHostname.ASCII)
			reply = c.xreadecode(false)
			if reply.Code != smtp.C250Completed {
				c.xstatusf(ErrStatus, reply, "expected 250 to HELO, got %d", reply.Code)
			}
			// HELO implies an empty capability set. ../rfc/5321:997
			c.caps = smtp.Capabilities{}
			c.state = StateEHLO
			return
		case smtp.C250Completed:
		default:
			c.xstatusf(ErrStatus, reply, "expected 250, got %d", reply.Code)
		}
		// The first text is the server greeting, extension keywords follow.
		// ../rfc/5321:1869
		c.caps = smtp.ParseCapabilities(reply.Texts[1:])
		c.state = StateEHLO
	}

	// Read greeting.
	c.cmds = []string{"(greeting)"}
	c.cmdStart = time.Now()
	reply := c.xreadecode(false)
	if reply.Code != smtp.C220ServiceReady {
		c.xstatusf(ErrStatus, reply, "expected 220, got %d", reply.Code)
	}
	// ../rfc/5321:2588
	_, c.remoteHelo, _ = strings.Cut(reply.Lines[0], " ")
	c.state = StateGreeted

	// Write EHLO, falling back to HELO if server doesn't appear to support it.
	hello(true)

	// Attempt TLS if remote announces STARTTLS and we aren't doing immediate TLS, or
	// if caller requires it.
	if tlsMode == TLSRequiredStartTLS || tlsMode == TLSOpportunistic && c.caps.Supports("STARTTLS") {
		if !c.caps.Supports("STARTTLS") {
			// Required but not announced. No STARTTLS command is brought on the wire.
			// ../rfc/3207:95
			c.xerrorf(false, smtp.Reply{}, "%w", ErrStartTLSUnsupported)
		}
		c.log.Debug("starting tls client", slog.Any("tlsmode", tlsMode), slog.Any("servername", c.remoteHostname))
		c.cmds[0] = "starttls"
		c.cmdStart = time.Now()
		c.xwritelinef("STARTTLS")
		reply := c.xread()
		// ../rfc/3207:107
		if reply.Code != smtp.C220ServiceReady {
			c.xstatusf(ErrTLS, reply, "STARTTLS: got %d, expected 220", reply.Code)
		}
		c.state = StateTLSNegotiating
		// Capabilities announced on the plaintext connection have no standing, a fresh
		// EHLO is required after the handshake. ../rfc/3207:83
		c.caps = smtp.Capabilities{}

		// We don't want to do TLS on top of c.r because it also prints protocol traces: We
		// don't want to log the TLS stream. So we'll do TLS on the underlying connection,
		// but make sure any bytes already read and in the buffer are used for the TLS
		// handshake.
		conn := c.conn
		if n := c.r.Buffered(); n > 0 {
			conn = &wireio.PrefixConn{
				PrefixReader: io.LimitReader(c.r, int64(n)),
				Conn:         conn,
			}
		}

		tlsConfig := c.tlsConfig()
		nconn := tls.Client(conn, tlsConfig)
		c.conn = nconn

		nctx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		err := nconn.HandshakeContext(nctx)
		if err != nil {
			c.xerrorf(false, smtp.Reply{}, "%w: STARTTLS TLS handshake: %s", ErrTLS, err)
		}
		cancel()
		c.tr = wireio.NewTraceReader(c.log, "RS: ", c.conn)
		c.tw = wireio.NewTraceWriter(c.log, "LC: ", timeoutWriter{c.conn, c.cmdTimeout, c.log})
		c.r = bufio.NewReader(c.tr)
		c.w = bufio.NewWriter(c.tw)

		version, ciphersuite := wireio.TLSInfo(nconn.ConnectionState())
		c.log.Debug("starttls client handshake done",
			slog.Any("tlsmode", tlsMode),
			slog.Bool("verifypkix", c.tlsVerifyPKIX),
			slog.Bool("ignoretlsverifyerrors", c.ignoreTLSVerifyErrors),
			slog.String("version", version),
			slog.String("ciphersuite", ciphersuite),
			slog.Any("servername", c.remoteHostname))
		c.tls = true

		hello(false)
	}

	if auth != nil {
		if err := c.auth(auth); err != nil {
			return err
		}
	}
	c.state = StateReady
	return
}

// ../rfc/4954:139
func (c *Client) auth(auth func(mechanisms []string, cs *tls.ConnectionState) (sasl.Client, error)) (rerr error) {
	defer c.recover(&rerr)

	c.cmds[0] = "auth"
	c.cmdStart = time.Now()

	mechanisms := c.caps.AuthMechanisms()
	a, err := auth(mechanisms, c.TLSConnectionState())
	if err != nil {
		c.xerrorf(true, smtp.Reply{}, "get authentication mechanism: %w, server supports %s", err, strings.Join(mechanisms, ", "))
	} else if a == nil {
		c.xerrorf(true, smtp.Reply{}, "%w, server supports %s", ErrNoAuthMechanism, strings.Join(mechanisms, ", "))
	}
	name, cleartextCreds := a.Info()

	c.state = StateAuthenticating
	result := "error"
	defer func() {
		MetricAuthResults.IncLabels(strings.ToLower(name), result)
	}()

	abort := func() smtp.Reply {
		// Abort authentication. ../rfc/4954:193
		c.xwriteline("*")

		// Server must respond with 501. ../rfc/4954:195
		reply := c.xread()
		if reply.Code != smtp.C501BadParamSyntax {
			c.botched = true
			c.state = StateClosed
		}
		return reply
	}

	toserver, last, err := a.Next(nil)
	if err != nil {
		c.xerrorf(false, smtp.Reply{}, "%w: initial step in auth mechanism %s: %s", ErrAuthProtocol, name, err)
	}
	if cleartextCreds {
		defer c.xtrace(mlog.LevelTraceauth)()
	}
	if toserver == nil {
		c.xwriteline("AUTH " + name)
	} else if len(toserver) == 0 {
		c.xwriteline("AUTH " + name + " =") // ../rfc/4954:214
	} else {
		c.xwriteline("AUTH " + name + " " + base64.StdEncoding.EncodeToString(toserver))
	}
	for {
		if cleartextCreds && last {
			c.xtrace(mlog.LevelTrace) // Restore.
		}

		reply := c.xreadecode(last)
		switch {
		case reply.Code == smtp.C235AuthSuccess:
			if !last {
				c.xerrorf(false, reply, "%w: server completed authentication earlier than client expected", ErrAuthProtocol)
			}
			c.state = StateAuthenticated
			result = "ok"
			return nil

		case reply.Code == smtp.C334ContinueAuth:
			// The mechanism decides whether another round is acceptable, e.g. XOAUTH2
			// continues after its final message with an error challenge.
			if len(reply.Lines) > 1 {
				abort()
				c.xerrorf(false, reply, "%w: server responded with multiline continuation", ErrAuthProtocol)
			}
			fromserver, err := base64.StdEncoding.DecodeString(reply.Texts[0])
			if err != nil {
				abort()
				c.xerrorf(false, reply, "%w: malformed base64 data in authentication continuation response", ErrAuthProtocol)
			}
			if len(fromserver) > maxAuthChallengeSize {
				abort()
				c.xerrorf(false, reply, "%w: authentication challenge of %d bytes too large", ErrAuthProtocol, len(fromserver))
			}
			toserver, last, err = a.Next(fromserver)
			if err != nil {
				// For failing SCRAM, the client stops due to message about invalid proof. The
				// server still sends an authentication result (it probably should send 501
				// instead).
				areply := abort()
				c.xerrorf(false, areply, "%w: client aborted authentication: %w", ErrAuthProtocol, err)
			}
			c.xwriteline(base64.StdEncoding.EncodeToString(toserver))

		case reply.Class() == smtp.ClassPermanentNegative:
			result = "rejected"
			c.xerrorf(true, reply, "%w", ErrAuthRejected)

		case reply.Class() == smtp.ClassTransientNegative:
			result = "transient"
			c.xerrorf(false, reply, "%w", ErrAuthTransient)

		default:
			if reply.Class() == smtp.ClassPositiveIntermediate {
				c.botched = true
				c.state = StateClosed
			}
			c.xerrorf(false, reply, "%w: unexpected response during authentication, expected 334 continue or 235 auth success", ErrAuthProtocol)
		}
	}
}

// AuthPreferred returns an authentication callback for Opts.Auth that picks
// the first client from preferred whose mechanism the server announces.
//
// Mechanisms that exchange credentials in clear text, such as PLAIN and LOGIN,
// are only considered on TLS-protected connections. If no mechanism remains,
// the callback returns an error wrapping ErrNoAuthMechanism and the session
// fails.
func AuthPreferred(preferred ...sasl.Client) func(mechanisms []string, cs *tls.ConnectionState) (sasl.Client, error) {
	return func(mechanisms []string, cs *tls.ConnectionState) (sasl.Client, error) {
		for _, a := range preferred {
			name, cleartext := a.Info()
			if cleartext && cs == nil {
				continue
			}
			if slices.Contains(mechanisms, name) {
				return a, nil
			}
		}
		return nil, ErrNoAuthMechanism
	}
}

// Supports8BITMIME returns whether the SMTP server supports the 8BITMIME
// extension, needed for sending data with non-ASCII bytes.
func (c *Client) Supports8BITMIME() bool {
	return c.caps.Supports("8BITMIME")
}

// SupportsSMTPUTF8 returns whether the SMTP server supports the SMTPUTF8
// extension, needed for sending messages with UTF-8 in headers or in an (SMTP)
// address.
func (c *Client) SupportsSMTPUTF8() bool {
	return c.caps.Supports("SMTPUTF8")
}

// SupportsStartTLS returns whether the SMTP server supports the STARTTLS
// extension.
func (c *Client) SupportsStartTLS() bool {
	return c.caps.Supports("STARTTLS")
}

// SupportsRequireTLS returns whether the SMTP server supports the REQUIRETLS
// extension. The REQUIRETLS extension is only announced after enabling
// STARTTLS.
func (c *Client) SupportsRequireTLS() bool {
	return c.caps.Supports("REQUIRETLS")
}

// Capabilities returns the extensions the server announced in response to the
// last EHLO: after STARTTLS, only those announced on the TLS connection.
// Empty after a HELO fallback.
func (c *Client) Capabilities() smtp.Capabilities {
	return c.caps
}

// State returns the phase of the session, as advanced by the replies
// processed so far.
func (c *Client) State() State {
	return c.state
}

// RemoteHelo returns the server name as announced in its 220 greeting.
func (c *Client) RemoteHelo() string {
	return c.remoteHelo
}

// TLS returns whether the connection is TLS protected.
func (c *Client) TLS() bool {
	return c.tls
}

// TLSConnectionState returns TLS details if TLS is enabled, and nil otherwise.
func (c *Client) TLSConnectionState() *tls.ConnectionState {
	if tlsConn, ok := c.conn.(*tls.Conn); ok {
		cs := tlsConn.ConnectionState()
		return &cs
	}
	return nil
}

// Deliver attempts to deliver a message to a mail server.
//
// mailFrom must be an email address, or empty in case of a DSN. rcptTo must be
// an email address. Addresses are validated before any command is written.
//
// If the message contains bytes with the high bit set, req8bitmime should be true.
// If set, the remote server must support the 8BITMIME extension or delivery will
// fail.
//
// If the message is internationalized, e.g. when headers contain non-ASCII
// character, or when UTF-8 is used in a localpart, reqSMTPUTF8 must be true. If set,
// the remote server must support the SMTPUTF8 extension or delivery will fail.
//
// If requireTLS is true, the remote server must support the REQUIRETLS
// extension, or delivery will fail.
//
// Deliver uses the following SMTP extensions if the remote server supports them:
// 8BITMIME, SMTPUTF8, SIZE, PIPELINING, ENHANCEDSTATUSCODES, STARTTLS.
//
// Returned errors can be of type Error, one of the Err-variables in this package
// or other underlying errors, e.g. for i/o. Use errors.Is to check.
func (c *Client) Deliver(ctx context.Context, mailFrom string, rcptTo string, msgSize int64, msg io.Reader, req8bitmime, reqSMTPUTF8, requireTLS bool) error {
	_, err := c.DeliverMultiple(ctx, Envelope{mailFrom, []string{rcptTo}}, msgSize, msg, req8bitmime, reqSMTPUTF8, requireTLS)
	return err
}

// DeliverMultiple is like Deliver, but attempts to deliver a message to
// multiple recipients. Errors about the entire transaction, such as i/o
// errors or error responses to the MAIL FROM or DATA commands, are returned by
// a non-nil rerr, with Outcome aborted. If the envelope has a single
// recipient, an error response to its RCPT TO command is returned in rerr.
// Otherwise per-recipient responses are in result.Recipients, with Outcome
// partial when some recipients were rejected, and rerr wrapping
// ErrAllRecipientsRejected when all were.
//
// The caller should take the limits from Capabilities into account when
// composing the envelope. And recognize recipient response code "452" to mean
// that a recipient limit was reached: another transaction can be attempted
// immediately after instead of marking the delivery attempt as failed. Code
// "552" must be treated like temporary error code "452" for historic reasons.
func (c *Client) DeliverMultiple(ctx context.Context, env Envelope, msgSize int64, msg io.Reader, req8bitmime, reqSMTPUTF8, requireTLS bool) (result Result, rerr error) {
	defer c.recover(&rerr)

	result.Outcome = OutcomeAborted

	if err := env.Check(); err != nil {
		return result, err
	}
	rcptTo := env.Recipients

	if c.origConn == nil {
		return result, ErrClosed
	} else if c.botched {
		return result, ErrBotched
	} else if c.needRset {
		if err := c.Reset(); err != nil {
			return result, err
		}
	}

	if !c.caps.Supports("8BITMIME") && req8bitmime {
		c.xerrorf(true, smtp.Reply{}, "%w", Err8bitmimeUnsupported)
	}
	if !c.caps.Supports("SMTPUTF8") && reqSMTPUTF8 {
		// ../rfc/6531:313
		c.xerrorf(false, smtp.Reply{}, "%w", ErrSMTPUTF8Unsupported)
	}
	if !c.caps.Supports("REQUIRETLS") && requireTLS {
		c.xerrorf(false, smtp.Reply{}, "%w", ErrRequireTLSUnsupported)
	}

	// Max size enforced, only when not zero. ../rfc/1870:79
	extSize, maxSize := c.caps.Size()
	if extSize && maxSize > 0 && msgSize > maxSize {
		c.xerrorf(true, smtp.Reply{}, "%w: message is %d bytes, remote has a %d bytes maximum size", ErrSize, msgSize, maxSize)
	}

	var params []string
	if extSize {
		params = append(params, fmt.Sprintf("SIZE=%d", msgSize))
	}
	if c.caps.Supports("8BITMIME") {
		if req8bitmime {
			params = append(params, "BODY=8BITMIME")
		} else {
			params = append(params, "BODY=7BIT")
		}
	}
	if reqSMTPUTF8 {
		// ../rfc/6531:213
		params = append(params, "SMTPUTF8")
	}
	if requireTLS {
		// ../rfc/8689:155
		params = append(params, "REQUIRETLS")
	}

	// Transaction overview: ../rfc/5321:1015
	// MAIL FROM: ../rfc/5321:1879
	// RCPT TO: ../rfc/5321:1916
	// DATA: ../rfc/5321:1992
	lineMailFrom := smtp.MailFromLine(env.Sender, params...)

	// We are going into a transaction. We'll clear this when done.
	c.needRset = true

	nok := 0
	if c.caps.Supports("PIPELINING") {
		c.cmds = make([]string, 1+len(rcptTo)+1)
		c.cmds[0] = "mailfrom"
		for i := range rcptTo {
			c.cmds[1+i] = "rcptto"
		}
		c.cmds[len(c.cmds)-1] = "data"
		c.cmdStart = time.Now()

		// Write and read in separate goroutines. Otherwise, writing a large recipient list
		// could block when a server doesn't read more commands before we read their
		// response.
		errc := make(chan error, 1)
		// Make sure we don't return before we're done writing to the connection.
		defer func() {
			if errc != nil {
				<-errc
			}
		}()
		go func() {
			var b bytes.Buffer
			b.WriteString(lineMailFrom)
			b.WriteString("\r\n")
			for _, rcpt := range rcptTo {
				b.WriteString(smtp.RcptToLine(rcpt))
				b.WriteString("\r\n")
			}
			b.WriteString("DATA\r\n")
			_, err := c.w.Write(b.Bytes())
			if err == nil {
				err = c.w.Flush()
			}
			errc <- err
		}()

		// Read response to MAIL FROM.
		mfreply := c.xread()
		if mfreply.Code == smtp.C250Completed {
			c.state = StateMailStarted
		}

		// We read the response to RCPT TOs and DATA without panic on read error. Servers
		// may be aborting the connection after a failed MAIL FROM, e.g. outlook when it
		// has blocklisted your IP. We don't want the read for the response to RCPT TO to
		// cause a read error as it would result in an unhelpful error message and a
		// temporary instead of permanent error code.

		// Read responses to RCPT TO.
		result.Recipients = make([]RecipientResult, len(rcptTo))
		lastReply := smtp.Reply{}
		for i, rcpt := range rcptTo {
			st := c.state
			reply, err := c.read()
			lastReply = reply
			// 552 should be treated as temporary historically, ../rfc/5321:3576
			permanent := reply.Code/100 == 5 && reply.Code != smtp.C552MailboxFull
			if err == nil && reply.Class() == smtp.ClassPositiveIntermediate {
				// Client and server no longer agree on who sends next.
				err = fmt.Errorf("%w: got intermediate %d, expected 2xx", ErrUnexpectedReply, reply.Code)
				c.botched = true
				c.state = StateClosed
			}
			result.Recipients[i] = RecipientResult{rcpt, Response{permanent, st, reply.Code, reply.Secode, "rcptto", firstLine(reply), moreLines(reply), err}}
			if reply.Code == smtp.C250Completed {
				nok++
				c.state = StateRecipientsAccepted
			}
		}

		// Read response to DATA.
		datareply, dataerr := c.read()

		writeerr := <-errc
		errc = nil

		// If MAIL FROM failed, it's an error for the entire transaction. We may have been
		// blocked.
		if mfreply.Code != smtp.C250Completed {
			if writeerr != nil || dataerr != nil {
				c.botched = true
				c.state = StateClosed
			}
			c.xstatusf(ErrStatus, mfreply, "got %d, expected 2xx", mfreply.Code)
		}

		// If there was an i/o error writing the commands, there is no point continuing.
		if writeerr != nil {
			c.xbotchf(smtp.Reply{}, "%w: writing pipelined mail/rcpt/data: %w", ErrTransport, writeerr)
		}

		// If remote closed the connection before writing a DATA response, and the RCPT
		// TO's failed (e.g. after deciding we're on a blocklist), use the last response
		// for a rcptto as result.
		if dataerr != nil && errors.Is(dataerr, io.ErrUnexpectedEOF) && nok == 0 {
			c.botched = true
			c.state = StateClosed
			r := result.Recipients[len(result.Recipients)-1].Response
			c.xerrorf(r.Permanent, lastReply, "%w: server closed connection just before responding to data command", ErrStatus)
		}

		// If the data command had an i/o or protocol error, it's also a failure for the
		// entire transaction.
		if dataerr != nil {
			panic(dataerr)
		}

		// An intermediate reply to a rcpt command desynced the connection, don't
		// continue with data.
		if c.botched {
			c.xerrorf(false, smtp.Reply{}, "%w: intermediate reply to rcpt command", ErrUnexpectedReply)
		}

		// If we didn't have any successful recipient, there is no point in continuing.
		if nok == 0 {
			// Servers may return success for a DATA without valid recipients. Write a dot to
			// end DATA and restore the connection to a known state.
			// ../rfc/2920:328
			if datareply.Code == smtp.C354Continue {
				_, doterr := fmt.Fprintf(c.w, ".\r\n")
				if doterr == nil {
					doterr = c.w.Flush()
				}
				if doterr == nil {
					_, doterr = c.read()
				}
				if doterr != nil {
					c.botched = true
					c.state = StateClosed
				}
			}

			if len(rcptTo) == 1 {
				panic(Error(result.Recipients[0].Response))
			}
			c.xerrorf(false, smtp.Reply{}, "%w", ErrAllRecipientsRejected)
		}

		if datareply.Code != smtp.C354Continue {
			c.xstatusf(ErrStatus, datareply, "got %d, expected 354", datareply.Code)
		}
		c.state = StateSendingData

	} else {
		c.cmds[0] = "mailfrom"
		c.cmdStart = time.Now()
		c.xwriteline(lineMailFrom)
		reply := c.xread()
		if reply.Code != smtp.C250Completed {
			c.xstatusf(ErrStatus, reply, "got %d, expected 2xx", reply.Code)
		}
		c.state = StateMailStarted

		result.Recipients = make([]RecipientResult, len(rcptTo))
		for i, rcpt := range rcptTo {
			c.cmds[0] = "rcptto"
			c.cmdStart = time.Now()
			c.xwriteline(smtp.RcptToLine(rcpt))
			st := c.state
			reply = c.xread()
			if i > 0 && (reply.Code == smtp.C452StorageFull || reply.Code == smtp.C552MailboxFull) {
				// Remote doesn't accept more recipients for this transaction. Don't send more, give
				// remaining recipients the same error result.
				err := fmt.Errorf("no more recipients accepted in transaction")
				for j := i; j < len(rcptTo); j++ {
					result.Recipients[j] = RecipientResult{rcptTo[j], Response{false, st, reply.Code, reply.Secode, "rcptto", firstLine(reply), moreLines(reply), err}}
				}
				break
			}
			if reply.Class() == smtp.ClassPositiveIntermediate {
				// Client and server no longer agree on who sends next. Record the violation for
				// this recipient and don't bring more commands on the wire.
				err := fmt.Errorf("%w: got intermediate %d, expected 2xx", ErrUnexpectedReply, reply.Code)
				result.Recipients[i] = RecipientResult{rcpt, Response{false, st, reply.Code, reply.Secode, "rcptto", firstLine(reply), moreLines(reply), err}}
				aerr := fmt.Errorf("%w: rcpt not attempted", ErrBotched)
				for j := i + 1; j < len(rcptTo); j++ {
					result.Recipients[j] = RecipientResult{rcptTo[j], Response{Command: "rcptto", Err: aerr}}
				}
				c.botched = true
				c.state = StateClosed
				break
			}
			var err error
			if reply.Code == smtp.C250Completed {
				nok++
				c.state = StateRecipientsAccepted
			} else {
				err = fmt.Errorf("%w: got %d, expected 2xx", ErrStatus, reply.Code)
			}
			// 552 should be treated as temporary historically, ../rfc/5321:3576
			permanent := reply.Code/100 == 5 && reply.Code != smtp.C552MailboxFull
			result.Recipients[i] = RecipientResult{rcpt, Response{permanent, st, reply.Code, reply.Secode, "rcptto", firstLine(reply), moreLines(reply), err}}
		}

		if c.botched {
			c.xerrorf(false, smtp.Reply{}, "%w: intermediate reply to rcpt command", ErrUnexpectedReply)
		}

		if nok == 0 {
			if len(rcptTo) == 1 {
				panic(Error(result.Recipients[0].Response))
			}
			c.xerrorf(false, smtp.Reply{}, "%w", ErrAllRecipientsRejected)
		}

		c.cmds[0] = "data"
		c.cmdStart = time.Now()
		c.xwriteline("DATA")
		reply = c.xread()
		if reply.Code != smtp.C354Continue {
			c.xstatusf(ErrStatus, reply, "got %d, expected 354", reply.Code)
		}
		c.state = StateSendingData
	}

	// For a DATA write, the suggested timeout is 3 minutes, we use the command
	// timeout for all writes through timeoutWriter. ../rfc/5321:3651
	defer c.xtrace(mlog.LevelTracedata)()
	err := smtp.DataWrite(c.w, msg)
	if err != nil {
		c.xbotchf(smtp.Reply{}, "writing message as smtp data: %w", err)
	}
	c.xflush()
	c.xtrace(mlog.LevelTrace) // Restore.
	reply := c.xread()
	if reply.Code != smtp.C250Completed {
		c.xstatusf(ErrStatus, reply, "got %d, expected 2xx", reply.Code)
	}
	c.state = StateTransactionComplete

	c.needRset = false
	if nok == len(rcptTo) {
		result.Outcome = OutcomeDelivered
	} else {
		result.Outcome = OutcomePartial
	}
	return
}

// Reset sends an SMTP RSET command to reset the message transaction state. Deliver
// automatically sends it if needed.
func (c *Client) Reset() (rerr error) {
	if c.origConn == nil {
		return ErrClosed
	} else if c.botched {
		return ErrBotched
	}

	defer c.recover(&rerr)

	// ../rfc/5321:2079
	c.cmds[0] = "rset"
	c.cmdStart = time.Now()
	c.xwriteline("RSET")
	reply := c.xread()
	if reply.Code != smtp.C250Completed {
		c.xstatusf(ErrStatus, reply, "got %d, expected 2xx", reply.Code)
	}
	c.state = StateReady
	c.needRset = false
	return
}

// Botched returns whether this connection is botched, e.g. a protocol error
// occurred and the connection is in unknown state, and cannot be used for message
// delivery.
func (c *Client) Botched() bool {
	return c.botched || c.origConn == nil
}

// Close cleans up the client, closing the underlying connection.
//
// If the connection is initialized and not botched, a QUIT command is sent and the
// response read with a short timeout before closing the underlying connection.
//
// Close returns any error encountered during QUIT and closing.
func (c *Client) Close() (rerr error) {
	if c.origConn == nil {
		return ErrClosed
	}

	defer c.recover(&rerr)

	if !c.botched {
		// ../rfc/5321:2205
		c.cmds[0] = "quit"
		c.cmdStart = time.Now()
		c.xwriteline("QUIT")
		if err := c.conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
			c.log.Infox("setting read deadline for reading quit response", err)
		} else if _, err := bufs.Readline(c.log, c.r); err != nil {
			rerr = fmt.Errorf("reading response to quit command: %v", err)
			c.log.Debugx("reading quit response", err)
		}
	}

	err := c.origConn.Close()
	if c.conn != c.origConn {
		// This is the TLS connection. Close will attempt to write a close notification.
		// But it will fail quickly because the underlying socket was closed.
		c.conn.Close()
	}
	c.origConn = nil
	c.conn = nil
	c.state = StateClosed
	if rerr == nil {
		rerr = err
	}
	return
}

// Conn returns the connection with the initialized SMTP session, possibly wrapping
// a TLS connection, and handling protocol trace logging. Once the caller uses this
// connection it is in control, and responsible for closing the connection, and
// other functions on the client must not be called anymore.
func (c *Client) Conn() (net.Conn, error) {
	if err := c.conn.SetDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("clearing io deadlines: %w", err)
	}
	return c.conn, nil
}
