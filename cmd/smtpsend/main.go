// Command smtpsend submits an email message to a mail server with SMTP.
//
// The message is read from stdin, with LF line endings rewritten to CRLF.
// Recipients are command-line arguments. The submission server, TLS use and
// credentials come from a config file, see "smtpsend -describeconf" for an
// annotated example.
package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/mjl-/sconf"

	"github.com/mailiq/smtpcore/dns"
	"github.com/mailiq/smtpcore/mlog"
	"github.com/mailiq/smtpcore/sasl"
	"github.com/mailiq/smtpcore/smtp"
	"github.com/mailiq/smtpcore/smtpclient"
)

var submitconf struct {
	LocalHostname string `sconf-doc:"Hostname to use in the EHLO command. Hosts don't always have an FQDN, set it explicitly."`
	Host          string `sconf-doc:"Host to dial for submission, e.g. mail.<domain>."`
	Port          int    `sconf-doc:"Port to dial, e.g. 465 for immediate TLS, 587 for submission with STARTTLS, or perhaps 25 for smtp."`
	TLS           bool   `sconf-doc:"Connect with TLS, verifying the server certificate. Usually for connections to port 465."`
	STARTTLS      bool   `sconf-doc:"After starting in plain text, require STARTTLS to enable TLS, verifying the server certificate. For port 587 and 25. If neither TLS nor STARTTLS is set, TLS is still used when the server announces support, but without certificate verification."`
	Username      string `sconf:"optional" sconf-doc:"For SMTP authentication. No authentication is attempted when empty."`
	Password      string `sconf:"optional" sconf-doc:"For password-based SMTP authentication, and the bearer token for XOAUTH2."`
	AuthMethod    string `sconf:"optional" sconf-doc:"If set, only attempt this authentication mechanism, e.g. SCRAM-SHA-256-PLUS, SCRAM-SHA-256, SCRAM-SHA-1-PLUS, SCRAM-SHA-1, CRAM-MD5, PLAIN, LOGIN, XOAUTH2. If empty, the most secure mutually supported mechanism is used."`
	From          string `sconf-doc:"Address for MAIL FROM in SMTP."`
}

// Mechanisms attempted when AuthMethod is empty, most to least secure. LOGIN
// and XOAUTH2 are only used when configured explicitly.
var defaultMechanisms = []string{"SCRAM-SHA-256-PLUS", "SCRAM-SHA-256", "SCRAM-SHA-1-PLUS", "SCRAM-SHA-1", "CRAM-MD5", "PLAIN"}

func xcheckf(err error, format string, args ...any) {
	if err == nil {
		return
	}
	log.Fatalf("%s: %s", fmt.Sprintf(format, args...), err)
}

func main() {
	log.SetFlags(0)

	var configPath, loglevel string
	var describeconf bool
	flag.StringVar(&configPath, "config", "smtpsend.conf", "path to config file")
	flag.StringVar(&loglevel, "loglevel", "info", "log level: error, warn, info, debug, trace, traceauth, tracedata")
	flag.BoolVar(&describeconf, "describeconf", false, "print an annotated example config file and exit")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: smtpsend [-config file] [-loglevel level] recipient ... <message")
		fmt.Fprintln(os.Stderr, "       smtpsend -describeconf")
		flag.PrintDefaults()
		os.Exit(2)
	}
	flag.Parse()

	if describeconf {
		if flag.NArg() != 0 {
			flag.Usage()
		}
		err := sconf.Describe(os.Stdout, submitconf)
		xcheckf(err, "describing config")
		return
	}

	recipients := flag.Args()
	if len(recipients) == 0 {
		flag.Usage()
	}

	level, ok := mlog.Levels[strings.ToLower(loglevel)]
	if !ok {
		log.Fatalf("unknown log level %q", loglevel)
	}
	mlog.SetConfig(map[string]slog.Level{"": level})
	clog := mlog.New("smtpsend", nil)

	err := sconf.ParseFile(configPath, &submitconf)
	xcheckf(err, "parsing config")

	_, err = smtp.ParseAddress(submitconf.From)
	xcheckf(err, "parsing from address")
	for _, rcpt := range recipients {
		_, err := smtp.ParseAddress(rcpt)
		xcheckf(err, "parsing recipient address %q", rcpt)
	}

	msg := readMessage(os.Stdin)

	// SMTPUTF8 is needed when addresses have non-ASCII characters.
	smtputf8 := !isASCII(submitconf.From)
	for _, rcpt := range recipients {
		smtputf8 = smtputf8 || !isASCII(rcpt)
	}

	var auth func(mechanisms []string, cs *tls.ConnectionState) (sasl.Client, error)
	if submitconf.Username != "" {
		user, pass := submitconf.Username, submitconf.Password
		prefer := defaultMechanisms
		if submitconf.AuthMethod != "" {
			prefer = []string{strings.ToUpper(submitconf.AuthMethod)}
		}
		auth = func(mechanisms []string, cs *tls.ConnectionState) (sasl.Client, error) {
			// Walk our preference order. Track PLUS-variants we could have used but the
			// server did not announce, so servers can detect downgrades.
			var noServerPlus1, noServerPlus256 bool
			for _, mech := range prefer {
				if !slices.Contains(mechanisms, mech) {
					switch mech {
					case "SCRAM-SHA-1-PLUS":
						noServerPlus1 = cs != nil
					case "SCRAM-SHA-256-PLUS":
						noServerPlus256 = cs != nil
					}
					continue
				}
				if mech == "SCRAM-SHA-256-PLUS" && cs != nil {
					return sasl.NewClientSCRAMSHA256PLUS(user, pass, *cs), nil
				} else if mech == "SCRAM-SHA-256" {
					return sasl.NewClientSCRAMSHA256(user, pass, noServerPlus256), nil
				} else if mech == "SCRAM-SHA-1-PLUS" && cs != nil {
					return sasl.NewClientSCRAMSHA1PLUS(user, pass, *cs), nil
				} else if mech == "SCRAM-SHA-1" {
					return sasl.NewClientSCRAMSHA1(user, pass, noServerPlus1), nil
				} else if mech == "CRAM-MD5" {
					return sasl.NewClientCRAMMD5(user, pass), nil
				} else if mech == "PLAIN" && cs != nil {
					return sasl.NewClientPlain(user, pass), nil
				} else if mech == "LOGIN" && cs != nil {
					return sasl.NewClientLogin(user, pass), nil
				} else if mech == "XOAUTH2" && cs != nil {
					return sasl.NewClientXOAUTH2(user, pass), nil
				} else if mech == "SCRAM-SHA-256-PLUS" || mech == "SCRAM-SHA-1-PLUS" {
					// Channel binding requires a TLS connection.
					continue
				} else if mech == "PLAIN" || mech == "LOGIN" || mech == "XOAUTH2" {
					// Not passing credentials over a connection without TLS.
					continue
				} else {
					return nil, fmt.Errorf("unknown authentication mechanism %q", mech)
				}
			}
			return nil, smtpclient.ErrNoAuthMechanism
		}
	}

	tlsMode := smtpclient.TLSOpportunistic
	tlsPKIX := false
	if submitconf.TLS {
		tlsMode = smtpclient.TLSImmediate
		tlsPKIX = true
	} else if submitconf.STARTTLS {
		tlsMode = smtpclient.TLSRequiredStartTLS
		tlsPKIX = true
	}

	localHostname, err := dns.ParseDomain(submitconf.LocalHostname)
	xcheckf(err, "parsing local hostname")

	var remoteHostname dns.Domain
	if net.ParseIP(submitconf.Host) == nil {
		remoteHostname, err = dns.ParseDomain(submitconf.Host)
		xcheckf(err, "parsing remote hostname")
	}

	addr := net.JoinHostPort(submitconf.Host, fmt.Sprintf("%d", submitconf.Port))
	dialctx, dialcancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer dialcancel()
	conn, err := smtpclient.Dial(dialctx, clog.Logger, &net.Dialer{}, addr)
	xcheckf(err, "dialing %s", addr)
	dialcancel()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	client, err := smtpclient.New(ctx, clog.Logger, conn, tlsMode, tlsPKIX, localHostname, remoteHostname, smtpclient.Opts{Auth: auth})
	xcheckf(err, "establishing smtp session")

	env := smtpclient.Envelope{Sender: submitconf.From, Recipients: recipients}
	result, err := client.DeliverMultiple(ctx, env, int64(len(msg)), strings.NewReader(msg), true, smtputf8, false)
	xcheckf(err, "submitting message")

	if err := client.Close(); err != nil {
		log.Printf("closing smtp session after message was sent: %v", err)
	}

	if result.Outcome != smtpclient.OutcomeDelivered {
		for _, r := range result.Recipients {
			if r.Response.Code != smtp.C250Completed {
				log.Printf("recipient %s rejected: %s", r.Recipient, r.Response.Line)
			}
		}
		os.Exit(1)
	}
}

// readMessage returns the message from r, with LF line endings rewritten to
// CRLF and a missing line ending on the last line added.
func readMessage(r io.Reader) string {
	var sb strings.Builder
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			xcheckf(err, "reading message")
		}
		if line != "" {
			if !strings.HasSuffix(line, "\n") {
				line += "\n"
			}
			if !strings.HasSuffix(line, "\r\n") {
				line = line[:len(line)-1] + "\r\n"
			}
			sb.WriteString(line)
		}
		if err == io.EOF {
			break
		}
	}
	return sb.String()
}

func isASCII(s string) bool {
	for _, c := range s {
		if c >= 0x80 {
			return false
		}
	}
	return true
}
