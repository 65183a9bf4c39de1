package mail

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"

	"github.com/Queueue0/tgmail/internal/packets"
)

const (
	defaultTimeout = 2 * time.Minute
	maxReplyLen    = 64 * 1024
)

var errReplyTooLong = errors.New("reply exceeds 64KiB")

// Relay is the submission endpoint every message goes through.
type Relay struct {
	Host     string
	Port     int
	Username string
	Password string
	// HeloName is sent with EHLO. Defaults to "localhost".
	HeloName string
	// Timeout bounds every single read or write on the connection.
	Timeout time.Duration
	// TLSConfig overrides the STARTTLS client config. ServerName defaults to Host.
	TLSConfig *tls.Config
}

func (r Relay) addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// client is a single submission session with the relay.
type client struct {
	ctx    context.Context
	c      net.Conn
	relay  Relay
	ext    *packets.Status
	closed bool
	stop   func() bool
	log    *slog.Logger
}

// dial connects and reads the greeting. Any error here means the relay
// could not be reached.
func dial(ctx context.Context, relay Relay, log *slog.Logger) (*client, error) {
	if relay.Timeout <= 0 {
		relay.Timeout = defaultTimeout
	}
	if relay.HeloName == "" {
		relay.HeloName = "localhost"
	}

	addr := relay.addr()
	log.Debug("dialing relay", "addr", addr)
	d := &net.Dialer{Timeout: relay.Timeout}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	cl := &client{ctx: ctx, c: c, relay: relay, log: log}
	// unblock any pending read or write once the context is done
	cl.stop = context.AfterFunc(ctx, func() {
		c.SetDeadline(time.Now())
	})

	stat, err := cl.readStatus()
	if err != nil {
		cl.abort()
		return nil, err
	}
	if stat.Code() != 220 {
		cl.Close()
		return nil, &ReplyError{stat.Code(), stat.Text()}
	}

	return cl, nil
}

// hello sends EHLO and remembers the advertised extensions.
func (cl *client) hello() error {
	stat, err := cl.cmd(packets.NewCommand("EHLO", cl.relay.HeloName))
	if err != nil {
		return err
	}
	if stat.Code() != 250 {
		return &ReplyError{stat.Code(), stat.Text()}
	}
	cl.ext = stat
	return nil
}

// startTLS upgrades the connection and greets the relay again. It is not
// optional: a relay without STARTTLS never sees the credentials.
func (cl *client) startTLS() error {
	if cl.ext == nil || !cl.ext.Has("STARTTLS") {
		return ErrNoStartTLS
	}

	stat, err := cl.cmd(packets.NewCommand("STARTTLS"))
	if err != nil {
		return err
	}
	if stat.Code() != 220 {
		return &ReplyError{stat.Code(), stat.Text()}
	}

	conf := &tls.Config{}
	if cl.relay.TLSConfig != nil {
		conf = cl.relay.TLSConfig.Clone()
	}
	if conf.ServerName == "" {
		conf.ServerName = cl.relay.Host
	}

	tlsc := tls.Client(cl.c, conf)
	cl.c = tlsc
	if err := cl.extend(); err != nil {
		return err
	}
	if err := tlsc.Handshake(); err != nil {
		cl.abort()
		return fmt.Errorf("handshake error: %w", err)
	}

	return cl.hello()
}

// auth runs a SASL exchange. A non-235 final reply is returned as a
// *ReplyError so the caller can tell rejected credentials from broken I/O.
func (cl *client) auth(sc sasl.Client) error {
	mech, ir, err := sc.Start()
	if err != nil {
		return err
	}

	args := []string{mech}
	if ir != nil {
		resp := base64.StdEncoding.EncodeToString(ir)
		if resp == "" {
			resp = "="
		}
		args = append(args, resp)
	}

	stat, err := cl.cmd(packets.NewCommand("AUTH", args...))
	for err == nil && stat.Code() == 334 {
		var chal, resp []byte
		chal, err = base64.StdEncoding.DecodeString(stat.Text())
		if err != nil {
			break
		}
		resp, err = sc.Next(chal)
		if err != nil {
			// cancel the exchange before giving up
			cl.cmd(packets.NewCommand("*"))
			break
		}
		stat, err = cl.cmd(packets.NewContinuation(base64.StdEncoding.EncodeToString(resp)))
	}
	if err != nil {
		return err
	}
	if stat.Code() != 235 {
		return &ReplyError{stat.Code(), stat.Text()}
	}

	return nil
}

// mail opens the transaction. With utf8 set the relay must have advertised
// SMTPUTF8, and the parameter is sent along.
func (cl *client) mail(from *Address, utf8 bool) error {
	args := []string{"FROM:" + from.SmtpFormat()}
	if utf8 {
		if !cl.ext.Has("SMTPUTF8") {
			return ErrNoSMTPUTF8
		}
		args = append(args, "SMTPUTF8")
	}
	return cl.expect(250, packets.NewCommand("MAIL", args...))
}

func (cl *client) rcpt(to *Address) error {
	return cl.expect(250, packets.NewCommand("RCPT", "TO:"+to.SmtpFormat()))
}

// data sends the DATA command followed by the already rendered message.
func (cl *client) data(msg []byte) error {
	stat, err := cl.cmd(packets.NewCommand("DATA"))
	if err != nil {
		return err
	}
	if stat.Code() != 354 {
		return &ReplyError{stat.Code(), stat.Text()}
	}

	if err := cl.extend(); err != nil {
		return err
	}
	if _, err := cl.c.Write(dotStuff(msg)); err != nil {
		return err
	}

	stat, err = cl.readStatus()
	if err != nil {
		return err
	}
	if stat.Code() != 250 {
		return &ReplyError{stat.Code(), stat.Text()}
	}
	return nil
}

// Close says goodbye and releases the connection. Safe to call repeatedly.
func (cl *client) Close() error {
	if cl.closed {
		return nil
	}
	if err := packets.NewCommand("QUIT").Send(cl.c); err == nil {
		cl.readStatus()
	}
	return cl.abort()
}

// abort drops the connection without QUIT.
func (cl *client) abort() error {
	if cl.closed {
		return nil
	}
	cl.closed = true
	if cl.stop != nil {
		cl.stop()
	}
	return cl.c.Close()
}

func (cl *client) expect(code uint16, p *packets.Command) error {
	stat, err := cl.cmd(p)
	if err != nil {
		return err
	}
	if stat.Code() != code {
		return &ReplyError{stat.Code(), stat.Text()}
	}
	return nil
}

// extend pushes the I/O deadline forward by one timeout unless the
// attempt's context is already done.
func (cl *client) extend() error {
	if err := cl.ctx.Err(); err != nil {
		cl.c.SetDeadline(time.Now())
		return err
	}
	return cl.c.SetDeadline(time.Now().Add(cl.relay.Timeout))
}

// cmd sends one command and reads its reply.
func (cl *client) cmd(p *packets.Command) (*packets.Status, error) {
	cl.log.Debug("sending command", "to", cl.relay.Host, "msg", p.SafeString())
	if err := cl.extend(); err != nil {
		return nil, err
	}
	if err := p.Send(cl.c); err != nil {
		return nil, err
	}
	return cl.readStatus()
}

func (cl *client) readStatus() (*packets.Status, error) {
	if err := cl.extend(); err != nil {
		return nil, err
	}
	b, err := cl.readResponse()
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	stat, err := packets.ParseStatus(b)
	if err != nil {
		return nil, fmt.Errorf("error parsing status: %w", err)
	}

	cl.log.Debug("reply received", "from", cl.relay.Host, "code", stat.Code())
	return stat, nil
}

// read a potential multi-line response
// One byte at a time so nothing is buffered past the reply, which matters
// when the connection is swapped for TLS after STARTTLS.
func (cl *client) readResponse() ([]byte, error) {
	read := []byte{}
	lastLine := false
	next := make([]byte, 1)
	for !lastLine {
		line := []byte{}
		for len(line) < 2 || string(line[len(line)-2:]) != "\r\n" {
			n, err := cl.c.Read(next)
			if err != nil {
				return nil, err
			}
			if n == 0 {
				continue
			}
			line = append(line, next[0])
			if len(read)+len(line) > maxReplyLen {
				return nil, errReplyTooLong
			}
		}
		if len(line) < 5 || line[3] != byte('-') {
			lastLine = true
		}
		read = append(read, line...)
	}
	return read, nil
}
