package mail

import (
	"bufio"
	"crypto/tls"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Queueue0/tgmail/internal/packets"
)

// scriptConn is the server side of a hand-driven SMTP exchange, for replies
// a well-behaved relay would never send.
type scriptConn struct {
	c    net.Conn
	r    *bufio.Reader
	cert tls.Certificate
}

func (s *scriptConn) reply(code uint16, lines ...string) {
	s.c.Write([]byte(packets.NewStatus(code, lines...).String()))
}

// read returns the next line from the client without its CRLF.
func (s *scriptConn) read() string {
	l, _ := s.r.ReadString('\n')
	return strings.TrimRight(l, "\r\n")
}

// secure plays the greeting, EHLO and STARTTLS, then answers the second
// EHLO over TLS advertising ext.
func (s *scriptConn) secure(ext ...string) {
	s.reply(220, "script ready")
	s.read()
	s.reply(250, "script", "STARTTLS")
	s.read()
	s.reply(220, "go ahead")

	tc := tls.Server(s.c, &tls.Config{Certificates: []tls.Certificate{s.cert}})
	if err := tc.Handshake(); err != nil {
		return
	}
	s.c = tc
	s.r = bufio.NewReader(tc)

	s.read()
	s.reply(250, append([]string{"script"}, ext...)...)
}

// drainData consumes a message up to and including its lone "." line.
func (s *scriptConn) drainData() {
	for {
		l, err := s.r.ReadString('\n')
		if err != nil || l == ".\r\n" {
			return
		}
	}
}

// scriptedRelay accepts a single connection and runs script on it.
func scriptedRelay(t *testing.T, script func(s *scriptConn)) Relay {
	t.Helper()

	cert, pool := selfSignedCert(t)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c, err := l.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		c.SetDeadline(time.Now().Add(5 * time.Second))
		script(&scriptConn{c: c, r: bufio.NewReader(c), cert: cert})
	}()
	t.Cleanup(func() {
		l.Close()
		<-done
	})

	return Relay{
		Host:      "127.0.0.1",
		Port:      l.Addr().(*net.TCPAddr).Port,
		Username:  "bot@example.com",
		Password:  "secret",
		Timeout:   2 * time.Second,
		TLSConfig: &tls.Config{RootCAs: pool},
	}
}
