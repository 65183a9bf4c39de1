package mail

import (
	"bytes"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is one outbound plain text mail. It only lives for the duration
// of a single delivery attempt.
type Message struct {
	Id      string
	From    *Address
	To      *Address
	Subject string
	Body    string
	Date    time.Time
}

func NewMessage(from, to *Address, subject, body string) *Message {
	return &Message{
		Id:      uuid.NewString(),
		From:    from,
		To:      to,
		Subject: subject,
		Body:    body,
		Date:    time.Now(),
	}
}

func (m *Message) messageID() string {
	return fmt.Sprintf("<%s@%s>", m.Id, m.From.Domain)
}

// Bytes renders the message with CRLF line endings, not yet dot-stuffed.
func (m *Message) Bytes() ([]byte, error) {
	var b bytes.Buffer
	header := func(k, v string) {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}

	header("From", m.From.String())
	header("To", m.To.String())
	header("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	header("Date", m.Date.Format(time.RFC1123Z))
	header("Message-ID", m.messageID())
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="utf-8"`)
	header("Content-Transfer-Encoding", "quoted-printable")
	b.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&b)
	body := strings.ReplaceAll(m.Body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\n", "\r\n")
	if _, err := qp.Write([]byte(body)); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	if !bytes.HasSuffix(b.Bytes(), []byte("\r\n")) {
		b.WriteString("\r\n")
	}

	return b.Bytes(), nil
}

// dotStuff prepares rendered message bytes for the DATA phase and appends
// the terminating "." line.
func dotStuff(msg []byte) []byte {
	var out bytes.Buffer
	for _, line := range bytes.SplitAfter(msg, []byte("\r\n")) {
		if len(line) == 0 {
			continue
		}
		if line[0] == '.' {
			out.WriteByte('.')
		}
		out.Write(line)
	}
	out.WriteString(".\r\n")
	return out.Bytes()
}
