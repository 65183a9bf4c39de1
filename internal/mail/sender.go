package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/emersion/go-sasl"
)

// Reply codes that mean the relay refused the credentials rather than
// failing for some other reason.
var authRejectCodes = map[uint16]bool{
	454: true,
	530: true,
	534: true,
	535: true,
	538: true,
}

type SenderConfig struct {
	Relay Relay
	// From is the envelope and header sender, normally the relay login.
	From    string
	Subject string
	// LogBodies adds the message text to the success log line.
	LogBodies bool
}

// Sender submits one message per call through the configured relay.
// It holds no connection between calls.
type Sender struct {
	relay     Relay
	from      *Address
	subject   string
	logBodies bool
	log       *slog.Logger
}

func NewSender(conf SenderConfig, log *slog.Logger) (*Sender, error) {
	if conf.Relay.Host == "" || conf.Relay.Port == 0 {
		return nil, errors.New("relay host and port are required")
	}
	from, err := ParseAddress(conf.From)
	if err != nil {
		return nil, fmt.Errorf("sender address: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}

	return &Sender{
		relay:     conf.Relay,
		from:      from,
		subject:   conf.Subject,
		logBodies: conf.LogBodies,
		log:       log.With("component", "mail"),
	}, nil
}

// Send delivers body to recipient in a single synchronous attempt. Any
// non-nil error is a *DeliveryError.
func (s *Sender) Send(ctx context.Context, recipient, body string) error {
	id, de := s.send(ctx, recipient, body)
	if de != nil {
		s.log.Error("delivery failed",
			"rcpt", recipient,
			"kind", de.Kind.String(),
			"step", de.Step,
			"err", de.Err.Error())
		return de
	}

	attrs := []any{"rcpt", recipient, "id", id}
	if s.logBodies {
		attrs = append(attrs, "body", body)
	} else {
		attrs = append(attrs, "body_len", len(body))
	}
	s.log.Info("message delivered", attrs...)
	return nil
}

// send reports every failure as a *DeliveryError naming the step.
func (s *Sender) send(ctx context.Context, recipient, body string) (string, *DeliveryError) {
	to, err := ParseAddress(recipient)
	if err != nil {
		return "", newDeliveryError(UnclassifiedError, recipient, "message", err)
	}

	m := NewMessage(s.from, to, s.subject, body)
	data, err := m.Bytes()
	if err != nil {
		return "", newDeliveryError(UnclassifiedError, recipient, "message", err)
	}

	cl, err := dial(ctx, s.relay, s.log)
	if err != nil {
		return "", newDeliveryError(ConnectionError, recipient, "dial", err)
	}
	defer cl.Close()

	if err := cl.hello(); err != nil {
		return "", newDeliveryError(TransportError, recipient, "EHLO", err)
	}
	if err := cl.startTLS(); err != nil {
		return "", newDeliveryError(TransportError, recipient, "STARTTLS", err)
	}

	plain := sasl.NewPlainClient("", s.relay.Username, s.relay.Password)
	if err := cl.auth(plain); err != nil {
		var re *ReplyError
		if errors.As(err, &re) && authRejectCodes[re.Code] {
			return "", newDeliveryError(AuthenticationError, recipient, "AUTH", err)
		}
		return "", newDeliveryError(TransportError, recipient, "AUTH", err)
	}

	if err := cl.mail(s.from, s.from.UTF8() || to.UTF8()); err != nil {
		return "", newDeliveryError(TransportError, recipient, "MAIL", err)
	}
	if err := cl.rcpt(to); err != nil {
		return "", newDeliveryError(TransportError, recipient, "RCPT", err)
	}
	if err := cl.data(data); err != nil {
		return "", newDeliveryError(TransportError, recipient, "DATA", err)
	}

	return m.Id, nil
}
