package mail

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAddress  = errors.New("invalid address")
	ErrNoStartTLS      = errors.New("relay does not offer STARTTLS")
	ErrNoSMTPUTF8      = errors.New("relay does not accept non-ASCII addresses")
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// Kind classifies why a delivery attempt failed.
type Kind int

const (
	UnclassifiedError Kind = iota
	ConnectionError
	AuthenticationError
	TransportError
)

func (k Kind) String() string {
	switch k {
	case ConnectionError:
		return "connection"
	case AuthenticationError:
		return "authentication"
	case TransportError:
		return "transport"
	default:
		return "unclassified"
	}
}

// DeliveryError is the only error type Send returns.
type DeliveryError struct {
	Kind      Kind
	Recipient string
	// Step names the part of the SMTP exchange that failed, e.g. "dial" or "RCPT".
	Step string
	Err  error
}

func (e *DeliveryError) Error() string {
	switch e.Kind {
	case ConnectionError:
		return fmt.Sprintf("could not connect to the mail server: %v", e.Err)
	case AuthenticationError:
		return "the mail server rejected the bot's credentials"
	case TransportError:
		return fmt.Sprintf("mail server error during %s: %v", e.Step, e.Err)
	default:
		return fmt.Sprintf("unexpected error: %v", e.Err)
	}
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// ReplyError is a non-success reply from the relay.
type ReplyError struct {
	Code uint16
	Text string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("%d %s", e.Code, e.Text)
}

func (e *ReplyError) Is(target error) bool {
	return target == ErrUnexpectedReply
}

func newDeliveryError(kind Kind, rcpt, step string, err error) *DeliveryError {
	return &DeliveryError{Kind: kind, Recipient: rcpt, Step: step, Err: err}
}

// KindOf returns the classification of err, or UnclassifiedError if err is
// not a *DeliveryError.
func KindOf(err error) Kind {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Kind
	}
	return UnclassifiedError
}
