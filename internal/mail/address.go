package mail

import (
	"fmt"
	netmail "net/mail"
	"strings"
	"unicode/utf8"

	"github.com/asaskevich/govalidator"
	"golang.org/x/net/idna"
)

const (
	maxAddressLen = 254
	maxLocalLen   = 64
)

type Address struct {
	User   string
	Domain string
}

// ParseAddress checks that s is a single bare address (no display name) with
// a well-formed domain. An internationalized domain is stored as its A-label.
// Nothing is looked up; the mailbox may not exist.
// The returned error text is meant to be shown to the user.
func ParseAddress(s string) (*Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: the address is empty", ErrInvalidAddress)
	}
	if len(s) > maxAddressLen {
		return nil, fmt.Errorf("%w: the address is longer than %d characters", ErrInvalidAddress, maxAddressLen)
	}

	parsed, err := netmail.ParseAddress(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a valid email address", ErrInvalidAddress, s)
	}
	if parsed.Name != "" || parsed.Address != s {
		return nil, fmt.Errorf("%w: enter only the address, like name@example.com", ErrInvalidAddress)
	}

	at := strings.LastIndex(s, "@")
	user, domain := s[:at], s[at+1:]
	if len(user) > maxLocalLen {
		return nil, fmt.Errorf("%w: the part before @ is longer than %d characters", ErrInvalidAddress, maxLocalLen)
	}

	// internationalized domains travel as their A-label; Lookup also
	// lowercases and applies the STD3 hostname rules (no underscores)
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil || !isHostname(ascii) {
		return nil, fmt.Errorf("%w: %s is not a valid domain name", ErrInvalidAddress, domain)
	}

	// the username keeps its case: it's up to the receiving mail server to
	// decide whether it is case sensitive
	a := &Address{user, ascii}
	if len(a.String()) > maxAddressLen {
		return nil, fmt.Errorf("%w: the address is longer than %d characters", ErrInvalidAddress, maxAddressLen)
	}
	return a, nil
}

func isHostname(domain string) bool {
	return strings.Contains(domain, ".") &&
		!strings.Contains(domain, "_") &&
		govalidator.IsDNSName(domain)
}

// UTF8 reports whether the local part needs the SMTPUTF8 extension.
func (a *Address) UTF8() bool {
	return !isASCII(a.User)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func (a *Address) String() string {
	return fmt.Sprintf("%s@%s", a.User, a.Domain)
}

func (a *Address) SmtpFormat() string {
	return fmt.Sprintf("<%s@%s>", a.User, a.Domain)
}
