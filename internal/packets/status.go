package packets

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrShortReply = errors.New("reply too short")

// Status is one (possibly multi-line) SMTP reply.
type Status struct {
	code  uint16
	lines []string
}

func (s *Status) Code() uint16 {
	return s.code
}

// Class is the first digit of the code: 2 success, 3 intermediate,
// 4 transient failure, 5 permanent failure.
func (s *Status) Class() uint16 {
	return s.code / 100
}

// Text joins the reply lines without codes, for error messages and logs.
func (s *Status) Text() string {
	return strings.Join(s.lines, "; ")
}

// Has reports whether any reply line starts with the given keyword,
// case-insensitively. Used to look up EHLO extensions.
func (s *Status) Has(keyword string) bool {
	keyword = strings.ToUpper(keyword)
	for _, l := range s.lines {
		f := strings.Fields(strings.ToUpper(l))
		if len(f) > 0 && f[0] == keyword {
			return true
		}
	}
	return false
}

func (s *Status) String() string {
	out := ""
	for i, l := range s.lines {
		if i == len(s.lines)-1 {
			out = fmt.Sprintf("%s%d %s\r\n", out, s.code, l)
		} else {
			out = fmt.Sprintf("%s%d-%s\r\n", out, s.code, l)
		}
	}

	return out
}

func ParseStatus(b []byte) (*Status, error) {
	if len(b) < 3 {
		return nil, ErrShortReply
	}
	code, err := strconv.Atoi(string(b[:3]))
	if err != nil {
		return nil, err
	}

	bstr := strings.TrimSpace(string(b))
	lines := strings.Split(bstr, "\r\n")
	for i := range lines {
		if len(lines[i]) > 4 {
			lines[i] = lines[i][4:]
		} else {
			lines[i] = ""
		}
	}

	return NewStatus(uint16(code), lines...), nil
}

func NewStatus(code uint16, lines ...string) *Status {
	return &Status{code, lines}
}
