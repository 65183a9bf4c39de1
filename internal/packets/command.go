package packets

import (
	"io"
	"strings"
)

type Command struct {
	cmd    string
	args   []string
	secret bool
}

func NewCommand(cmd string, args ...string) *Command {
	return &Command{cmd: cmd, args: args}
}

// NewContinuation wraps a raw SASL response line sent after a 334 challenge.
func NewContinuation(payload string) *Command {
	return &Command{cmd: payload, secret: true}
}

func (cmd *Command) String() string {
	if len(cmd.args) > 0 {
		return strings.Join(append([]string{cmd.cmd}, cmd.args...), " ")
	}
	return cmd.cmd
}

// SafeString is String with SASL payloads masked, so AUTH lines can be logged.
func (cmd *Command) SafeString() string {
	if cmd.cmd == "AUTH" && len(cmd.args) > 1 {
		return cmd.cmd + " " + cmd.args[0] + " ****"
	}
	if cmd.secret {
		return "****"
	}
	return cmd.String()
}

func (cmd *Command) Bytes() []byte {
	return []byte(cmd.String() + "\r\n")
}

func (cmd *Command) Send(w io.Writer) error {
	_, err := w.Write(cmd.Bytes())
	return err
}
