// Package chat carries inbound user messages to the dialogue and replies
// back to the user.
package chat

import (
	"context"
	"strings"
)

// Update is one inbound text message.
type Update struct {
	// ConversationID identifies the chat the reply goes to and keys the
	// conversation state.
	ConversationID int64
	UserID         int64
	Username       string
	Text           string
}

// Command returns the bot command the text starts with, without the slash
// and any "@botname" suffix. Plain text returns "".
func (u Update) Command() string {
	if !strings.HasPrefix(u.Text, "/") {
		return ""
	}
	cmd := strings.Fields(u.Text[1:])
	if len(cmd) == 0 {
		return ""
	}
	name, _, _ := strings.Cut(cmd[0], "@")
	return strings.ToLower(name)
}

// Replier sends a text reply into a conversation.
type Replier interface {
	Reply(ctx context.Context, conversationID int64, text string) error
}

// Handler processes one update to completion.
type Handler interface {
	Handle(ctx context.Context, u Update) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, u Update) error

func (f HandlerFunc) Handle(ctx context.Context, u Update) error {
	return f(ctx, u)
}
