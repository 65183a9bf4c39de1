package chat

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const pollTimeout = 60

// Telegram long-polls the Bot API for text messages and sends plain replies.
type Telegram struct {
	api *tgbotapi.BotAPI
	log *slog.Logger
}

func NewTelegram(token string, log *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "telegram")
	log.Info("authorized", "bot", api.Self.UserName)

	return &Telegram{api: api, log: log}, nil
}

// Updates starts polling. The channel is closed once ctx is done.
func (t *Telegram) Updates(ctx context.Context) <-chan Update {
	conf := tgbotapi.NewUpdate(0)
	conf.Timeout = pollTimeout
	conf.AllowedUpdates = []string{"message"}
	src := t.api.GetUpdatesChan(conf)

	out := make(chan Update)
	go func() {
		defer close(out)
		defer t.api.StopReceivingUpdates()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-src:
				if !ok {
					return
				}
				u, ok := fromTelegram(raw)
				if !ok {
					continue
				}
				t.log.Debug("update received", "conv", u.ConversationID, "user", u.Username)
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

func (t *Telegram) Reply(_ context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// fromTelegram keeps text messages only.
func fromTelegram(raw tgbotapi.Update) (Update, bool) {
	m := raw.Message
	if m == nil || m.Chat == nil || m.Text == "" {
		return Update{}, false
	}

	u := Update{
		ConversationID: m.Chat.ID,
		Text:           m.Text,
	}
	if m.From != nil {
		u.UserID = m.From.ID
		u.Username = m.From.UserName
	}
	return u, true
}
