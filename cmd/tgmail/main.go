package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Queueue0/tgmail/internal/chat"
	"github.com/Queueue0/tgmail/internal/config"
	"github.com/Queueue0/tgmail/internal/dialogue"
	"github.com/Queueue0/tgmail/internal/logging"
	"github.com/Queueue0/tgmail/internal/mail"
	"github.com/Queueue0/tgmail/internal/status"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tgmail:", err)
		os.Exit(1)
	}
}

func run() error {
	conf, err := config.Load()
	if err != nil {
		return err
	}

	log, logFile, err := logging.New(conf.LogLevel, conf.LogFile)
	if err != nil {
		return err
	}
	defer logFile.Close()
	slog.SetDefault(log)

	if conf.LogMessageBodies {
		log.Warn("message bodies will be written to the log")
	}

	sender, err := mail.NewSender(mail.SenderConfig{
		Relay: mail.Relay{
			Host:     conf.SMTPHost,
			Port:     conf.SMTPPort,
			Username: conf.SMTPLogin,
			Password: conf.SMTPPassword,
			HeloName: conf.SMTPHelo,
			Timeout:  conf.SMTPTimeout.Duration,
		},
		From:      conf.SMTPFrom,
		Subject:   conf.MailSubject,
		LogBodies: conf.LogMessageBodies,
	}, log)
	if err != nil {
		return err
	}

	bot, err := chat.NewTelegram(conf.TelegramToken, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	controller := dialogue.NewController(dialogue.NewStore(), sender, bot, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		controller.EvictIdle(ctx, 0, conf.IdleTimeout.Duration)
	}()

	if conf.StatusAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := status.Serve(ctx, conf.StatusAddr, controller, log); err != nil {
				log.Error("status server stopped", "err", err.Error())
			}
		}()
	}

	log.Info("bot started, waiting for messages",
		"relay", conf.SMTPHost,
		"workers", conf.Workers,
		"idle_timeout", conf.IdleTimeout.Duration.String())

	chat.NewDispatcher(controller, conf.Workers, log).Run(ctx, bot.Updates(ctx))

	stop()
	wg.Wait()
	log.Info("bot stopped")
	return nil
}
