package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"alerteval/internal/config"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// TelegramSender posts chat-style messages to the Telegram Bot API.
// Params: bot client, chat id, and channel identity.
// Returns: chat channel sender.
type TelegramSender struct {
	name    string
	client  *tgbot.Bot
	chatID  any
	initErr error
}

// NewTelegramSender creates the Telegram sender for one channel entry.
// Params: validated telegram channel config.
// Returns: initialized sender; construction errors surface on Send.
func NewTelegramSender(cfg config.ChannelConfig) *TelegramSender {
	sender := &TelegramSender{
		name:   cfg.Name,
		chatID: normalizeChatID(cfg.ChatID),
	}

	if strings.TrimSpace(cfg.BotToken) == "" {
		sender.initErr = errors.New("telegram bot token is required")
		return sender
	}

	options := []tgbot.Option{tgbot.WithSkipGetMe()}
	if strings.TrimSpace(cfg.APIBase) != "" {
		options = append(options, tgbot.WithServerURL(strings.TrimRight(cfg.APIBase, "/")))
	}
	botClient, err := tgbot.New(cfg.BotToken, options...)
	if err != nil {
		sender.initErr = fmt.Errorf("init telegram bot: %w", err)
		return sender
	}
	sender.client = botClient
	return sender
}

// Name returns the configured channel name.
// Params: none.
// Returns: channel name from config.
func (s *TelegramSender) Name() string {
	return s.name
}

// Kind returns the channel kind.
// Params: none.
// Returns: static telegram kind.
func (s *TelegramSender) Kind() string {
	return config.ChannelKindTelegram
}

// Send posts one chat message to the configured Telegram chat.
// Params: context and assembled message.
// Returns: transport or HTTP error.
func (s *TelegramSender) Send(ctx context.Context, msg Message) error {
	if s.initErr != nil {
		return s.initErr
	}
	if s.client == nil {
		return errors.New("telegram client is not initialized")
	}

	sent, err := s.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    s.chatID,
		Text:      ChatText(msg),
		ParseMode: tgmodels.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if sent == nil || sent.ID <= 0 {
		return errors.New("telegram send returned empty message id")
	}
	return nil
}

// normalizeChatID converts numeric chat IDs to int64 and keeps non-numeric IDs as string.
// Params: configured chat ID value from TOML.
// Returns: Telegram API chat id union value.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}
