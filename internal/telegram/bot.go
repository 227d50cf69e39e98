package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/HookRelay/internal/models"
)

// API is the subset of *tgbotapi.BotAPI the bot uses.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// ProfileLookup resolves a profile by its public access id.
type ProfileLookup interface {
	FindByAccessID(ctx context.Context, accessID string) (*models.Profile, error)
}

// Bot helps users link a Telegram chat to their profile. It only reads
// profiles; the chat id is saved by the user from the dashboard.
type Bot struct {
	api      API
	log      *slog.Logger
	profiles ProfileLookup
}

func NewBot(api API, log *slog.Logger, profiles ProfileLookup) *Bot {
	return &Bot{api: api, log: log, profiles: profiles}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started")

	for {
		select {
		case update := <-updates:
			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			}
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !msg.IsCommand() {
		b.sendText(msg.Chat.ID, helpText)
		return
	}
	b.sendText(msg.Chat.ID, b.reply(ctx, msg.Command(), msg.CommandArguments(), msg.Chat.ID))
}

const helpText = "Commands:\n" +
	"/chatid - show the chat id to paste into your HookRelay profile\n" +
	"/start <access id> - check which profile this chat belongs to"

func (b *Bot) reply(ctx context.Context, command, args string, chatID int64) string {
	switch command {
	case "start":
		accessID := strings.TrimSpace(args)
		if accessID == "" {
			return fmt.Sprintf("Welcome to HookRelay.\nYour chat id is %d. Paste it into the Telegram chat id field of your profile and enable Telegram notifications.", chatID)
		}
		return b.linkReply(ctx, accessID, chatID)
	case "chatid":
		return fmt.Sprintf("Your chat id is %d.", chatID)
	case "help":
		return helpText
	}
	return "Unknown command.\n" + helpText
}

func (b *Bot) linkReply(ctx context.Context, accessID string, chatID int64) string {
	profile, err := b.profiles.FindByAccessID(ctx, accessID)
	if err != nil {
		b.log.Error("lookup access id", "chat_id", chatID, "err", err)
		return "Could not look up your profile right now, try again later."
	}
	if profile == nil {
		return "No profile uses this access id. Copy it again from your dashboard."
	}
	id := fmt.Sprintf("%d", chatID)
	switch {
	case profile.TelegramChatID == id && profile.Notifications.Telegram:
		return fmt.Sprintf("Hi %s, this chat already receives your notifications.", profile.Name)
	case profile.TelegramChatID == id:
		return fmt.Sprintf("Hi %s, this chat is linked. Enable Telegram notifications in your profile to start receiving them.", profile.Name)
	}
	return fmt.Sprintf("Hi %s, your chat id is %s. Paste it into the Telegram chat id field of your profile and enable Telegram notifications.", profile.Name, id)
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "err", err)
	}
}
