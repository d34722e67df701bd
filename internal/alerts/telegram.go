package alerts

import (
	"context"
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// telegramSender is the slice of the bot API the alerter uses. Tests
// substitute a fake.
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramAlerter delivers alerts to one or more Telegram chats.
type TelegramAlerter struct {
	api     telegramSender
	chatIDs []int64
}

// NewTelegramAlerter connects the bot and targets the given chat IDs.
func NewTelegramAlerter(botToken string, chatIDs []int64) (*TelegramAlerter, error) {
	if botToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	log.Info().
		Str("bot_username", api.Self.UserName).
		Int("chat_count", len(chatIDs)).
		Msg("Telegram alerter initialized")

	return &TelegramAlerter{api: api, chatIDs: chatIDs}, nil
}

// Send delivers the alert to every configured chat. Per-chat failures
// are logged; the call errors only when no chat accepted the message.
func (t *TelegramAlerter) Send(ctx context.Context, alert Alert) error {
	if len(t.chatIDs) == 0 {
		log.Warn().Msg("No Telegram chat IDs configured, skipping alert")
		return nil
	}

	text := t.formatAlert(alert)

	delivered := 0
	var lastErr error
	for _, chatID := range t.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = "Markdown"
		if _, err := t.api.Send(msg); err != nil {
			log.Error().
				Err(err).
				Int64("chat_id", chatID).
				Str("alert_title", alert.Title).
				Msg("Failed to send Telegram alert")
			lastErr = err
			continue
		}
		delivered++
	}

	if delivered == 0 && lastErr != nil {
		return fmt.Errorf("failed to send alert to any chat: %w", lastErr)
	}

	log.Debug().
		Int("delivered", delivered).
		Int("chats", len(t.chatIDs)).
		Str("alert_title", alert.Title).
		Msg("Telegram alert sent")
	return nil
}

// formatAlert renders the Markdown message body. Metadata keys are
// sorted so a given alert always renders the same text.
func (t *TelegramAlerter) formatAlert(alert Alert) string {
	var b strings.Builder

	switch alert.Severity {
	case SeverityCritical:
		b.WriteString("🚨")
	case SeverityWarning:
		b.WriteString("⚠️")
	case SeverityInfo:
		b.WriteString("ℹ️")
	default:
		b.WriteString("📢")
	}
	fmt.Fprintf(&b, " *%s*\n\n%s", alert.Title, alert.Message)

	if len(alert.Metadata) > 0 {
		keys := make([]string, 0, len(alert.Metadata))
		for k := range alert.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString("\n\n*Details:*")
		for _, k := range keys {
			fmt.Fprintf(&b, "\n• %s: `%v`", k, alert.Metadata[k])
		}
	}

	fmt.Fprintf(&b, "\n\n_Time: %s_", alert.Timestamp.Format("2006-01-02 15:04:05"))
	return b.String()
}

// AddChatID registers another destination chat. Duplicates are ignored.
func (t *TelegramAlerter) AddChatID(chatID int64) {
	for _, id := range t.chatIDs {
		if id == chatID {
			return
		}
	}
	t.chatIDs = append(t.chatIDs, chatID)
	log.Info().Int64("chat_id", chatID).Msg("Added chat ID to Telegram alerter")
}
