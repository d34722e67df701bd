package alerts

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSender records outgoing Telegram messages
type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, f.err
}

func TestNewTelegramAlerter_EmptyToken(t *testing.T) {
	_, err := NewTelegramAlerter("", []int64{123456789})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bot token is required")
}

func TestTelegramAlerter_Send(t *testing.T) {
	sender := &fakeSender{}
	alerter := &TelegramAlerter{
		api:     sender,
		chatIDs: []int64{111, 222},
	}

	alert := Alert{
		Title:     "Deployment Stopped",
		Message:   "Deployment of \"RSI Dip Buyer\" entered error state",
		Severity:  SeverityCritical,
		Timestamp: time.Now(),
	}

	err := alerter.Send(context.Background(), alert)
	require.NoError(t, err)

	require.Len(t, sender.sent, 2)
	assert.Equal(t, int64(111), sender.sent[0].ChatID)
	assert.Equal(t, int64(222), sender.sent[1].ChatID)
	assert.Equal(t, "Markdown", sender.sent[0].ParseMode)
	assert.Contains(t, sender.sent[0].Text, "Deployment Stopped")
}

func TestTelegramAlerter_SendAllChatsFail(t *testing.T) {
	sender := &fakeSender{err: errors.New("bad request")}
	alerter := &TelegramAlerter{
		api:     sender,
		chatIDs: []int64{111},
	}

	err := alerter.Send(context.Background(), Alert{
		Title:     "Test",
		Message:   "msg",
		Severity:  SeverityInfo,
		Timestamp: time.Now(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send alert to any chat")
}

func TestTelegramAlerter_AddChatID(t *testing.T) {
	alerter := &TelegramAlerter{
		chatIDs: []int64{123456789},
	}

	alerter.AddChatID(987654321)
	assert.Len(t, alerter.chatIDs, 2)
	assert.Contains(t, alerter.chatIDs, int64(987654321))

	// Duplicate chat ID is not added again
	alerter.AddChatID(123456789)
	assert.Len(t, alerter.chatIDs, 2)
}

func TestTelegramAlerter_FormatAlert(t *testing.T) {
	alerter := &TelegramAlerter{}

	tests := []struct {
		name     string
		alert    Alert
		contains []string
	}{
		{
			name: "critical alert",
			alert: Alert{
				Title:     "Deployment Stopped",
				Message:   "Tick execution failed",
				Severity:  SeverityCritical,
				Timestamp: time.Now(),
			},
			contains: []string{"🚨", "Deployment Stopped", "Tick execution failed"},
		},
		{
			name: "warning alert",
			alert: Alert{
				Title:     "Workflow Session Failed",
				Message:   "Session abc failed: backtest failed",
				Severity:  SeverityWarning,
				Timestamp: time.Now(),
			},
			contains: []string{"⚠️", "Workflow Session Failed"},
		},
		{
			name: "info alert",
			alert: Alert{
				Title:     "Trade Filled",
				Message:   "buy 12 AAPL @ $212.50",
				Severity:  SeverityInfo,
				Timestamp: time.Now(),
			},
			contains: []string{"ℹ️", "Trade Filled", "buy 12 AAPL @ $212.50"},
		},
		{
			name: "alert with metadata",
			alert: Alert{
				Title:     "Trade Filled",
				Message:   "Market order executed",
				Severity:  SeverityInfo,
				Timestamp: time.Now(),
				Metadata: map[string]interface{}{
					"symbol": "AAPL",
					"shares": 12.0,
					"price":  212.50,
				},
			},
			contains: []string{"Trade Filled", "Market order executed", "Details:", "symbol", "AAPL"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := alerter.formatAlert(tt.alert)
			for _, str := range tt.contains {
				assert.Contains(t, result, str)
			}
		})
	}
}

func TestTelegramAlerter_FormatAlert_MetadataOrderStable(t *testing.T) {
	alerter := &TelegramAlerter{}
	alert := Alert{
		Title:     "Trade Filled",
		Message:   "Market order executed",
		Severity:  SeverityInfo,
		Timestamp: time.Now(),
		Metadata: map[string]interface{}{
			"symbol": "AAPL",
			"shares": 12.0,
			"price":  212.50,
		},
	}

	first := alerter.formatAlert(alert)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, alerter.formatAlert(alert))
	}
	assert.Less(t, strings.Index(first, "price"), strings.Index(first, "shares"))
	assert.Less(t, strings.Index(first, "shares"), strings.Index(first, "symbol"))
}

func TestTelegramAlerter_SendCancelledContext(t *testing.T) {
	sender := &fakeSender{}
	alerter := &TelegramAlerter{
		api:     sender,
		chatIDs: []int64{111},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := alerter.Send(ctx, Alert{
		Title:     "Test",
		Message:   "msg",
		Severity:  SeverityInfo,
		Timestamp: time.Now(),
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sender.sent)
}

func TestTelegramAlerter_Send_NoChatIDs(t *testing.T) {
	alerter := &TelegramAlerter{
		chatIDs: []int64{},
	}

	alert := Alert{
		Title:     "Test Alert",
		Message:   "This is a test",
		Severity:  SeverityInfo,
		Timestamp: time.Now(),
	}

	err := alerter.Send(context.Background(), alert)

	// No chat IDs configured is a no-op, not an error
	assert.NoError(t, err)
}
