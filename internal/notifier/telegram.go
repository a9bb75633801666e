package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/sirupsen/logrus"

	"alert-engine/internal/models"
	"alert-engine/internal/utils"
)

// Telegram mirrors critical alerts to an operations chat. Disabled when no
// bot token is configured.
type Telegram struct {
	bot    *bot.Bot
	chatID int64
	logger *logrus.Logger
}

// NewTelegram builds the ops notifier, or a disabled one when token is empty.
func NewTelegram(token string, chatID int64, logger *logrus.Logger) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return &Telegram{logger: logger}, nil
	}
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telegram bot: %w", err)
	}
	return &Telegram{bot: b, chatID: chatID, logger: logger}, nil
}

// Enabled reports whether the notifier is configured.
func (t *Telegram) Enabled() bool {
	return t.bot != nil
}

// AlertCreated implements the scheduler's AlertSink. Only CRITICAL alerts
// reach the ops chat.
func (t *Telegram) AlertCreated(ctx context.Context, alert models.AlertRecord) {
	if alert.Level != models.LevelCritical {
		return
	}
	t.NotifyAlert(ctx, alert)
}

// NotifyAlert forwards one alert summary to the ops chat with bounded retry.
func (t *Telegram) NotifyAlert(ctx context.Context, alert models.AlertRecord) {
	if !t.Enabled() {
		return
	}

	text := fmt.Sprintf("*%s*\n%s", alert.Title, alert.Message)
	if alert.Source != nil {
		text += fmt.Sprintf("\n\n*Metric:* %s\n*Value:* %.1f\n*Threshold:* %g (%s)",
			alert.Source.Metric, alert.Source.Value, alert.Source.Threshold, alert.Source.Operator)
	}
	if alert.StationID != nil {
		text += fmt.Sprintf("\n*Station:* %d", *alert.StationID)
	}

	err := utils.Retry(t.logger, 3, time.Second, func() error {
		_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    t.chatID,
			Text:      text,
			ParseMode: "Markdown",
		})
		return err
	})
	if err != nil {
		t.logger.Errorf("Failed to notify ops chat: %v", err)
	}
}
