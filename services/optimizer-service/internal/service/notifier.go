package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-telegram/bot"
	"github.com/headwall/headwall/pkg/logger"
	"github.com/headwall/headwall/pkg/messaging"
	"github.com/headwall/headwall/services/optimizer-service/internal/models"
)

// Каналы доставки уведомлений
const (
	ChannelEvent    = "event"
	ChannelTelegram = "telegram"
	ChannelWebhook  = "webhook"
)

// AlertNotifier рассылает алерты правил по настроенным каналам.
// Каждый канал best effort: сбой одного не мешает остальным.
type AlertNotifier struct {
	messaging  messaging.Client
	exchange   string
	telegram   *bot.Bot
	chatID     int64
	webhookURL string
	httpClient *http.Client
	logger     *logger.Logger
}

// NotifierOptions настройки каналов доставки
type NotifierOptions struct {
	Exchange      string
	TelegramToken string
	TelegramChat  int64
	WebhookURL    string
}

// NewAlertNotifier создает notifier; каналы без настроек отключены
func NewAlertNotifier(mq messaging.Client, opts NotifierOptions, log *logger.Logger) (*AlertNotifier, error) {
	n := &AlertNotifier{
		messaging:  mq,
		exchange:   opts.Exchange,
		chatID:     opts.TelegramChat,
		webhookURL: opts.WebhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     log,
	}

	if opts.TelegramToken != "" {
		b, err := bot.New(opts.TelegramToken)
		if err != nil {
			return nil, fmt.Errorf("failed to create telegram bot: %w", err)
		}
		n.telegram = b
	}

	return n, nil
}

// Send доставляет уведомление во все перечисленные каналы.
// Возвращает совокупную ошибку каналов, которые не доставили.
func (n *AlertNotifier) Send(ctx context.Context, publisherID, ruleName string, notification models.Notification) error {
	var errs []error

	for _, channel := range notification.Channels {
		var err error
		switch channel {
		case ChannelEvent:
			err = n.publishEvent(publisherID, ruleName, notification.Message)
		case ChannelTelegram:
			err = n.sendTelegram(ctx, publisherID, ruleName, notification.Message)
		case ChannelWebhook:
			err = n.postWebhook(ctx, publisherID, ruleName, notification.Message)
		default:
			err = fmt.Errorf("unknown notification channel %q", channel)
		}

		if err != nil {
			n.logger.WithError(err).WithField("channel", channel).Warn("Notification channel failed")
			errs = append(errs, fmt.Errorf("%s: %w", channel, err))
		}
	}

	return errors.Join(errs...)
}

// publishEvent публикует алерт в шину событий платформы
func (n *AlertNotifier) publishEvent(publisherID, ruleName, message string) error {
	if n.messaging == nil {
		return errors.New("event channel not configured")
	}

	event := &models.AlertEvent{
		Type:      "optimizer.alert",
		Publisher: publisherID,
		RuleName:  ruleName,
		Message:   message,
		Timestamp: time.Now(),
	}

	return n.messaging.PublishEvent(n.exchange, "optimizer.alert", event)
}

func (n *AlertNotifier) sendTelegram(ctx context.Context, publisherID, ruleName, message string) error {
	if n.telegram == nil {
		return errors.New("telegram channel not configured")
	}

	text := fmt.Sprintf("⚙️ %s\npublisher: %s\n%s", ruleName, publisherID, message)
	_, err := n.telegram.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   text,
	})
	return err
}

func (n *AlertNotifier) postWebhook(ctx context.Context, publisherID, ruleName, message string) error {
	if n.webhookURL == "" {
		return errors.New("webhook channel not configured")
	}

	payload, err := json.Marshal(map[string]string{
		"publisher": publisherID,
		"rule":      ruleName,
		"message":   message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
