// Package notify tells operators about plan changes through a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"faixabet-api/internal/models"
	"faixabet-api/internal/plans"
	"faixabet-api/pkg/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts plan activations and cancellations to an admin chat.
type TelegramNotifier struct {
	bot     sender
	chatID  int64
	catalog *plans.Catalog
	logger  *logger.Logger
}

func NewTelegramNotifier(token string, chatID int64, catalog *plans.Catalog, logger *logger.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	logger.Infow("Authorized on Telegram", "username", bot.Self.UserName, "chatID", chatID)

	return &TelegramNotifier{bot: bot, chatID: chatID, catalog: catalog, logger: logger}, nil
}

func (n *TelegramNotifier) PlanActivated(_ context.Context, p models.ConfirmedPayment) error {
	return n.send(activationText(n.planName(p.PlanID), p))
}

func (n *TelegramNotifier) PlanDeactivated(_ context.Context, userID int64, subscriptionID string) error {
	return n.send(fmt.Sprintf("Subscription canceled\nUser: %d\nSubscription: %s", userID, subscriptionID))
}

func (n *TelegramNotifier) send(text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send Telegram message: %w", err)
	}
	return nil
}

func (n *TelegramNotifier) planName(id int64) string {
	if p, err := n.catalog.ByID(id); err == nil {
		return string(p.Key)
	}
	return fmt.Sprintf("plan %d", id)
}

func activationText(plan string, p models.ConfirmedPayment) string {
	return fmt.Sprintf("Plan activated: %s\nUser: %d\nAmount: %s (%s)\nValid until: %s\nRef: %s",
		plan, p.UserID, p.Amount.StringFixed(2), p.Method, p.ExpiresAt.Format("2006-01-02"), p.ExternalRef)
}

// Nop discards notifications. Used when no bot token is configured.
type Nop struct{}

func (Nop) PlanActivated(context.Context, models.ConfirmedPayment) error { return nil }

func (Nop) PlanDeactivated(context.Context, int64, string) error { return nil }
