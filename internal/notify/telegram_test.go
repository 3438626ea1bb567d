package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"faixabet-api/internal/models"
	"faixabet-api/internal/plans"
	"faixabet-api/pkg/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeBot struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func newTestNotifier(bot *fakeBot) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: -100, catalog: plans.NewCatalog("p_s", "p_g"), logger: logger.NewNop()}
}

func TestPlanActivatedMessage(t *testing.T) {
	bot := &fakeBot{}
	n := newTestNotifier(bot)

	err := n.PlanActivated(context.Background(), models.ConfirmedPayment{
		UserID:      7,
		PlanID:      plans.GoldID,
		Amount:      models.MinorUnits(4990),
		Method:      "card",
		ExpiresAt:   time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		ExternalRef: "cs_1",
	})
	if err != nil {
		t.Fatalf("PlanActivated: %v", err)
	}
	if len(bot.sent) != 1 || bot.sent[0].ChatID != -100 {
		t.Fatalf("unexpected messages: %+v", bot.sent)
	}
	text := bot.sent[0].Text
	for _, want := range []string{"gold", "User: 7", "49.90 (card)", "2025-07-01", "cs_1"} {
		if !strings.Contains(text, want) {
			t.Errorf("message %q is missing %q", text, want)
		}
	}
}

func TestPlanDeactivatedMessage(t *testing.T) {
	bot := &fakeBot{}
	if err := newTestNotifier(bot).PlanDeactivated(context.Background(), 7, "sub_1"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(bot.sent[0].Text, "sub_1") {
		t.Fatalf("unexpected text %q", bot.sent[0].Text)
	}
}

func TestSendFailure(t *testing.T) {
	n := newTestNotifier(&fakeBot{err: errors.New("chat not found")})
	if err := n.PlanDeactivated(context.Background(), 1, "sub_1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestUnknownPlanName(t *testing.T) {
	n := newTestNotifier(&fakeBot{})
	if got := n.planName(99); got != "plan 99" {
		t.Fatalf("planName = %q", got)
	}
}
