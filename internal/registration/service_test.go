package registration

import (
	"context"
	"errors"
	"testing"
	"time"

	"faixabet-api/internal/ledger"
	"faixabet-api/internal/models"
	"faixabet-api/internal/plans"
	"faixabet-api/internal/testutil"
	"faixabet-api/pkg/logger"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
)

type fakeCheckout struct {
	calls   int
	userID  int64
	planKey string
	priceID string
	err     error
}

func (f *fakeCheckout) CreateCheckoutSession(_ context.Context, userID int64, planKey, priceID string) (string, string, error) {
	f.calls++
	if f.err != nil {
		return "", "", f.err
	}
	f.userID, f.planKey, f.priceID = userID, planKey, priceID
	return "cs_test_1", "https://checkout.stripe.com/c/pay/cs_test_1", nil
}

func newTestService(t *testing.T, silverPrice string) (*Service, *testutil.MemStore, *fakeCheckout) {
	t.Helper()
	store := testutil.NewMemStore()
	checkout := &fakeCheckout{}
	writer := ledger.NewWriter(store, nil, logger.NewNop())
	svc := NewService(store, plans.NewCatalog(silverPrice, "price_gold"), checkout, writer, logger.NewNop()).
		WithHashCost(bcrypt.MinCost)
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return svc, store, checkout
}

func validInput(plan string) Input {
	return Input{
		FullName:  "Ana Souza",
		Username:  "ana",
		Birthdate: "1990-04-12",
		Email:     "ana@example.com",
		Phone:     "+5511999990000",
		Password:  "s3cret!",
		Plan:      plan,
	}
}

func TestRegisterFreePlan(t *testing.T) {
	svc, store, checkout := newTestService(t, "price_silver")

	res, err := svc.Register(context.Background(), validInput("FREE"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.SessionID != "" || res.CheckoutURL != "" {
		t.Fatalf("free plan must not return a checkout: %+v", res)
	}
	if checkout.calls != 0 {
		t.Fatal("free plan must not create a checkout session")
	}

	u, ok := store.User(res.UserID)
	if !ok || u.PlanID != plans.FreeID || !u.Active {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.PasswordHash == "s3cret!" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("s3cret!")) != nil {
		t.Fatal("password must be stored as a bcrypt hash")
	}
	if u.Birthdate.Format(birthdateLayout) != "1990-04-12" {
		t.Fatalf("birthdate = %v", u.Birthdate)
	}

	a, ok := store.Assignment(res.UserID)
	if !ok || !a.Active || a.PlanID != plans.FreeID {
		t.Fatalf("unexpected assignment: %+v", a)
	}
	entries := store.Entries(res.UserID)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Amount.StringFixed(2) != "0.00" || entries[0].Method != "free" || entries[0].ExternalRef != "free:1" {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

func TestRegisterPaidPlan(t *testing.T) {
	svc, store, checkout := newTestService(t, "price_silver")

	res, err := svc.Register(context.Background(), validInput("silver"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.SessionID != "cs_test_1" || res.CheckoutURL == "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if checkout.userID != res.UserID || checkout.planKey != "silver" || checkout.priceID != "price_silver" {
		t.Fatalf("unexpected checkout call: %+v", checkout)
	}

	if _, ok := store.Assignment(res.UserID); ok {
		t.Fatal("paid plan must not be assigned before confirmation")
	}
	if store.EntryCount() != 0 {
		t.Fatal("paid plan must not be recorded before confirmation")
	}
	u, _ := store.User(res.UserID)
	if u.Active {
		t.Fatal("user must stay inactive until payment is confirmed")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, store, _ := newTestService(t, "price_silver")

	if _, err := svc.Register(context.Background(), validInput("free")); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Register(context.Background(), validInput("gold"))
	if !errors.Is(err, models.ErrDuplicateEmail) {
		t.Fatalf("err = %v, want ErrDuplicateEmail", err)
	}
	if n := len(store.Users()); n != 1 {
		t.Fatalf("users = %d, want 1", n)
	}

	// Email comparison is exact.
	in := validInput("free")
	in.Email = "Ana@example.com"
	if _, err := svc.Register(context.Background(), in); err != nil {
		t.Fatalf("differently cased email: %v", err)
	}
}

func TestRegisterPlanErrors(t *testing.T) {
	svc, store, checkout := newTestService(t, "")

	if _, err := svc.Register(context.Background(), validInput("platinum")); !errors.Is(err, models.ErrInvalidPlan) {
		t.Fatalf("err = %v, want ErrInvalidPlan", err)
	}
	if _, err := svc.Register(context.Background(), validInput("silver")); !errors.Is(err, models.ErrPlanNotConfigured) {
		t.Fatalf("err = %v, want ErrPlanNotConfigured", err)
	}
	if len(store.Users()) != 0 || checkout.calls != 0 {
		t.Fatal("plan errors must not create users or sessions")
	}
}

func TestRegisterValidation(t *testing.T) {
	cases := map[string]func(*Input){
		"missing name":     func(in *Input) { in.FullName = " " },
		"missing password": func(in *Input) { in.Password = "" },
		"missing plan":     func(in *Input) { in.Plan = "" },
		"bad email":        func(in *Input) { in.Email = "ana.example.com" },
		"bad birthdate":    func(in *Input) { in.Birthdate = "12/04/1990" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			svc, store, _ := newTestService(t, "price_silver")
			in := validInput("free")
			mutate(&in)
			if _, err := svc.Register(context.Background(), in); !errors.Is(err, models.ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
			if len(store.Users()) != 0 {
				t.Fatal("invalid input must not create a user")
			}
		})
	}
}

func TestRegisterCheckoutFailure(t *testing.T) {
	svc, _, checkout := newTestService(t, "price_silver")
	checkout.err = models.ErrUpstream

	core, logs := observer.New(zapcore.WarnLevel)
	svc.logger = &logger.Logger{SugaredLogger: zap.New(core).Sugar()}

	if _, err := svc.Register(context.Background(), validInput("silver")); !errors.Is(err, models.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}

	warned := logs.FilterMessage("Checkout session failed after user was created, account left without plan").All()
	if len(warned) != 1 || warned[0].ContextMap()["userID"] != int64(1) {
		t.Fatalf("unexpected warnings: %+v", warned)
	}

	// The orphaned account blocks a retry with the same email.
	checkout.err = nil
	if _, err := svc.Register(context.Background(), validInput("silver")); !errors.Is(err, models.ErrDuplicateEmail) {
		t.Fatalf("retry err = %v, want ErrDuplicateEmail", err)
	}
}

func TestEmailExists(t *testing.T) {
	svc, _, _ := newTestService(t, "price_silver")
	ctx := context.Background()

	if _, err := svc.EmailExists(ctx, "  "); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	exists, err := svc.EmailExists(ctx, "ana@example.com")
	if err != nil || exists {
		t.Fatalf("before registration: %v, %v", exists, err)
	}
	if _, err := svc.Register(ctx, validInput("free")); err != nil {
		t.Fatal(err)
	}
	exists, err = svc.EmailExists(ctx, "ana@example.com")
	if err != nil || !exists {
		t.Fatalf("after registration: %v, %v", exists, err)
	}
}
