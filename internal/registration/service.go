// Package registration creates user accounts and starts their plan.
package registration

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"faixabet-api/internal/models"
	"faixabet-api/internal/plans"
	"faixabet-api/pkg/logger"

	"golang.org/x/crypto/bcrypt"
)

const birthdateLayout = "2006-01-02"

type UserStore interface {
	EmailExists(ctx context.Context, email string) (bool, error)
	// CreateUser inserts u and sets its id. It fails with
	// models.ErrDuplicateEmail when the email is taken.
	CreateUser(ctx context.Context, u *models.User) error
}

type CheckoutCreator interface {
	CreateCheckoutSession(ctx context.Context, userID int64, planKey, priceID string) (string, string, error)
}

type PaymentApplier interface {
	Apply(ctx context.Context, p models.ConfirmedPayment) (bool, error)
}

type Input struct {
	FullName  string `json:"full_name"`
	Username  string `json:"username"`
	Birthdate string `json:"birthdate"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
	Plan      string `json:"plan"`
}

// Result carries the new user id and, for paid plans, the checkout handle.
type Result struct {
	UserID      int64  `json:"userId"`
	SessionID   string `json:"sessionId,omitempty"`
	CheckoutURL string `json:"url,omitempty"`
}

type Service struct {
	users    UserStore
	catalog  *plans.Catalog
	checkout CheckoutCreator
	ledger   PaymentApplier
	logger   *logger.Logger
	now      func() time.Time
	hashCost int
}

func NewService(users UserStore, catalog *plans.Catalog, checkout CheckoutCreator, ledger PaymentApplier, logger *logger.Logger) *Service {
	return &Service{
		users:    users,
		catalog:  catalog,
		checkout: checkout,
		ledger:   ledger,
		logger:   logger,
		now:      time.Now,
		hashCost: bcrypt.DefaultCost,
	}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) WithHashCost(cost int) *Service {
	s.hashCost = cost
	return s
}

func (s *Service) EmailExists(ctx context.Context, email string) (bool, error) {
	if strings.TrimSpace(email) == "" {
		return false, fmt.Errorf("%w: email is required", models.ErrValidation)
	}
	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return false, persistenceError(err)
	}
	return exists, nil
}

// Register creates the user. Free plans are activated immediately; paid
// plans get a checkout session whose confirmation activates them later.
func (s *Service) Register(ctx context.Context, in Input) (*Result, error) {
	birthdate, err := validate(in)
	if err != nil {
		return nil, err
	}

	plan, err := s.catalog.Resolve(in.Plan)
	if err != nil {
		return nil, err
	}

	exists, err := s.users.EmailExists(ctx, in.Email)
	if err != nil {
		return nil, persistenceError(err)
	}
	if exists {
		return nil, models.ErrDuplicateEmail
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		FullName:     strings.TrimSpace(in.FullName),
		Username:     strings.TrimSpace(in.Username),
		Birthdate:    birthdate,
		Email:        in.Email,
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: string(hash),
		PlanID:       plan.ID,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, models.ErrDuplicateEmail) {
			return nil, err
		}
		return nil, persistenceError(err)
	}
	s.logger.Infow("User registered", "userID", user.ID, "plan", plan.Key)

	if !plan.Paid() {
		now := s.now()
		_, err := s.ledger.Apply(ctx, models.ConfirmedPayment{
			UserID:      user.ID,
			PlanID:      plan.ID,
			Amount:      models.MinorUnits(0),
			Method:      "free",
			PaidAt:      now,
			ExpiresAt:   now.AddDate(0, 0, 30),
			ExternalRef: "free:" + strconv.FormatInt(user.ID, 10),
		})
		if err != nil {
			return nil, err
		}
		return &Result{UserID: user.ID}, nil
	}

	// The user row is already committed here. When checkout creation fails
	// the account stays behind without a plan and a retry with the same
	// email is rejected as a duplicate; support has to resolve it by hand.
	sessionID, url, err := s.checkout.CreateCheckoutSession(ctx, user.ID, string(plan.Key), plan.PriceID)
	if err != nil {
		s.logger.Warnw("Checkout session failed after user was created, account left without plan",
			"userID", user.ID, "plan", plan.Key, "error", err)
		return nil, err
	}
	s.logger.Infow("Checkout session created", "userID", user.ID, "plan", plan.Key, "sessionID", sessionID)

	return &Result{UserID: user.ID, SessionID: sessionID, CheckoutURL: url}, nil
}

func validate(in Input) (time.Time, error) {
	fields := []struct {
		name, value string
	}{
		{"full_name", in.FullName},
		{"username", in.Username},
		{"birthdate", in.Birthdate},
		{"email", in.Email},
		{"phone", in.Phone},
		{"password", in.Password},
		{"plan", in.Plan},
	}
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return time.Time{}, fmt.Errorf("%w: missing %s", models.ErrValidation, strings.Join(missing, ", "))
	}
	if !strings.Contains(in.Email, "@") {
		return time.Time{}, fmt.Errorf("%w: invalid email", models.ErrValidation)
	}
	birthdate, err := time.Parse(birthdateLayout, strings.TrimSpace(in.Birthdate))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: birthdate must be YYYY-MM-DD", models.ErrValidation)
	}
	return birthdate, nil
}

func persistenceError(err error) error {
	if errors.Is(err, models.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrPersistence, err)
}
