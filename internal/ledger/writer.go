// Package ledger applies confirmed payments to the user, plan assignment and
// financial records as one transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"faixabet-api/internal/models"
	"faixabet-api/pkg/logger"
)

// Tx is the set of writes the ledger performs inside one database transaction.
type Tx interface {
	// InsertLedgerEntry appends e unless an entry with the same external
	// reference exists, in which case it reports false and writes nothing.
	InsertLedgerEntry(ctx context.Context, e *models.LedgerEntry) (bool, error)
	// UpsertPlanAssignment replaces the user's assignment row in place.
	UpsertPlanAssignment(ctx context.Context, a *models.PlanAssignment) error
	// SetUserPlan sets the user's plan id and marks the user active.
	SetUserPlan(ctx context.Context, userID, planID int64) error
	// DeactivateSubscription turns off the assignment carrying the
	// subscription id and the owning user's active flag.
	DeactivateSubscription(ctx context.Context, subscriptionID string) (int64, error)
}

type Store interface {
	InLedgerTx(ctx context.Context, fn func(Tx) error) error
}

// Notifier is told about plan changes after they are committed.
type Notifier interface {
	PlanActivated(ctx context.Context, p models.ConfirmedPayment) error
	PlanDeactivated(ctx context.Context, userID int64, subscriptionID string) error
}

type Writer struct {
	store    Store
	notifier Notifier
	logger   *logger.Logger
}

// NewWriter creates a Writer. notifier may be nil.
func NewWriter(store Store, notifier Notifier, logger *logger.Logger) *Writer {
	return &Writer{store: store, notifier: notifier, logger: logger}
}

var errAlreadyApplied = errors.New("payment already applied")

// Apply records p. It returns false without error when a payment with the
// same external reference was applied before.
func (w *Writer) Apply(ctx context.Context, p models.ConfirmedPayment) (bool, error) {
	if err := validatePayment(p); err != nil {
		return false, err
	}

	err := w.store.InLedgerTx(ctx, func(tx Tx) error {
		inserted, err := tx.InsertLedgerEntry(ctx, p.Entry())
		if err != nil {
			return err
		}
		if !inserted {
			return errAlreadyApplied
		}
		if err := tx.UpsertPlanAssignment(ctx, p.Assignment()); err != nil {
			return err
		}
		return tx.SetUserPlan(ctx, p.UserID, p.PlanID)
	})
	if errors.Is(err, errAlreadyApplied) {
		w.logger.Infow("Payment already applied", "userID", p.UserID, "ref", p.ExternalRef)
		return false, nil
	}
	if err != nil {
		return false, persistenceError(err)
	}

	w.logger.Infow("Payment applied",
		"userID", p.UserID,
		"planID", p.PlanID,
		"amount", p.Amount.StringFixed(2),
		"method", p.Method,
		"ref", p.ExternalRef)

	if w.notifier != nil {
		if err := w.notifier.PlanActivated(ctx, p); err != nil {
			w.logger.Warnw("Failed to notify plan activation", "error", err, "userID", p.UserID)
		}
	}
	return true, nil
}

// Deactivate ends the plan bound to a provider subscription.
func (w *Writer) Deactivate(ctx context.Context, subscriptionID string) error {
	if strings.TrimSpace(subscriptionID) == "" {
		return fmt.Errorf("%w: subscription id is required", models.ErrValidation)
	}

	var userID int64
	err := w.store.InLedgerTx(ctx, func(tx Tx) error {
		var err error
		userID, err = tx.DeactivateSubscription(ctx, subscriptionID)
		return err
	})
	if err != nil {
		return persistenceError(err)
	}

	w.logger.Infow("Plan deactivated", "userID", userID, "subscriptionID", subscriptionID)
	if w.notifier != nil {
		if err := w.notifier.PlanDeactivated(ctx, userID, subscriptionID); err != nil {
			w.logger.Warnw("Failed to notify plan deactivation", "error", err, "userID", userID)
		}
	}
	return nil
}

func validatePayment(p models.ConfirmedPayment) error {
	switch {
	case p.UserID <= 0:
		return fmt.Errorf("%w: user id is required", models.ErrValidation)
	case p.PlanID <= 0:
		return fmt.Errorf("%w: plan id is required", models.ErrValidation)
	case p.ExternalRef == "":
		return fmt.Errorf("%w: external reference is required", models.ErrValidation)
	case p.Amount.IsNegative():
		return fmt.Errorf("%w: negative amount", models.ErrValidation)
	case p.PaidAt.IsZero() || p.ExpiresAt.IsZero():
		return fmt.Errorf("%w: payment and expiry dates are required", models.ErrValidation)
	}
	return nil
}

func persistenceError(err error) error {
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrPersistence, err)
}
