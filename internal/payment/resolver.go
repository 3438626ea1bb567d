package payment

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"faixabet-api/internal/models"
	"faixabet-api/internal/plans"
)

// DefaultValidity applies when the provider reports no billing period end.
const DefaultValidity = 30 * 24 * time.Hour

type SessionRetriever interface {
	RetrieveSession(ctx context.Context, id string) (*CheckoutSession, error)
}

// Resolution is either a pending session (Pending, Status) or a confirmed
// payment ready for the ledger.
type Resolution struct {
	Pending bool
	Status  string
	Payment models.ConfirmedPayment
}

type Resolver struct {
	sessions SessionRetriever
	catalog  *plans.Catalog
	now      func() time.Time
}

func NewResolver(sessions SessionRetriever, catalog *plans.Catalog) *Resolver {
	return &Resolver{sessions: sessions, catalog: catalog, now: time.Now}
}

// WithClock replaces the time source.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Resolve fetches the checkout session and normalizes it. It has no side effects.
func (r *Resolver) Resolve(ctx context.Context, sessionID string) (Resolution, error) {
	if strings.TrimSpace(sessionID) == "" {
		return Resolution{}, fmt.Errorf("%w: session_id is required", models.ErrValidation)
	}
	sess, err := r.sessions.RetrieveSession(ctx, sessionID)
	if err != nil {
		return Resolution{}, err
	}
	return r.FromSession(sess)
}

// FromSession normalizes an already retrieved session.
func (r *Resolver) FromSession(sess *CheckoutSession) (Resolution, error) {
	if sess.PaymentStatus != StatusPaid && sess.PaymentStatus != StatusNoPaymentRequired {
		return Resolution{Pending: true, Status: sess.PaymentStatus}, nil
	}

	userID, planID, err := r.linkage(sess.Metadata, sess.ClientReferenceID)
	if err != nil {
		return Resolution{}, fmt.Errorf("session %s: %w", sess.ID, err)
	}

	amount := sess.AmountTotal
	var method string
	switch {
	case sess.Invoice != nil:
		amount = sess.Invoice.AmountPaid
		method = intentMethod(sess.Invoice.PaymentIntent)
	case sess.PaymentIntent != nil:
		amount = sess.PaymentIntent.Amount
		method = intentMethod(sess.PaymentIntent)
	}
	if method == "" {
		method = strings.Join(sess.PaymentMethodTypes, ",")
	}
	if method == "" {
		method = "card"
	}

	periodEnd := sess.PeriodEnd
	if sess.Invoice != nil && sess.Invoice.PeriodEnd > 0 {
		periodEnd = sess.Invoice.PeriodEnd
	}

	now := r.now()
	return Resolution{
		Status: sess.PaymentStatus,
		Payment: models.ConfirmedPayment{
			UserID:         userID,
			PlanID:         planID,
			Amount:         models.MinorUnits(amount),
			Method:         method,
			PaidAt:         now,
			ExpiresAt:      expiry(now, periodEnd),
			ExternalRef:    sess.ID,
			SubscriptionID: sess.SubscriptionID,
		},
	}, nil
}

// FromInvoice builds the payment for a recurring charge. fallback supplies
// the user and plan when the invoice lines carry no metadata.
func (r *Resolver) FromInvoice(inv *Invoice, fallback *models.PlanAssignment) (models.ConfirmedPayment, error) {
	var userID, planID int64
	if len(inv.Metadata) > 0 {
		var err error
		userID, planID, err = r.linkage(inv.Metadata, "")
		if err != nil {
			return models.ConfirmedPayment{}, fmt.Errorf("invoice %s: %w", inv.ID, err)
		}
	} else if fallback != nil {
		userID, planID = fallback.UserID, fallback.PlanID
	} else {
		return models.ConfirmedPayment{}, fmt.Errorf("invoice %s: %w", inv.ID, models.ErrMissingMetadata)
	}

	paidAt := r.now()
	if inv.PaidAt > 0 {
		paidAt = time.Unix(inv.PaidAt, 0).UTC()
	}
	method := intentMethod(inv.PaymentIntent)
	if method == "" {
		method = "card"
	}

	return models.ConfirmedPayment{
		UserID:         userID,
		PlanID:         planID,
		Amount:         models.MinorUnits(inv.AmountPaid),
		Method:         method,
		PaidAt:         paidAt,
		ExpiresAt:      expiry(paidAt, inv.PeriodEnd),
		ExternalRef:    inv.ID,
		SubscriptionID: inv.SubscriptionID,
	}, nil
}

func (r *Resolver) linkage(meta map[string]string, clientRef string) (int64, int64, error) {
	rawUser := strings.TrimSpace(meta[MetaUserID])
	if rawUser == "" {
		rawUser = strings.TrimSpace(clientRef)
	}
	userID, err := strconv.ParseInt(rawUser, 10, 64)
	if err != nil || userID <= 0 {
		return 0, 0, fmt.Errorf("%w: %s=%q", models.ErrMissingMetadata, MetaUserID, rawUser)
	}

	plan, err := r.catalog.Lookup(meta[MetaPlan])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s=%q", models.ErrMissingMetadata, MetaPlan, meta[MetaPlan])
	}
	return userID, plan.ID, nil
}

func intentMethod(pi *PaymentIntent) string {
	if pi == nil {
		return ""
	}
	if pi.Method != "" {
		return pi.Method
	}
	return strings.Join(pi.MethodTypes, ",")
}

func expiry(from time.Time, periodEnd int64) time.Time {
	if periodEnd > 0 {
		return time.Unix(periodEnd, 0).UTC()
	}
	return from.Add(DefaultValidity)
}
