package payment

// Metadata keys carried by checkout sessions and their subscriptions.
const (
	MetaUserID = "user_id"
	MetaPlan   = "plan"
)

// Provider payment statuses that count as settled.
const (
	StatusPaid              = "paid"
	StatusNoPaymentRequired = "no_payment_required"
)

const (
	ModeSubscription = "subscription"

	// BillingReasonSubscriptionCreate marks the first invoice of a subscription.
	BillingReasonSubscriptionCreate = "subscription_create"
)

// CheckoutSession is the provider session reduced to what reconciliation needs.
type CheckoutSession struct {
	ID                 string
	Mode               string
	PaymentStatus      string
	ClientReferenceID  string
	Metadata           map[string]string
	AmountTotal        int64
	PaymentMethodTypes []string
	SubscriptionID     string
	// PeriodEnd is the subscription's current period end (unix seconds), 0 if unknown.
	PeriodEnd     int64
	Invoice       *Invoice
	PaymentIntent *PaymentIntent
}

type Invoice struct {
	ID             string
	AmountPaid     int64
	BillingReason  string
	SubscriptionID string
	// PaidAt and PeriodEnd are unix seconds, 0 if unknown.
	PaidAt    int64
	PeriodEnd int64
	// Metadata is taken from the subscription line items.
	Metadata      map[string]string
	PaymentIntent *PaymentIntent
}

type PaymentIntent struct {
	ID          string
	Amount      int64
	Method      string
	MethodTypes []string
}
