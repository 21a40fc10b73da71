// Package eligibility decides whether a user qualifies for a
// first-payment-only promotion. It is a pure function over an explicit
// snapshot so it can be tested without any storage dependency.
package eligibility

// Snapshot is everything the classifier needs to know about one user at
// evaluation time.
type Snapshot struct {
	// PaymentCount is the number of successful payments on record.
	PaymentCount int
	// SubscriptionStatus is the user's subscription status, or empty when
	// the user has none. Absent data means "not auto-billing", never an
	// error.
	SubscriptionStatus string
	// IsReturningCustomer marks accounts re-registered by a known customer.
	IsReturningCustomer bool
}

type Result struct {
	IsFirstPayment bool
}

const statusActive = "active"

// Classify reports whether the snapshot qualifies as a first payment:
// not a returning customer, zero successful payments, and no subscription
// currently driving auto-billing.
func Classify(s Snapshot) Result {
	return Result{
		IsFirstPayment: !s.IsReturningCustomer &&
			s.PaymentCount == 0 &&
			s.SubscriptionStatus != statusActive,
	}
}
