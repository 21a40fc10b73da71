package eligibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		snap    Snapshot
		isFirst bool
	}{
		{
			name:    "fresh account",
			snap:    Snapshot{PaymentCount: 0, SubscriptionStatus: "", IsReturningCustomer: false},
			isFirst: true,
		},
		{
			name:    "has payment history",
			snap:    Snapshot{PaymentCount: 3, SubscriptionStatus: "", IsReturningCustomer: false},
			isFirst: false,
		},
		{
			name:    "active subscription without payments yet",
			snap:    Snapshot{PaymentCount: 0, SubscriptionStatus: "active", IsReturningCustomer: false},
			isFirst: false,
		},
		{
			name:    "cancelled subscription does not block",
			snap:    Snapshot{PaymentCount: 0, SubscriptionStatus: "cancelled", IsReturningCustomer: false},
			isFirst: true,
		},
		{
			name:    "paused subscription does not block",
			snap:    Snapshot{PaymentCount: 0, SubscriptionStatus: "paused", IsReturningCustomer: false},
			isFirst: true,
		},
		{
			name:    "returning customer flag wins over clean history",
			snap:    Snapshot{PaymentCount: 0, SubscriptionStatus: "", IsReturningCustomer: true},
			isFirst: false,
		},
		{
			name:    "everything against them",
			snap:    Snapshot{PaymentCount: 5, SubscriptionStatus: "active", IsReturningCustomer: true},
			isFirst: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.isFirst, Classify(tc.snap).IsFirstPayment)
		})
	}
}
