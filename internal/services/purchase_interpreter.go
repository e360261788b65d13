package services

import (
	"time"

	"ridepass/internal/models"
)

// InterpreterPolicy carries the payment-state codes whose meaning varies by
// platform version. Which states count as "payment retry in progress" (grace
// period) is deployment policy, not a universal constant.
type InterpreterPolicy struct {
	// Payment states that keep an expired auto-renewing subscription in
	// grace period. An expired auto-renewing record whose payment state is
	// absent or outside this set is on account hold.
	GracePaymentStates []int64

	FreeTrialPaymentState int64
	TestPurchaseType      int64
}

func DefaultInterpreterPolicy() InterpreterPolicy {
	return InterpreterPolicy{
		GracePaymentStates:    []int64{models.PaymentStatePending},
		FreeTrialPaymentState: models.PaymentStateFreeTrial,
		TestPurchaseType:      models.PurchaseTypeTest,
	}
}

// PurchaseInterpreter derives the semantic state of a purchase from its raw
// platform fields and an as-of instant. Pure: no storage, no side effects.
type PurchaseInterpreter struct {
	Policy InterpreterPolicy
}

func NewPurchaseInterpreter(policy InterpreterPolicy) PurchaseInterpreter {
	if len(policy.GracePaymentStates) == 0 {
		policy = DefaultInterpreterPolicy()
	}
	return PurchaseInterpreter{Policy: policy}
}

func (i PurchaseInterpreter) expired(rec models.PurchaseRecord, now time.Time) bool {
	return rec.ExpiryTimeMillis > 0 && now.UnixMilli() >= rec.ExpiryTimeMillis
}

// IsGracePeriod: the subscription has nominally expired but renewal payment
// is still being retried, so entitlement continues.
func (i PurchaseInterpreter) IsGracePeriod(rec models.PurchaseRecord, now time.Time) bool {
	if rec.SkuType != models.SkuTypeRecurring {
		return false
	}
	if !i.expired(rec, now) || !rec.AutoRenewing || rec.PaymentState == nil {
		return false
	}
	for _, state := range i.Policy.GracePaymentStates {
		if *rec.PaymentState == state {
			return true
		}
	}
	return false
}

// IsAccountHold: expired, still auto-renewing, but the payment retry has
// failed. Entitlement is suspended while the record stays recoverable.
// Mutually exclusive with IsGracePeriod.
func (i PurchaseInterpreter) IsAccountHold(rec models.PurchaseRecord, now time.Time) bool {
	if rec.SkuType != models.SkuTypeRecurring {
		return false
	}
	return i.expired(rec, now) && rec.AutoRenewing && !i.IsGracePeriod(rec, now)
}

// IsEntitlementActive: the user currently has the right to the content. A
// replaced purchase is never active, whatever its expiry says.
func (i PurchaseInterpreter) IsEntitlementActive(rec models.PurchaseRecord, now time.Time) bool {
	if rec.ReplacedByAnotherPurchase {
		return false
	}
	if rec.SkuType == models.SkuTypeOneTime {
		return rec.PurchaseState == 0
	}
	return !i.expired(rec, now) || i.IsGracePeriod(rec, now)
}

func (i PurchaseInterpreter) IsFreeTrial(rec models.PurchaseRecord) bool {
	return rec.PaymentState != nil && *rec.PaymentState == i.Policy.FreeTrialPaymentState
}

// IsTestPurchase reports a sandbox/license-tester purchase. The platform
// omits the marker entirely for production purchases.
func (i PurchaseInterpreter) IsTestPurchase(rec models.PurchaseRecord) bool {
	return rec.PurchaseType != nil && *rec.PurchaseType == i.Policy.TestPurchaseType
}

// IsRegisterable: the purchase may still be linked to an account. Replaced
// and terminally expired purchases are not; grace and hold are, since the
// relationship with the user has not ended.
func (i PurchaseInterpreter) IsRegisterable(rec models.PurchaseRecord, now time.Time) bool {
	if rec.ReplacedByAnotherPurchase {
		return false
	}
	if rec.SkuType == models.SkuTypeOneTime {
		return rec.PurchaseState == 0
	}
	return i.IsEntitlementActive(rec, now) || i.IsAccountHold(rec, now)
}

// Status projects a record into the client-facing shape. Recomputed on every
// read; never persisted.
func (i PurchaseInterpreter) Status(rec models.PurchaseRecord, now time.Time) models.SubscriptionStatus {
	status := models.SubscriptionStatus{
		Sku:                 rec.Sku,
		PurchaseToken:       rec.PurchaseToken,
		IsEntitlementActive: i.IsEntitlementActive(rec, now),
		WillRenew:           rec.AutoRenewing,
		IsFreeTrial:         i.IsFreeTrial(rec),
		IsGracePeriod:       i.IsGracePeriod(rec, now),
		IsAccountHold:       i.IsAccountHold(rec, now),
	}
	if rec.SkuType == models.SkuTypeRecurring {
		status.ActiveUntilMillisec = rec.ExpiryTimeMillis
	}
	return status
}
