package services

import (
	"testing"
	"time"

	"ridepass/internal/models"
)

func recurringRecord(expiry time.Time, autoRenewing bool, paymentState *int64) models.PurchaseRecord {
	return models.PurchaseRecord{
		Sku:              "premium_monthly",
		SkuType:          models.SkuTypeRecurring,
		PurchaseToken:    "token",
		ExpiryTimeMillis: expiry.UnixMilli(),
		AutoRenewing:     autoRenewing,
		PaymentState:     paymentState,
	}
}

func paymentState(v int64) *int64 { return &v }

func TestActiveSubscriptionBeforeExpiry(t *testing.T) {
	interp := NewPurchaseInterpreter(DefaultInterpreterPolicy())
	rec := recurringRecord(testNow.Add(time.Hour), true, paymentState(models.PaymentStateReceived))

	if !interp.IsEntitlementActive(rec, testNow) {
		t.Fatalf("unexpired subscription must be active")
	}
	if interp.IsGracePeriod(rec, testNow) || interp.IsAccountHold(rec, testNow) {
		t.Fatalf("unexpired subscription is neither grace nor hold")
	}
}

func TestGracePeriodKeepsEntitlement(t *testing.T) {
	interp := NewPurchaseInterpreter(DefaultInterpreterPolicy())
	rec := recurringRecord(testNow.Add(-time.Hour), true, paymentState(models.PaymentStatePending))

	if !interp.IsGracePeriod(rec, testNow) {
		t.Fatalf("expired + autoRenewing + pending payment must be grace period")
	}
	if !interp.IsEntitlementActive(rec, testNow) {
		t.Fatalf("grace period keeps entitlement active")
	}
	if interp.IsAccountHold(rec, testNow) {
		t.Fatalf("grace and hold are mutually exclusive")
	}
}

func TestAccountHoldSuspendsEntitlement(t *testing.T) {
	interp := NewPurchaseInterpreter(DefaultInterpreterPolicy())

	// Payment retry failed. The platform reports no pending state.
	rec := recurringRecord(testNow.Add(-time.Hour), true, nil)

	if !interp.IsAccountHold(rec, testNow) {
		t.Fatalf("expired + autoRenewing without pending payment must be hold")
	}
	if interp.IsEntitlementActive(rec, testNow) {
		t.Fatalf("account hold suspends entitlement")
	}
	if interp.IsGracePeriod(rec, testNow) {
		t.Fatalf("grace and hold are mutually exclusive")
	}
	if !interp.IsRegisterable(rec, testNow) {
		t.Fatalf("hold record can still be linked to an account")
	}
}

func TestAccountHoldWithNonGracePaymentState(t *testing.T) {
	interp := NewPurchaseInterpreter(DefaultInterpreterPolicy())
	rec := recurringRecord(testNow.Add(-time.Hour), true, paymentState(models.PaymentStateReceived))

	if !interp.IsAccountHold(rec, testNow) {
		t.Fatalf("payment state outside the grace set must read as hold")
	}
}

func TestLapsedSubscriptionIsTerminal(t *testing.T) {
	interp := NewPurchaseInterpreter(DefaultInterpreterPolicy())
	rec := recurringRecord(testNow.Add(-time.Hour), false, nil)

	if interp.IsEntitlementActive(rec, testNow) {
		t.Fatalf("expired non-renewing subscription is not active")
	}
	if interp.IsGracePeriod(rec, testNow) || interp.IsAccountHold(rec, testNow) {
		t.Fatalf("canceled-and-expired is terminal, not grace/hold")
	}
	if interp.IsRegisterable(rec, testNow) {
		t.Fatalf("terminal purchase is not registerable")
	}
}

func TestReplacedPurchaseNeverActive(t *testing.T) {
	interp := NewPurchaseInterpreter(DefaultInterpreterPolicy())
	rec := recurringRecord(testNow.Add(time.Hour), true, paymentState(models.PaymentStateReceived))
	rec.ReplacedByAnotherPurchase = true

	if interp.IsEntitlementActive(rec, testNow) {
		t.Fatalf("replaced purchase must not be active even before expiry")
	}
	if interp.IsRegisterable(rec, testNow) {
		t.Fatalf("replaced purchase must not be registerable")
	}
}

func TestFreeTrialAndTestPurchaseFlags(t *testing.T) {
	interp := NewPurchaseInterpreter(DefaultInterpreterPolicy())

	trial := recurringRecord(testNow.Add(time.Hour), true, paymentState(models.PaymentStateFreeTrial))
	if !interp.IsFreeTrial(trial) {
		t.Fatalf("payment state free-trial must set the trial flag")
	}

	prod := recurringRecord(testNow.Add(time.Hour), true, paymentState(models.PaymentStateReceived))
	if interp.IsFreeTrial(prod) || interp.IsTestPurchase(prod) {
		t.Fatalf("production purchase carries neither flag")
	}

	sandbox := prod
	pt := models.PurchaseTypeTest
	sandbox.PurchaseType = &pt
	if !interp.IsTestPurchase(sandbox) {
		t.Fatalf("purchase type 0 marks a license-tester purchase")
	}
}

func TestOneTimePurchaseStates(t *testing.T) {
	interp := NewPurchaseInterpreter(DefaultInterpreterPolicy())

	purchased := models.PurchaseRecord{
		Sku:           "day_pass",
		SkuType:       models.SkuTypeOneTime,
		PurchaseToken: "token",
		PurchaseState: 0,
	}
	if !interp.IsEntitlementActive(purchased, testNow) {
		t.Fatalf("purchased one-time product must be active")
	}
	if !interp.IsRegisterable(purchased, testNow) {
		t.Fatalf("purchased one-time product must be registerable")
	}
	if interp.IsGracePeriod(purchased, testNow) || interp.IsAccountHold(purchased, testNow) {
		t.Fatalf("grace/hold apply only to recurring purchases")
	}

	canceled := purchased
	canceled.PurchaseState = 1
	if interp.IsEntitlementActive(canceled, testNow) || interp.IsRegisterable(canceled, testNow) {
		t.Fatalf("canceled one-time product is neither active nor registerable")
	}
}

func TestStatusProjection(t *testing.T) {
	interp := NewPurchaseInterpreter(DefaultInterpreterPolicy())
	expiry := testNow.Add(time.Hour)
	rec := recurringRecord(expiry, true, paymentState(models.PaymentStateReceived))

	status := interp.Status(rec, testNow)
	if status.Sku != "premium_monthly" || status.PurchaseToken != "token" {
		t.Fatalf("identity fields missing: %+v", status)
	}
	if !status.IsEntitlementActive || !status.WillRenew {
		t.Fatalf("active renewing subscription projected wrong: %+v", status)
	}
	if status.ActiveUntilMillisec != expiry.UnixMilli() {
		t.Fatalf("activeUntil mismatch: %d", status.ActiveUntilMillisec)
	}

	oneTime := models.PurchaseRecord{Sku: "day_pass", SkuType: models.SkuTypeOneTime}
	if got := interp.Status(oneTime, testNow).ActiveUntilMillisec; got != 0 {
		t.Fatalf("one-time products carry no expiry, got %d", got)
	}
}

func TestCustomGracePolicy(t *testing.T) {
	interp := NewPurchaseInterpreter(InterpreterPolicy{
		GracePaymentStates:    []int64{models.PaymentStatePending, models.PaymentStateDeferred},
		FreeTrialPaymentState: models.PaymentStateFreeTrial,
		TestPurchaseType:      models.PurchaseTypeTest,
	})
	rec := recurringRecord(testNow.Add(-time.Hour), true, paymentState(models.PaymentStateDeferred))

	if !interp.IsGracePeriod(rec, testNow) {
		t.Fatalf("deployment policy may widen the grace set")
	}
}
