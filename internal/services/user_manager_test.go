package services

import (
	"context"
	"testing"
	"time"

	"ridepass/internal/models"
)

func newTestUserManager(billing *fakeBilling, store *fakeStore) *UserManager {
	mgr := newTestManager(billing, store)
	users := NewUserManager(store, mgr, mgr.Interpreter)
	users.Now = func() time.Time { return testNow }
	return users
}

func TestQueryCurrentSubscriptionsReturnsActive(t *testing.T) {
	billing := &fakeBilling{subs: map[string]models.GooglePurchase{"tokenA": activeSubscription("tokenA")}}
	store := newFakeStore()
	users := newTestUserManager(billing, store)

	ctx := context.Background()
	if _, err := users.Manager.RegisterToUserAccount(ctx, "", "premium_monthly", "tokenA", models.SkuTypeRecurring, "user1"); err != nil {
		t.Fatalf("registration: %v", err)
	}
	billing.calls = 0

	records, err := users.QueryCurrentSubscriptions(ctx, "user1", "", "")
	if err != nil {
		t.Fatalf("QueryCurrentSubscriptions: %v", err)
	}
	if len(records) != 1 || records[0].PurchaseToken != "tokenA" {
		t.Fatalf("expected tokenA, got %+v", records)
	}
	if billing.calls != 0 {
		t.Fatalf("fresh record must be served from the store, %d platform calls", billing.calls)
	}
}

func TestQueryCurrentSubscriptionsRefreshesStale(t *testing.T) {
	billing := &fakeBilling{subs: map[string]models.GooglePurchase{"tokenA": activeSubscription("tokenA")}}
	store := newFakeStore()
	users := newTestUserManager(billing, store)

	// Cached copy looks lapsed, but Play has recorded a renewal since.
	stale := models.PurchaseRecord{
		PackageName:      "com.example.ridepass",
		Sku:              "premium_monthly",
		SkuType:          models.SkuTypeRecurring,
		PurchaseToken:    "tokenA",
		UserID:           "user1",
		ExpiryTimeMillis: testNow.Add(-time.Hour).UnixMilli(),
		AutoRenewing:     false,
		IsMutable:        true,
	}
	store.records["tokenA"] = stale

	records, err := users.QueryCurrentSubscriptions(context.Background(), "user1", "", "")
	if err != nil {
		t.Fatalf("QueryCurrentSubscriptions: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("renewed subscription must come back, got %+v", records)
	}
	if records[0].ExpiryTimeMillis == stale.ExpiryTimeMillis {
		t.Fatalf("record was not refreshed from the platform")
	}
	if billing.calls != 1 {
		t.Fatalf("expected exactly one refresh call, got %d", billing.calls)
	}
}

func TestQueryCurrentSubscriptionsIncludesHold(t *testing.T) {
	held := activeSubscription("tokenA")
	held.ExpiryTimeMillis = testNow.Add(-time.Hour).UnixMilli()
	held.PaymentState = nil

	billing := &fakeBilling{subs: map[string]models.GooglePurchase{"tokenA": held}}
	store := newFakeStore()
	users := newTestUserManager(billing, store)

	ctx := context.Background()
	if _, err := users.Manager.RegisterToUserAccount(ctx, "", "premium_monthly", "tokenA", models.SkuTypeRecurring, "user1"); err != nil {
		t.Fatalf("registration: %v", err)
	}

	list, err := users.SubscriptionStatuses(ctx, "user1", "", "")
	if err != nil {
		t.Fatalf("SubscriptionStatuses: %v", err)
	}
	if len(list.Subscriptions) != 1 {
		t.Fatalf("hold record must be surfaced, got %+v", list.Subscriptions)
	}
	status := list.Subscriptions[0]
	if !status.IsAccountHold || status.IsEntitlementActive {
		t.Fatalf("hold must be visible but not active: %+v", status)
	}
}

func TestQueryCurrentSubscriptionsSkipsFailedRefresh(t *testing.T) {
	billing := &fakeBilling{subs: map[string]models.GooglePurchase{"tokenB": activeSubscription("tokenB")}}
	store := newFakeStore()
	users := newTestUserManager(billing, store)

	// tokenA can no longer be verified; tokenB is healthy.
	store.records["tokenA"] = models.PurchaseRecord{
		Sku:              "premium_monthly",
		SkuType:          models.SkuTypeRecurring,
		PurchaseToken:    "tokenA",
		UserID:           "user1",
		ExpiryTimeMillis: testNow.Add(-time.Hour).UnixMilli(),
		IsMutable:        true,
	}
	store.records["tokenB"] = models.PurchaseRecord{
		Sku:              "premium_monthly",
		SkuType:          models.SkuTypeRecurring,
		PurchaseToken:    "tokenB",
		UserID:           "user1",
		ExpiryTimeMillis: testNow.Add(time.Hour).UnixMilli(),
		AutoRenewing:     true,
		IsMutable:        true,
	}

	records, err := users.QueryCurrentSubscriptions(context.Background(), "user1", "", "")
	if err != nil {
		t.Fatalf("one broken record must not fail the read: %v", err)
	}
	if len(records) != 1 || records[0].PurchaseToken != "tokenB" {
		t.Fatalf("expected only tokenB, got %+v", records)
	}
}

func TestUpgradeLeavesOnlyNewPurchaseVisible(t *testing.T) {
	upgrade := activeSubscription("tokenB")
	upgrade.Sku = "premium_yearly"
	upgrade.LinkedPurchaseToken = "tokenA"

	billing := &fakeBilling{subs: map[string]models.GooglePurchase{
		"tokenA": activeSubscription("tokenA"),
		"tokenB": upgrade,
	}}
	store := newFakeStore()
	users := newTestUserManager(billing, store)

	ctx := context.Background()
	if _, err := users.Manager.RegisterToUserAccount(ctx, "", "premium_monthly", "tokenA", models.SkuTypeRecurring, "user1"); err != nil {
		t.Fatalf("register tokenA: %v", err)
	}
	if _, err := users.Manager.RegisterToUserAccount(ctx, "", "premium_yearly", "tokenB", models.SkuTypeRecurring, "user1"); err != nil {
		t.Fatalf("register tokenB: %v", err)
	}

	records, err := users.QueryCurrentSubscriptions(ctx, "user1", "", "")
	if err != nil {
		t.Fatalf("QueryCurrentSubscriptions: %v", err)
	}
	if len(records) != 1 || records[0].PurchaseToken != "tokenB" {
		t.Fatalf("only the replacing purchase must remain visible, got %+v", records)
	}
}

func TestSubscriptionStatusesEmptyList(t *testing.T) {
	billing := &fakeBilling{}
	store := newFakeStore()
	users := newTestUserManager(billing, store)

	list, err := users.SubscriptionStatuses(context.Background(), "nobody", "", "")
	if err != nil {
		t.Fatalf("SubscriptionStatuses: %v", err)
	}
	if list.Subscriptions == nil || len(list.Subscriptions) != 0 {
		t.Fatalf("empty result must render as [], got %#v", list.Subscriptions)
	}
}
