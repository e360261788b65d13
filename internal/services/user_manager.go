package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"ridepass/internal/models"
)

// UserManager answers "what does this user currently own". Reads come from
// the store, but a cached record that looks neither active nor on hold is
// treated as possibly stale and re-verified before the final filter, since
// its real state may have moved (e.g. into account hold) since last write.
type UserManager struct {
	Store       PurchaseStore
	Manager     *PurchaseManager
	Interpreter PurchaseInterpreter

	Now func() time.Time
}

func NewUserManager(store PurchaseStore, manager *PurchaseManager, interp PurchaseInterpreter) *UserManager {
	return &UserManager{
		Store:       store,
		Manager:     manager,
		Interpreter: interp,
		Now:         time.Now,
	}
}

func (u *UserManager) now() time.Time {
	if u.Now != nil {
		return u.Now()
	}
	return time.Now()
}

// QueryCurrentSubscriptions returns the user's recurring purchases that are
// entitlement-active or on account hold, optionally filtered by sku and
// package. A record that fails its staleness refresh is logged and dropped
// from the result instead of failing the whole read.
func (u *UserManager) QueryCurrentSubscriptions(ctx context.Context, userID, sku, packageName string) ([]models.PurchaseRecord, error) {
	records, err := u.Store.ListByUser(ctx, userID, models.SkuTypeRecurring, sku, packageName)
	if err != nil {
		return nil, fmt.Errorf("%w: list purchases for user: %v", models.ErrInternal, err)
	}

	var out []models.PurchaseRecord
	for _, rec := range records {
		now := u.now()
		if !u.Interpreter.IsEntitlementActive(rec, now) && !u.Interpreter.IsAccountHold(rec, now) {
			refreshed, err := u.Manager.QueryPurchase(ctx, rec.PackageName, rec.Sku, rec.PurchaseToken, rec.SkuType)
			if err != nil {
				log.Printf("[user] refresh of stale purchase failed sku=%q token_len=%d: %v",
					rec.Sku, len(rec.PurchaseToken), err)
				continue
			}
			// Ownership may have moved under us (replacement, transfer).
			if refreshed.UserID != userID {
				continue
			}
			rec = refreshed
			now = u.now()
		}
		if u.Interpreter.IsEntitlementActive(rec, now) || u.Interpreter.IsAccountHold(rec, now) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// SubscriptionStatuses is QueryCurrentSubscriptions projected into the
// client-facing payload shape.
func (u *UserManager) SubscriptionStatuses(ctx context.Context, userID, sku, packageName string) (models.SubscriptionStatusList, error) {
	records, err := u.QueryCurrentSubscriptions(ctx, userID, sku, packageName)
	if err != nil {
		return models.SubscriptionStatusList{}, err
	}
	list := models.SubscriptionStatusList{Subscriptions: []models.SubscriptionStatus{}}
	now := u.now()
	for _, rec := range records {
		list.Subscriptions = append(list.Subscriptions, u.Interpreter.Status(rec, now))
	}
	return list, nil
}
