package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"ridepass/internal/models"
	"ridepass/internal/repositories"
)

// BillingVerifier is the slice of the Play client the reconciliation core
// needs. Satisfied by *PlayBillingService.
type BillingVerifier interface {
	VerifySubscription(ctx context.Context, packageName, sku, token string) (models.GooglePurchase, error)
	VerifyProduct(ctx context.Context, packageName, sku, token string) (models.GooglePurchase, error)
}

// Acknowledger is implemented by billing clients that support purchase
// acknowledgement. Optional: Play refunds unacknowledged subscriptions after
// three days, so registration acknowledges when the client can.
type Acknowledger interface {
	AcknowledgeSubscription(ctx context.Context, packageName, sku, token string) error
}

// PurchaseStore is the persistence contract of the reconciliation core.
// Satisfied by *repositories.PurchaseRepository.
type PurchaseStore interface {
	GetByToken(ctx context.Context, purchaseToken string) (models.PurchaseRecord, error)
	Save(ctx context.Context, rec models.PurchaseRecord) error
	UpdateUserID(ctx context.Context, purchaseToken, userID string) error
	MarkReplaced(ctx context.Context, purchaseToken string) error
	ListByUser(ctx context.Context, userID, skuType, sku, packageName string) ([]models.PurchaseRecord, error)
}

// PurchaseManager reconciles the three sources of truth: the Play API
// (authoritative for purchase facts), the purchase-record store (authoritative
// for user linkage) and the RTDN stream that triggers re-verification.
type PurchaseManager struct {
	Billing     BillingVerifier
	Store       PurchaseStore
	Interpreter PurchaseInterpreter

	// Now is swappable in tests; defaults to time.Now.
	Now func() time.Time
}

func NewPurchaseManager(billing BillingVerifier, store PurchaseStore, interp PurchaseInterpreter) *PurchaseManager {
	return &PurchaseManager{
		Billing:     billing,
		Store:       store,
		Interpreter: interp,
		Now:         time.Now,
	}
}

func (m *PurchaseManager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// QueryPurchase verifies a token against Play and merges the result with the
// stored record. Platform-sourced fields always overwrite the stored copy;
// user_id and replaced_by_another_purchase are server-owned and survive the
// merge untouched. A token never seen before gets an unlinked record.
//
// When a brand-new record arrives carrying linkedPurchaseToken, the purchase
// it replaced (and that one's predecessors) are invalidated.
func (m *PurchaseManager) QueryPurchase(ctx context.Context, packageName, sku, token, skuType string) (models.PurchaseRecord, error) {
	purchase, err := m.verify(ctx, packageName, sku, token, skuType)
	if err != nil {
		if errors.Is(err, models.ErrPurchaseTokenNotFound) {
			return models.PurchaseRecord{}, err
		}
		return models.PurchaseRecord{}, fmt.Errorf("%w: verify purchase: %v", models.ErrInternal, err)
	}

	existing, err := m.Store.GetByToken(ctx, token)
	isNew := false
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			return models.PurchaseRecord{}, fmt.Errorf("%w: load purchase record: %v", models.ErrInternal, err)
		}
		isNew = true
	}

	rec := m.recordFromPurchase(purchase, skuType)
	if !isNew {
		rec.UserID = existing.UserID
		rec.ReplacedByAnotherPurchase = existing.ReplacedByAnotherPurchase
		rec.LatestNotificationType = existing.LatestNotificationType
	}
	rec.IsMutable = m.Interpreter.IsRegisterable(rec, m.now())

	if err := m.Store.Save(ctx, rec); err != nil {
		return models.PurchaseRecord{}, fmt.Errorf("%w: save purchase record: %v", models.ErrInternal, err)
	}

	if isNew && rec.LinkedPurchaseToken != "" {
		m.invalidateReplacedChain(ctx, rec.PackageName, rec.Sku, rec.LinkedPurchaseToken)
	}

	return rec, nil
}

// RegisterToUserAccount links a verified purchase to a user. Idempotent for
// the same (token, user) pair; a token owned by a different real user fails
// with ErrConflict — the defense against spending one token across accounts.
//
// There is no lock across the read and the write: the conflict check on the
// freshly merged record is the safety net, and two concurrent registrations
// of a never-seen token can both pass it. Accepted, see DESIGN.md.
func (m *PurchaseManager) RegisterToUserAccount(ctx context.Context, packageName, sku, token, skuType, userID string) (models.PurchaseRecord, error) {
	rec, err := m.QueryPurchase(ctx, packageName, sku, token, skuType)
	if err != nil {
		if errors.Is(err, models.ErrPurchaseTokenNotFound) {
			return models.PurchaseRecord{}, fmt.Errorf("%w: %v", models.ErrInvalidToken, err)
		}
		return models.PurchaseRecord{}, err
	}

	if !m.Interpreter.IsRegisterable(rec, m.now()) {
		return models.PurchaseRecord{}, fmt.Errorf("%w: purchase is terminal or replaced", models.ErrInvalidToken)
	}

	if rec.UserID == userID {
		return rec, nil
	}
	if rec.HasRealOwner() {
		log.Printf("[purchase] register conflict token_len=%d owner=%q caller=%q", len(token), rec.UserID, userID)
		return models.PurchaseRecord{}, models.ErrConflict
	}

	if err := m.Store.UpdateUserID(ctx, token, userID); err != nil {
		return models.PurchaseRecord{}, fmt.Errorf("%w: link purchase to user: %v", models.ErrInternal, err)
	}
	rec.UserID = userID

	// Best effort. An unacknowledged subscription is refunded by Play after
	// three days; a failure here is logged, not surfaced to the client.
	if ack, ok := m.Billing.(Acknowledger); ok && skuType == models.SkuTypeRecurring {
		if err := ack.AcknowledgeSubscription(ctx, rec.PackageName, sku, token); err != nil {
			log.Printf("[purchase] acknowledge failed sku=%q token_len=%d: %v", sku, len(token), err)
		}
	}
	return rec, nil
}

// TransferToUserAccount reassigns a purchase to a new user without the
// conflict check — the account-transfer flow is allowed to take ownership
// away from the previous account.
func (m *PurchaseManager) TransferToUserAccount(ctx context.Context, packageName, sku, token, skuType, userID string) (models.PurchaseRecord, error) {
	rec, err := m.QueryPurchase(ctx, packageName, sku, token, skuType)
	if err != nil {
		if errors.Is(err, models.ErrPurchaseTokenNotFound) {
			return models.PurchaseRecord{}, fmt.Errorf("%w: %v", models.ErrInvalidToken, err)
		}
		return models.PurchaseRecord{}, err
	}

	if !m.Interpreter.IsRegisterable(rec, m.now()) {
		return models.PurchaseRecord{}, fmt.Errorf("%w: purchase is terminal or replaced", models.ErrInvalidToken)
	}

	if rec.UserID != userID {
		if err := m.Store.UpdateUserID(ctx, token, userID); err != nil {
			return models.PurchaseRecord{}, fmt.Errorf("%w: transfer purchase to user: %v", models.ErrInternal, err)
		}
		rec.UserID = userID
	}
	return rec, nil
}

// ProcessDeveloperNotification routes one RTDN. PURCHASED is deliberately
// skipped: the client-driven registration call delivers the token itself, and
// racing it here would only produce duplicate unlinked records. Every other
// type triggers a fresh verification and tags the record for audit.
//
// Returns nil for envelopes that carry no subscription data.
func (m *PurchaseManager) ProcessDeveloperNotification(ctx context.Context, packageName string, notif models.DeveloperNotification) (*models.PurchaseRecord, error) {
	if notif.PackageName != "" {
		packageName = notif.PackageName
	}

	if notif.TestNotification != nil {
		log.Printf("[rtdn] test notification version=%q, ignoring", notif.TestNotification.Version)
		return nil, nil
	}

	if sub := notif.SubscriptionNotification; sub != nil {
		if sub.NotificationType == models.NotificationTypePurchased {
			log.Printf("[rtdn] purchased notification for sku=%q, handled by registration path", sub.SubscriptionID)
			return nil, nil
		}
		rec, err := m.QueryPurchase(ctx, packageName, sub.SubscriptionID, sub.PurchaseToken, models.SkuTypeRecurring)
		if err != nil {
			return nil, err
		}
		rec.LatestNotificationType = sub.NotificationType
		if err := m.Store.Save(ctx, rec); err != nil {
			return nil, fmt.Errorf("%w: tag notification type: %v", models.ErrInternal, err)
		}
		return &rec, nil
	}

	if otp := notif.OneTimeProductNotification; otp != nil {
		if otp.NotificationType == models.OneTimeProductNotificationTypePurchased {
			log.Printf("[rtdn] one-time purchased notification for sku=%q, handled by registration path", otp.Sku)
			return nil, nil
		}
		rec, err := m.QueryPurchase(ctx, packageName, otp.Sku, otp.PurchaseToken, models.SkuTypeOneTime)
		if err != nil {
			return nil, err
		}
		rec.LatestNotificationType = otp.NotificationType
		if err := m.Store.Save(ctx, rec); err != nil {
			return nil, fmt.Errorf("%w: tag notification type: %v", models.ErrInternal, err)
		}
		return &rec, nil
	}

	log.Printf("[rtdn] envelope without subscription data package=%q, ignoring", notif.PackageName)
	return nil, nil
}

func (m *PurchaseManager) verify(ctx context.Context, packageName, sku, token, skuType string) (models.GooglePurchase, error) {
	if skuType == models.SkuTypeOneTime {
		return m.Billing.VerifyProduct(ctx, packageName, sku, token)
	}
	return m.Billing.VerifySubscription(ctx, packageName, sku, token)
}

func (m *PurchaseManager) recordFromPurchase(p models.GooglePurchase, skuType string) models.PurchaseRecord {
	return models.PurchaseRecord{
		PackageName:   p.PackageName,
		Sku:           p.Sku,
		SkuType:       skuType,
		PurchaseToken: p.PurchaseToken,
		VerifiedAt:    m.now(),

		StartTimeMillis:     p.StartTimeMillis,
		ExpiryTimeMillis:    p.ExpiryTimeMillis,
		AutoRenewing:        p.AutoRenewing,
		PaymentState:        p.PaymentState,
		CancelReason:        p.CancelReason,
		OrderID:             p.OrderID,
		LinkedPurchaseToken: p.LinkedPurchaseToken,
		PurchaseType:        p.PurchaseType,
		PurchaseState:       p.PurchaseState,
		FormOfPayment:       models.FormOfPaymentGooglePlay,

		IsMutable: true,
	}
}

// invalidateReplacedChain walks the linkedPurchaseToken back-references of a
// newly created purchase and marks every predecessor replaced, owned by the
// invalidation placeholder. Idempotent per token: reaching an
// already-invalidated record stops the walk, so concurrent walkers converge.
// Records missing from the store are backfilled from Play on a best-effort
// basis; when that fails the chain is left partially invalidated rather than
// blocking the new purchase.
func (m *PurchaseManager) invalidateReplacedChain(ctx context.Context, packageName, sku, oldToken string) {
	for oldToken != "" {
		rec, err := m.Store.GetByToken(ctx, oldToken)
		if errors.Is(err, repositories.ErrNotFound) {
			purchase, verr := m.Billing.VerifySubscription(ctx, packageName, sku, oldToken)
			if verr != nil {
				log.Printf("[purchase] cannot backfill replaced purchase token_len=%d: %v", len(oldToken), verr)
				return
			}
			rec = m.recordFromPurchase(purchase, models.SkuTypeRecurring)
			if serr := m.Store.Save(ctx, rec); serr != nil {
				log.Printf("[purchase] cannot store backfilled purchase token_len=%d: %v", len(oldToken), serr)
				return
			}
		} else if err != nil {
			log.Printf("[purchase] cannot load replaced purchase token_len=%d: %v", len(oldToken), err)
			return
		}

		if rec.ReplacedByAnotherPurchase {
			return
		}
		if err := m.Store.MarkReplaced(ctx, oldToken); err != nil {
			log.Printf("[purchase] cannot invalidate replaced purchase token_len=%d: %v", len(oldToken), err)
			return
		}
		oldToken = rec.LinkedPurchaseToken
	}
}
