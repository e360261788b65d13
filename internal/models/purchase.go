package models

import "time"

const (
	SkuTypeOneTime   = "one_time"
	SkuTypeRecurring = "recurring"
)

// ReplacedUserIDPlaceholder is written into user_id when a purchase has been
// superseded through a replacement chain. It is reserved: no authenticated
// caller may ever carry this identifier.
const ReplacedUserIDPlaceholder = "invalidated-from-purchase-replacement"

// Payment states as reported by the Play Developer API.
const (
	PaymentStatePending   int64 = 0
	PaymentStateReceived  int64 = 1
	PaymentStateFreeTrial int64 = 2
	PaymentStateDeferred  int64 = 3
)

// PurchaseType marker for sandbox/license-tester purchases.
const PurchaseTypeTest int64 = 0

// GooglePurchase is the raw verification result from the Play Developer API
// for a single (package, sku, token) triple. Platform fields only; linkage
// state lives on PurchaseRecord.
type GooglePurchase struct {
	Kind          string // "product" | "subscription"
	PackageName   string
	Sku           string
	PurchaseToken string
	OrderID       string

	// Subscription-only
	StartTimeMillis     int64
	ExpiryTimeMillis    int64
	AutoRenewing        bool
	PaymentState        *int64
	CancelReason        int64
	LinkedPurchaseToken string
	PurchaseType        *int64

	// Product-only: 0 purchased, 1 canceled, 2 pending
	PurchaseState int64
	Consumed      bool

	Raw string
}

// PurchaseRecord is the persisted view of one purchase token: the latest
// platform snapshot merged with server-owned linkage state.
//
// UserID is "" while the token is unlinked; ReplacedUserIDPlaceholder once the
// purchase has been invalidated by a newer one.
type PurchaseRecord struct {
	PackageName   string
	Sku           string
	SkuType       string
	PurchaseToken string
	UserID        string
	VerifiedAt    time.Time

	StartTimeMillis     int64
	ExpiryTimeMillis    int64
	AutoRenewing        bool
	PaymentState        *int64
	CancelReason        int64
	OrderID             string
	LinkedPurchaseToken string
	PurchaseType        *int64
	PurchaseState       int64
	FormOfPayment       string

	LatestNotificationType    int64
	ReplacedByAnotherPurchase bool
	IsMutable                 bool
}

// HasRealOwner reports whether the record is linked to an actual account, as
// opposed to being unlinked or invalidated by replacement.
func (r PurchaseRecord) HasRealOwner() bool {
	return r.UserID != "" && r.UserID != ReplacedUserIDPlaceholder
}

const FormOfPaymentGooglePlay = "GOOGLE_PLAY"

// SubscriptionStatus is the client-facing projection of a PurchaseRecord.
// Always recomputed, never stored.
type SubscriptionStatus struct {
	Sku                 string `json:"sku"`
	PurchaseToken       string `json:"purchaseToken"`
	IsEntitlementActive bool   `json:"isEntitlementActive"`
	WillRenew           bool   `json:"willRenew"`
	ActiveUntilMillisec int64  `json:"activeUntilMillisec"`
	IsFreeTrial         bool   `json:"isFreeTrial"`
	IsGracePeriod       bool   `json:"isGracePeriod"`
	IsAccountHold       bool   `json:"isAccountHold"`
}

// SubscriptionStatusList is the payload shape shared by the HTTP responses
// and the FCM fan-out messages.
type SubscriptionStatusList struct {
	Subscriptions []SubscriptionStatus `json:"subscriptions"`
}
