package models

// Real-time developer notification types, per the Play RTDN enum.
const (
	NotificationTypeRecovered            int64 = 1
	NotificationTypeRenewed              int64 = 2
	NotificationTypeCanceled             int64 = 3
	NotificationTypePurchased            int64 = 4
	NotificationTypeOnHold               int64 = 5
	NotificationTypeInGracePeriod        int64 = 6
	NotificationTypeRestarted            int64 = 7
	NotificationTypePriceChangeConfirmed int64 = 8
	NotificationTypeDeferred             int64 = 9
	NotificationTypePaused               int64 = 10
	NotificationTypePauseScheduleChanged int64 = 11
	NotificationTypeRevoked              int64 = 12
	NotificationTypeExpired              int64 = 13
)

// One-time product notification types.
const (
	OneTimeProductNotificationTypePurchased int64 = 1
	OneTimeProductNotificationTypeCanceled  int64 = 2
)

// DeveloperNotification is the decoded RTDN payload carried inside a Pub/Sub
// push message. Exactly one of SubscriptionNotification, OneTimeProductNotification
// or TestNotification is set.
type DeveloperNotification struct {
	Version         string `json:"version,omitempty"`
	PackageName     string `json:"packageName,omitempty"`
	EventTimeMillis string `json:"eventTimeMillis,omitempty"`

	SubscriptionNotification   *SubscriptionNotification   `json:"subscriptionNotification,omitempty"`
	OneTimeProductNotification *OneTimeProductNotification `json:"oneTimeProductNotification,omitempty"`
	TestNotification           *TestNotification           `json:"testNotification,omitempty"`
}

type SubscriptionNotification struct {
	Version          string `json:"version,omitempty"`
	NotificationType int64  `json:"notificationType"`
	PurchaseToken    string `json:"purchaseToken"`
	SubscriptionID   string `json:"subscriptionId"`
}

type OneTimeProductNotification struct {
	Version          string `json:"version,omitempty"`
	NotificationType int64  `json:"notificationType"`
	PurchaseToken    string `json:"purchaseToken"`
	Sku              string `json:"sku"`
}

// TestNotification is the sandbox envelope sent from the Play console; it
// carries no subscription data.
type TestNotification struct {
	Version string `json:"version,omitempty"`
}

// PubSubPush is the wrapper Pub/Sub puts around the base64-encoded
// DeveloperNotification on push delivery.
type PubSubPush struct {
	Message      PubSubMessage `json:"message"`
	Subscription string        `json:"subscription,omitempty"`
}

type PubSubMessage struct {
	Data      string `json:"data"`
	MessageID string `json:"messageId,omitempty"`
}
