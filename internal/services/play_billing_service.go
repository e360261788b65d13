package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	androidpublisher "google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"ridepass/internal/models"
)

type PlayBillingConfig struct {
	PackageName        string
	ServiceAccountFile string
}

// PlayBillingService is a thin adapter over the Play Developer purchases API.
// No caching and no retries: callers decide what is worth retrying, and a
// not-found answer never is.
type PlayBillingService struct {
	cfg PlayBillingConfig
	svc *androidpublisher.Service
}

func NewPlayBillingService(ctx context.Context, cfg PlayBillingConfig) (*PlayBillingService, error) {
	cfg.PackageName = strings.TrimSpace(cfg.PackageName)
	if cfg.PackageName == "" {
		return nil, errors.New("GOOGLE_PLAY_PACKAGE_NAME is empty")
	}
	if strings.TrimSpace(cfg.ServiceAccountFile) == "" {
		return nil, errors.New("GOOGLE_PLAY_SERVICE_ACCOUNT_FILE is empty")
	}

	s, err := androidpublisher.NewService(ctx,
		option.WithCredentialsFile(cfg.ServiceAccountFile),
		option.WithScopes(androidpublisher.AndroidpublisherScope),
	)
	if err != nil {
		return nil, fmt.Errorf("androidpublisher.NewService: %w", err)
	}

	return &PlayBillingService{cfg: cfg, svc: s}, nil
}

func (s *PlayBillingService) VerifySubscription(ctx context.Context, packageName, sku, token string) (models.GooglePurchase, error) {
	sku = strings.TrimSpace(sku)
	token = strings.TrimSpace(token)
	if sku == "" || token == "" {
		return models.GooglePurchase{}, fmt.Errorf("%w: sku and purchase_token are required", models.ErrPurchaseTokenNotFound)
	}
	if packageName == "" {
		packageName = s.cfg.PackageName
	}

	resp, err := s.svc.Purchases.Subscriptions.Get(packageName, sku, token).
		Context(ctx).
		Do()
	if err != nil {
		return models.GooglePurchase{}, classifyVerifyError("subscriptions.get", err)
	}

	raw, _ := json.Marshal(resp)

	return models.GooglePurchase{
		Kind:          "subscription",
		PackageName:   packageName,
		Sku:           sku,
		PurchaseToken: token,
		OrderID:       resp.OrderId,

		StartTimeMillis:     resp.StartTimeMillis,
		ExpiryTimeMillis:    resp.ExpiryTimeMillis,
		AutoRenewing:        resp.AutoRenewing,
		PaymentState:        resp.PaymentState,
		CancelReason:        resp.CancelReason,
		LinkedPurchaseToken: resp.LinkedPurchaseToken,
		PurchaseType:        resp.PurchaseType,

		Raw: string(raw),
	}, nil
}

func (s *PlayBillingService) VerifyProduct(ctx context.Context, packageName, sku, token string) (models.GooglePurchase, error) {
	sku = strings.TrimSpace(sku)
	token = strings.TrimSpace(token)
	if sku == "" || token == "" {
		return models.GooglePurchase{}, fmt.Errorf("%w: sku and purchase_token are required", models.ErrPurchaseTokenNotFound)
	}
	if packageName == "" {
		packageName = s.cfg.PackageName
	}

	resp, err := s.svc.Purchases.Products.Get(packageName, sku, token).
		Context(ctx).
		Do()
	if err != nil {
		return models.GooglePurchase{}, classifyVerifyError("products.get", err)
	}

	raw, _ := json.Marshal(resp)

	return models.GooglePurchase{
		Kind:          "product",
		PackageName:   packageName,
		Sku:           sku,
		PurchaseToken: token,
		OrderID:       resp.OrderId,

		PurchaseState: resp.PurchaseState,
		Consumed:      resp.ConsumptionState == 1,
		PurchaseType:  resp.PurchaseType,

		Raw: string(raw),
	}, nil
}

// AcknowledgeSubscription tells Play the purchase has been granted. Play
// refunds unacknowledged subscriptions after three days, so this runs after
// a successful registration; failures are the caller's to log and swallow.
func (s *PlayBillingService) AcknowledgeSubscription(ctx context.Context, packageName, sku, token string) error {
	if packageName == "" {
		packageName = s.cfg.PackageName
	}
	req := &androidpublisher.SubscriptionPurchasesAcknowledgeRequest{}
	if err := s.svc.Purchases.Subscriptions.Acknowledge(packageName, sku, token, req).
		Context(ctx).
		Do(); err != nil {
		return fmt.Errorf("google subscriptions.acknowledge: %w", err)
	}
	return nil
}

// classifyVerifyError separates "this token is permanently bad" from
// transient API trouble. Play answers 400/404/410 for malformed, unknown and
// purged tokens respectively; everything else may succeed on retry.
func classifyVerifyError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 400, 404, 410:
			return fmt.Errorf("%w: google %s: %v", models.ErrPurchaseTokenNotFound, op, err)
		}
	}
	return fmt.Errorf("google %s: %w", op, err)
}
