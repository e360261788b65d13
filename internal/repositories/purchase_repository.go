package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"ridepass/internal/models"
)

var ErrNotFound = errors.New("repositories: no matching record found")

// PurchaseRepository stores one row per purchase token. Platform fields are
// overwritten on every save; user_id and replaced_by_another_purchase are
// server-owned and only move through UpdateUserID / MarkReplaced.
type PurchaseRepository struct {
	DB   *sql.DB
	once sync.Once
	err  error
}

func NewPurchaseRepository(db *sql.DB) *PurchaseRepository {
	return &PurchaseRepository{DB: db}
}

func (r *PurchaseRepository) ensureSchema(ctx context.Context) error {
	r.once.Do(func() {
		const ddl = `
CREATE TABLE IF NOT EXISTS purchase_records (
  id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
  purchase_token VARCHAR(512) NOT NULL,
  package_name VARCHAR(255) NOT NULL DEFAULT '',
  sku VARCHAR(255) NOT NULL DEFAULT '',
  sku_type VARCHAR(32) NOT NULL DEFAULT 'recurring',
  user_id VARCHAR(128) DEFAULT NULL,
  verified_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  start_time_millis BIGINT NOT NULL DEFAULT 0,
  expiry_time_millis BIGINT NOT NULL DEFAULT 0,
  auto_renewing TINYINT(1) NOT NULL DEFAULT 0,
  payment_state BIGINT DEFAULT NULL,
  cancel_reason BIGINT NOT NULL DEFAULT 0,
  order_id VARCHAR(255) NOT NULL DEFAULT '',
  linked_purchase_token VARCHAR(512) NOT NULL DEFAULT '',
  purchase_type BIGINT DEFAULT NULL,
  purchase_state BIGINT NOT NULL DEFAULT 0,
  form_of_payment VARCHAR(32) NOT NULL DEFAULT 'GOOGLE_PLAY',
  latest_notification_type BIGINT NOT NULL DEFAULT 0,
  replaced_by_another_purchase TINYINT(1) NOT NULL DEFAULT 0,
  is_mutable TINYINT(1) NOT NULL DEFAULT 1,
  PRIMARY KEY (id),
  UNIQUE KEY uniq_purchase_token (purchase_token),
  KEY idx_user_id (user_id),
  KEY idx_sku (sku)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`
		_, r.err = r.DB.ExecContext(ctx, ddl)
	})
	return r.err
}

const purchaseColumns = `purchase_token, package_name, sku, sku_type, user_id, verified_at,
start_time_millis, expiry_time_millis, auto_renewing, payment_state, cancel_reason,
order_id, linked_purchase_token, purchase_type, purchase_state, form_of_payment,
latest_notification_type, replaced_by_another_purchase, is_mutable`

func (r *PurchaseRepository) GetByToken(ctx context.Context, purchaseToken string) (models.PurchaseRecord, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return models.PurchaseRecord{}, err
	}
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchase_records WHERE purchase_token = ?`,
		purchaseToken,
	)
	rec, err := scanPurchase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PurchaseRecord{}, ErrNotFound
	}
	return rec, err
}

// Save upserts the full record. The caller is responsible for having merged
// server-owned fields into rec before calling.
func (r *PurchaseRepository) Save(ctx context.Context, rec models.PurchaseRecord) error {
	if err := r.ensureSchema(ctx); err != nil {
		return err
	}
	if rec.PurchaseToken == "" {
		return fmt.Errorf("purchase_token is required")
	}

	_, err := r.DB.ExecContext(ctx, `
INSERT INTO purchase_records (`+purchaseColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  package_name = VALUES(package_name),
  sku = VALUES(sku),
  sku_type = VALUES(sku_type),
  user_id = VALUES(user_id),
  verified_at = VALUES(verified_at),
  start_time_millis = VALUES(start_time_millis),
  expiry_time_millis = VALUES(expiry_time_millis),
  auto_renewing = VALUES(auto_renewing),
  payment_state = VALUES(payment_state),
  cancel_reason = VALUES(cancel_reason),
  order_id = VALUES(order_id),
  linked_purchase_token = VALUES(linked_purchase_token),
  purchase_type = VALUES(purchase_type),
  purchase_state = VALUES(purchase_state),
  form_of_payment = VALUES(form_of_payment),
  latest_notification_type = VALUES(latest_notification_type),
  replaced_by_another_purchase = VALUES(replaced_by_another_purchase),
  is_mutable = VALUES(is_mutable)`,
		rec.PurchaseToken,
		rec.PackageName,
		rec.Sku,
		rec.SkuType,
		nullString(rec.UserID),
		rec.VerifiedAt,
		rec.StartTimeMillis,
		rec.ExpiryTimeMillis,
		rec.AutoRenewing,
		nullInt64(rec.PaymentState),
		rec.CancelReason,
		rec.OrderID,
		rec.LinkedPurchaseToken,
		nullInt64(rec.PurchaseType),
		rec.PurchaseState,
		rec.FormOfPayment,
		rec.LatestNotificationType,
		rec.ReplacedByAnotherPurchase,
		rec.IsMutable,
	)
	return err
}

// UpdateUserID assigns ownership of a token. Deliberately a plain UPDATE:
// the read-then-check in the purchase manager is the conflict guard, and a
// race between two first-time registrations of the same token is accepted.
func (r *PurchaseRepository) UpdateUserID(ctx context.Context, purchaseToken, userID string) error {
	if err := r.ensureSchema(ctx); err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE purchase_records SET user_id = ? WHERE purchase_token = ?`,
		nullString(userID), purchaseToken,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, gerr := r.GetByToken(ctx, purchaseToken); errors.Is(gerr, ErrNotFound) {
			return ErrNotFound
		}
	}
	return nil
}

// MarkReplaced invalidates a purchase that was superseded through a
// replacement chain. Idempotent: a second call on the same token matches no
// rows and is a no-op.
func (r *PurchaseRepository) MarkReplaced(ctx context.Context, purchaseToken string) error {
	if err := r.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := r.DB.ExecContext(ctx, `
UPDATE purchase_records
SET replaced_by_another_purchase = 1, is_mutable = 0, user_id = ?
WHERE purchase_token = ? AND replaced_by_another_purchase = 0`,
		models.ReplacedUserIDPlaceholder, purchaseToken,
	)
	return err
}

// ListByUser returns the user's mutable records of the given SKU type,
// optionally narrowed to one sku and/or package.
func (r *PurchaseRepository) ListByUser(ctx context.Context, userID, skuType, sku, packageName string) ([]models.PurchaseRecord, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + purchaseColumns + ` FROM purchase_records
WHERE user_id = ? AND sku_type = ? AND is_mutable = 1`
	args := []interface{}{userID, skuType}
	if sku != "" {
		query += ` AND sku = ?`
		args = append(args, sku)
	}
	if packageName != "" {
		query += ` AND package_name = ?`
		args = append(args, packageName)
	}
	query += ` ORDER BY expiry_time_millis DESC`

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PurchaseRecord
	for rows.Next() {
		rec, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPurchase(row rowScanner) (models.PurchaseRecord, error) {
	var (
		rec          models.PurchaseRecord
		userID       sql.NullString
		paymentState sql.NullInt64
		purchaseType sql.NullInt64
	)
	err := row.Scan(
		&rec.PurchaseToken,
		&rec.PackageName,
		&rec.Sku,
		&rec.SkuType,
		&userID,
		&rec.VerifiedAt,
		&rec.StartTimeMillis,
		&rec.ExpiryTimeMillis,
		&rec.AutoRenewing,
		&paymentState,
		&rec.CancelReason,
		&rec.OrderID,
		&rec.LinkedPurchaseToken,
		&purchaseType,
		&rec.PurchaseState,
		&rec.FormOfPayment,
		&rec.LatestNotificationType,
		&rec.ReplacedByAnotherPurchase,
		&rec.IsMutable,
	)
	if err != nil {
		return models.PurchaseRecord{}, err
	}
	if userID.Valid {
		rec.UserID = userID.String
	}
	if paymentState.Valid {
		v := paymentState.Int64
		rec.PaymentState = &v
	}
	if purchaseType.Valid {
		v := purchaseType.Int64
		rec.PurchaseType = &v
	}
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
