package repositories

import (
	"context"
	"database/sql"
	"sync"
)

// InstanceRepository maps a user to the FCM device tokens of their signed-in
// devices. Owned by the notification fan-out path, not the reconciliation core.
type InstanceRepository struct {
	DB   *sql.DB
	once sync.Once
	err  error
}

func NewInstanceRepository(db *sql.DB) *InstanceRepository {
	return &InstanceRepository{DB: db}
}

func (r *InstanceRepository) ensureSchema(ctx context.Context) error {
	r.once.Do(func() {
		const ddl = `
CREATE TABLE IF NOT EXISTS instance_tokens (
  id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
  user_id VARCHAR(128) NOT NULL,
  token VARCHAR(512) NOT NULL,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (id),
  UNIQUE KEY uniq_token (token),
  KEY idx_user_id (user_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`
		_, r.err = r.DB.ExecContext(ctx, ddl)
	})
	return r.err
}

// RegisterToken binds a device token to a user. Re-registering an existing
// token moves it to the new user (same device, new sign-in).
func (r *InstanceRepository) RegisterToken(ctx context.Context, userID, token string) error {
	if err := r.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := r.DB.ExecContext(ctx, `
INSERT INTO instance_tokens (user_id, token) VALUES (?, ?)
ON DUPLICATE KEY UPDATE user_id = VALUES(user_id)`,
		userID, token,
	)
	return err
}

func (r *InstanceRepository) UnregisterToken(ctx context.Context, token string) error {
	if err := r.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := r.DB.ExecContext(ctx, `DELETE FROM instance_tokens WHERE token = ?`, token)
	return err
}

func (r *InstanceRepository) ListByUser(ctx context.Context, userID string) ([]string, error) {
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT token FROM instance_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}
