package settings

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresStore persists user settings in the user_settings table,
// one row per user keyed by user_id.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ByUser(ctx context.Context, userID string) (UserSettings, error) {
	const q = `
SELECT user_id, notify_on_complete, notification_method, email_recipient,
       whatsapp_recipient, summary_language, auto_upload_enabled,
       created_at, updated_at
FROM user_settings
WHERE user_id = $1
`
	var (
		out             UserSettings
		email, wa, lang sql.NullString
	)
	err := s.db.QueryRowContext(ctx, q, userID).Scan(
		&out.UserID,
		&out.NotifyOnComplete,
		&out.NotificationMethod,
		&email,
		&wa,
		&lang,
		&out.AutoUploadEnabled,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return UserSettings{}, ErrNotFound
	}
	if err != nil {
		return UserSettings{}, err
	}
	out.EmailRecipient = email.String
	out.WhatsAppRecipient = wa.String
	out.SummaryLanguage = lang.String
	return out, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, in UserSettings) error {
	if err := in.Validate(); err != nil {
		return err
	}
	const q = `
INSERT INTO user_settings (
  user_id, notify_on_complete, notification_method, email_recipient,
  whatsapp_recipient, summary_language, auto_upload_enabled, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
ON CONFLICT (user_id) DO UPDATE SET
  notify_on_complete  = EXCLUDED.notify_on_complete,
  notification_method = EXCLUDED.notification_method,
  email_recipient     = EXCLUDED.email_recipient,
  whatsapp_recipient  = EXCLUDED.whatsapp_recipient,
  summary_language    = EXCLUDED.summary_language,
  auto_upload_enabled = EXCLUDED.auto_upload_enabled,
  updated_at          = now()
`
	_, err := s.db.ExecContext(ctx, q,
		in.UserID,
		in.NotifyOnComplete,
		in.NotificationMethod,
		nullStr(in.EmailRecipient),
		nullStr(in.WhatsAppRecipient),
		nullStr(in.SummaryLanguage),
		in.AutoUploadEnabled,
	)
	return err
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
