package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"callbrief/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresStore persists the call record tree.
//
// Assumed tables: calls, transcriptions, summaries, notifications.
// calls.storage_key carries a UNIQUE constraint; list-valued summary fields
// (key_points, action_items, structured_actions, participants, topics) and
// transcription segments are JSONB columns.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

/* ===================== calls ===================== */

const callColumns = `
id, filename, original_filename, storage_key, storage_bucket, content_type,
file_size_bytes, duration_seconds, upload_source, user_id, contact_id,
caller_phone, status, language_detected, error_message, created_at, updated_at
`

func (s *PostgresStore) CreateCall(ctx context.Context, c Call) error {
	const q = `
INSERT INTO calls (
  id, filename, original_filename, storage_key, storage_bucket, content_type,
  file_size_bytes, duration_seconds, upload_source, user_id, contact_id,
  caller_phone, status, language_detected, error_message, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
)
`
	_, err := s.db.ExecContext(ctx, q,
		c.ID,
		c.Filename,
		c.OriginalFilename,
		c.StorageKey,
		c.StorageBucket,
		c.ContentType,
		c.FileSizeBytes,
		nullFloat(c.DurationSeconds),
		c.UploadSource,
		nullStr(c.UserID),
		nullStr(c.ContactID),
		nullStr(c.CallerPhone),
		c.Status,
		nullStr(c.LanguageDetected),
		nullStr(c.ErrorMessage),
		c.CreatedAt,
		c.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateKey
	}
	return err
}

func scanCall(row interface{ Scan(...any) error }) (Call, error) {
	var c Call
	var duration sql.NullFloat64
	var userID, contactID, callerPhone, language, errMsg sql.NullString
	err := row.Scan(
		&c.ID,
		&c.Filename,
		&c.OriginalFilename,
		&c.StorageKey,
		&c.StorageBucket,
		&c.ContentType,
		&c.FileSizeBytes,
		&duration,
		&c.UploadSource,
		&userID,
		&contactID,
		&callerPhone,
		&c.Status,
		&language,
		&errMsg,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}
	c.DurationSeconds = duration.Float64
	c.UserID = userID.String
	c.ContactID = contactID.String
	c.CallerPhone = callerPhone.String
	c.LanguageDetected = language.String
	c.ErrorMessage = errMsg.String
	return c, nil
}

func (s *PostgresStore) GetCall(ctx context.Context, id string) (Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	return scanCall(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) GetCallByStorageKey(ctx context.Context, key string) (Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE storage_key = $1`
	return scanCall(s.db.QueryRowContext(ctx, q, key))
}

func (s *PostgresStore) ListCallsByUser(ctx context.Context, userID string, page, pageSize int) ([]Call, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM calls WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + callColumns + `
FROM calls
WHERE user_id = $1
ORDER BY created_at DESC
OFFSET $2 LIMIT $3
`
	rows, err := s.db.QueryContext(ctx, q, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Call, 0, pageSize)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) CountCallsCreatedBetween(ctx context.Context, userID string, from, to time.Time) (int, error) {
	const q = `
SELECT COUNT(*) FROM calls
WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
`
	var n int
	err := s.db.QueryRowContext(ctx, q, userID, from, to).Scan(&n)
	return n, err
}

func (s *PostgresStore) UpdateCallStatus(ctx context.Context, id string, status CallStatus) error {
	const q = `UPDATE calls SET status = $2, updated_at = NOW() WHERE id = $1`
	return execOne(ctx, s.db, q, id, status)
}

func (s *PostgresStore) SetCallFailed(ctx context.Context, id, errorMessage string) error {
	const q = `
UPDATE calls SET status = $2, error_message = $3, updated_at = NOW() WHERE id = $1
`
	return execOne(ctx, s.db, q, id, CallStatusFailed, TruncateError(errorMessage))
}

func (s *PostgresStore) MarkCallTranscribed(ctx context.Context, id, language string, durationSeconds float64) error {
	const q = `
UPDATE calls
SET status = $2, language_detected = $3, duration_seconds = $4, updated_at = NOW()
WHERE id = $1
`
	return execOne(ctx, s.db, q, id, CallStatusTranscribed, nullStr(language), nullFloat(durationSeconds))
}

func (s *PostgresStore) ResetForReprocess(ctx context.Context, id string) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if err := deleteChildren(ctx, tx, id); err != nil {
			return err
		}
		const q = `
UPDATE calls
SET status = $2, error_message = NULL, language_detected = NULL, updated_at = NOW()
WHERE id = $1
`
		res, err := tx.ExecContext(ctx, q, id, CallStatusUploaded)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

func (s *PostgresStore) DeleteCallTree(ctx context.Context, id string) error {
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if err := deleteChildren(ctx, tx, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM calls WHERE id = $1`, id)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// deleteChildren removes rows in FK order: notifications -> summaries -> transcriptions.
func deleteChildren(ctx context.Context, tx *sql.Tx, callID string) error {
	const delNotifications = `
DELETE FROM notifications
WHERE summary_id IN (SELECT id FROM summaries WHERE call_id = $1)
`
	if _, err := tx.ExecContext(ctx, delNotifications, callID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM summaries WHERE call_id = $1`, callID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM transcriptions WHERE call_id = $1`, callID); err != nil {
		return err
	}
	return nil
}

/* ===================== transcriptions ===================== */

func (s *PostgresStore) CreateTranscription(ctx context.Context, t Transcription) error {
	segments, err := json.Marshal(t.Segments)
	if err != nil {
		return fmt.Errorf("marshal segments: %w", err)
	}
	const q = `
INSERT INTO transcriptions (
  id, call_id, provider, external_id, text, confidence, language,
  duration_seconds, segments, word_count, status, error_message,
  created_at, completed_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)
`
	_, err = s.db.ExecContext(ctx, q,
		t.ID,
		t.CallID,
		t.Provider,
		nullStr(t.ExternalID),
		t.Text,
		t.Confidence,
		nullStr(t.Language),
		t.DurationSeconds,
		segments,
		t.WordCount,
		t.Status,
		nullStr(t.ErrorMessage),
		t.CreatedAt,
		nullTime(t.CompletedAt),
	)
	if isUniqueViolation(err) {
		return ErrDuplicateKey
	}
	return err
}

const transcriptionColumns = `
id, call_id, provider, external_id, text, confidence, language,
duration_seconds, segments, word_count, status, error_message,
created_at, completed_at
`

func scanTranscription(row interface{ Scan(...any) error }) (Transcription, error) {
	var t Transcription
	var externalID, language, errMsg sql.NullString
	var segments []byte
	var completedAt sql.NullTime
	err := row.Scan(
		&t.ID,
		&t.CallID,
		&t.Provider,
		&externalID,
		&t.Text,
		&t.Confidence,
		&language,
		&t.DurationSeconds,
		&segments,
		&t.WordCount,
		&t.Status,
		&errMsg,
		&t.CreatedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Transcription{}, ErrNotFound
		}
		return Transcription{}, err
	}
	t.ExternalID = externalID.String
	t.Language = language.String
	t.ErrorMessage = errMsg.String
	t.CompletedAt = completedAt.Time
	if len(segments) > 0 {
		if err := json.Unmarshal(segments, &t.Segments); err != nil {
			return Transcription{}, fmt.Errorf("unmarshal segments: %w", err)
		}
	}
	return t, nil
}

func (s *PostgresStore) GetTranscription(ctx context.Context, id string) (Transcription, error) {
	q := `SELECT ` + transcriptionColumns + ` FROM transcriptions WHERE id = $1`
	return scanTranscription(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) GetTranscriptionByCall(ctx context.Context, callID string) (Transcription, error) {
	q := `SELECT ` + transcriptionColumns + ` FROM transcriptions WHERE call_id = $1`
	return scanTranscription(s.db.QueryRowContext(ctx, q, callID))
}

/* ===================== summaries ===================== */

func (s *PostgresStore) CreateSummary(ctx context.Context, sm Summary) error {
	keyPoints, err := json.Marshal(sm.KeyPoints)
	if err != nil {
		return err
	}
	actionItems, err := json.Marshal(sm.ActionItems)
	if err != nil {
		return err
	}
	actions, err := json.Marshal(sm.StructuredActions)
	if err != nil {
		return err
	}
	participants, err := json.Marshal(sm.Participants)
	if err != nil {
		return err
	}
	topics, err := json.Marshal(sm.Topics)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO summaries (
  id, call_id, transcription_id, provider, model, summary_text, key_points,
  action_items, sentiment, structured_actions, participants, topics, language,
  tokens_used, status, error_message, created_at, completed_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
)
`
	_, err = s.db.ExecContext(ctx, q,
		sm.ID,
		sm.CallID,
		sm.TranscriptionID,
		sm.Provider,
		sm.Model,
		sm.SummaryText,
		keyPoints,
		actionItems,
		nullStr(sm.Sentiment),
		actions,
		participants,
		topics,
		nullStr(sm.Language),
		sm.TokensUsed,
		sm.Status,
		nullStr(sm.ErrorMessage),
		sm.CreatedAt,
		nullTime(sm.CompletedAt),
	)
	return err
}

const summaryColumns = `
id, call_id, transcription_id, provider, model, summary_text, key_points,
action_items, sentiment, structured_actions, participants, topics, language,
tokens_used, status, error_message, created_at, completed_at
`

func scanSummary(row interface{ Scan(...any) error }) (Summary, error) {
	var sm Summary
	var sentiment, language, errMsg sql.NullString
	var keyPoints, actionItems, actions, participants, topics []byte
	var completedAt sql.NullTime
	err := row.Scan(
		&sm.ID,
		&sm.CallID,
		&sm.TranscriptionID,
		&sm.Provider,
		&sm.Model,
		&sm.SummaryText,
		&keyPoints,
		&actionItems,
		&sentiment,
		&actions,
		&participants,
		&topics,
		&language,
		&sm.TokensUsed,
		&sm.Status,
		&errMsg,
		&sm.CreatedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Summary{}, ErrNotFound
		}
		return Summary{}, err
	}
	sm.Sentiment = sentiment.String
	sm.Language = language.String
	sm.ErrorMessage = errMsg.String
	sm.CompletedAt = completedAt.Time
	for _, pair := range []struct {
		raw []byte
		dst any
	}{
		{keyPoints, &sm.KeyPoints},
		{actionItems, &sm.ActionItems},
		{actions, &sm.StructuredActions},
		{participants, &sm.Participants},
		{topics, &sm.Topics},
	} {
		if len(pair.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
			return Summary{}, fmt.Errorf("unmarshal summary field: %w", err)
		}
	}
	return sm, nil
}

func (s *PostgresStore) GetSummary(ctx context.Context, id string) (Summary, error) {
	q := `SELECT ` + summaryColumns + ` FROM summaries WHERE id = $1`
	return scanSummary(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) LatestSummaryByCall(ctx context.Context, callID string) (Summary, error) {
	q := `SELECT ` + summaryColumns + `
FROM summaries WHERE call_id = $1
ORDER BY created_at DESC
LIMIT 1
`
	return scanSummary(s.db.QueryRowContext(ctx, q, callID))
}

/* ===================== notifications ===================== */

func (s *PostgresStore) CreateNotification(ctx context.Context, n Notification) error {
	const q = `
INSERT INTO notifications (
  id, summary_id, channel, recipient, status, external_id, error_message,
  sent_at, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
`
	_, err := s.db.ExecContext(ctx, q,
		n.ID,
		n.SummaryID,
		n.Channel,
		n.Recipient,
		n.Status,
		nullStr(n.ExternalID),
		nullStr(n.ErrorMessage),
		nullTime(n.SentAt),
		n.CreatedAt,
	)
	return err
}

const notificationColumns = `
id, summary_id, channel, recipient, status, external_id, error_message, sent_at, created_at
`

func scanNotification(row interface{ Scan(...any) error }) (Notification, error) {
	var n Notification
	var externalID, errMsg sql.NullString
	var sentAt sql.NullTime
	err := row.Scan(
		&n.ID,
		&n.SummaryID,
		&n.Channel,
		&n.Recipient,
		&n.Status,
		&externalID,
		&errMsg,
		&sentAt,
		&n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Notification{}, ErrNotFound
		}
		return Notification{}, err
	}
	n.ExternalID = externalID.String
	n.ErrorMessage = errMsg.String
	n.SentAt = sentAt.Time
	return n, nil
}

func (s *PostgresStore) GetNotification(ctx context.Context, id string) (Notification, error) {
	q := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	return scanNotification(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) UpdateNotification(ctx context.Context, n Notification) error {
	const q = `
UPDATE notifications
SET status = $2, external_id = $3, error_message = $4, sent_at = $5
WHERE id = $1
`
	return execOne(ctx, s.db, q,
		n.ID, n.Status, nullStr(n.ExternalID), nullStr(n.ErrorMessage), nullTime(n.SentAt))
}

func (s *PostgresStore) ListNotificationsBySummary(ctx context.Context, summaryID string) ([]Notification, error) {
	q := `SELECT ` + notificationColumns + `
FROM notifications WHERE summary_id = $1
ORDER BY created_at ASC
`
	rows, err := s.db.QueryContext(ctx, q, summaryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListNotificationsByUser(ctx context.Context, userID string, page, pageSize int) ([]Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	const countQ = `
SELECT COUNT(*)
FROM notifications n
JOIN summaries s ON s.id = n.summary_id
JOIN calls c ON c.id = s.call_id
WHERE c.user_id = $1
`
	var total int
	if err := s.db.QueryRowContext(ctx, countQ, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT n.id, n.summary_id, n.channel, n.recipient, n.status, n.external_id,
       n.error_message, n.sent_at, n.created_at
FROM notifications n
JOIN summaries s ON s.id = n.summary_id
JOIN calls c ON c.id = s.call_id
WHERE c.user_id = $1
ORDER BY n.created_at DESC
OFFSET $2 LIMIT $3
`
	rows, err := s.db.QueryContext(ctx, q, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Notification, 0, pageSize)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, n)
	}
	return out, total, rows.Err()
}

/* ===================== helpers ===================== */

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: f != 0}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func execOne(ctx context.Context, db *sql.DB, q string, args ...any) error {
	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	return requireRow(res)
}
