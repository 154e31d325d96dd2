// Package settings holds per-user preferences for notification delivery,
// summary language and the desktop agent's auto upload.
package settings

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("settings: not found")
	ErrInvalidArgument = errors.New("settings: invalid argument")
)

// NotificationMethod selects which channels fire when a call completes.
type NotificationMethod string

const (
	MethodEmail    NotificationMethod = "email"
	MethodWhatsApp NotificationMethod = "whatsapp"
	MethodBoth     NotificationMethod = "both"
	MethodNone     NotificationMethod = "none"
)

func (m NotificationMethod) valid() bool {
	switch m {
	case MethodEmail, MethodWhatsApp, MethodBoth, MethodNone:
		return true
	}
	return false
}

// WantsEmail reports whether email delivery is enabled by this method.
func (m NotificationMethod) WantsEmail() bool {
	return m == MethodEmail || m == MethodBoth
}

// WantsWhatsApp reports whether WhatsApp delivery is enabled by this method.
func (m NotificationMethod) WantsWhatsApp() bool {
	return m == MethodWhatsApp || m == MethodBoth
}

// UserSettings is one row per user. Missing rows resolve to Default.
type UserSettings struct {
	UserID             string             `json:"user_id" db:"user_id"`
	NotifyOnComplete   bool               `json:"notify_on_complete" db:"notify_on_complete"`
	NotificationMethod NotificationMethod `json:"notification_method" db:"notification_method"`
	EmailRecipient     string             `json:"email_recipient,omitempty" db:"email_recipient"`
	WhatsAppRecipient  string             `json:"whatsapp_recipient,omitempty" db:"whatsapp_recipient"`
	SummaryLanguage    string             `json:"summary_language,omitempty" db:"summary_language"`
	AutoUploadEnabled  bool               `json:"auto_upload_enabled" db:"auto_upload_enabled"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" db:"updated_at"`
}

// Default is what a user without a stored row gets: notifications on via
// email, no recipients yet, language left to detection.
func Default(userID string) UserSettings {
	return UserSettings{
		UserID:             userID,
		NotifyOnComplete:   true,
		NotificationMethod: MethodEmail,
	}
}

func (s UserSettings) Validate() error {
	if s.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	if !s.NotificationMethod.valid() {
		return fmt.Errorf("%w: unknown notification method %q", ErrInvalidArgument, s.NotificationMethod)
	}
	if s.NotificationMethod.WantsEmail() && s.NotifyOnComplete && s.EmailRecipient == "" {
		return fmt.Errorf("%w: email notifications require a recipient", ErrInvalidArgument)
	}
	if s.NotificationMethod.WantsWhatsApp() && s.NotifyOnComplete && s.WhatsAppRecipient == "" {
		return fmt.Errorf("%w: whatsapp notifications require a recipient", ErrInvalidArgument)
	}
	return nil
}
