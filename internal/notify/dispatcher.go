package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"callbrief/internal/calls"
	"callbrief/internal/settings"
	"callbrief/pkg/logger"
)

// Dispatcher fans a completed summary out to the channels the user enabled.
// Each channel gets its own notification row; one channel failing never
// blocks the others, and a delivery failure is recorded rather than returned
// so the pipeline does not retry an already-sent sibling.
type Dispatcher struct {
	store    calls.Store
	settings settings.Store
	channels []Channel

	now func() time.Time
}

func NewDispatcher(store calls.Store, settingsStore settings.Store, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		store:    store,
		settings: settingsStore,
		channels: channels,
		now:      time.Now,
	}
}

// DispatchForSummary delivers the summary according to the call owner's
// settings. Calls without an owner, or owners who disabled notifications,
// produce no rows at all.
func (d *Dispatcher) DispatchForSummary(ctx context.Context, call calls.Call, summary calls.Summary) error {
	if call.UserID == "" {
		return nil
	}
	prefs, err := settings.Resolve(ctx, d.settings, call.UserID)
	if err != nil {
		return fmt.Errorf("notify: resolve settings: %w", err)
	}
	if !prefs.NotifyOnComplete || prefs.NotificationMethod == settings.MethodNone {
		return nil
	}

	msg := Message{
		CallFilename: call.OriginalFilename,
		SummaryText:  summary.SummaryText,
		KeyPoints:    summary.KeyPoints,
		ActionItems:  summary.ActionItems,
	}

	for _, ch := range d.channels {
		recipient, wanted := recipientFor(ch.Name(), prefs)
		if !wanted || recipient == "" {
			continue
		}
		if !ch.Configured() {
			logger.From(ctx).Warn("notification channel not configured",
				"channel", ch.Name(), "summary_id", summary.ID)
			continue
		}
		if err := d.deliver(ctx, ch, recipient, summary.ID, msg); err != nil {
			return err
		}
	}
	return nil
}

// deliver creates the row, attempts the send and records the outcome. Only
// store errors propagate.
func (d *Dispatcher) deliver(ctx context.Context, ch Channel, recipient, summaryID string, msg Message) error {
	n := calls.Notification{
		ID:        uuid.NewString(),
		SummaryID: summaryID,
		Channel:   ch.Name(),
		Recipient: recipient,
		Status:    calls.NotificationStatusPending,
		CreatedAt: d.now().UTC(),
	}
	if err := d.store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("notify: create notification: %w", err)
	}
	d.attempt(ctx, &n, ch, msg)
	if err := d.store.UpdateNotification(ctx, n); err != nil {
		return fmt.Errorf("notify: update notification: %w", err)
	}
	return nil
}

func (d *Dispatcher) attempt(ctx context.Context, n *calls.Notification, ch Channel, msg Message) {
	externalID, err := ch.Send(ctx, n.Recipient, msg)
	if err != nil {
		n.Status = calls.NotificationStatusFailed
		n.ErrorMessage = calls.TruncateError(err.Error())
		logger.From(ctx).Error("notification delivery failed",
			"channel", ch.Name(), "notification_id", n.ID, "error", err)
		return
	}
	n.Status = calls.NotificationStatusSent
	n.ExternalID = externalID
	n.ErrorMessage = ""
	n.SentAt = d.now().UTC()
}

// Retry re-attempts a failed notification, mutating the same row. Rows in any
// other state are rejected.
func (d *Dispatcher) Retry(ctx context.Context, notificationID string) (calls.Notification, error) {
	n, err := d.store.GetNotification(ctx, notificationID)
	if err != nil {
		return calls.Notification{}, err
	}
	if n.Status != calls.NotificationStatusFailed {
		return calls.Notification{}, fmt.Errorf("%w: notification is %s", calls.ErrNotFailed, n.Status)
	}

	ch := d.channel(n.Channel)
	if ch == nil || !ch.Configured() {
		return calls.Notification{}, fmt.Errorf("notify: channel %s not available", n.Channel)
	}

	summary, err := d.store.GetSummary(ctx, n.SummaryID)
	if err != nil {
		return calls.Notification{}, err
	}
	call, err := d.store.GetCall(ctx, summary.CallID)
	if err != nil {
		return calls.Notification{}, err
	}

	msg := Message{
		CallFilename: call.OriginalFilename,
		SummaryText:  summary.SummaryText,
		KeyPoints:    summary.KeyPoints,
		ActionItems:  summary.ActionItems,
	}
	d.attempt(ctx, &n, ch, msg)
	if err := d.store.UpdateNotification(ctx, n); err != nil {
		return calls.Notification{}, err
	}
	return n, nil
}

func (d *Dispatcher) channel(name calls.NotificationChannel) Channel {
	for _, ch := range d.channels {
		if ch.Name() == name {
			return ch
		}
	}
	return nil
}

func recipientFor(name calls.NotificationChannel, prefs settings.UserSettings) (string, bool) {
	switch name {
	case calls.ChannelEmail:
		return prefs.EmailRecipient, prefs.NotificationMethod.WantsEmail()
	case calls.ChannelWhatsApp:
		return prefs.WhatsAppRecipient, prefs.NotificationMethod.WantsWhatsApp()
	}
	return "", false
}
