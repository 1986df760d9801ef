// Package notification turns lifecycle events into inbox records, emails
// and text messages.
package notification

import (
	"context"
	"time"

	"passport-tracker/internal/common/logger"
	"passport-tracker/internal/common/metrics"
	"passport-tracker/internal/models"
	"passport-tracker/internal/store"

	"github.com/google/uuid"
)

const (
	DefaultInboxLimit = 20
	MaxInboxLimit     = 100
)

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) error
}

// Dispatcher delivers notifications. The system inbox is always written;
// email and SMS are used when their sender is configured.
type Dispatcher struct {
	store     store.NotificationStore
	email     EmailSender
	sms       SMSSender
	templates map[models.EventType]models.NotificationTemplate
	logger    logger.Logger
	now       func() time.Time
}

// NewDispatcher returns a Dispatcher. A nil email or sms sender disables
// that channel.
func NewDispatcher(st store.NotificationStore, email EmailSender, sms SMSSender, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		store:     st,
		email:     email,
		sms:       sms,
		templates: DefaultTemplates,
		logger:    log.WithFields(map[string]interface{}{"component": "notification"}),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Notify never fails. Every delivery problem is logged and counted.
func (d *Dispatcher) Notify(ctx context.Context, app *models.Application, event models.EventType, reason string) {
	if _, ok := d.Send(ctx, app, event, reason); !ok {
		d.logger.Warn("no template for event", map[string]interface{}{"event": event})
	}
}

// Send delivers event for app on every enabled channel and returns the
// inbox record. ok is false when event has no template.
func (d *Dispatcher) Send(ctx context.Context, app *models.Application, event models.EventType, reason string) (n *models.Notification, ok bool) {
	tmpl, ok := d.templates[event]
	if !ok {
		return nil, false
	}
	data := templateData(app, reason)
	n = d.deliverSystem(ctx, app, event, Render(tmpl.Title, data), Render(tmpl.Body, data))

	if d.email != nil && app.Email != "" {
		d.record(models.ChannelEmail, app, event, d.email.SendEmail(ctx, app.Email, n.Title, n.Message))
	}
	if d.sms != nil && app.Priority && app.Phone != "" {
		d.record(models.ChannelSMS, app, event, d.sms.SendSMS(ctx, app.Phone, n.Title+": "+app.ApplicationNumber))
	}
	return n, true
}

func (d *Dispatcher) deliverSystem(ctx context.Context, app *models.Application, event models.EventType, title, body string) *models.Notification {
	n := &models.Notification{
		ID:            uuid.New().String(),
		UserID:        app.OwnerID,
		ApplicationID: app.ID,
		Event:         event,
		Title:         title,
		Message:       body,
		Channel:       models.ChannelSystem,
		Status:        models.NotificationSent,
		CreatedAt:     d.now(),
	}
	err := d.store.SaveNotification(ctx, n)
	if err != nil {
		n.Status = models.NotificationFailed
	}
	d.record(models.ChannelSystem, app, event, err)
	return n
}

func (d *Dispatcher) record(channel string, app *models.Application, event models.EventType, err error) {
	if err != nil {
		metrics.Notifications.WithLabelValues(channel, models.NotificationFailed).Inc()
		d.logger.Error("notification delivery failed", map[string]interface{}{
			"channel":           channel,
			"event":             event,
			"applicationNumber": app.ApplicationNumber,
			"error":             err,
		})
		return
	}
	metrics.Notifications.WithLabelValues(channel, models.NotificationSent).Inc()
}

// List returns userID's notifications, newest first.
func (d *Dispatcher) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = DefaultInboxLimit
	}
	if limit > MaxInboxLimit {
		limit = MaxInboxLimit
	}
	return d.store.ListNotifications(ctx, userID, unreadOnly, limit)
}

// MarkRead marks one of userID's notifications read. Someone else's
// notification is reported as not found.
func (d *Dispatcher) MarkRead(ctx context.Context, userID, id string) error {
	return d.store.MarkNotificationRead(ctx, userID, id)
}

func (d *Dispatcher) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return d.store.MarkAllNotificationsRead(ctx, userID)
}
