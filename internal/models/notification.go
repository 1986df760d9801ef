package models

import "time"

// EventType names a lifecycle event that produces a notification.
type EventType string

const (
	EventApplicationSubmitted        EventType = "application_submitted"
	EventDocumentsVerified           EventType = "documents_verified"
	EventPoliceVerificationStarted   EventType = "police_verification_started"
	EventPoliceVerificationCompleted EventType = "police_verification_completed"
	EventApplicationApproved         EventType = "application_approved"
	EventApplicationRejected         EventType = "application_rejected"
	EventPrintingStarted             EventType = "printing_started"
	EventPassportDispatched          EventType = "passport_dispatched"
	EventPassportDelivered           EventType = "passport_delivered"
)

const (
	ChannelSystem = "system"
	ChannelEmail  = "email"
	ChannelSMS    = "sms"
)

const (
	NotificationSent     = "sent"
	NotificationFailed   = "failed"
	NotificationDisabled = "disabled"
)

type Notification struct {
	ID            string    `json:"id" db:"id"`
	UserID        string    `json:"userId" db:"user_id"`
	ApplicationID string    `json:"applicationId,omitempty" db:"application_id"`
	Event         EventType `json:"event" db:"event"`
	Title         string    `json:"title" db:"title"`
	Message       string    `json:"message" db:"message"`
	Channel       string    `json:"channel" db:"channel"`
	Status        string    `json:"status" db:"status"`
	IsRead        bool      `json:"isRead" db:"is_read"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}

type NotificationTemplate struct {
	Event EventType `json:"event"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
}
