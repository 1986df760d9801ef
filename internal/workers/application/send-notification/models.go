package sendnotification

import "time"

type Input struct {
	ApplicationNumber string `json:"applicationNumber"`
	Event             string `json:"event"`
	// Reason is used by application_rejected only.
	Reason string `json:"reason,omitempty"`
}

type Output struct {
	NotificationID string    `json:"notificationId"`
	Title          string    `json:"title"`
	Status         string    `json:"status"` // "sent" or "failed"
	SentAt         time.Time `json:"sentAt"`
}
