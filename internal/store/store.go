// Package store persists applications, stages, documents, predictions,
// processing history and notifications.
package store

import (
	"context"
	"time"

	"passport-tracker/internal/models"
)

// TransitionWrite is the result of one stage action. It is applied
// atomically: the application row only if its version still equals
// ExpectedVersion, together with the stage row and, on delivery, the
// processing history row.
type TransitionWrite struct {
	Application     *models.Application
	ExpectedVersion int64
	Stage           *models.Stage
	History         *models.ProcessingHistory
}

// ApplicationStore holds applications and everything hanging off them.
type ApplicationStore interface {
	// CreateApplication writes the application, its stages and its
	// prediction in one transaction. A taken application number yields
	// ErrDuplicateNumber.
	CreateApplication(ctx context.Context, app *models.Application, stages []*models.Stage, prediction *models.Prediction) error
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	GetApplicationByNumber(ctx context.Context, number string) (*models.Application, error)
	ListApplications(ctx context.Context, filter models.ApplicationFilter) ([]*models.Application, error)
	CountByStatus(ctx context.Context, statuses ...models.ApplicationStatus) (int, error)
	CountSubmittedSince(ctx context.Context, since time.Time) (int, error)
	// AccuracyTotals counts delivered applications and how many finished
	// within withinDays of their prediction (strictly less).
	AccuracyTotals(ctx context.Context, withinDays int) (*models.AccuracyTotals, error)

	GetStage(ctx context.Context, id string) (*models.Stage, error)
	ListStages(ctx context.Context, applicationID string) ([]*models.Stage, error)
	ListActionableStages(ctx context.Context, names []models.StageName, limit int) ([]*models.QueueItem, error)
	ApplyTransition(ctx context.Context, w TransitionWrite) error

	AddDocument(ctx context.Context, doc *models.Document) error
	ListDocuments(ctx context.Context, applicationID string) ([]*models.Document, error)

	GetPrediction(ctx context.Context, applicationID string) (*models.Prediction, error)
	GetProcessingHistory(ctx context.Context, applicationID string) (*models.ProcessingHistory, error)
}

// NotificationStore is the per-user notification inbox.
type NotificationStore interface {
	SaveNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int, error)
}

type Store interface {
	ApplicationStore
	NotificationStore
	Ping(ctx context.Context) error
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
