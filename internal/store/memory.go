package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"passport-tracker/internal/common/errors"
	"passport-tracker/internal/models"
)

// Memory is an in-process Store with the same semantics as Postgres. Values
// are copied on the way in and out so callers never share records.
type Memory struct {
	mu sync.RWMutex

	apps        map[string]*models.Application
	byNumber    map[string]string
	stages      map[string]*models.Stage
	stagesByApp map[string][]string
	documents   map[string][]*models.Document
	predictions map[string]*models.Prediction
	history     map[string]*models.ProcessingHistory
	inbox       []*models.Notification
}

func NewMemory() *Memory {
	return &Memory{
		apps:        make(map[string]*models.Application),
		byNumber:    make(map[string]string),
		stages:      make(map[string]*models.Stage),
		stagesByApp: make(map[string][]string),
		documents:   make(map[string][]*models.Document),
		predictions: make(map[string]*models.Prediction),
		history:     make(map[string]*models.ProcessingHistory),
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) CreateApplication(_ context.Context, app *models.Application, stages []*models.Stage, prediction *models.Prediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byNumber[app.ApplicationNumber]; taken {
		return errors.NewDuplicateNumberError(app.ApplicationNumber)
	}
	if _, exists := m.apps[app.ID]; exists {
		return errors.NewConflictError("application " + app.ID + " already exists")
	}

	m.apps[app.ID] = cloneApplication(app)
	m.byNumber[app.ApplicationNumber] = app.ID
	ids := make([]string, 0, len(stages))
	for _, s := range stages {
		m.stages[s.ID] = cloneStage(s)
		ids = append(ids, s.ID)
	}
	m.stagesByApp[app.ID] = ids
	if prediction != nil {
		p := *prediction
		m.predictions[app.ID] = &p
	}
	return nil
}

func (m *Memory) GetApplication(_ context.Context, id string) (*models.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	app, ok := m.apps[id]
	if !ok {
		return nil, errors.NewNotFoundError("application", id)
	}
	return cloneApplication(app), nil
}

func (m *Memory) GetApplicationByNumber(_ context.Context, number string) (*models.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byNumber[number]
	if !ok {
		return nil, errors.NewNotFoundError("application", number)
	}
	return cloneApplication(m.apps[id]), nil
}

func (m *Memory) ListApplications(_ context.Context, filter models.ApplicationFilter) ([]*models.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Application
	for _, app := range m.apps {
		if matches(app, filter) {
			out = append(out, cloneApplication(app))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmissionDate.Equal(out[j].SubmissionDate) {
			return out[i].ApplicationNumber > out[j].ApplicationNumber
		}
		return out[i].SubmissionDate.After(out[j].SubmissionDate)
	})
	if limit := clampLimit(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matches(app *models.Application, f models.ApplicationFilter) bool {
	if f.OwnerID != "" && app.OwnerID != f.OwnerID {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, app.CurrentStatus) {
		return false
	}
	if f.SubmittedFrom != nil && app.SubmissionDate.Before(*f.SubmittedFrom) {
		return false
	}
	if f.SubmittedTo != nil && app.SubmissionDate.After(*f.SubmittedTo) {
		return false
	}
	return true
}

func containsStatus(list []models.ApplicationStatus, s models.ApplicationStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *Memory) CountByStatus(_ context.Context, statuses ...models.ApplicationStatus) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, app := range m.apps {
		if len(statuses) == 0 || containsStatus(statuses, app.CurrentStatus) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountSubmittedSince(_ context.Context, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, app := range m.apps {
		if !app.SubmissionDate.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) AccuracyTotals(_ context.Context, withinDays int) (*models.AccuracyTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totals := &models.AccuracyTotals{}
	for _, app := range m.apps {
		if app.CurrentStatus != models.StatusDelivered || app.ActualCompletionDate == nil {
			continue
		}
		diff := app.PredictedCompletionDays - app.ActualProcessingDays()
		if diff < 0 {
			diff = -diff
		}
		totals.Evaluated++
		totals.TotalAbsError += diff
		if diff < withinDays {
			totals.Accurate++
		}
	}
	return totals, nil
}

func (m *Memory) GetStage(_ context.Context, id string) (*models.Stage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.stages[id]
	if !ok {
		return nil, errors.NewNotFoundError("stage", id)
	}
	return cloneStage(s), nil
}

func (m *Memory) ListStages(_ context.Context, applicationID string) ([]*models.Stage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.stagesOf(applicationID), nil
}

// stagesOf returns copies ordered by position. Caller holds the lock.
func (m *Memory) stagesOf(applicationID string) []*models.Stage {
	ids := m.stagesByApp[applicationID]
	out := make([]*models.Stage, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneStage(m.stages[id]))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (m *Memory) ListActionableStages(_ context.Context, names []models.StageName, limit int) ([]*models.QueueItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[models.StageName]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	var out []*models.QueueItem
	for id, app := range m.apps {
		if app.CurrentStatus.IsTerminal() {
			continue
		}
		for _, s := range m.stagesOf(id) {
			if s.Status == models.StageCompleted {
				continue
			}
			if wanted[s.Name] && (s.Status == models.StagePending || s.Status == models.StageInProgress) {
				out = append(out, &models.QueueItem{Application: cloneApplication(app), Stage: s})
			}
			break
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Application, out[j].Application
		if a.Priority != b.Priority {
			return a.Priority
		}
		return a.SubmissionDate.Before(b.SubmissionDate)
	})
	if limit := clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ApplyTransition(_ context.Context, w TransitionWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.apps[w.Application.ID]
	if !ok {
		return errors.NewNotFoundError("application", w.Application.ID)
	}
	if current.Version != w.ExpectedVersion {
		return errors.NewConflictError("application " + current.ApplicationNumber + " was modified concurrently")
	}
	if _, ok := m.stages[w.Stage.ID]; !ok {
		return errors.NewNotFoundError("stage", w.Stage.ID)
	}

	m.apps[w.Application.ID] = cloneApplication(w.Application)
	m.stages[w.Stage.ID] = cloneStage(w.Stage)
	if w.History != nil {
		h := *w.History
		m.history[w.Application.ID] = &h
	}
	return nil
}

func (m *Memory) AddDocument(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.apps[doc.ApplicationID]; !ok {
		return errors.NewNotFoundError("application", doc.ApplicationID)
	}
	d := *doc
	m.documents[doc.ApplicationID] = append(m.documents[doc.ApplicationID], &d)
	return nil
}

func (m *Memory) ListDocuments(_ context.Context, applicationID string) ([]*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := m.documents[applicationID]
	out := make([]*models.Document, 0, len(docs))
	for _, d := range docs {
		c := *d
		out = append(out, &c)
	}
	return out, nil
}

func (m *Memory) GetPrediction(_ context.Context, applicationID string) (*models.Prediction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.predictions[applicationID]
	if !ok {
		return nil, errors.NewNotFoundError("prediction", applicationID)
	}
	c := *p
	return &c, nil
}

func (m *Memory) GetProcessingHistory(_ context.Context, applicationID string) (*models.ProcessingHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.history[applicationID]
	if !ok {
		return nil, errors.NewNotFoundError("processing history", applicationID)
	}
	c := *h
	return &c, nil
}

func (m *Memory) SaveNotification(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *n
	m.inbox = append(m.inbox, &c)
	return nil
}

func (m *Memory) ListNotifications(_ context.Context, userID string, unreadOnly bool, limit int) ([]*models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit = clampLimit(limit)
	var out []*models.Notification
	for i := len(m.inbox) - 1; i >= 0 && len(out) < limit; i-- {
		n := m.inbox[i]
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		c := *n
		out = append(out, &c)
	}
	return out, nil
}

func (m *Memory) MarkNotificationRead(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.inbox {
		if n.ID == id && n.UserID == userID {
			n.IsRead = true
			return nil
		}
	}
	return errors.NewNotFoundError("notification", id)
}

func (m *Memory) MarkAllNotificationsRead(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, n := range m.inbox {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			count++
		}
	}
	return count, nil
}

func cloneApplication(a *models.Application) *models.Application {
	c := *a
	if a.ActualCompletionDate != nil {
		t := *a.ActualCompletionDate
		c.ActualCompletionDate = &t
	}
	return &c
}

func cloneStage(s *models.Stage) *models.Stage {
	c := *s
	if s.StartTime != nil {
		t := *s.StartTime
		c.StartTime = &t
	}
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	return &c
}
