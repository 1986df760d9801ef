// Package lifecycle is the application-facing surface: submission,
// tracking, documents, officer queues, stage actions, dashboards,
// notifications and search.
package lifecycle

import (
	"context"
	stderrors "errors"
	"math"
	"sort"
	"strings"
	"time"

	"passport-tracker/internal/access"
	"passport-tracker/internal/common/errors"
	"passport-tracker/internal/common/logger"
	"passport-tracker/internal/common/metrics"
	"passport-tracker/internal/estimation"
	"passport-tracker/internal/models"
	"passport-tracker/internal/search"
	"passport-tracker/internal/store"
	"passport-tracker/internal/workflow"

	"github.com/google/uuid"
)

const (
	DefaultNumberAttempts = 5
	recentLimit           = 10
	accuracyWindowDays    = 5
)

// Workload reports and invalidates the current estimator workload.
type Workload interface {
	Workload(ctx context.Context) int
	Invalidate(ctx context.Context)
}

// Inbox is the per-user notification list.
type Inbox interface {
	List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
}

type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Result, error)
}

// Dependencies wires a Service. Workload, Notifier, Inbox, Searcher and
// Indexer are optional.
type Dependencies struct {
	Store          store.Store
	Gate           *access.Gate
	Engine         *workflow.Engine
	Estimator      *estimation.Service
	Workload       Workload
	Notifier       workflow.Notifier
	Inbox          Inbox
	Searcher       Searcher
	Indexer        workflow.Indexer
	NumberAttempts int
}

type Service struct {
	deps     Dependencies
	logger   logger.Logger
	now      func() time.Time
	numbers  NumberGenerator
	attempts int
}

func NewService(deps Dependencies, log logger.Logger) *Service {
	attempts := deps.NumberAttempts
	if attempts <= 0 {
		attempts = DefaultNumberAttempts
	}
	return &Service{
		deps:     deps,
		logger:   log.WithFields(map[string]interface{}{"component": "lifecycle"}),
		now:      func() time.Time { return time.Now().UTC() },
		numbers:  RandomNumber,
		attempts: attempts,
	}
}

// ==========================
// Applications
// ==========================

// Submit validates req, estimates processing time and stores the new
// application with its five pending stages.
func (s *Service) Submit(ctx context.Context, p models.Principal, req models.SubmitRequest) (*models.Application, error) {
	if err := s.deps.Gate.Authorize(p, access.ApplicationSubmit, access.Resource{OwnerID: p.UserID}); err != nil {
		return nil, err
	}

	now := s.now()
	valid, fieldErrs := ValidateSubmission(req, now)
	if len(fieldErrs) > 0 {
		return nil, errors.NewValidationError(fieldErrs)
	}
	r := valid.Request

	workload := estimation.DefaultWorkload
	if s.deps.Workload != nil {
		workload = s.deps.Workload.Workload(ctx)
	}
	est := s.deps.Estimator.Estimate(ctx, estimation.Request{
		Category: r.Category,
		City:     r.City,
		State:    r.State,
		Month:    int(now.Month()),
		Workload: workload,
	})

	app := &models.Application{
		ID:                      uuid.New().String(),
		OwnerID:                 p.UserID,
		Category:                r.Category,
		FullName:                r.FullName,
		DateOfBirth:             valid.DateOfBirth,
		Gender:                  r.Gender,
		Email:                   r.Email,
		Phone:                   r.Phone,
		Address:                 r.Address,
		City:                    r.City,
		State:                   r.State,
		Pincode:                 r.Pincode,
		CurrentStatus:           models.StatusSubmitted,
		SubmissionDate:          now,
		PredictedCompletionDays: est.Days,
		ExpectedCompletionDate:  now.AddDate(0, 0, est.Days),
		Priority:                r.Priority,
		Version:                 1,
		UpdatedAt:               now,
	}
	if app.Email == "" {
		app.Email = p.Email
	}
	stages := workflow.NewStages(app.ID)
	prediction := &models.Prediction{
		ApplicationID:   app.ID,
		PredictedDays:   est.Days,
		ConfidenceScore: est.Confidence,
		ModelVersion:    est.ModelVersion,
		Category:        r.Category,
		City:            r.City,
		State:           r.State,
		SubmissionMonth: int(now.Month()),
		Workload:        workload,
		CreatedAt:       now,
	}

	if err := s.create(ctx, app, stages, prediction); err != nil {
		return nil, err
	}

	metrics.ApplicationsSubmitted.WithLabelValues(string(app.Category)).Inc()
	s.logger.Info("application submitted", map[string]interface{}{
		"applicationNumber": app.ApplicationNumber,
		"category":          app.Category,
		"predictedDays":     est.Days,
		"fallback":          est.Fallback,
		"workload":          workload,
	})

	if s.deps.Notifier != nil {
		s.deps.Notifier.Notify(ctx, app, models.EventApplicationSubmitted, "")
	}
	if s.deps.Indexer != nil {
		s.deps.Indexer.Index(ctx, app)
	}
	if s.deps.Workload != nil {
		s.deps.Workload.Invalidate(ctx)
	}
	return app, nil
}

// create allocates an application number, retrying on collision.
func (s *Service) create(ctx context.Context, app *models.Application, stages []*models.Stage, prediction *models.Prediction) error {
	for attempt := 1; attempt <= s.attempts; attempt++ {
		app.ApplicationNumber = s.numbers(app.SubmissionDate)
		err := s.deps.Store.CreateApplication(ctx, app, stages, prediction)
		if err == nil {
			return nil
		}
		if !stderrors.Is(err, errors.ErrDuplicateNumber) {
			return err
		}
		s.logger.Warn("application number collision", map[string]interface{}{
			"applicationNumber": app.ApplicationNumber,
			"attempt":           attempt,
		})
	}
	return errors.NewConflictError("could not allocate a unique application number")
}

// Track returns everything about one application.
func (s *Service) Track(ctx context.Context, p models.Principal, number string) (*models.ApplicationView, error) {
	app, err := s.deps.Store.GetApplicationByNumber(ctx, strings.TrimSpace(number))
	if err != nil {
		return nil, err
	}
	if err := s.deps.Gate.Authorize(p, access.ApplicationTrack, access.Resource{OwnerID: app.OwnerID}); err != nil {
		return nil, err
	}

	stages, err := s.deps.Store.ListStages(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	docs, err := s.deps.Store.ListDocuments(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	prediction, err := s.deps.Store.GetPrediction(ctx, app.ID)
	if err != nil && !stderrors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	return &models.ApplicationView{Application: app, Stages: stages, Documents: docs, Prediction: prediction}, nil
}

// ListOwn returns the caller's applications, newest first.
func (s *Service) ListOwn(ctx context.Context, p models.Principal) ([]*models.Application, error) {
	if err := s.deps.Gate.Authorize(p, access.ApplicationListOwn, access.Resource{OwnerID: p.UserID}); err != nil {
		return nil, err
	}
	return s.deps.Store.ListApplications(ctx, models.ApplicationFilter{OwnerID: p.UserID})
}

// UploadDocument records document metadata against an application.
func (s *Service) UploadDocument(ctx context.Context, p models.Principal, number string, upload models.DocumentUpload) (*models.Document, error) {
	var fieldErrs []errors.FieldError
	if !upload.DocumentType.Valid() {
		fieldErrs = append(fieldErrs, errors.FieldError{
			Field: "documentType", Code: "INVALID_VALUE",
			Message: "document type must be photo, id_proof, address_proof or dob_proof",
		})
	}
	if strings.TrimSpace(upload.FileName) == "" {
		fieldErrs = append(fieldErrs, errors.FieldError{Field: "fileName", Code: "REQUIRED", Message: "file name is required"})
	}
	if upload.SizeBytes < 0 {
		fieldErrs = append(fieldErrs, errors.FieldError{Field: "sizeBytes", Code: "INVALID_VALUE", Message: "size cannot be negative"})
	}
	if len(fieldErrs) > 0 {
		return nil, errors.NewValidationError(fieldErrs)
	}

	app, err := s.deps.Store.GetApplicationByNumber(ctx, strings.TrimSpace(number))
	if err != nil {
		return nil, err
	}
	if err := s.deps.Gate.Authorize(p, access.DocumentUpload, access.Resource{OwnerID: app.OwnerID}); err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:            uuid.New().String(),
		ApplicationID: app.ID,
		DocumentType:  upload.DocumentType,
		FileName:      strings.TrimSpace(upload.FileName),
		ContentType:   upload.ContentType,
		SizeBytes:     upload.SizeBytes,
		StorageKey:    upload.StorageKey,
		UploadedAt:    s.now(),
	}
	if err := s.deps.Store.AddDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ==========================
// Officer work
// ==========================

// OfficerQueue lists actionable stages within the caller's scope, priority
// applications first, then oldest submission.
func (s *Service) OfficerQueue(ctx context.Context, p models.Principal, limit int) ([]*models.QueueItem, error) {
	if err := s.deps.Gate.Authorize(p, access.StageQueue, access.Resource{}); err != nil {
		return nil, err
	}
	names := s.deps.Gate.StagesFor(p.Role)
	if len(names) == 0 {
		return []*models.QueueItem{}, nil
	}
	return s.deps.Store.ListActionableStages(ctx, names, limit)
}

func (s *Service) StartStage(ctx context.Context, p models.Principal, stageID, remarks string) (*workflow.Result, error) {
	return s.deps.Engine.Start(ctx, p, stageID, remarks)
}

func (s *Service) ApproveStage(ctx context.Context, p models.Principal, stageID, remarks string) (*workflow.Result, error) {
	return s.deps.Engine.Approve(ctx, p, stageID, remarks)
}

func (s *Service) RejectStage(ctx context.Context, p models.Principal, stageID, reason string) (*workflow.Result, error) {
	return s.deps.Engine.Reject(ctx, p, stageID, reason)
}

// ==========================
// Administration
// ==========================

func (s *Service) Statistics(ctx context.Context, p models.Principal) (*models.Statistics, error) {
	if err := s.deps.Gate.Authorize(p, access.StatsView, access.Resource{}); err != nil {
		return nil, err
	}

	var (
		stats models.Statistics
		err   error
	)
	if stats.Total, err = s.deps.Store.CountByStatus(ctx); err != nil {
		return nil, err
	}
	if stats.Pending, err = s.deps.Store.CountByStatus(ctx, models.PendingStatuses...); err != nil {
		return nil, err
	}
	if stats.Completed, err = s.deps.Store.CountByStatus(ctx, models.StatusDelivered); err != nil {
		return nil, err
	}
	if stats.Rejected, err = s.deps.Store.CountByStatus(ctx, models.StatusRejected); err != nil {
		return nil, err
	}
	if stats.Last30Days, err = s.deps.Store.CountSubmittedSince(ctx, s.now().AddDate(0, 0, -30)); err != nil {
		return nil, err
	}
	if stats.Recent, err = s.deps.Store.ListApplications(ctx, models.ApplicationFilter{Limit: recentLimit}); err != nil {
		return nil, err
	}
	return &stats, nil
}

// EstimationAccuracy compares predictions with actual processing time over
// every delivered application. An estimate within five days counts as
// accurate. Recent lists the latest completions among the most recently
// submitted deliveries.
func (s *Service) EstimationAccuracy(ctx context.Context, p models.Principal) (*models.AccuracyReport, error) {
	if err := s.deps.Gate.Authorize(p, access.EstimationAccuracy, access.Resource{}); err != nil {
		return nil, err
	}

	totals, err := s.deps.Store.AccuracyTotals(ctx, accuracyWindowDays)
	if err != nil {
		return nil, err
	}
	report := &models.AccuracyReport{
		Evaluated: totals.Evaluated,
		Accurate:  totals.Accurate,
		Recent:    []*models.AccuracyEntry{},
	}
	if totals.Evaluated > 0 {
		report.AccuracyPct = round1(float64(totals.Accurate) / float64(totals.Evaluated) * 100)
		report.MeanAbsError = round1(float64(totals.TotalAbsError) / float64(totals.Evaluated))
	}

	delivered, err := s.deps.Store.ListApplications(ctx, models.ApplicationFilter{
		Statuses: []models.ApplicationStatus{models.StatusDelivered},
		Limit:    store.MaxListLimit,
	})
	if err != nil {
		return nil, err
	}

	completed := make([]*models.Application, 0, len(delivered))
	for _, app := range delivered {
		if app.ActualCompletionDate != nil {
			completed = append(completed, app)
		}
	}
	sort.SliceStable(completed, func(i, j int) bool {
		return completed[i].ActualCompletionDate.After(*completed[j].ActualCompletionDate)
	})
	if len(completed) > recentLimit {
		completed = completed[:recentLimit]
	}

	for _, app := range completed {
		actual := app.ActualProcessingDays()
		diff := int(math.Abs(float64(app.PredictedCompletionDays - actual)))
		report.Recent = append(report.Recent, &models.AccuracyEntry{
			ApplicationNumber: app.ApplicationNumber,
			PredictedDays:     app.PredictedCompletionDays,
			ActualDays:        actual,
			Difference:        diff,
			Accurate:          diff < accuracyWindowDays,
		})
	}
	return report, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// ==========================
// Notifications
// ==========================

func (s *Service) Notifications(ctx context.Context, p models.Principal, unreadOnly bool, limit int) ([]*models.Notification, error) {
	if err := s.authorizeInbox(p); err != nil {
		return nil, err
	}
	return s.deps.Inbox.List(ctx, p.UserID, unreadOnly, limit)
}

func (s *Service) MarkNotificationRead(ctx context.Context, p models.Principal, id string) error {
	if err := s.authorizeInbox(p); err != nil {
		return err
	}
	return s.deps.Inbox.MarkRead(ctx, p.UserID, id)
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, p models.Principal) (int, error) {
	if err := s.authorizeInbox(p); err != nil {
		return 0, err
	}
	return s.deps.Inbox.MarkAllRead(ctx, p.UserID)
}

func (s *Service) authorizeInbox(p models.Principal) error {
	if err := s.deps.Gate.Authorize(p, access.NotificationRead, access.Resource{}); err != nil {
		return err
	}
	if s.deps.Inbox == nil {
		return errors.NewExternalServiceError("notifications", stderrors.New("inbox not configured"))
	}
	return nil
}

// ==========================
// Search
// ==========================

// SearchApplications queries the search index, or the store when no index
// is configured.
func (s *Service) SearchApplications(ctx context.Context, p models.Principal, q search.Query) (*search.Result, error) {
	if err := s.deps.Gate.Authorize(p, access.SearchApplications, access.Resource{}); err != nil {
		return nil, err
	}
	if q.Status != "" && !q.Status.Valid() {
		return nil, errors.NewValidationError([]errors.FieldError{{
			Field: "status", Code: "INVALID_VALUE", Message: "unknown application status " + string(q.Status),
		}})
	}
	if q.Size <= 0 {
		q.Size = search.DefaultSize
	}
	if q.Size > search.MaxSize {
		q.Size = search.MaxSize
	}

	if s.deps.Searcher != nil {
		return s.deps.Searcher.Search(ctx, q)
	}

	filter := models.ApplicationFilter{SubmittedFrom: q.From, SubmittedTo: q.To, Limit: q.Size}
	if q.Status != "" {
		filter.Statuses = []models.ApplicationStatus{q.Status}
	}
	apps, err := s.deps.Store.ListApplications(ctx, filter)
	if err != nil {
		return nil, err
	}
	res := &search.Result{Total: int64(len(apps)), Documents: make([]search.Document, 0, len(apps))}
	for _, app := range apps {
		res.Documents = append(res.Documents, search.DocumentOf(app))
	}
	return res, nil
}
