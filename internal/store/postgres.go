package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"passport-tracker/internal/common/database"
	"passport-tracker/internal/common/errors"
	"passport-tracker/internal/models"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

var applicationColumns = []string{
	"id", "application_number", "owner_id", "category", "full_name", "date_of_birth",
	"gender", "email", "phone", "address", "city", "state", "pincode", "current_status",
	"submission_date", "predicted_completion_days", "expected_completion_date",
	"actual_completion_date", "priority", "remarks", "version", "updated_at",
}

var stageColumns = []string{
	"id", "application_id", "name", "position", "status", "assigned_officer_id",
	"start_time", "end_time", "remarks",
}

func columns(prefix string, cols []string) string {
	if prefix == "" {
		return strings.Join(cols, ", ")
	}
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = prefix + "." + c
	}
	return strings.Join(out, ", ")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// Postgres is the PostgreSQL Store.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) CreateApplication(ctx context.Context, app *models.Application, stages []*models.Stage, prediction *models.Prediction) error {
	return database.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO applications (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			 $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`, columns("", applicationColumns)),
			app.ID, app.ApplicationNumber, app.OwnerID, string(app.Category), app.FullName,
			app.DateOfBirth, app.Gender, app.Email, app.Phone, app.Address, app.City, app.State,
			app.Pincode, string(app.CurrentStatus), app.SubmissionDate, app.PredictedCompletionDays,
			app.ExpectedCompletionDate, nullTime(app.ActualCompletionDate), app.Priority, app.Remarks,
			app.Version, app.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err, "application_number") {
				return errors.NewDuplicateNumberError(app.ApplicationNumber)
			}
			return errors.NewDatabaseError("insert application", err)
		}

		for _, s := range stages {
			_, err := tx.ExecContext(ctx, fmt.Sprintf(
				`INSERT INTO application_stages (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				columns("", stageColumns)),
				s.ID, s.ApplicationID, string(s.Name), s.Position, string(s.Status),
				nullString(s.AssignedOfficerID), nullTime(s.StartTime), nullTime(s.EndTime), s.Remarks,
			)
			if err != nil {
				return errors.NewDatabaseError("insert stage", err)
			}
		}

		if prediction != nil {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO predictions (application_id, predicted_days, confidence_score, model_version,
				 category, city, state, submission_month, workload, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				prediction.ApplicationID, prediction.PredictedDays, nullFloat(prediction.ConfidenceScore),
				prediction.ModelVersion, string(prediction.Category), prediction.City, prediction.State,
				prediction.SubmissionMonth, prediction.Workload, prediction.CreatedAt,
			)
			if err != nil {
				return errors.NewDatabaseError("insert prediction", err)
			}
		}
		return nil
	})
}

func isUniqueViolation(err error, constraintHint string) bool {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) || string(pqErr.Code) != uniqueViolation {
		return false
	}
	return constraintHint == "" || strings.Contains(pqErr.Constraint, constraintHint)
}

func (p *Postgres) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	return p.getApplication(ctx, "id", id)
}

func (p *Postgres) GetApplicationByNumber(ctx context.Context, number string) (*models.Application, error) {
	return p.getApplication(ctx, "application_number", number)
}

func (p *Postgres) getApplication(ctx context.Context, column, value string) (*models.Application, error) {
	row := p.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM applications WHERE %s = $1`, columns("", applicationColumns), column),
		value)
	app, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("application", value)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get application", err)
	}
	return app, nil
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app       models.Application
		category  string
		status    string
		completed sql.NullTime
	)
	err := row.Scan(
		&app.ID, &app.ApplicationNumber, &app.OwnerID, &category, &app.FullName, &app.DateOfBirth,
		&app.Gender, &app.Email, &app.Phone, &app.Address, &app.City, &app.State, &app.Pincode,
		&status, &app.SubmissionDate, &app.PredictedCompletionDays, &app.ExpectedCompletionDate,
		&completed, &app.Priority, &app.Remarks, &app.Version, &app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	app.Category = models.Category(category)
	app.CurrentStatus = models.ApplicationStatus(status)
	if completed.Valid {
		t := completed.Time
		app.ActualCompletionDate = &t
	}
	return &app, nil
}

func (p *Postgres) ListApplications(ctx context.Context, filter models.ApplicationFilter) ([]*models.Application, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.OwnerID != "" {
		add("owner_id = $%d", filter.OwnerID)
	}
	if len(filter.Statuses) > 0 {
		add("current_status = ANY($%d)", pq.Array(statusStrings(filter.Statuses)))
	}
	if filter.SubmittedFrom != nil {
		add("submission_date >= $%d", *filter.SubmittedFrom)
	}
	if filter.SubmittedTo != nil {
		add("submission_date <= $%d", *filter.SubmittedTo)
	}

	query := fmt.Sprintf(`SELECT %s FROM applications`, columns("", applicationColumns))
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, clampLimit(filter.Limit))
	query += fmt.Sprintf(" ORDER BY submission_date DESC, application_number DESC LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewDatabaseError("list applications", err)
	}
	defer rows.Close()

	var out []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, errors.NewDatabaseError("scan application", err)
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("list applications", err)
	}
	return out, nil
}

func statusStrings(statuses []models.ApplicationStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (p *Postgres) CountByStatus(ctx context.Context, statuses ...models.ApplicationStatus) (int, error) {
	var (
		n   int
		err error
	)
	if len(statuses) == 0 {
		err = p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM applications`).Scan(&n)
	} else {
		err = p.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM applications WHERE current_status = ANY($1)`,
			pq.Array(statusStrings(statuses))).Scan(&n)
	}
	if err != nil {
		return 0, errors.NewDatabaseError("count applications", err)
	}
	return n, nil
}

func (p *Postgres) CountSubmittedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM applications WHERE submission_date >= $1`, since).Scan(&n); err != nil {
		return 0, errors.NewDatabaseError("count recent applications", err)
	}
	return n, nil
}

const accuracyTotalsQuery = `
WITH deltas AS (
    SELECT ABS(predicted_completion_days -
               FLOOR(EXTRACT(EPOCH FROM (actual_completion_date - submission_date)) / 86400)::INTEGER) AS diff
    FROM applications
    WHERE current_status = $1 AND actual_completion_date IS NOT NULL
)
SELECT COUNT(*), COUNT(*) FILTER (WHERE diff < $2), COALESCE(SUM(diff), 0) FROM deltas`

func (p *Postgres) AccuracyTotals(ctx context.Context, withinDays int) (*models.AccuracyTotals, error) {
	var t models.AccuracyTotals
	if err := p.db.QueryRowContext(ctx, accuracyTotalsQuery, string(models.StatusDelivered), withinDays).
		Scan(&t.Evaluated, &t.Accurate, &t.TotalAbsError); err != nil {
		return nil, errors.NewDatabaseError("aggregate estimation accuracy", err)
	}
	return &t, nil
}

func (p *Postgres) GetStage(ctx context.Context, id string) (*models.Stage, error) {
	row := p.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM application_stages WHERE id = $1`, columns("", stageColumns)), id)
	s, err := scanStage(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("stage", id)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get stage", err)
	}
	return s, nil
}

func (p *Postgres) ListStages(ctx context.Context, applicationID string) ([]*models.Stage, error) {
	rows, err := p.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM application_stages WHERE application_id = $1 ORDER BY position`,
			columns("", stageColumns)), applicationID)
	if err != nil {
		return nil, errors.NewDatabaseError("list stages", err)
	}
	defer rows.Close()

	var out []*models.Stage
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, errors.NewDatabaseError("scan stage", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("list stages", err)
	}
	return out, nil
}

func scanStage(row rowScanner) (*models.Stage, error) {
	var (
		s          models.Stage
		name       string
		status     string
		officer    sql.NullString
		start, end sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.ApplicationID, &name, &s.Position, &status, &officer, &start, &end, &s.Remarks); err != nil {
		return nil, err
	}
	s.Name = models.StageName(name)
	s.Status = models.StageStatus(status)
	s.AssignedOfficerID = officer.String
	s.StartTime = timePtr(start)
	s.EndTime = timePtr(end)
	return &s, nil
}

func (p *Postgres) ListActionableStages(ctx context.Context, names []models.StageName, limit int) ([]*models.QueueItem, error) {
	stageNames := make([]string, len(names))
	for i, n := range names {
		stageNames[i] = string(n)
	}

	query := fmt.Sprintf(`
		SELECT %s, %s
		FROM application_stages s
		JOIN applications a ON a.id = s.application_id
		WHERE a.current_status NOT IN ('delivered', 'rejected')
		  AND s.status IN ('pending', 'in_progress')
		  AND s.name = ANY($1)
		  AND NOT EXISTS (
		      SELECT 1 FROM application_stages e
		      WHERE e.application_id = s.application_id
		        AND e.position < s.position
		        AND e.status <> 'completed')
		ORDER BY a.priority DESC, a.submission_date ASC
		LIMIT $2`, columns("a", applicationColumns), columns("s", stageColumns))

	rows, err := p.db.QueryContext(ctx, query, pq.Array(stageNames), clampLimit(limit))
	if err != nil {
		return nil, errors.NewDatabaseError("list officer queue", err)
	}
	defer rows.Close()

	var out []*models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, errors.NewDatabaseError("scan officer queue", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("list officer queue", err)
	}
	return out, nil
}

func scanQueueItem(rows *sql.Rows) (*models.QueueItem, error) {
	var (
		app                  models.Application
		category, status     string
		completed            sql.NullTime
		s                    models.Stage
		stageName, stageStat string
		officer              sql.NullString
		start, end           sql.NullTime
	)
	err := rows.Scan(
		&app.ID, &app.ApplicationNumber, &app.OwnerID, &category, &app.FullName, &app.DateOfBirth,
		&app.Gender, &app.Email, &app.Phone, &app.Address, &app.City, &app.State, &app.Pincode,
		&status, &app.SubmissionDate, &app.PredictedCompletionDays, &app.ExpectedCompletionDate,
		&completed, &app.Priority, &app.Remarks, &app.Version, &app.UpdatedAt,
		&s.ID, &s.ApplicationID, &stageName, &s.Position, &stageStat, &officer, &start, &end, &s.Remarks,
	)
	if err != nil {
		return nil, err
	}
	app.Category = models.Category(category)
	app.CurrentStatus = models.ApplicationStatus(status)
	app.ActualCompletionDate = timePtr(completed)
	s.Name = models.StageName(stageName)
	s.Status = models.StageStatus(stageStat)
	s.AssignedOfficerID = officer.String
	s.StartTime = timePtr(start)
	s.EndTime = timePtr(end)
	return &models.QueueItem{Application: &app, Stage: &s}, nil
}

func (p *Postgres) ApplyTransition(ctx context.Context, w TransitionWrite) error {
	return database.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		app := w.Application
		res, err := tx.ExecContext(ctx,
			`UPDATE applications
			 SET current_status = $1, actual_completion_date = $2, remarks = $3, version = $4, updated_at = $5
			 WHERE id = $6 AND version = $7`,
			string(app.CurrentStatus), nullTime(app.ActualCompletionDate), app.Remarks, app.Version,
			app.UpdatedAt, app.ID, w.ExpectedVersion,
		)
		if err != nil {
			return errors.NewDatabaseError("update application", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return errors.NewDatabaseError("update application", err)
		} else if n == 0 {
			return errors.NewConflictError("application " + app.ApplicationNumber + " was modified concurrently")
		}

		s := w.Stage
		res, err = tx.ExecContext(ctx,
			`UPDATE application_stages
			 SET status = $1, assigned_officer_id = $2, start_time = $3, end_time = $4, remarks = $5
			 WHERE id = $6`,
			string(s.Status), nullString(s.AssignedOfficerID), nullTime(s.StartTime), nullTime(s.EndTime),
			s.Remarks, s.ID,
		)
		if err != nil {
			return errors.NewDatabaseError("update stage", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return errors.NewNotFoundError("stage", s.ID)
		}

		if h := w.History; h != nil {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO processing_history (application_id, category, city, state, submission_month,
				 workload_at_submission, predicted_days, actual_processing_days, completion_date)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				h.ApplicationID, string(h.Category), h.City, h.State, h.SubmissionMonth,
				h.WorkloadAtSubmission, h.PredictedDays, h.ActualProcessingDays, h.CompletionDate,
			)
			if err != nil {
				return errors.NewDatabaseError("insert processing history", err)
			}
		}
		return nil
	})
}

func (p *Postgres) AddDocument(ctx context.Context, doc *models.Document) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO documents (id, application_id, document_type, file_name, content_type, size_bytes,
		 storage_key, uploaded_at, verified) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		doc.ID, doc.ApplicationID, string(doc.DocumentType), doc.FileName, doc.ContentType,
		doc.SizeBytes, doc.StorageKey, doc.UploadedAt, doc.Verified,
	)
	if err != nil {
		return errors.NewDatabaseError("insert document", err)
	}
	return nil
}

func (p *Postgres) ListDocuments(ctx context.Context, applicationID string) ([]*models.Document, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, application_id, document_type, file_name, content_type, size_bytes, storage_key,
		 uploaded_at, verified FROM documents WHERE application_id = $1 ORDER BY uploaded_at`, applicationID)
	if err != nil {
		return nil, errors.NewDatabaseError("list documents", err)
	}
	defer rows.Close()

	var out []*models.Document
	for rows.Next() {
		var (
			d       models.Document
			docType string
		)
		if err := rows.Scan(&d.ID, &d.ApplicationID, &docType, &d.FileName, &d.ContentType,
			&d.SizeBytes, &d.StorageKey, &d.UploadedAt, &d.Verified); err != nil {
			return nil, errors.NewDatabaseError("scan document", err)
		}
		d.DocumentType = models.DocumentType(docType)
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("list documents", err)
	}
	return out, nil
}

func (p *Postgres) GetPrediction(ctx context.Context, applicationID string) (*models.Prediction, error) {
	var (
		pr         models.Prediction
		confidence sql.NullFloat64
		category   string
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT application_id, predicted_days, confidence_score, model_version, category, city, state,
		 submission_month, workload, created_at FROM predictions WHERE application_id = $1`, applicationID,
	).Scan(&pr.ApplicationID, &pr.PredictedDays, &confidence, &pr.ModelVersion, &category, &pr.City,
		&pr.State, &pr.SubmissionMonth, &pr.Workload, &pr.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("prediction", applicationID)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get prediction", err)
	}
	pr.Category = models.Category(category)
	if confidence.Valid {
		c := confidence.Float64
		pr.ConfidenceScore = &c
	}
	return &pr, nil
}

func (p *Postgres) GetProcessingHistory(ctx context.Context, applicationID string) (*models.ProcessingHistory, error) {
	var (
		h        models.ProcessingHistory
		category string
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT application_id, category, city, state, submission_month, workload_at_submission,
		 predicted_days, actual_processing_days, completion_date
		 FROM processing_history WHERE application_id = $1`, applicationID,
	).Scan(&h.ApplicationID, &category, &h.City, &h.State, &h.SubmissionMonth, &h.WorkloadAtSubmission,
		&h.PredictedDays, &h.ActualProcessingDays, &h.CompletionDate)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("processing history", applicationID)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get processing history", err)
	}
	h.Category = models.Category(category)
	return &h, nil
}

func (p *Postgres) SaveNotification(ctx context.Context, n *models.Notification) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, application_id, event, title, message, channel, status,
		 is_read, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		n.ID, n.UserID, nullString(n.ApplicationID), string(n.Event), n.Title, n.Message, n.Channel,
		n.Status, n.IsRead, n.CreatedAt,
	)
	if err != nil {
		return errors.NewDatabaseError("insert notification", err)
	}
	return nil
}

func (p *Postgres) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*models.Notification, error) {
	query := `SELECT id, user_id, application_id, event, title, message, channel, status, is_read, created_at
		FROM notifications WHERE user_id = $1`
	if unreadOnly {
		query += ` AND is_read = FALSE`
	}
	query += ` ORDER BY created_at DESC LIMIT $2`

	rows, err := p.db.QueryContext(ctx, query, userID, clampLimit(limit))
	if err != nil {
		return nil, errors.NewDatabaseError("list notifications", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		var (
			n     models.Notification
			appID sql.NullString
			event string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &appID, &event, &n.Title, &n.Message, &n.Channel,
			&n.Status, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, errors.NewDatabaseError("scan notification", err)
		}
		n.ApplicationID = appID.String
		n.Event = models.EventType(event)
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("list notifications", err)
	}
	return out, nil
}

func (p *Postgres) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return errors.NewDatabaseError("mark notification read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("mark notification read", err)
	}
	if n == 0 {
		return errors.NewNotFoundError("notification", id)
	}
	return nil
}

func (p *Postgres) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`, userID)
	if err != nil {
		return 0, errors.NewDatabaseError("mark all notifications read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewDatabaseError("mark all notifications read", err)
	}
	return int(n), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
