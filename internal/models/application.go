package models

import "time"

type ApplicationStatus string

const (
	StatusSubmitted            ApplicationStatus = "submitted"
	StatusDocumentVerification ApplicationStatus = "document_verification"
	StatusPoliceVerification   ApplicationStatus = "police_verification"
	StatusApproved             ApplicationStatus = "approved"
	StatusPrinting             ApplicationStatus = "printing"
	StatusDispatched           ApplicationStatus = "dispatched"
	StatusDelivered            ApplicationStatus = "delivered"
	StatusRejected             ApplicationStatus = "rejected"
)

// PendingStatuses are the statuses counted as workload and as "pending" in
// statistics.
var PendingStatuses = []ApplicationStatus{
	StatusSubmitted,
	StatusDocumentVerification,
	StatusPoliceVerification,
}

// IsTerminal reports whether no further stage transition is accepted.
func (s ApplicationStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusRejected
}

func (s ApplicationStatus) Valid() bool {
	switch s {
	case StatusSubmitted, StatusDocumentVerification, StatusPoliceVerification, StatusApproved,
		StatusPrinting, StatusDispatched, StatusDelivered, StatusRejected:
		return true
	}
	return false
}

type Category string

const (
	CategoryNew     Category = "new"
	CategoryRenewal Category = "renewal"
	CategoryReissue Category = "reissue"
)

func (c Category) Valid() bool {
	return c == CategoryNew || c == CategoryRenewal || c == CategoryReissue
}

// Application is a single passport-processing request.
type Application struct {
	ID                      string            `json:"id" db:"id"`
	ApplicationNumber       string            `json:"applicationNumber" db:"application_number"`
	OwnerID                 string            `json:"ownerId" db:"owner_id"`
	Category                Category          `json:"category" db:"category"`
	FullName                string            `json:"fullName" db:"full_name"`
	DateOfBirth             time.Time         `json:"dateOfBirth" db:"date_of_birth"`
	Gender                  string            `json:"gender" db:"gender"`
	Email                   string            `json:"email,omitempty" db:"email"`
	Phone                   string            `json:"phone,omitempty" db:"phone"`
	Address                 string            `json:"address" db:"address"`
	City                    string            `json:"city" db:"city"`
	State                   string            `json:"state" db:"state"`
	Pincode                 string            `json:"pincode" db:"pincode"`
	CurrentStatus           ApplicationStatus `json:"currentStatus" db:"current_status"`
	SubmissionDate          time.Time         `json:"submissionDate" db:"submission_date"`
	PredictedCompletionDays int               `json:"predictedCompletionDays" db:"predicted_completion_days"`
	ExpectedCompletionDate  time.Time         `json:"expectedCompletionDate" db:"expected_completion_date"`
	ActualCompletionDate    *time.Time        `json:"actualCompletionDate,omitempty" db:"actual_completion_date"`
	Priority                bool              `json:"priority" db:"priority"`
	Remarks                 string            `json:"remarks,omitempty" db:"remarks"`
	Version                 int64             `json:"version" db:"version"`
	UpdatedAt               time.Time         `json:"updatedAt" db:"updated_at"`
}

// ActualProcessingDays is the whole number of days between submission and
// delivery, or -1 when the application has not been delivered.
func (a *Application) ActualProcessingDays() int {
	if a.ActualCompletionDate == nil {
		return -1
	}
	return int(a.ActualCompletionDate.Sub(a.SubmissionDate).Hours() / 24)
}

type StageName string

const (
	StageDocumentVerification StageName = "Document Verification"
	StagePoliceVerification   StageName = "Police Verification"
	StageFinalApproval        StageName = "Final Approval"
	StagePrinting             StageName = "Printing"
	StageDispatch             StageName = "Dispatch"
)

type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
	StageRejected   StageStatus = "rejected"
)

// Stage is one ordered step of an application's verification workflow.
type Stage struct {
	ID                string      `json:"id" db:"id"`
	ApplicationID     string      `json:"applicationId" db:"application_id"`
	Name              StageName   `json:"name" db:"name"`
	Position          int         `json:"position" db:"position"`
	Status            StageStatus `json:"status" db:"status"`
	AssignedOfficerID string      `json:"assignedOfficerId,omitempty" db:"assigned_officer_id"`
	StartTime         *time.Time  `json:"startTime,omitempty" db:"start_time"`
	EndTime           *time.Time  `json:"endTime,omitempty" db:"end_time"`
	Remarks           string      `json:"remarks,omitempty" db:"remarks"`
}

type DocumentType string

const (
	DocumentPhoto        DocumentType = "photo"
	DocumentIDProof      DocumentType = "id_proof"
	DocumentAddressProof DocumentType = "address_proof"
	DocumentDOBProof     DocumentType = "dob_proof"
)

func (d DocumentType) Valid() bool {
	switch d {
	case DocumentPhoto, DocumentIDProof, DocumentAddressProof, DocumentDOBProof:
		return true
	}
	return false
}

// Document is upload metadata; file contents live elsewhere under StorageKey.
type Document struct {
	ID            string       `json:"id" db:"id"`
	ApplicationID string       `json:"applicationId" db:"application_id"`
	DocumentType  DocumentType `json:"documentType" db:"document_type"`
	FileName      string       `json:"fileName" db:"file_name"`
	ContentType   string       `json:"contentType,omitempty" db:"content_type"`
	SizeBytes     int64        `json:"sizeBytes" db:"size_bytes"`
	StorageKey    string       `json:"storageKey,omitempty" db:"storage_key"`
	UploadedAt    time.Time    `json:"uploadedAt" db:"uploaded_at"`
	Verified      bool         `json:"verified" db:"verified"`
}

// Prediction records the estimate made at submission and its inputs.
type Prediction struct {
	ApplicationID   string    `json:"applicationId" db:"application_id"`
	PredictedDays   int       `json:"predictedDays" db:"predicted_days"`
	ConfidenceScore *float64  `json:"confidenceScore,omitempty" db:"confidence_score"`
	ModelVersion    string    `json:"modelVersion" db:"model_version"`
	Category        Category  `json:"category" db:"category"`
	City            string    `json:"city" db:"city"`
	State           string    `json:"state" db:"state"`
	SubmissionMonth int       `json:"submissionMonth" db:"submission_month"`
	Workload        int       `json:"workload" db:"workload"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}

// ProcessingHistory is written on delivery and feeds future estimator
// artifacts.
type ProcessingHistory struct {
	ApplicationID        string    `json:"applicationId" db:"application_id"`
	Category             Category  `json:"category" db:"category"`
	City                 string    `json:"city" db:"city"`
	State                string    `json:"state" db:"state"`
	SubmissionMonth      int       `json:"submissionMonth" db:"submission_month"`
	WorkloadAtSubmission int       `json:"workloadAtSubmission" db:"workload_at_submission"`
	PredictedDays        int       `json:"predictedDays" db:"predicted_days"`
	ActualProcessingDays int       `json:"actualProcessingDays" db:"actual_processing_days"`
	CompletionDate       time.Time `json:"completionDate" db:"completion_date"`
}

// SubmitRequest is the citizen-supplied part of a new application.
type SubmitRequest struct {
	Category    Category `json:"category"`
	FullName    string   `json:"fullName"`
	DateOfBirth string   `json:"dateOfBirth"` // YYYY-MM-DD
	Gender      string   `json:"gender"`
	Email       string   `json:"email"`
	Phone       string   `json:"phone"`
	Address     string   `json:"address"`
	City        string   `json:"city"`
	State       string   `json:"state"`
	Pincode     string   `json:"pincode"`
	Priority    bool     `json:"priority,omitempty"`
}

// DocumentUpload is the metadata supplied when a document is attached.
type DocumentUpload struct {
	DocumentType DocumentType `json:"documentType"`
	FileName     string       `json:"fileName"`
	ContentType  string       `json:"contentType,omitempty"`
	SizeBytes    int64        `json:"sizeBytes"`
	StorageKey   string       `json:"storageKey,omitempty"`
}

// ApplicationView is everything a tracker page shows for one application.
type ApplicationView struct {
	Application *Application `json:"application"`
	Stages      []*Stage     `json:"stages"`
	Documents   []*Document  `json:"documents"`
	Prediction  *Prediction  `json:"prediction,omitempty"`
}

// ApplicationFilter selects applications by owner, status and submission
// date. Zero values match everything.
type ApplicationFilter struct {
	OwnerID       string
	Statuses      []ApplicationStatus
	SubmittedFrom *time.Time
	SubmittedTo   *time.Time
	Limit         int
}

// QueueItem is an actionable stage on an officer's work queue.
type QueueItem struct {
	Application *Application `json:"application"`
	Stage       *Stage       `json:"stage"`
}

// Statistics is the administrator dashboard summary.
type Statistics struct {
	Total      int            `json:"total"`
	Pending    int            `json:"pending"`
	Completed  int            `json:"completed"`
	Rejected   int            `json:"rejected"`
	Last30Days int            `json:"last30Days"`
	Recent     []*Application `json:"recent"`
}

// AccuracyEntry compares one delivered application's estimate with reality.
type AccuracyEntry struct {
	ApplicationNumber string `json:"applicationNumber"`
	PredictedDays     int    `json:"predictedDays"`
	ActualDays        int    `json:"actualDays"`
	Difference        int    `json:"difference"`
	Accurate          bool   `json:"accurate"`
}

// AccuracyTotals aggregates prediction error over every delivered
// application.
type AccuracyTotals struct {
	Evaluated     int
	Accurate      int
	TotalAbsError int
}

// AccuracyReport summarises estimator accuracy over delivered applications.
type AccuracyReport struct {
	Evaluated    int              `json:"evaluated"`
	Accurate     int              `json:"accurate"`
	AccuracyPct  float64          `json:"accuracyPct"`
	MeanAbsError float64          `json:"meanAbsError"`
	Recent       []*AccuracyEntry `json:"recent"`
}
