package estimation

import (
	"context"
	"fmt"
	"math"
	"time"

	"passport-tracker/internal/common/logger"
	"passport-tracker/internal/common/metrics"
	"passport-tracker/internal/models"
)

// MinimumDays is the floor applied to every estimate.
const MinimumDays = 15

// MaximumDays bounds what an estimator may answer. Anything larger is
// treated as a failed prediction.
const MaximumDays = 3650

// Request is what the caller knows at submission time.
type Request struct {
	Category models.Category
	City     string
	State    string
	Month    int
	Workload int
}

// Estimate is the final, floored prediction.
type Estimate struct {
	Days         int      `json:"days"`
	Confidence   *float64 `json:"confidence,omitempty"`
	ModelVersion string   `json:"modelVersion"`
	Fallback     bool     `json:"fallback"`
}

// Service wraps an Estimator with the fallback table and the floor.
type Service struct {
	estimator   Estimator
	fallback    FallbackTable
	minimumDays int
	logger      logger.Logger
}

// NewService returns a Service. estimator may be nil, in which case every
// estimate comes from the fallback table.
func NewService(estimator Estimator, minimumDays int, log logger.Logger) *Service {
	if minimumDays <= 0 {
		minimumDays = MinimumDays
	}
	return &Service{
		estimator:   estimator,
		fallback:    DefaultFallbackTable,
		minimumDays: minimumDays,
		logger:      log.WithFields(map[string]interface{}{"component": "estimation"}),
	}
}

// Estimate never fails: any estimator problem is logged and answered from
// the fallback table.
func (s *Service) Estimate(ctx context.Context, req Request) Estimate {
	if req.Month < 1 || req.Month > 12 {
		req.Month = int(time.Now().Month())
	}
	features := Features(req)

	if s.estimator != nil {
		p, err := s.estimator.Predict(ctx, features)
		if err == nil && (math.IsNaN(p.Days) || p.Days > MaximumDays) {
			err = fmt.Errorf("estimate of %v days is out of range", p.Days)
		}
		if err == nil {
			metrics.Estimations.WithLabelValues("model").Inc()
			return s.finish(p, false)
		}
		s.logger.Warn("estimator failed, using fallback table", map[string]interface{}{
			"category": req.Category,
			"city":     req.City,
			"error":    err,
		})
	}

	p, _ := s.fallback.Predict(ctx, features)
	metrics.Estimations.WithLabelValues("fallback").Inc()
	return s.finish(p, true)
}

func (s *Service) finish(p Prediction, fallback bool) Estimate {
	days := s.minimumDays
	if rounded := math.Round(p.Days); rounded > float64(days) {
		days = int(rounded)
	}
	return Estimate{
		Days:         days,
		Confidence:   p.Confidence,
		ModelVersion: p.ModelVersion,
		Fallback:     fallback,
	}
}
