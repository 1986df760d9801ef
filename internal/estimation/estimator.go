// Package estimation predicts how many days an application will take to
// process.
package estimation

import (
	"context"

	"passport-tracker/internal/models"
)

// FallbackModelVersion is recorded on predictions made by the fallback table.
const FallbackModelVersion = "fallback"

// Features are the inputs to every estimator.
type Features struct {
	Category models.Category
	City     string
	State    string
	Month    int
	Workload int
}

// Prediction is a raw estimator result, before flooring and rounding.
type Prediction struct {
	Days         float64
	Confidence   *float64
	ModelVersion string
}

// Estimator is a processing-time prediction strategy.
type Estimator interface {
	Predict(ctx context.Context, f Features) (Prediction, error)
}

// FallbackTable predicts from the category alone and never fails.
type FallbackTable map[models.Category]int

// DefaultFallbackTable holds the per-category defaults. Unknown categories
// get DefaultDays.
var DefaultFallbackTable = FallbackTable{
	models.CategoryNew:     30,
	models.CategoryRenewal: 20,
	models.CategoryReissue: 25,
}

const DefaultDays = 30

func (t FallbackTable) Predict(_ context.Context, f Features) (Prediction, error) {
	days, ok := t[f.Category]
	if !ok {
		days = DefaultDays
	}
	return Prediction{Days: float64(days), ModelVersion: FallbackModelVersion}, nil
}
