package estimation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
)

var (
	ErrArtifactUnavailable = errors.New("ARTIFACT_UNAVAILABLE")
	ErrUnknownLabel        = errors.New("UNKNOWN_LABEL")
)

const maxArtifactBytes = 4 << 20

// LinearModel is the on-disk estimator artifact: an intercept plus weights
// for each categorical encoding and a workload coefficient.
type LinearModel struct {
	ModelVersion        string             `json:"model_version"`
	Intercept           float64            `json:"intercept"`
	CategoryWeights     map[string]float64 `json:"category_weights"`
	CityWeights         map[string]float64 `json:"city_weights"`
	StateWeights        map[string]float64 `json:"state_weights"`
	MonthWeights        map[string]float64 `json:"month_weights"`
	WorkloadCoefficient float64            `json:"workload_coefficient"`
	Confidence          *float64           `json:"confidence,omitempty"`
}

func (m *LinearModel) validate() error {
	if m.ModelVersion == "" {
		return fmt.Errorf("%w: model_version is empty", ErrArtifactUnavailable)
	}
	if len(m.CategoryWeights) == 0 {
		return fmt.Errorf("%w: category_weights is empty", ErrArtifactUnavailable)
	}
	return nil
}

// Predict evaluates the model. Category, city and state must all be known
// to the artifact; months without a weight contribute nothing.
func (m *LinearModel) Predict(f Features) (Prediction, error) {
	cw, ok := m.CategoryWeights[string(f.Category)]
	if !ok {
		return Prediction{}, fmt.Errorf("%w: category %q", ErrUnknownLabel, f.Category)
	}
	cityW, ok := lookupLabel(m.CityWeights, f.City)
	if !ok {
		return Prediction{}, fmt.Errorf("%w: city %q", ErrUnknownLabel, f.City)
	}
	stateW, ok := lookupLabel(m.StateWeights, f.State)
	if !ok {
		return Prediction{}, fmt.Errorf("%w: state %q", ErrUnknownLabel, f.State)
	}

	days := m.Intercept + cw + cityW + stateW +
		m.MonthWeights[strconv.Itoa(f.Month)] +
		m.WorkloadCoefficient*float64(f.Workload)
	if math.IsNaN(days) || math.IsInf(days, 0) {
		return Prediction{}, fmt.Errorf("model %s produced a non-finite estimate", m.ModelVersion)
	}

	return Prediction{Days: days, Confidence: m.Confidence, ModelVersion: m.ModelVersion}, nil
}

// lookupLabel matches case-insensitively, as city and state arrive as typed
// by the applicant.
func lookupLabel(weights map[string]float64, label string) (float64, bool) {
	if w, ok := weights[label]; ok {
		return w, true
	}
	for k, w := range weights {
		if strings.EqualFold(k, strings.TrimSpace(label)) {
			return w, true
		}
	}
	return 0, false
}

// Fetcher retrieves an artifact over HTTP.
type Fetcher interface {
	Fetch(ctx context.Context, url string, maxBytes int64) ([]byte, error)
}

// ArtifactEstimator loads a LinearModel once, on first use, from a file
// path or an http(s) URL. A missing or corrupt artifact is remembered and
// every later Predict reports it. A load cut short by a timeout or
// cancellation is not remembered; the next caller tries again.
type ArtifactEstimator struct {
	location string
	fetcher  Fetcher

	mu      sync.Mutex
	loaded  bool
	model   *LinearModel
	loadErr error
}

func NewArtifactEstimator(location string, fetcher Fetcher) *ArtifactEstimator {
	return &ArtifactEstimator{location: location, fetcher: fetcher}
}

func (a *ArtifactEstimator) Predict(ctx context.Context, f Features) (Prediction, error) {
	model, err := a.ensureLoaded(ctx)
	if err != nil {
		return Prediction{}, err
	}
	return model.Predict(f)
}

// ModelVersion reports the loaded model version, or "" before a successful
// load.
func (a *ArtifactEstimator) ModelVersion() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.model == nil {
		return ""
	}
	return a.model.ModelVersion
}

func (a *ArtifactEstimator) ensureLoaded(ctx context.Context) (*LinearModel, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loaded {
		return a.model, a.loadErr
	}

	// The artifact outlives the request that triggered the load.
	model, err := a.load(context.WithoutCancel(ctx))
	if err != nil && isTransient(err) {
		return nil, err
	}
	a.model, a.loadErr, a.loaded = model, err, true
	return model, err
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}

func (a *ArtifactEstimator) load(ctx context.Context) (*LinearModel, error) {
	if a.location == "" {
		return nil, fmt.Errorf("%w: no artifact location configured", ErrArtifactUnavailable)
	}

	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(a.location, "http://") || strings.HasPrefix(a.location, "https://") {
		if a.fetcher == nil {
			return nil, fmt.Errorf("%w: no http client for %s", ErrArtifactUnavailable, a.location)
		}
		data, err = a.fetcher.Fetch(ctx, a.location, maxArtifactBytes)
	} else {
		data, err = os.ReadFile(a.location)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifactUnavailable, err)
	}

	var model LinearModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrArtifactUnavailable, a.location, err)
	}
	if err := model.validate(); err != nil {
		return nil, err
	}
	return &model, nil
}
