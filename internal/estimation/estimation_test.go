package estimation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	commonhttp "passport-tracker/internal/common/http"
	"passport-tracker/internal/common/logger"
	"passport-tracker/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const artifactJSON = `{
  "model_version": "lr-2024.11",
  "intercept": 12,
  "category_weights": {"new": 10, "renewal": 2, "reissue": 6},
  "city_weights": {"Mumbai": 3, "Delhi": 5},
  "state_weights": {"Maharashtra": 1, "Delhi": 2},
  "month_weights": {"12": 2},
  "workload_coefficient": 0.01,
  "confidence": 0.8
}`

func writeArtifact(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// ==========================
// Fallback table
// ==========================

func TestFallbackTable(t *testing.T) {
	tests := []struct {
		category models.Category
		want     float64
	}{
		{models.CategoryNew, 30},
		{models.CategoryRenewal, 20},
		{models.CategoryReissue, 25},
		{models.Category("diplomatic"), 30},
	}
	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			p, err := DefaultFallbackTable.Predict(context.Background(), Features{Category: tt.category})
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Days)
			assert.Equal(t, FallbackModelVersion, p.ModelVersion)
		})
	}
}

// ==========================
// Service
// ==========================

func TestService_NoArtifactUsesFallback(t *testing.T) {
	svc := NewService(NewArtifactEstimator("", nil), MinimumDays, logger.NewTestLogger(t))

	est := svc.Estimate(context.Background(), Request{
		Category: models.CategoryNew, City: "Mumbai", State: "Maharashtra", Month: 3, Workload: 150,
	})

	assert.Equal(t, 30, est.Days)
	assert.True(t, est.Fallback)
	assert.Equal(t, FallbackModelVersion, est.ModelVersion)
}

func TestService_ArtifactPrediction(t *testing.T) {
	svc := NewService(NewArtifactEstimator(writeArtifact(t, artifactJSON), nil), MinimumDays, logger.NewTestLogger(t))

	// 12 + 10 + 3 + 1 + 2 + 0.01*150 = 29.5, rounded half away from zero.
	est := svc.Estimate(context.Background(), Request{
		Category: models.CategoryNew, City: "mumbai", State: "Maharashtra", Month: 12, Workload: 150,
	})

	assert.Equal(t, 30, est.Days)
	assert.False(t, est.Fallback)
	assert.Equal(t, "lr-2024.11", est.ModelVersion)
	require.NotNil(t, est.Confidence)
	assert.InDelta(t, 0.8, *est.Confidence, 1e-9)
}

func TestService_UnknownCityFallsBack(t *testing.T) {
	svc := NewService(NewArtifactEstimator(writeArtifact(t, artifactJSON), nil), MinimumDays, logger.NewTestLogger(t))

	est := svc.Estimate(context.Background(), Request{
		Category: models.CategoryRenewal, City: "Leh", State: "Delhi", Month: 1, Workload: 10,
	})

	assert.Equal(t, 20, est.Days)
	assert.True(t, est.Fallback)
}

func TestService_FloorsAtMinimum(t *testing.T) {
	low := `{"model_version":"v0","intercept":-40,"category_weights":{"new":1},
	         "city_weights":{"Pune":0},"state_weights":{"Maharashtra":0}}`
	svc := NewService(NewArtifactEstimator(writeArtifact(t, low), nil), MinimumDays, logger.NewTestLogger(t))

	est := svc.Estimate(context.Background(), Request{
		Category: models.CategoryNew, City: "Pune", State: "Maharashtra", Month: 5,
	})

	assert.Equal(t, MinimumDays, est.Days)
	assert.False(t, est.Fallback)
}

func TestService_CorruptArtifactFallsBack(t *testing.T) {
	svc := NewService(NewArtifactEstimator(writeArtifact(t, "{not json"), nil), MinimumDays, logger.NewTestLogger(t))

	est := svc.Estimate(context.Background(), Request{Category: models.CategoryReissue})
	assert.Equal(t, 25, est.Days)
	assert.True(t, est.Fallback)
}

func TestService_NeverBelowFloor(t *testing.T) {
	svc := NewService(nil, MinimumDays, logger.NewNoOpLogger())
	for _, c := range []models.Category{"new", "renewal", "reissue", "", "x"} {
		assert.GreaterOrEqual(t, svc.Estimate(context.Background(), Request{Category: c}).Days, MinimumDays)
	}
}

// ==========================
// Artifact loading
// ==========================

func TestArtifactEstimator_LoadsOverHTTPOnce(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(artifactJSON))
	}))
	defer srv.Close()

	est := NewArtifactEstimator(srv.URL+"/model.json", commonhttp.NewClient(time.Second))
	f := Features{Category: models.CategoryRenewal, City: "Delhi", State: "Delhi", Month: 6, Workload: 100}

	for i := 0; i < 3; i++ {
		p, err := est.Predict(context.Background(), f)
		require.NoError(t, err)
		// 12 + 2 + 5 + 2 + 1
		assert.InDelta(t, 22.0, p.Days, 1e-9)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, "lr-2024.11", est.ModelVersion())
}

func TestArtifactEstimator_MissingFile(t *testing.T) {
	est := NewArtifactEstimator(filepath.Join(t.TempDir(), "absent.json"), nil)
	_, err := est.Predict(context.Background(), Features{Category: models.CategoryNew})
	assert.ErrorIs(t, err, ErrArtifactUnavailable)
	assert.Equal(t, "", est.ModelVersion())
}

type flakyFetcher struct {
	calls int32
	body  string
}

func (f *flakyFetcher) Fetch(ctx context.Context, url string, maxBytes int64) ([]byte, error) {
	if atomic.AddInt32(&f.calls, 1) == 1 {
		return nil, fmt.Errorf("fetch %s: %w", url, context.DeadlineExceeded)
	}
	return []byte(f.body), nil
}

const flatModelJSON = `{"model_version":"v1","intercept":40,"category_weights":{"new":0},
	"city_weights":{"Pune":0},"state_weights":{"Maharashtra":0}}`

func TestArtifactEstimator_CancelledCallerDoesNotLoseModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(flatModelJSON))
	}))
	defer srv.Close()

	svc := NewService(
		NewArtifactEstimator(srv.URL+"/model.json", commonhttp.NewClient(time.Second)),
		MinimumDays, logger.NewTestLogger(t),
	)
	req := Request{Category: models.CategoryNew, City: "Pune", State: "Maharashtra", Month: 4}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_ = svc.Estimate(cancelled, req)

	est := svc.Estimate(context.Background(), req)
	assert.Equal(t, 40, est.Days)
	assert.False(t, est.Fallback)
	assert.Equal(t, "v1", est.ModelVersion)
}

func TestArtifactEstimator_TimedOutLoadIsRetried(t *testing.T) {
	fetcher := &flakyFetcher{body: flatModelJSON}
	est := NewArtifactEstimator("https://models.example/model.json", fetcher)
	f := Features{Category: models.CategoryNew, City: "Pune", State: "Maharashtra", Month: 4}

	_, err := est.Predict(context.Background(), f)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArtifactUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "", est.ModelVersion())

	p, err := est.Predict(context.Background(), f)
	require.NoError(t, err)
	assert.InDelta(t, 40.0, p.Days, 1e-9)
	assert.Equal(t, "v1", est.ModelVersion())
	assert.Equal(t, int32(2), atomic.LoadInt32(&fetcher.calls))
}

func TestArtifactEstimator_CorruptArtifactIsRemembered(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte("{broken"))
	}))
	defer srv.Close()

	est := NewArtifactEstimator(srv.URL, commonhttp.NewClient(time.Second))
	for i := 0; i < 3; i++ {
		_, err := est.Predict(context.Background(), Features{Category: models.CategoryNew})
		assert.ErrorIs(t, err, ErrArtifactUnavailable)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestArtifactEstimator_ModelVersionWhileLoading(t *testing.T) {
	est := NewArtifactEstimator(writeArtifact(t, artifactJSON), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = est.Predict(context.Background(), Features{Category: models.CategoryNew, City: "Delhi", State: "Delhi"})
		}()
		go func() {
			defer wg.Done()
			_ = est.ModelVersion()
		}()
	}
	wg.Wait()
	assert.Equal(t, "lr-2024.11", est.ModelVersion())
}

func TestService_OutOfRangeEstimateFallsBack(t *testing.T) {
	huge := `{"model_version":"v9","intercept":0,"category_weights":{"renewal":0},
	          "city_weights":{"Pune":0},"state_weights":{"Maharashtra":0},"workload_coefficient":1e300}`
	svc := NewService(NewArtifactEstimator(writeArtifact(t, huge), nil), MinimumDays, logger.NewTestLogger(t))

	est := svc.Estimate(context.Background(), Request{
		Category: models.CategoryRenewal, City: "Pune", State: "Maharashtra", Month: 2, Workload: 1000,
	})
	assert.Equal(t, 20, est.Days)
	assert.True(t, est.Fallback)
}

func TestLinearModel_UnknownCategory(t *testing.T) {
	m := &LinearModel{ModelVersion: "v", CategoryWeights: map[string]float64{"new": 1}}
	_, err := m.Predict(Features{Category: "tatkal"})
	assert.ErrorIs(t, err, ErrUnknownLabel)
}

// ==========================
// Workload counter
// ==========================

type countingSource struct {
	mu      sync.Mutex
	calls   int
	n       int
	err     error
	release chan struct{}
}

func (s *countingSource) CountByStatus(_ context.Context, statuses ...models.ApplicationStatus) (int, error) {
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.n, s.err
}

func TestWorkloadCounter_CachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	src := &countingSource{n: 142}
	counter := NewWorkloadCounter(src, rdb, time.Minute, DefaultWorkload, logger.NewTestLogger(t))

	assert.Equal(t, 142, counter.Workload(context.Background()))
	assert.Equal(t, 142, counter.Workload(context.Background()))
	assert.Equal(t, 1, src.calls)

	cached, err := mr.Get(workloadCacheKey)
	require.NoError(t, err)
	assert.Equal(t, "142", cached)

	counter.Invalidate(context.Background())
	assert.False(t, mr.Exists(workloadCacheKey))
}

func TestWorkloadCounter_DefaultOnSourceError(t *testing.T) {
	src := &countingSource{err: errors.New("db down")}
	counter := NewWorkloadCounter(src, nil, time.Minute, DefaultWorkload, logger.NewTestLogger(t))

	assert.Equal(t, DefaultWorkload, counter.Workload(context.Background()))
}

func TestWorkloadCounter_CacheErrorReadsSource(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectGet(workloadCacheKey).SetErr(errors.New("connection refused"))
	mock.ExpectSet(workloadCacheKey, 77, time.Minute).SetVal("OK")

	src := &countingSource{n: 77}
	counter := NewWorkloadCounter(src, db, time.Minute, DefaultWorkload, logger.NewTestLogger(t))

	assert.Equal(t, 77, counter.Workload(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkloadCounter_CollapsesConcurrentMisses(t *testing.T) {
	src := &countingSource{n: 9, release: make(chan struct{})}
	counter := NewWorkloadCounter(src, nil, time.Minute, DefaultWorkload, logger.NewNoOpLogger())

	var wg sync.WaitGroup
	results := make([]int, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = counter.Workload(context.Background())
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(src.release)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, 9, r)
	}
	assert.Equal(t, 1, src.calls)
}
