package workflow

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"passport-tracker/internal/access"
	"passport-tracker/internal/common/errors"
	"passport-tracker/internal/common/logger"
	"passport-tracker/internal/common/observability"
	"passport-tracker/internal/models"
	"passport-tracker/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type sentEvent struct {
	number string
	event  models.EventType
	reason string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (r *recordingNotifier) Notify(_ context.Context, app *models.Application, event models.EventType, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sentEvent{number: app.ApplicationNumber, event: event, reason: reason})
}

type recordingIndexer struct {
	mu      sync.Mutex
	indexed []models.ApplicationStatus
}

func (r *recordingIndexer) Index(_ context.Context, app *models.Application) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed = append(r.indexed, app.CurrentStatus)
}

var (
	rpo    = models.Principal{UserID: "rpo-1", Role: models.RoleRPO}
	police = models.Principal{UserID: "police-1", Role: models.RolePolice}
)

type engineFixture struct {
	engine   *Engine
	store    *store.Memory
	notifier *recordingNotifier
	indexer  *recordingIndexer
	app      *models.Application
	stages   []*models.Stage
}

func newEngineFixture(t *testing.T, enforceScope bool) *engineFixture {
	t.Helper()
	st := store.NewMemory()
	app, stages := newApplication()
	require.NoError(t, st.CreateApplication(context.Background(), app, stages, &models.Prediction{
		ApplicationID: app.ID, PredictedDays: 30, ModelVersion: "fallback", Workload: 150,
	}))

	f := &engineFixture{
		store:    st,
		notifier: &recordingNotifier{},
		indexer:  &recordingIndexer{},
		app:      app,
		stages:   stages,
	}
	f.engine = NewEngine(st, access.NewGate(enforceScope), f.notifier, f.indexer, nil, logger.NewTestLogger(t))
	return f
}

func (f *engineFixture) current(t *testing.T) *models.Application {
	t.Helper()
	app, err := f.store.GetApplication(context.Background(), f.app.ID)
	require.NoError(t, err)
	return app
}

// ==========================
// Happy path
// ==========================

func TestEngine_FullLifecycle(t *testing.T) {
	f := newEngineFixture(t, true)
	ctx := context.Background()

	steps := []struct {
		principal models.Principal
		stage     int
		status    models.ApplicationStatus
	}{
		{rpo, 0, models.StatusPoliceVerification},
		{police, 1, models.StatusApproved},
		{rpo, 2, models.StatusPrinting},
		{rpo, 3, models.StatusDispatched},
		{rpo, 4, models.StatusDelivered},
	}
	for _, step := range steps {
		res, err := f.engine.Approve(ctx, step.principal, f.stages[step.stage].ID, "")
		require.NoError(t, err, "stage %d", step.stage)
		assert.Equal(t, step.status, res.Application.CurrentStatus)

		stored := f.current(t)
		stages, err := f.store.ListStages(ctx, f.app.ID)
		require.NoError(t, err)
		assert.Equal(t, DeriveStatus(stages), stored.CurrentStatus)
	}

	final := f.current(t)
	require.NotNil(t, final.ActualCompletionDate)
	assert.Equal(t, int64(6), final.Version)

	history, err := f.store.GetProcessingHistory(ctx, f.app.ID)
	require.NoError(t, err)
	assert.Equal(t, 150, history.WorkloadAtSubmission)

	assert.Len(t, f.notifier.events, 6)
	assert.Len(t, f.indexer.indexed, 5)
	assert.Equal(t, models.StatusDelivered, f.indexer.indexed[4])

	_, err = f.engine.Reject(ctx, rpo, f.stages[4].ID, "too late")
	assert.ErrorIs(t, err, errors.ErrInvalidTransition)
}

func TestEngine_ApproveDocumentVerificationNotifies(t *testing.T) {
	f := newEngineFixture(t, true)

	res, err := f.engine.Approve(context.Background(), rpo, f.stages[0].ID, "all documents in order")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPoliceVerification, res.Application.CurrentStatus)
	assert.Equal(t, []models.EventType{models.EventDocumentsVerified, models.EventPoliceVerificationStarted}, res.Events)
	require.Len(t, f.notifier.events, 2)
	assert.Equal(t, "PSP2024123456", f.notifier.events[0].number)
}

func TestEngine_RejectPoliceVerification(t *testing.T) {
	f := newEngineFixture(t, true)
	ctx := context.Background()
	_, err := f.engine.Approve(ctx, rpo, f.stages[0].ID, "")
	require.NoError(t, err)

	res, err := f.engine.Reject(ctx, police, f.stages[1].ID, "address mismatch")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, res.Application.CurrentStatus)

	stage, err := f.store.GetStage(ctx, f.stages[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "address mismatch", stage.Remarks)

	last := f.notifier.events[len(f.notifier.events)-1]
	assert.Equal(t, models.EventApplicationRejected, last.event)
	assert.Equal(t, "address mismatch", last.reason)

	for _, s := range f.stages[2:] {
		_, err := f.engine.Approve(ctx, rpo, s.ID, "")
		assert.ErrorIs(t, err, errors.ErrInvalidTransition)
	}
}

// ==========================
// Authorization and ordering
// ==========================

func TestEngine_Denials(t *testing.T) {
	tests := []struct {
		name      string
		principal models.Principal
		stage     int
		wantErr   error
	}{
		{"police on printing", police, 3, errors.ErrAccessDenied},
		{"rpo on police verification", rpo, 1, errors.ErrAccessDenied},
		{"admin never mutates", models.Principal{UserID: "admin-1", Role: models.RoleAdmin}, 0, errors.ErrAccessDenied},
		{"citizen never mutates", models.Principal{UserID: "citizen-1", Role: models.RoleCitizen}, 0, errors.ErrAccessDenied},
		{"out of order", rpo, 3, errors.ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t, true)
			_, err := f.engine.Approve(context.Background(), tt.principal, f.stages[tt.stage].ID, "")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, int64(1), f.current(t).Version)
			assert.Empty(t, f.notifier.events)
		})
	}
}

func TestEngine_RelaxedScopeAllowsAnyOfficer(t *testing.T) {
	f := newEngineFixture(t, false)
	_, err := f.engine.Approve(context.Background(), police, f.stages[0].ID, "")
	assert.NoError(t, err)
}

func TestEngine_UnknownStage(t *testing.T) {
	f := newEngineFixture(t, true)
	_, err := f.engine.Approve(context.Background(), rpo, "nope", "")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

// ==========================
// Concurrency
// ==========================

func TestEngine_ConcurrentApprovalsApplyOnce(t *testing.T) {
	f := newEngineFixture(t, true)

	const racers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Approve(context.Background(), rpo, f.stages[0].ID, "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	for _, err := range failures {
		assert.True(t, stderrors.Is(err, errors.ErrInvalidTransition) || stderrors.Is(err, errors.ErrConflict), err.Error())
	}
	assert.Equal(t, int64(2), f.current(t).Version)
	assert.Len(t, f.notifier.events, 2)
}

// blockingNotifier holds every Notify call until release is closed.
type blockingNotifier struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingNotifier) Notify(context.Context, *models.Application, models.EventType, string) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
}

func TestEngine_SlowNotifierDoesNotBlockNextTransition(t *testing.T) {
	f := newEngineFixture(t, true)
	notifier := &blockingNotifier{entered: make(chan struct{}), release: make(chan struct{})}
	engine := NewEngine(f.store, access.NewGate(true), notifier, nil, nil, logger.NewNoOpLogger())
	ctx := context.Background()

	firstDone := make(chan error, 1)
	go func() {
		_, err := engine.Approve(ctx, rpo, f.stages[0].ID, "")
		firstDone <- err
	}()

	select {
	case <-notifier.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("approval never reached the notifier")
	}

	secondDone := make(chan error, 1)
	go func() {
		_, err := engine.Start(ctx, police, f.stages[1].ID, "")
		secondDone <- err
	}()

	select {
	case err := <-secondDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		close(notifier.release)
		t.Fatal("start waited for the previous transition's notifications")
	}

	close(notifier.release)
	require.NoError(t, <-firstDone)
	assert.Equal(t, int64(3), f.current(t).Version)
}

// conflictingStore moves the version between read and write, like a second
// process would.
type conflictingStore struct {
	*store.Memory
}

func (c conflictingStore) ApplyTransition(ctx context.Context, w store.TransitionWrite) error {
	w.ExpectedVersion--
	return c.Memory.ApplyTransition(ctx, w)
}

func TestEngine_VersionConflictAppliesNothing(t *testing.T) {
	f := newEngineFixture(t, true)
	engine := NewEngine(conflictingStore{f.store}, access.NewGate(true), f.notifier, f.indexer, nil, logger.NewNoOpLogger())

	_, err := engine.Approve(context.Background(), rpo, f.stages[0].ID, "")
	assert.ErrorIs(t, err, errors.ErrConflict)
	assert.True(t, errors.IsRetryable(err))

	stage, err := f.store.GetStage(context.Background(), f.stages[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StagePending, stage.Status)
	assert.Empty(t, f.notifier.events)
}

func TestEngine_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	obs := observability.New("workflow-test", recorder)
	t.Cleanup(obs.Shutdown)

	f := newEngineFixture(t, true)
	engine := NewEngine(f.store, access.NewGate(true), nil, nil, obs, logger.NewNoOpLogger())
	engine.now = func() time.Time { return submitted.Add(time.Hour) }

	_, err := engine.Start(context.Background(), rpo, f.stages[0].ID, "")
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "workflow.stage_transition", spans[0].Name())

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "start", attrs["stage.action"])
	assert.Equal(t, "document_verification", attrs["application.status"])
}
