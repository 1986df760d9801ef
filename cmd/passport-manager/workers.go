package main

import (
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"go.uber.org/zap"

	"passport-tracker/internal/common/camunda"
	"passport-tracker/internal/common/config"
	"passport-tracker/internal/common/logger"
	"passport-tracker/internal/common/observability"
	"passport-tracker/internal/estimation"
	"passport-tracker/internal/lifecycle"
	"passport-tracker/internal/notification"
	"passport-tracker/internal/store"
	"passport-tracker/internal/workflow"

	car "passport-tracker/internal/workers/application/create-application-record"
	ept "passport-tracker/internal/workers/application/estimate-processing-time"
	sn "passport-tracker/internal/workers/application/send-notification"
	vad "passport-tracker/internal/workers/application/validate-application-data"
	vs "passport-tracker/internal/workers/application/verify-stage"
	sa "passport-tracker/internal/workers/data-access/search-applications"
)

type workerDeps struct {
	service    *lifecycle.Service
	store      store.Store
	engine     *workflow.Engine
	dispatcher *notification.Dispatcher
	estimator  *estimation.Service
	workload   *estimation.WorkloadCounter
}

// startWorkers opens one job worker per enabled task type.
func startWorkers(cfg *config.Config, client zbc.Client, deps workerDeps, obs *observability.Observability, zapLog *zap.Logger, log logger.Logger) []*camunda.CamundaWorker {
	handlers := map[string]camunda.JobHandler{}

	if wc := config.GetWorkerConfig(cfg, vad.TaskType); config.IsWorkerEnabled(cfg, vad.TaskType) {
		handlers[vad.TaskType] = vad.NewHandler(vad.LoadConfig(wc), log)
	}
	if wc := config.GetWorkerConfig(cfg, car.TaskType); config.IsWorkerEnabled(cfg, car.TaskType) {
		handlers[car.TaskType] = car.NewHandler(car.LoadConfig(wc), deps.service, log)
	}
	if wc := config.GetWorkerConfig(cfg, ept.TaskType); config.IsWorkerEnabled(cfg, ept.TaskType) {
		handlers[ept.TaskType] = ept.NewHandler(ept.LoadConfig(wc), deps.estimator, deps.workload, log)
	}
	if wc := config.GetWorkerConfig(cfg, vs.TaskType); config.IsWorkerEnabled(cfg, vs.TaskType) {
		handlers[vs.TaskType] = vs.NewHandler(vs.LoadConfig(wc), deps.engine, log)
	}
	if wc := config.GetWorkerConfig(cfg, sn.TaskType); config.IsWorkerEnabled(cfg, sn.TaskType) {
		handlers[sn.TaskType] = sn.NewHandler(sn.LoadConfig(wc), deps.store, deps.dispatcher, log)
	}
	if wc := config.GetWorkerConfig(cfg, sa.TaskType); config.IsWorkerEnabled(cfg, sa.TaskType) {
		handlers[sa.TaskType] = sa.NewHandler(sa.LoadConfig(wc), deps.service, log)
	}

	workers := make([]*camunda.CamundaWorker, 0, len(handlers))
	for taskType, handler := range handlers {
		wc := config.GetWorkerConfig(cfg, taskType)
		workers = append(workers, camunda.NewWorker(client, taskType, camunda.WorkerOptions{
			MaxJobsActive: wc.MaxJobsActive,
			Timeout:       config.GetDuration(wc.Timeout),
			Observability: obs,
		}, handler, zapLog))
	}

	zapLog.Info("job workers registered", zap.Int("count", len(workers)))
	return workers
}
