package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/dewiapp/dewi-backend/internal/ingestion"
	"github.com/dewiapp/dewi-backend/internal/jobs"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/scheduler"
	"github.com/dewiapp/dewi-backend/internal/services"
)

type Services struct {
	Learner   services.LearnerService
	Ingestion services.IngestionService
	Fact      services.FactService
	Gesture   services.GestureService
	Queue     services.QueueService
	Script    services.ScriptService

	JobRegistry *jobs.Registry
	JobWorker   *jobs.Worker
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r Repos, c Clients) (Services, error) {
	log.Info("Wiring services...")

	tuning, err := scheduler.LoadConfig()
	if err != nil {
		return Services{}, fmt.Errorf("load scheduler tuning: %w", err)
	}
	sched, err := scheduler.NewScheduler(tuning)
	if err != nil {
		return Services{}, fmt.Errorf("init scheduler: %w", err)
	}

	// Extraction pipeline: chunk, extract, embed, dedup against the vector
	// index, persist survivors.
	extractor := services.NewFactExtractor(c.AI, log)
	embedder := services.NewEmbedder(c.AI)
	index := services.NewVectorIndex(c.Vectors)
	sink := services.NewFactSink(r.Fact, r.FactLink)
	dedup, err := ingestion.NewDeduplicator(ingestion.DefaultDedupConfig(), index, sink)
	if err != nil {
		return Services{}, fmt.Errorf("init deduplicator: %w", err)
	}
	pipeline, err := ingestion.NewPipeline(ingestion.DefaultPipelineConfig(), extractor, embedder, dedup, log)
	if err != nil {
		return Services{}, fmt.Errorf("init ingestion pipeline: %w", err)
	}

	queue := services.NewQueueService(log, sched, r.Learner, r.Fact, r.ReviewState, r.VideoScript)
	gesture := services.NewGestureService(db, log, sched, r.Learner, r.Fact, r.ReviewState, r.GestureEvent, queue, c.Bus)
	ingest := services.NewIngestionService(
		db, log,
		r.Learner, r.Source, r.Job, r.Fact,
		pipeline,
		c.Bucket, c.Document, c.Vision, c.YouTube,
		queue, c.Bus,
	)
	fact := services.NewFactService(log, r.Fact, r.FactLink, c.Vectors)
	script := services.NewScriptService(db, log, c.AI, r.Fact, r.VideoScript, c.Renderer, c.Bucket, c.TTS)
	learner := services.NewLearnerService(db, log, r.Learner)

	registry := jobs.NewRegistry()
	if err := registry.Register(jobs.NewSourceIngestHandler(log, ingest)); err != nil {
		return Services{}, fmt.Errorf("register ingest handler: %w", err)
	}
	if err := registry.Register(jobs.NewScriptBatchHandler(log, script)); err != nil {
		return Services{}, fmt.Errorf("register script batch handler: %w", err)
	}
	worker := jobs.NewWorker(log, cfg.Worker, r.Job, registry, c.Bus)

	return Services{
		Learner:     learner,
		Ingestion:   ingest,
		Fact:        fact,
		Gesture:     gesture,
		Queue:       queue,
		Script:      script,
		JobRegistry: registry,
		JobWorker:   worker,
	}, nil
}
