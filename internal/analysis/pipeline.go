package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/drguilhermecapel/medai/internal/classifier"
	"github.com/drguilhermecapel/medai/internal/conf"
	"github.com/drguilhermecapel/medai/internal/datastore"
	"github.com/drguilhermecapel/medai/internal/ecg"
	"github.com/drguilhermecapel/medai/internal/errors"
	"github.com/drguilhermecapel/medai/internal/events"
	"github.com/drguilhermecapel/medai/internal/features"
	"github.com/drguilhermecapel/medai/internal/logging"
	"github.com/drguilhermecapel/medai/internal/observability/metrics"
	"github.com/drguilhermecapel/medai/internal/quality"
	"github.com/drguilhermecapel/medai/internal/urgency"
	"github.com/drguilhermecapel/medai/internal/validation"
)

// Submission is one raw waveform plus the bedside context that the
// urgency scorer consumes. Vitals and Patient are optional.
type Submission struct {
	Raw     *ecg.RawWaveform
	Vitals  *urgency.VitalSigns
	Patient *urgency.PatientContext
}

type job struct {
	analysis *Analysis
	vitals   *urgency.VitalSigns
	patient  *urgency.PatientContext
	ctx      context.Context
}

// Pipeline orchestrates the processing stages for every submitted
// recording. Each analysis runs on one worker goroutine with no shared
// mutable state between concurrent runs; the only cross-pipeline
// coordination happens in the validation manager.
type Pipeline struct {
	settings *conf.Settings

	assessor  *quality.Assessor
	extractor *features.Extractor
	engine    *classifier.Engine
	scorer    *urgency.Scorer

	validation *validation.Manager
	bus        *events.Bus
	store      datastore.Interface
	metrics    *metrics.PipelineMetrics
	logger     *slog.Logger

	mu       sync.RWMutex
	analyses map[string]*Analysis
	cancels  map[string]context.CancelFunc

	queue      chan *job
	wg         sync.WaitGroup
	baseCtx    context.Context
	baseCancel context.CancelFunc
	started    bool
}

// NewPipeline wires the stage implementations together. The classifier
// is injected so deployments can swap models without touching the
// pipeline; bus, store and pipelineMetrics may be nil.
func NewPipeline(settings *conf.Settings, clf classifier.Classifier, bus *events.Bus, store datastore.Interface, pipelineMetrics *metrics.PipelineMetrics) *Pipeline {
	queueSize := settings.Pipeline.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		settings:   settings,
		assessor:   quality.NewAssessor(settings.Quality),
		extractor:  features.NewExtractor(settings.Features),
		engine:     classifier.NewEngine(clf, settings.Classifier),
		scorer:     urgency.NewScorer(settings.Urgency),
		bus:        bus,
		store:      store,
		metrics:    pipelineMetrics,
		logger:     logging.ForService("pipeline"),
		analyses:   make(map[string]*Analysis),
		cancels:    make(map[string]context.CancelFunc),
		queue:      make(chan *job, queueSize),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	p.validation = validation.NewManager(settings.Validation, bus, p.finalize)
	return p
}

// Validation exposes the clinical review workflow bound to this
// pipeline.
func (p *Pipeline) Validation() *validation.Manager { return p.validation }

// Start launches the worker pool and the validation SLA sweeper.
func (p *Pipeline) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	workers := p.settings.Pipeline.Workers
	if workers <= 0 {
		workers = 4
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.validation.Start()
	p.logger.Info("pipeline started", slog.Int("workers", workers), slog.Int("queue_size", cap(p.queue)))
}

// Stop cancels in-flight analyses and waits for the workers to drain.
// The queue is closed under the same lock Submit sends under, so a
// concurrent Submit either enqueues before the close or observes the
// stopped state.
func (p *Pipeline) Stop() {
	p.baseCancel()
	p.mu.Lock()
	started := p.started
	p.started = false
	if started {
		close(p.queue)
	}
	p.mu.Unlock()
	if started {
		p.wg.Wait()
	}
	p.validation.Stop()
	p.logger.Info("pipeline stopped")
}

// Submit validates and resamples the raw waveform synchronously, then
// queues the analysis for asynchronous processing. It returns the new
// analysis ID with the record in the pending state. Malformed input is
// reported to the caller immediately and never enters the pipeline.
func (p *Pipeline) Submit(_ context.Context, sub Submission) (string, error) {
	if sub.Raw == nil {
		return "", errors.Newf("submission has no waveform").
			Component("pipeline").
			Category(errors.CategoryInvalidWaveform).
			Build()
	}
	rec, err := ecg.Ingest(sub.Raw, &p.settings.Ingestion)
	if err != nil {
		return "", err
	}

	a := newAnalysis(rec)
	runCtx, cancel := context.WithCancel(p.baseCtx)

	// The non-blocking send happens under the same lock as the started
	// check: Stop closes the queue under this lock, so the send can never
	// hit a closed channel.
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		cancel()
		return "", errors.Newf("pipeline is not running").
			Component("pipeline").
			Category(errors.CategoryState).
			Build()
	}
	j := &job{analysis: a, vitals: sub.Vitals, patient: sub.Patient, ctx: runCtx}
	select {
	case p.queue <- j:
		p.analyses[a.ID()] = a
		p.cancels[a.ID()] = cancel
		p.mu.Unlock()
	default:
		p.mu.Unlock()
		cancel()
		return "", errors.Newf("pipeline queue is full").
			Component("pipeline").
			Category(errors.CategoryState).
			Context("queue_size", cap(p.queue)).
			Build()
	}
	return a.ID(), nil
}

// Get returns a snapshot of the analysis with the given ID.
func (p *Pipeline) Get(id string) (Snapshot, error) {
	p.mu.RLock()
	a, ok := p.analyses[id]
	p.mu.RUnlock()
	if !ok {
		return Snapshot{}, errors.Newf("analysis %s not found", id).
			Component("pipeline").
			Category(errors.CategoryNotFound).
			Build()
	}
	return a.Snapshot(), nil
}

// Cancel requests cooperative cancellation of a pending or processing
// analysis. The run stops at the next stage boundary and the record
// fails with the Cancelled reason.
func (p *Pipeline) Cancel(id string) error {
	p.mu.RLock()
	cancel, ok := p.cancels[id]
	p.mu.RUnlock()
	if !ok {
		return errors.Newf("analysis %s not found", id).
			Component("pipeline").
			Category(errors.CategoryNotFound).
			Build()
	}
	cancel()
	return nil
}

func (p *Pipeline) worker() {
	defer p.wg.Done()
	for j := range p.queue {
		p.process(j)
	}
}

func (p *Pipeline) process(j *job) {
	a := j.analysis
	started := time.Now()
	if p.metrics != nil {
		p.metrics.ActiveAnalyses.Inc()
	}
	defer func() {
		p.mu.Lock()
		if cancel, ok := p.cancels[a.ID()]; ok {
			delete(p.cancels, a.ID())
			cancel()
		}
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.ActiveAnalyses.Dec()
			p.metrics.AnalysisDuration.WithLabelValues(string(a.Status())).Observe(time.Since(started).Seconds())
		}
	}()

	p.transition(a, a.setStatus(StatusProcessing), StatusProcessing, "")

	if j.ctx.Err() != nil {
		p.failAnalysis(a, ReasonCancelled, "cancelled before processing")
		return
	}

	// Stage 1: signal quality gate.
	report, err := p.stageQuality(a)
	if err != nil {
		p.failAnalysis(a, qualityFailureReason(err), err.Error())
		return
	}
	if report.BelowFloor(p.settings.Quality.Floor) {
		if p.metrics != nil {
			p.metrics.QualityGateFailed.Inc()
		}
		detail := fmt.Sprintf("aggregate quality %.3f below floor %.2f", report.OverallScore, p.settings.Quality.Floor)
		p.failAnalysis(a, ReasonInsufficientSignalQuality, detail)
		return
	}
	if j.ctx.Err() != nil {
		p.failAnalysis(a, ReasonCancelled, "cancelled after quality assessment")
		return
	}

	// Stage 2: feature extraction.
	set, err := p.stageFeatures(j.ctx, a, report)
	if err != nil {
		if j.ctx.Err() != nil {
			p.failAnalysis(a, ReasonCancelled, "cancelled during feature extraction")
			return
		}
		p.failAnalysis(a, ReasonFeatureExtraction, err.Error())
		return
	}
	if j.ctx.Err() != nil {
		p.failAnalysis(a, ReasonCancelled, "cancelled after feature extraction")
		return
	}

	// Stage 3: diagnostic classification.
	preds, err := p.stageClassify(j.ctx, a, set)
	if err != nil {
		switch {
		case errors.IsCategory(err, errors.CategoryTimeout):
			if p.metrics != nil {
				p.metrics.ClassifierErrors.WithLabelValues("timeout").Inc()
			}
			p.failAnalysis(a, ReasonClassificationTimeout, err.Error())
		case j.ctx.Err() != nil:
			p.failAnalysis(a, ReasonCancelled, "cancelled during classification")
		default:
			if p.metrics != nil {
				p.metrics.ClassifierErrors.WithLabelValues("error").Inc()
			}
			p.failAnalysis(a, ReasonClassificationError, err.Error())
		}
		return
	}
	if j.ctx.Err() != nil {
		p.failAnalysis(a, ReasonCancelled, "cancelled after classification")
		return
	}

	// Stage 4: clinical urgency. Pure computation; escalation only.
	stageStart := time.Now()
	result := p.scorer.Score(preds, j.vitals, j.patient)
	a.setUrgency(result)
	p.observeStage("urgency", stageStart)

	p.complete(a)
}

// qualityFailureReason separates the clinical verdict from internal
// assessor faults: only a signal-quality finding is reported as
// insufficient quality; filter construction or input errors are not a
// statement about the recording.
func qualityFailureReason(err error) FailureReason {
	if errors.IsCategory(err, errors.CategorySignalQuality) {
		return ReasonInsufficientSignalQuality
	}
	return ReasonQualityAssessmentError
}

func (p *Pipeline) stageQuality(a *Analysis) (*quality.Report, error) {
	stageStart := time.Now()
	report, err := p.assessor.Assess(a.recording)
	p.observeStage("quality", stageStart)
	if err != nil {
		return nil, err
	}
	a.setReport(report)
	if p.metrics != nil {
		p.metrics.QualityScore.Observe(report.OverallScore)
	}
	return report, nil
}

func (p *Pipeline) stageFeatures(ctx context.Context, a *Analysis, report *quality.Report) (*features.Set, error) {
	stageStart := time.Now()
	set, err := p.extractor.Extract(ctx, a.recording, report)
	p.observeStage("features", stageStart)
	if err != nil {
		return nil, err
	}
	a.setFeatures(set)
	return set, nil
}

func (p *Pipeline) stageClassify(ctx context.Context, a *Analysis, set *features.Set) ([]classifier.Prediction, error) {
	stageStart := time.Now()
	preds, err := p.engine.Run(ctx, set)
	p.observeStage("classify", stageStart)
	if err != nil {
		return nil, err
	}
	a.setDiagnoses(preds)
	return preds, nil
}

func (p *Pipeline) observeStage(stage string, start time.Time) {
	if p.metrics != nil {
		p.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

func (p *Pipeline) complete(a *Analysis) {
	from := a.setStatus(StatusCompleted)
	snap := a.Snapshot()
	p.transitionWithMetadata(a, from, StatusCompleted, "", map[string]any{
		"urgency_tier":  snap.UrgencyTier,
		"quality_score": snap.QualityScore,
	})
	if p.metrics != nil {
		p.metrics.AnalysesTotal.WithLabelValues(string(StatusCompleted), "").Inc()
		p.metrics.UrgencyTier.WithLabelValues(snap.UrgencyTier).Inc()
	}
	p.logger.Info("analysis completed",
		slog.String("analysis_id", a.ID()),
		slog.Float64("quality", snap.QualityScore),
		slog.String("urgency", snap.UrgencyTier),
		slog.Int("diagnoses", len(snap.Diagnoses)))

	// Every completed analysis requires a human decision before it is
	// clinically final.
	p.validation.CreateTask(a.ID())
	p.persist(snap)
}

func (p *Pipeline) failAnalysis(a *Analysis, reason FailureReason, detail string) {
	from := a.fail(reason, detail)
	p.transition(a, from, StatusFailed, string(reason))
	if p.metrics != nil {
		p.metrics.AnalysesTotal.WithLabelValues(string(StatusFailed), string(reason)).Inc()
	}
	p.logger.Warn("analysis failed",
		slog.String("analysis_id", a.ID()),
		slog.String("reason", string(reason)),
		slog.String("detail", detail))
	p.persist(a.Snapshot())
}

func (p *Pipeline) transition(a *Analysis, from, to Status, reason string) {
	p.transitionWithMetadata(a, from, to, reason, nil)
}

func (p *Pipeline) transitionWithMetadata(a *Analysis, from, to Status, reason string, metadata map[string]any) {
	if p.bus == nil || from == to {
		return
	}
	event, err := events.NewTransitionEvent(events.EntityAnalysis, a.ID(), string(from), string(to), reason, metadata)
	if err != nil {
		p.logger.Error("failed to build transition event", slog.Any("error", err))
		return
	}
	p.bus.TryPublish(event)
}

// finalize satisfies validation.FinalizeFunc. It runs on the reviewer's
// request goroutine, after the validation manager has released its lock.
func (p *Pipeline) finalize(analysisID string, outcome validation.Outcome, reviewer, notes string) {
	p.mu.RLock()
	a, ok := p.analyses[analysisID]
	p.mu.RUnlock()
	if ok {
		a.setReview(string(outcome), reviewer, notes)
	}

	if p.store == nil {
		return
	}
	view, err := p.validation.GetByAnalysis(analysisID)
	if err != nil {
		p.logger.Error("finalize could not load validation task",
			slog.String("analysis_id", analysisID), slog.Any("error", err))
		return
	}
	record := &datastore.ValidationRecord{
		ID:         view.ID,
		AnalysisID: analysisID,
		Reviewer:   reviewer,
		Outcome:    string(outcome),
		Comment:    notes,
		Reoffers:   view.Reoffers,
		DecidedAt:  view.DecidedAt,
	}
	if err := p.store.SaveValidation(record); err != nil {
		p.logger.Error("failed to persist validation outcome",
			slog.String("analysis_id", analysisID), slog.Any("error", err))
	}
}

func (p *Pipeline) persist(snap Snapshot) {
	if p.store == nil {
		return
	}
	record := &datastore.AnalysisRecord{
		ID:            snap.ID,
		PatientRef:    snap.PatientRef,
		Status:        string(snap.Status),
		FailureReason: string(snap.FailureReason),
		QualityScore:  snap.QualityScore,
		HeartRate:     snap.HeartRate,
		LowBeatCount:  snap.LowBeatCount,
		UrgencyTier:   snap.UrgencyTier,
		CapturedAt:    snap.CapturedAt,
		CreatedAt:     snap.CreatedAt,
	}
	if !snap.CompletedAt.IsZero() {
		completed := snap.CompletedAt
		record.CompletedAt = &completed
	}
	if len(snap.UrgencyWhy) > 0 {
		record.UrgencyDetail = snap.UrgencyWhy[0].Detail
	}
	for _, d := range snap.Diagnoses {
		record.Diagnoses = append(record.Diagnoses, datastore.DiagnosisRecord{
			AnalysisID: snap.ID,
			Rank:       d.Rank,
			Label:      d.Label,
			Confidence: d.Confidence,
		})
	}
	if err := p.store.SaveAnalysis(record); err != nil {
		p.logger.Error("failed to persist analysis",
			slog.String("analysis_id", snap.ID), slog.Any("error", err))
	}
}
