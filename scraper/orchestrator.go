package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"f2_scrooper/browser"
	"f2_scrooper/models"
	"f2_scrooper/storage"
)

// RunRecorder is the operational log of cycles. *storage.SQLiteStore satisfies it.
type RunRecorder interface {
	CreateRun(run *models.ScrapeRun) (int64, error)
	UpdateRun(run *models.ScrapeRun) error
	Log(runID *int64, level models.LogLevel, message, kind string) error
	UpdateKindStats(o models.Outcome) error
}

type Deps struct {
	Provider  browser.Provider
	Scrapers  []Scraper
	Results   *storage.ResultsStore
	Recorder  RunRecorder
	Mirrors   []storage.Mirror
	KindDelay time.Duration
	Log       *zap.Logger
}

// Orchestrator runs the scrapers against one browser session per cycle and
// persists each kind as soon as it completes.
type Orchestrator struct {
	provider  browser.Provider
	scrapers  map[models.DataKind]Scraper
	results   *storage.ResultsStore
	recorder  RunRecorder
	mirrors   []storage.Mirror
	kindDelay time.Duration
	paused    atomic.Bool
	log       *zap.Logger
}

func NewOrchestrator(d Deps) *Orchestrator {
	scrapers := make(map[models.DataKind]Scraper, len(d.Scrapers))
	for _, s := range d.Scrapers {
		scrapers[s.Kind()] = s
	}
	return &Orchestrator{
		provider:  d.Provider,
		scrapers:  scrapers,
		results:   d.Results,
		recorder:  d.Recorder,
		mirrors:   d.Mirrors,
		kindDelay: d.KindDelay,
		log:       d.Log.Named("orchestrator"),
	}
}

// Kinds returns the configured kinds in cycle order.
func (o *Orchestrator) Kinds() []models.DataKind {
	var kinds []models.DataKind
	for _, k := range models.AllKinds {
		if _, ok := o.scrapers[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// RunCycle scrapes every kind in order. A failing kind is recorded in the
// report and never stops the others. The error is non-nil only when no
// browser could be acquired or ctx was cancelled.
func (o *Orchestrator) RunCycle(ctx context.Context, trigger string) (*models.CycleReport, error) {
	return o.run(ctx, trigger, o.Kinds())
}

// RunKind scrapes a single kind with its own browser session.
func (o *Orchestrator) RunKind(ctx context.Context, kind models.DataKind, trigger string) (*models.CycleReport, error) {
	if _, ok := o.scrapers[kind]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return o.run(ctx, trigger, []models.DataKind{kind})
}

func (o *Orchestrator) Pause() {
	o.paused.Store(true)
	o.log.Info("scraper paused")
}

func (o *Orchestrator) Resume() {
	o.paused.Store(false)
	o.log.Info("scraper resumed")
}

func (o *Orchestrator) IsPaused() bool {
	return o.paused.Load()
}

func (o *Orchestrator) run(ctx context.Context, trigger string, kinds []models.DataKind) (*models.CycleReport, error) {
	report := models.NewCycleReport(trigger)
	log := o.log.With(zap.String("cycle", report.ID.String()), zap.String("trigger", trigger))

	run := &models.ScrapeRun{
		CycleID:   report.ID,
		Trigger:   trigger,
		StartedAt: report.StartedAt,
		Status:    models.RunStatusRunning,
	}
	o.createRun(run)

	session, err := o.provider.Acquire(ctx)
	if err != nil {
		log.Error("cycle aborted", zap.Error(err))
		report.FinishedAt = time.Now()
		o.finishRun(run, report, err)
		return nil, err
	}
	defer session.Release()

	log.Info("cycle started", zap.Int("kinds", len(kinds)))
	for i, kind := range kinds {
		if i > 0 && o.kindDelay > 0 {
			if err := sleepCtx(ctx, o.kindDelay); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}
		report.Outcomes[kind] = o.runKind(ctx, session, kind, run.ID)
	}
	report.FinishedAt = time.Now()

	if err := ctx.Err(); err != nil {
		for _, kind := range kinds {
			if _, ok := report.Outcomes[kind]; !ok {
				report.Outcomes[kind] = models.Outcome{Kind: kind, Status: models.OutcomeSkipped, Error: err.Error()}
			}
		}
		log.Warn("cycle cancelled", zap.Error(err))
		o.finishRun(run, report, err)
		return report, err
	}

	log.Info("cycle finished",
		zap.String("status", string(report.Status())),
		zap.Int("succeeded", len(report.Succeeded())),
		zap.Int("failed", len(report.Failed())),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)))
	o.finishRun(run, report, nil)
	return report, nil
}

func (o *Orchestrator) runKind(ctx context.Context, loader browser.Loader, kind models.DataKind, runID int64) (out models.Outcome) {
	start := time.Now()
	out = models.Outcome{Kind: kind}
	log := o.log.With(zap.String("kind", string(kind)))

	defer func() {
		if r := recover(); r != nil {
			out.Status = models.OutcomeFailed
			out.Error = fmt.Sprintf("panic: %v", r)
			log.Error("scraper panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
		out.Duration = time.Since(start)
		o.recordOutcome(runID, out)
	}()

	doc, err := o.scrapers[kind].Scrape(ctx, loader)
	if err != nil {
		out.Status = models.OutcomeFailed
		out.Error = err.Error()
		log.Error("scrape failed", zap.Error(err))
		return out
	}

	res, err := o.results.Write(kind, doc.Payload)
	if err != nil {
		out.Status = models.OutcomeFailed
		out.Error = err.Error()
		log.Error("persist failed", zap.Error(err))
		return out
	}

	out.Status = models.OutcomeSuccess
	out.Seasons = doc.Seasons
	out.Fingerprint = res.Fingerprint
	out.Unchanged = res.Unchanged
	log.Info("kind persisted",
		zap.Int("seasons", doc.Seasons),
		zap.Bool("unchanged", res.Unchanged),
		zap.String("path", res.Path))

	o.publish(ctx, kind, res)
	return out
}

func (o *Orchestrator) publish(ctx context.Context, kind models.DataKind, res *storage.WriteResult) {
	for _, m := range o.mirrors {
		if err := m.Publish(ctx, kind, res.Body, res.Fingerprint); err != nil {
			o.log.Warn("mirror publish failed",
				zap.String("kind", string(kind)), zap.String("mirror", m.Name()), zap.Error(err))
		}
	}
}

func (o *Orchestrator) createRun(run *models.ScrapeRun) {
	if o.recorder == nil {
		return
	}
	id, err := o.recorder.CreateRun(run)
	if err != nil {
		o.log.Warn("record run", zap.Error(err))
		return
	}
	run.ID = id
}

func (o *Orchestrator) finishRun(run *models.ScrapeRun, report *models.CycleReport, err error) {
	if o.recorder == nil {
		return
	}
	finished := report.FinishedAt
	run.FinishedAt = &finished
	run.KindsOK = len(report.Succeeded())
	run.KindsFailed = len(report.Failed())

	var errs []string
	for _, kind := range report.Failed() {
		errs = append(errs, fmt.Sprintf("%s: %s", kind, report.Outcomes[kind].Error))
	}
	if err != nil {
		run.Status = models.RunStatusFailed
		errs = append([]string{err.Error()}, errs...)
	} else {
		run.Status = report.Status()
	}
	run.Error = strings.Join(errs, "; ")

	if err := o.recorder.UpdateRun(run); err != nil {
		o.log.Warn("update run", zap.Error(err))
	}
}

func (o *Orchestrator) recordOutcome(runID int64, out models.Outcome) {
	if o.recorder == nil {
		return
	}
	level, msg := models.LogLevelInfo, fmt.Sprintf("%s: %d seasons", out.Kind.DisplayName(), out.Seasons)
	if out.Status != models.OutcomeSuccess {
		level, msg = models.LogLevelError, fmt.Sprintf("%s failed: %s", out.Kind.DisplayName(), out.Error)
	}
	if err := o.recorder.Log(&runID, level, msg, string(out.Kind)); err != nil {
		o.log.Warn("record log", zap.Error(err))
	}
	if err := o.recorder.UpdateKindStats(out); err != nil {
		o.log.Warn("record kind stats", zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
