package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"f2_scrooper/models"
)

type State string

const (
	StateIdle         State = "idle"
	StateRunning      State = "running"
	StateSleeping     State = "sleeping"
	StateErrorBackoff State = "error_backoff"
	StateStopped      State = "stopped"
)

const (
	TriggerSchedule = "schedule"
	TriggerCommand  = "command"
	TriggerManual   = "manual"
)

var ErrStopped = errors.New("scheduler stopped")

// Runner executes scrape cycles. *scraper.Orchestrator satisfies it.
type Runner interface {
	RunCycle(ctx context.Context, trigger string) (*models.CycleReport, error)
	RunKind(ctx context.Context, kind models.DataKind, trigger string) (*models.CycleReport, error)
	Pause()
	Resume()
	IsPaused() bool
}

// CommandStore is the queue external tools write commands into.
type CommandStore interface {
	GetPendingCommands() ([]models.Command, error)
	MarkCommandProcessed(id int64) error
	ParseCommandParams(cmd *models.Command) (*models.CommandParams, error)
}

type Options struct {
	Interval     time.Duration
	Cron         string
	ErrorBackoff time.Duration
	PollInterval time.Duration
	Clock        Clock
}

// Status is a point-in-time view for the status endpoint.
type Status struct {
	State      State               `json:"state"`
	Paused     bool                `json:"paused"`
	NextRun    *time.Time          `json:"next_run,omitempty"`
	LastRunAt  *time.Time          `json:"last_run_at,omitempty"`
	LastError  string              `json:"last_error,omitempty"`
	LastReport *models.CycleReport `json:"last_report,omitempty"`
}

type request struct {
	kind    models.DataKind
	trigger string
	reply   chan result
}

type result struct {
	report *models.CycleReport
	err    error
}

// Scheduler owns the only goroutine that runs cycles. Scheduled runs, manual
// triggers and queued commands are all serialized through it.
type Scheduler struct {
	runner   Runner
	commands CommandStore
	opts     Options
	schedule cron.Schedule
	clock    Clock
	log      *zap.Logger

	requests chan request
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu      sync.RWMutex
	state   State
	nextRun time.Time
	lastRun time.Time
	lastErr string
	last    *models.CycleReport
}

func New(runner Runner, commands CommandStore, opts Options, log *zap.Logger) (*Scheduler, error) {
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}

	s := &Scheduler{
		runner:   runner,
		commands: commands,
		opts:     opts,
		clock:    opts.Clock,
		log:      log.Named("scheduler"),
		requests: make(chan request),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		state:    StateIdle,
	}

	if opts.Cron != "" {
		schedule, err := cron.ParseStandard(opts.Cron)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression: %w", err)
		}
		s.schedule = schedule
	} else if opts.Interval <= 0 {
		return nil, fmt.Errorf("either an interval or a cron expression is required")
	}

	return s, nil
}

// Start runs one cycle immediately and then keeps to the schedule until ctx
// is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	if s.schedule != nil {
		s.log.Info("starting scheduler", zap.String("cron", s.opts.Cron))
	} else {
		s.log.Info("starting scheduler", zap.Duration("interval", s.opts.Interval))
	}
	go s.loop(ctx)
}

// Stop ends the loop and waits for an in-flight cycle to wind down. The
// cycle's context is cancelled.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
}

func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Trigger asks the loop to run a cycle, or only kind when it is non-empty,
// and waits for the report.
func (s *Scheduler) Trigger(ctx context.Context, kind models.DataKind) (*models.CycleReport, error) {
	req := request{kind: kind, trigger: TriggerManual, reply: make(chan result, 1)}

	select {
	case s.requests <- req:
	case <-s.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.report, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Scheduler) State() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		State:      s.state,
		Paused:     s.runner.IsPaused(),
		LastError:  s.lastErr,
		LastReport: s.last,
	}
	if !s.nextRun.IsZero() && s.state != StateStopped {
		next := s.nextRun
		st.NextRun = &next
	}
	if !s.lastRun.IsZero() {
		last := s.lastRun
		st.LastRunAt = &last
	}
	return st
}

func (s *Scheduler) loop(parent context.Context) {
	defer close(s.done)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	wait := fired()
	var poll <-chan time.Time
	if s.commands != nil {
		poll = s.clock.After(s.opts.PollInterval)
	}

	for {
		select {
		case <-ctx.Done():
			s.setState(StateStopped)
			s.log.Info("scheduler stopped")
			return

		case <-wait:
			if s.runner.IsPaused() {
				s.log.Info("scraper is paused, skipping scheduled cycle")
				wait = s.sleep(StateSleeping, s.nextFire())
				continue
			}
			_, err := s.runCycle(ctx, "", TriggerSchedule)
			if ctx.Err() != nil {
				continue
			}
			if err != nil {
				wait = s.sleep(StateErrorBackoff, s.clock.Now().Add(s.opts.ErrorBackoff))
			} else {
				wait = s.sleep(StateSleeping, s.nextFire())
			}

		case req := <-s.requests:
			report, err := s.runCycle(ctx, req.kind, req.trigger)
			req.reply <- result{report: report, err: err}

		case <-poll:
			s.pollCommands(ctx)
			poll = s.clock.After(s.opts.PollInterval)
		}
	}
}

// runCycle runs on the loop goroutine only. The state it interrupted is
// restored afterwards so manual runs do not disturb the schedule.
func (s *Scheduler) runCycle(ctx context.Context, kind models.DataKind, trigger string) (*models.CycleReport, error) {
	prev := s.setState(StateRunning)

	var (
		report *models.CycleReport
		err    error
	)
	if kind == "" {
		report, err = s.runner.RunCycle(ctx, trigger)
	} else {
		report, err = s.runner.RunKind(ctx, kind, trigger)
	}

	s.mu.Lock()
	s.lastRun = s.clock.Now()
	if report != nil {
		s.last = report
	}
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("cycle failed", zap.String("trigger", trigger), zap.String("kind", string(kind)), zap.Error(err))
	}

	if trigger != TriggerSchedule {
		s.setState(prev)
	}
	return report, err
}

func (s *Scheduler) sleep(state State, until time.Time) <-chan time.Time {
	s.mu.Lock()
	s.state = state
	s.nextRun = until
	s.mu.Unlock()

	d := until.Sub(s.clock.Now())
	s.log.Info("next cycle scheduled", zap.String("state", string(state)), zap.Time("at", until), zap.Duration("in", d))
	return s.clock.After(d)
}

func (s *Scheduler) nextFire() time.Time {
	now := s.clock.Now()
	if s.schedule != nil {
		return s.schedule.Next(now)
	}
	return now.Add(s.opts.Interval)
}

func (s *Scheduler) setState(state State) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	s.state = state
	return prev
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	cmds, err := s.commands.GetPendingCommands()
	if err != nil {
		s.log.Warn("get commands", zap.Error(err))
		return
	}

	for _, cmd := range cmds {
		s.log.Info("processing command", zap.String("command", string(cmd.Command)), zap.Int64("id", cmd.ID))
		if err := s.handleCommand(ctx, &cmd); err != nil {
			s.log.Error("command failed", zap.String("command", string(cmd.Command)), zap.Error(err))
		}
		if err := s.commands.MarkCommandProcessed(cmd.ID); err != nil {
			s.log.Warn("mark command processed", zap.Error(err))
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	params, err := s.commands.ParseCommandParams(cmd)
	if err != nil {
		return err
	}

	switch cmd.Command {
	case models.CmdScrapeNow:
		_, err = s.runCycle(ctx, "", TriggerCommand)
		return err
	case models.CmdScrapeKind:
		kind, ok := models.ParseKind(params.Kind)
		if !ok {
			return fmt.Errorf("unknown kind %q", params.Kind)
		}
		_, err = s.runCycle(ctx, kind, TriggerCommand)
		return err
	case models.CmdPause:
		s.runner.Pause()
	case models.CmdResume:
		s.runner.Resume()
	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}
	return nil
}

func fired() <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}
