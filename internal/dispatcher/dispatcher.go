// Package dispatcher turns timer ticks and manual triggers into sweeps.
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/egemenkeskn/trader-server/internal/models"
	"github.com/egemenkeskn/trader-server/internal/persistence"
	"github.com/egemenkeskn/trader-server/internal/reporter"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned by Trigger when the event buffer is saturated.
	ErrQueueFull = errors.New("trigger queue is full")
	// ErrStopped is returned by Trigger after Stop.
	ErrStopped = errors.New("dispatcher stopped")
)

// EventType defines the type of a dispatcher event
type EventType int

const (
	TickEvent EventType = iota
	ManualTriggerEvent
)

// Event is a request to run one sweep.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Request   models.SweepRequest
}

// SweepRunner runs a single sweep to completion.
type SweepRunner interface {
	RunSweep(ctx context.Context, req models.SweepRequest) (*models.SweepSummary, error)
}

const defaultQueueSize = 64

// Dispatcher receives events on a buffered channel and starts one sweep per
// event in its own goroutine, so the loop never waits on an in-flight sweep.
// Finished summaries are persisted asynchronously.
type Dispatcher struct {
	runner          SweepRunner
	repo            persistence.SweepRepository
	eventChannel    chan Event
	persistenceChan chan *models.SweepSummary
	stopChan        chan struct{}
	loopDone        chan struct{}
	persistDone     chan struct{}
	sweeps          sync.WaitGroup
	stopOnce        sync.Once
	ctx             context.Context
	clock           func() time.Time
	logger          *zap.Logger
}

// New creates a new Dispatcher. repo may be nil.
func New(runner SweepRunner, repo persistence.SweepRepository, logger *zap.Logger) *Dispatcher {
	return newDispatcher(runner, repo, defaultQueueSize, time.Now, logger)
}

func newDispatcher(runner SweepRunner, repo persistence.SweepRepository, queueSize int, clock func() time.Time, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		runner:          runner,
		repo:            repo,
		eventChannel:    make(chan Event, queueSize),
		persistenceChan: make(chan *models.SweepSummary, 128),
		stopChan:        make(chan struct{}),
		loopDone:        make(chan struct{}),
		persistDone:     make(chan struct{}),
		ctx:             context.Background(),
		clock:           clock,
		logger:          logger,
	}
}

// Start begins the event and persistence loops. Sweeps run under ctx.
func (d *Dispatcher) Start(ctx context.Context) {
	d.ctx = ctx
	go d.eventLoop()
	go d.persistenceLoop()
	d.logger.Info("Dispatcher started.")
}

// Stop stops accepting events, waits for in-flight sweeps and flushes
// their summaries.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopChan)
		<-d.loopDone
		d.sweeps.Wait()
		close(d.persistenceChan)
		<-d.persistDone
		d.logger.Info("Dispatcher stopped.")
	})
}

// Trigger enqueues a manual sweep and returns immediately.
func (d *Dispatcher) Trigger(accountID string, force bool) error {
	return d.dispatch(Event{
		Type:      ManualTriggerEvent,
		Timestamp: d.clock(),
		Request:   models.SweepRequest{AccountID: accountID, Force: force, Source: models.TriggerManual},
	})
}

// Tick enqueues a timer sweep over all automation-enabled accounts.
func (d *Dispatcher) Tick() error {
	return d.dispatch(Event{
		Type:      TickEvent,
		Timestamp: d.clock(),
		Request:   models.SweepRequest{Source: models.TriggerTimer},
	})
}

func (d *Dispatcher) dispatch(ev Event) error {
	select {
	case <-d.stopChan:
		return ErrStopped
	default:
	}
	select {
	case d.eventChannel <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// eventLoop hands every event to its own sweep goroutine.
func (d *Dispatcher) eventLoop() {
	defer close(d.loopDone)
	for {
		select {
		case ev := <-d.eventChannel:
			d.sweeps.Add(1)
			go d.runSweep(ev)
		case <-d.stopChan:
			return
		}
	}
}

func (d *Dispatcher) runSweep(ev Event) {
	defer d.sweeps.Done()

	d.logger.Debug("Sweep started",
		zap.String("source", string(ev.Request.Source)),
		zap.String("account", ev.Request.AccountID),
		zap.Bool("force", ev.Request.Force),
		zap.Duration("queued", d.clock().Sub(ev.Timestamp)))

	summary, err := d.runner.RunSweep(d.ctx, ev.Request)
	if err != nil {
		d.logger.Error("Sweep aborted", zap.Error(err))
	}
	if summary != nil {
		d.persistenceChan <- summary
	}
}

// persistenceLoop handles the asynchronous saving of sweep summaries.
func (d *Dispatcher) persistenceLoop() {
	defer close(d.persistDone)
	for summary := range d.persistenceChan {
		reporter.LogSummary(d.logger, summary)
		if d.repo == nil {
			continue
		}
		if err := d.repo.SaveSweep(summary); err != nil {
			d.logger.Error("Failed to save sweep summary", zap.String("sweep", summary.ID), zap.Error(err))
		}
	}
}
