package daemon

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"pidish/internal/history"
	"pidish/internal/logging"
	"pidish/internal/notifications"
	"pidish/internal/printer"
)

// jobRecorder is the slice of history.Store the observer writes to.
type jobRecorder interface {
	Start(ctx context.Context, rec history.Record) error
	Finish(ctx context.Context, rec history.Record) error
}

// jobObserver writes job lifecycle events to the history store and sends
// alerts for finished jobs. Its callbacks run on the control goroutine and
// only queue work; run applies the writes in order on its own goroutine.
type jobObserver struct {
	store    jobRecorder
	notifier notifications.Service
	logger   *slog.Logger
	writes   chan func()
	drained  chan struct{}
	alerts   sync.WaitGroup
}

const (
	historyWriteTimeout = 2 * time.Second
	historyBacklog      = 32
	alertTimeout        = 15 * time.Second
)

var errHistoryBacklog = errors.New("history writer backlog full")

func newJobObserver(store jobRecorder, notifier notifications.Service, logger *slog.Logger) *jobObserver {
	return &jobObserver{
		store:    store,
		notifier: notifier,
		logger:   logger,
		writes:   make(chan func(), historyBacklog),
		drained:  make(chan struct{}),
	}
}

// run applies queued writes until wait closes the queue.
func (o *jobObserver) run() {
	defer close(o.drained)
	for write := range o.writes {
		write()
	}
}

// enqueue never blocks the caller. A full backlog drops the write.
func (o *jobObserver) enqueue(rec printer.JobRecord, write func()) {
	select {
	case o.writes <- write:
	default:
		o.warn(rec, errHistoryBacklog)
	}
}

func toRecord(rec printer.JobRecord) history.Record {
	out := history.Record{
		ID:          rec.ID,
		Kind:        string(rec.Kind),
		Object:      rec.Object,
		Path:        rec.Path,
		Exposure:    rec.Exposure,
		ExposureMax: rec.ExposureMax,
		Layers:      rec.Layers,
		LayersDone:  rec.LayersDone,
		Outcome:     string(rec.Outcome),
		Error:       rec.Error,
		StartedAt:   rec.StartedAt,
	}
	if !rec.FinishedAt.IsZero() {
		finished := rec.FinishedAt
		out.FinishedAt = &finished
	}
	return out
}

func (o *jobObserver) JobStarted(rec printer.JobRecord) {
	o.enqueue(rec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
		defer cancel()
		if err := o.store.Start(ctx, toRecord(rec)); err != nil {
			o.warn(rec, err)
		}
	})
}

func (o *jobObserver) JobFinished(rec printer.JobRecord) {
	o.enqueue(rec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
		defer cancel()
		if err := o.store.Finish(ctx, toRecord(rec)); err != nil {
			o.warn(rec, err)
		}
		o.alert(rec)
	})
}

func (o *jobObserver) alert(rec printer.JobRecord) {
	if rec.Outcome == printer.OutcomeRejected || !notifications.Enabled(o.notifier) {
		return
	}
	o.alerts.Add(1)
	go func() {
		defer o.alerts.Done()
		ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
		defer cancel()
		if err := o.notifier.NotifyJobFinished(ctx, rec); err != nil {
			logging.WithJob(o.logger, rec.ID).Warn("job notification failed", logging.Error(err))
		}
	}()
}

// notifyFault sends a fault alert and waits for it.
func (o *jobObserver) notifyFault(err error) {
	if !notifications.Enabled(o.notifier) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
	defer cancel()
	if nerr := o.notifier.NotifyFault(ctx, err); nerr != nil {
		o.logger.Warn("fault notification failed", logging.Error(nerr))
	}
}

// wait flushes queued history writes, then blocks until pending job alerts
// are delivered or time out. The observer must not be used afterwards.
func (o *jobObserver) wait() {
	close(o.writes)
	<-o.drained
	o.alerts.Wait()
}

func (o *jobObserver) warn(rec printer.JobRecord, err error) {
	logging.WarnWithContext(logging.WithJob(o.logger, rec.ID), "could not record job history", "history_write_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the history database in state_dir"),
		logging.String(logging.FieldImpact, "job missing from pidish history"),
	)
}
