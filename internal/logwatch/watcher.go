// Package logwatch tails the game server log and forwards safelog departures.
package logwatch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/park285/isle-dino-bot/internal/domain"
	"github.com/park285/isle-dino-bot/internal/metrics"
	"github.com/park285/isle-dino-bot/internal/obslog"
)

// Handler receives one departure. It runs on a worker goroutine.
type Handler func(ctx context.Context, ev domain.Departure) error

type Options struct {
	// PollInterval rereads the file even without notifications. Some
	// filesystems (network shares, Windows hosts) drop write events.
	PollInterval time.Duration
	Workers      int
	QueueSize    int
	// FromStart replays the whole file on startup.
	FromStart      bool
	HandlerTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.HandlerTimeout <= 0 {
		o.HandlerTimeout = 30 * time.Second
	}
}

// Watcher reads the log on change notifications or poll ticks and hands
// departures to a bounded queue drained by workers. The read loop never waits
// for a handler.
type Watcher struct {
	path   string
	tail   *Tailer
	handle Handler
	opts   Options

	queue chan domain.Departure
	wg    sync.WaitGroup
}

func New(path string, handle Handler, opts Options) *Watcher {
	opts.applyDefaults()
	return &Watcher{
		path:   filepath.Clean(path),
		tail:   NewTailer(path, !opts.FromStart),
		handle: handle,
		opts:   opts,
		queue:  make(chan domain.Departure, opts.QueueSize),
	}
}

// Run blocks until ctx is done. Queued departures are drained before return.
func (w *Watcher) Run(ctx context.Context) error {
	for i := 0; i < w.opts.Workers; i++ {
		w.wg.Add(1)
		go w.worker(ctx, i)
	}
	defer func() {
		close(w.queue)
		w.wg.Wait()
	}()

	var events <-chan fsnotify.Event
	var errs <-chan error
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		obslog.L().Warn("logwatch_fsnotify_unavailable", zap.Error(err))
	} else {
		defer fsw.Close()
		// the directory survives log rotation, the file inode does not
		if err := fsw.Add(filepath.Dir(w.path)); err != nil {
			obslog.L().Warn("logwatch_watch_failed", zap.String("dir", filepath.Dir(w.path)), zap.Error(err))
		} else {
			events, errs = fsw.Events, fsw.Errors
		}
	}

	obslog.L().Info("logwatch_started",
		zap.String("path", w.path),
		zap.Duration("poll", w.opts.PollInterval),
		zap.Int("workers", w.opts.Workers),
		zap.Bool("notify", events != nil),
	)

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	w.readNow()
	for {
		select {
		case <-ctx.Done():
			obslog.L().Info("logwatch_stopped", zap.Int64("offset", w.tail.Offset()))
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				w.readNow()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			obslog.L().Warn("logwatch_notify_error", zap.Error(err))
		case <-ticker.C:
			w.readNow()
		}
	}
}

// readNow never fails the loop; a bad read is retried on the next trigger.
func (w *Watcher) readNow() {
	truncated, err := w.tail.ReadNew(w.handleLine)
	if truncated {
		metrics.LogTruncationsTotal.Inc()
		obslog.L().Info("logwatch_truncated", zap.String("path", w.path))
	}
	if err != nil {
		metrics.LogReadErrorsTotal.Inc()
		obslog.L().Warn("logwatch_read_error", zap.String("path", w.path), zap.Error(err))
	}
}

func (w *Watcher) handleLine(line string) {
	metrics.LogLinesReadTotal.Inc()
	ev, err := ParseDeparture(line)
	switch {
	case errors.Is(err, ErrNotDeparture):
		return
	case err != nil:
		metrics.DeparturesDroppedTotal.WithLabelValues("incomplete").Inc()
		obslog.L().Info("logwatch_departure_incomplete", zap.String("line", line))
		return
	}
	w.enqueue(ev)
}

func (w *Watcher) enqueue(ev domain.Departure) {
	select {
	case w.queue <- ev:
		metrics.DeparturesTotal.Inc()
	default:
		metrics.DeparturesDroppedTotal.WithLabelValues("queue_full").Inc()
		obslog.L().Error("logwatch_queue_full",
			zap.String("steam_id", ev.SteamID),
			zap.String("species", ev.Species),
			zap.Float64("growth", ev.Growth),
		)
	}
}

func (w *Watcher) worker(ctx context.Context, id int) {
	defer w.wg.Done()
	// in-flight departures finish after shutdown starts
	base := context.WithoutCancel(ctx)
	for ev := range w.queue {
		hctx, cancel := context.WithTimeout(base, w.opts.HandlerTimeout)
		if err := w.handle(hctx, ev); err != nil {
			obslog.L().Warn("logwatch_handler_failed",
				zap.Int("worker_id", id),
				zap.String("steam_id", ev.SteamID),
				zap.Error(err),
			)
		}
		cancel()
	}
}
