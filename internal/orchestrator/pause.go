package orchestrator

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// PauseFile is created in the state directory to ask the loop to pause at
// the next session boundary.
const PauseFile = "PAUSE"

// PauseSource decides, between sessions, whether the loop should stop.
type PauseSource interface {
	// Wait blocks for up to window and reports whether a pause was
	// requested before or during it.
	Wait(ctx context.Context, window time.Duration) bool
}

// Pauser honours two pause requests: a PAUSE file appearing in the state
// directory, and SIGINT/SIGTERM. A running session is never interrupted by
// the first signal; it is remembered until the next boundary. A second
// signal invokes the hard-stop function.
type Pauser struct {
	path     string
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	hardStop context.CancelFunc

	interrupts atomic.Int32
	notify     chan struct{}
	signals    chan os.Signal
	stopCh     chan struct{}
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// PauserOption configures a Pauser.
type PauserOption func(*Pauser)

// WithHardStop sets the function called on a second interrupt, typically
// the cancel func of the run's context.
func WithHardStop(cancel context.CancelFunc) PauserOption {
	return func(p *Pauser) {
		p.hardStop = cancel
	}
}

// WithPauseLogger sets the logger.
func WithPauseLogger(l *zap.Logger) PauserOption {
	return func(p *Pauser) {
		p.logger = l
	}
}

// WithSignals subscribes the pauser to SIGINT and SIGTERM.
func WithSignals() PauserOption {
	return func(p *Pauser) {
		p.signals = make(chan os.Signal, 2)
	}
}

// NewPauser watches stateDir for the pause file. A stale pause file left
// from an earlier run is removed so it does not stop the new run at once.
func NewPauser(stateDir string, opts ...PauserOption) (*Pauser, error) {
	p := &Pauser{
		path:   filepath.Join(stateDir, PauseFile),
		logger: zap.NewNop(),
		notify: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(stateDir); err != nil {
		_ = w.Close()
		return nil, err
	}
	p.watcher = w

	if p.signals != nil {
		signal.Notify(p.signals, os.Interrupt, syscall.SIGTERM)
	}

	p.wg.Add(1)
	go p.run()
	return p, nil
}

// Path returns the pause file path.
func (p *Pauser) Path() string {
	return p.path
}

func (p *Pauser) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) == p.path && event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				p.logger.Debug("pause file detected", zap.String("path", p.path))
				p.wake()
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("pause watcher error", zap.Error(err))
		case sig := <-p.signals:
			p.logger.Info("signal received", zap.String("signal", sig.String()))
			p.Interrupt()
		}
	}
}

// Interrupt records an interrupt. The first one requests a pause; any
// further one triggers the hard stop.
func (p *Pauser) Interrupt() {
	if p.interrupts.Add(1) > 1 && p.hardStop != nil {
		p.hardStop()
	}
	p.wake()
}

func (p *Pauser) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Requested reports whether a pause is pending.
func (p *Pauser) Requested() bool {
	if p.interrupts.Load() > 0 {
		return true
	}
	_, err := os.Stat(p.path)
	return err == nil
}

// Wait implements PauseSource. An honoured pause file is consumed.
func (p *Pauser) Wait(ctx context.Context, window time.Duration) bool {
	timer := time.NewTimer(window)
	defer timer.Stop()
	for {
		if p.Requested() {
			p.consume()
			return true
		}
		select {
		case <-ctx.Done():
			return true
		case <-p.notify:
		case <-timer.C:
			// The stat covers events the watcher may have coalesced.
			if p.Requested() {
				p.consume()
				return true
			}
			return false
		}
	}
}

func (p *Pauser) consume() {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("could not remove pause file", zap.String("path", p.path), zap.Error(err))
	}
}

// Close stops watching and unsubscribes from signals.
func (p *Pauser) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.signals != nil {
			signal.Stop(p.signals)
		}
		close(p.stopCh)
		p.wg.Wait()
		err = p.watcher.Close()
	})
	return err
}

// sleepPause is the PauseSource used when none is configured: it waits out
// the window and only stops on cancellation.
type sleepPause struct{}

func (sleepPause) Wait(ctx context.Context, window time.Duration) bool {
	t := time.NewTimer(window)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-t.C:
		return false
	}
}
