/*
scheduler.go - Periodic post-migration verification

PURPOSE:
  While the rewritten site is being reviewed, files keep changing. The
  scheduler re-runs the verifier on an interval so that
  GET /api/reports/verify answers from a recent result instead of
  re-scanning the tree on every request.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - A failed run is logged and the previous result is kept

CONFIGURATION:
  - CheckInterval: How often to verify (default: 10 minutes)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewVerificationScheduler(handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: GetVerification endpoint
  - analyzer/verify.go: Verify
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// VerificationScheduler re-runs verification in the background.
type VerificationScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewVerificationScheduler creates a new scheduler.
func NewVerificationScheduler(handler *Handler) *VerificationScheduler {
	return &VerificationScheduler{
		Handler:       handler,
		CheckInterval: 10 * time.Minute,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (vs *VerificationScheduler) Start() {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if !vs.Enabled || vs.Handler.deps.Analyzer == nil {
		vs.Handler.logger.Info("scheduler: disabled, not starting")
		return
	}
	if vs.ticker != nil {
		return
	}

	vs.ticker = time.NewTicker(vs.CheckInterval)
	vs.stop = make(chan struct{})
	vs.wg.Add(1)

	go vs.run()

	vs.Handler.logger.Info("scheduler: started", zap.Duration("interval", vs.CheckInterval))
}

// Stop stops the scheduler and waits for a running check to finish.
func (vs *VerificationScheduler) Stop() {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.ticker != nil {
		vs.ticker.Stop()
		close(vs.stop)
		vs.wg.Wait()
		vs.ticker = nil
		vs.Handler.logger.Info("scheduler: stopped")
	}
}

func (vs *VerificationScheduler) run() {
	defer vs.wg.Done()

	// Run immediately on start
	vs.check()

	for {
		select {
		case <-vs.ticker.C:
			vs.check()
		case <-vs.stop:
			return
		}
	}
}

func (vs *VerificationScheduler) check() {
	v, err := vs.Handler.runVerification(context.Background())
	if err != nil {
		vs.Handler.logger.Warn("scheduler: verification failed", zap.Error(err))
		return
	}
	vs.Handler.logger.Info("scheduler: verification done",
		zap.Bool("pass", v.Pass),
		zap.Int("residual", len(v.Residual)))
}
