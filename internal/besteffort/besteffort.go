// Package besteffort runs side effects whose failure must not change the
// outcome of the operation they accompany. Errors and panics are logged and
// absorbed.
package besteffort

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Task is a best-effort side effect.
type Task func(ctx context.Context) error

// Runner executes tasks inside an error boundary. Wait blocks until every
// task started through Go or After has finished.
type Runner struct {
	log *logrus.Entry
	wg  sync.WaitGroup
}

func New(log *logrus.Entry) *Runner {
	return &Runner{log: log}
}

// Run executes task synchronously and reports whether it succeeded.
func (r *Runner) Run(ctx context.Context, name string, task Task) (ok bool) {
	log := r.log.WithField("task", name)

	defer func() {
		if p := recover(); p != nil {
			log.WithError(fmt.Errorf("panic: %v", p)).Error("best-effort task panicked")
			ok = false
		}
	}()

	if err := task(ctx); err != nil {
		log.WithError(err).Warn("best-effort task failed")
		return false
	}
	return true
}

// Go executes task in its own goroutine. The task does not inherit
// cancellation from ctx, only its values.
func (r *Runner) Go(ctx context.Context, name string, task Task) {
	r.After(ctx, name, 0, task)
}

// After executes task once after delay. Cancelling ctx before the delay
// elapses skips the task.
func (r *Runner) After(ctx context.Context, name string, delay time.Duration, task Task) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()

			select {
			case <-ctx.Done():
				r.log.WithField("task", name).Debug("best-effort task cancelled before start")
				return
			case <-timer.C:
			}
		}

		r.Run(context.WithoutCancel(ctx), name, task)
	}()
}

// Deferred executes task once after delay, or as soon as ctx is done if that
// comes first. Unlike After, cancellation brings the task forward instead of
// dropping it.
func (r *Runner) Deferred(ctx context.Context, name string, delay time.Duration, task Task) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			r.log.WithField("task", name).Debug("running deferred task early on shutdown")
		case <-timer.C:
		}

		r.Run(context.WithoutCancel(ctx), name, task)
	}()
}

// Wait blocks until all asynchronous tasks have returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}
