package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"ln-donations/internal/besteffort"
	"ln-donations/internal/models"
	"ln-donations/internal/processor"
	"ln-donations/internal/retry"
	"ln-donations/internal/retry/backoff"
)

// Backend is the server side of the checkout flow.
type Backend interface {
	CreateInvoice(ctx context.Context, intent models.DonationIntent) (*processor.Invoice, error)
	PaymentMethods(ctx context.Context, invoiceID string) ([]processor.PaymentMethod, error)
	InvoiceStatus(ctx context.Context, invoiceID string) (string, error)
	SendReceipt(ctx context.Context, invoiceID string) error
}

// Config controls the controller's timers.
type Config struct {
	CountdownSeconds int
	TickInterval     time.Duration
	PollInterval     time.Duration
	ReceiptDelay     time.Duration

	ResolveAttempts uint
	ResolveBackoff  time.Duration

	QRSize int
}

func DefaultConfig() Config {
	return Config{
		CountdownSeconds: 900,
		TickInterval:     time.Second,
		PollInterval:     3 * time.Second,
		ReceiptDelay:     2 * time.Second,
		ResolveAttempts:  3,
		ResolveBackoff:   2 * time.Second,
		QRSize:           256,
	}
}

var errNoDestination = errors.New("invoice has no payment destination")

// Controller drives a Session. A single goroutine (Run) owns the session and
// applies events; timers and network calls feed events back to it.
type Controller struct {
	log        *logrus.Entry
	cfg        Config
	machine    Machine
	backend    Backend
	classifier *processor.Classifier
	sideEffect *besteffort.Runner
	observers  []func(Session)

	events chan Event
	done   chan struct{}

	mu      sync.RWMutex
	session Session

	stopTimers context.CancelFunc
	workers    sync.WaitGroup
}

type ControllerOption func(*Controller)

// WithObserver registers fn to receive every session change. Observers run on
// the event loop and must not block.
func WithObserver(fn func(Session)) ControllerOption {
	return func(c *Controller) {
		c.observers = append(c.observers, fn)
	}
}

func NewController(backend Backend, classifier *processor.Classifier, log *logrus.Entry, cfg Config, opts ...ControllerOption) *Controller {
	if classifier == nil {
		classifier = processor.NewClassifier()
	}
	c := &Controller{
		log:        log,
		cfg:        cfg,
		machine:    Machine{CountdownSeconds: cfg.CountdownSeconds, ReceiptDelay: cfg.ReceiptDelay},
		backend:    backend,
		classifier: classifier,
		sideEffect: besteffort.New(log),
		events:     make(chan Event, 16),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns a snapshot of the current session.
func (c *Controller) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Dispatch queues e for the event loop. It returns false when the loop has
// stopped or ctx is done first.
func (c *Controller) Dispatch(ctx context.Context, e Event) bool {
	select {
	case c.events <- e:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Run processes events until ctx is done. On return every timer is stopped
// and pending receipt sends have finished.
func (c *Controller) Run(ctx context.Context) error {
	defer func() {
		close(c.done)
		c.cancelTimers()
		c.workers.Wait()
		c.sideEffect.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-c.events:
			c.apply(ctx, e)
		}
	}
}

func (c *Controller) apply(ctx context.Context, e Event) {
	// Only this goroutine writes the session, so reading it unlocked is safe.
	before := c.session
	next, effects := c.machine.Reduce(before, e)

	if next.Phase != before.Phase {
		c.log.WithFields(logrus.Fields{
			"method":     "apply",
			"from":       before.Phase.String(),
			"to":         next.Phase.String(),
			"invoice_id": next.InvoiceID,
			"attempt":    next.Attempt,
		}).Debug("checkout transition")
	}

	for _, effect := range effects {
		c.perform(ctx, effect)
	}

	c.mu.Lock()
	c.session = next
	c.mu.Unlock()

	for _, observe := range c.observers {
		observe(next)
	}
}

func (c *Controller) perform(ctx context.Context, effect Effect) {
	switch effect := effect.(type) {
	case CreateInvoice:
		c.workers.Add(1)
		go func() {
			defer c.workers.Done()
			c.createInvoice(ctx, effect)
		}()

	case StartTimers:
		c.cancelTimers()
		timerCtx, cancel := context.WithCancel(ctx)
		c.stopTimers = cancel

		c.workers.Add(2)
		go func() {
			defer c.workers.Done()
			c.countdown(timerCtx, effect.Attempt)
		}()
		go func() {
			defer c.workers.Done()
			c.poll(timerCtx, effect.Attempt, effect.InvoiceID)
		}()

	case StopTimers:
		c.cancelTimers()

	case ScheduleReceipt:
		invoiceID := effect.InvoiceID
		// Stopping the controller sends a pending receipt right away.
		c.sideEffect.Deferred(ctx, "send-receipt", effect.Delay, func(ctx context.Context) error {
			return c.backend.SendReceipt(ctx, invoiceID)
		})
	}
}

func (c *Controller) cancelTimers() {
	if c.stopTimers != nil {
		c.stopTimers()
		c.stopTimers = nil
	}
}

func (c *Controller) createInvoice(ctx context.Context, effect CreateInvoice) {
	log := c.log.WithFields(logrus.Fields{
		"method":  "createInvoice",
		"attempt": effect.Attempt,
	})

	invoice, err := c.backend.CreateInvoice(ctx, effect.Intent)
	if err != nil {
		log.WithError(err).Warn("failure creating invoice")
		c.Dispatch(ctx, InvoiceFailed{Attempt: effect.Attempt, Err: err})
		return
	}
	log = log.WithField("invoice_id", invoice.ID)

	destination, err := c.resolveDestination(ctx, invoice)
	if err != nil {
		log.WithError(err).Warn("failure resolving payment destination")
		c.Dispatch(ctx, InvoiceFailed{Attempt: effect.Attempt, Err: err})
		return
	}

	target, err := NewPaymentTarget(destination, c.cfg.QRSize)
	if err != nil {
		c.Dispatch(ctx, InvoiceFailed{Attempt: effect.Attempt, Err: err})
		return
	}

	log.WithField("lightning", target.IsLightning).Debug("invoice ready")
	c.Dispatch(ctx, InvoiceReady{Attempt: effect.Attempt, InvoiceID: invoice.ID, Target: target})
}

// resolveDestination looks for a Lightning payment request, giving the
// processor a few attempts to provision one, and falls back to the invoice's
// checkout link.
func (c *Controller) resolveDestination(ctx context.Context, invoice *processor.Invoice) (string, error) {
	log := c.log.WithFields(logrus.Fields{
		"method":     "resolveDestination",
		"invoice_id": invoice.ID,
	})

	var destination string
	attempts, err := retry.Retry(
		ctx,
		func(ctx context.Context) error {
			methods, err := c.backend.PaymentMethods(ctx, invoice.ID)
			if err != nil {
				return err
			}
			found, ok := c.classifier.Destination(methods)
			if !ok {
				return errNoDestination
			}
			destination = found
			return nil
		},
		retry.Limit(c.cfg.ResolveAttempts),
		retry.Backoff(backoff.Constant(c.cfg.ResolveBackoff), c.cfg.ResolveBackoff),
	)
	if err == nil {
		return destination, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	log.WithError(err).WithField("attempts", attempts).Info("no lightning destination, using checkout link")
	if invoice.CheckoutLink == "" {
		return "", errNoDestination
	}
	return invoice.CheckoutLink, nil
}

func (c *Controller) countdown(ctx context.Context, attempt uint64) {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.Dispatch(ctx, Tick{Attempt: attempt}) {
				return
			}
		}
	}
}

func (c *Controller) poll(ctx context.Context, attempt uint64, invoiceID string) {
	log := c.log.WithFields(logrus.Fields{
		"method":     "poll",
		"invoice_id": invoiceID,
	})

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			status, err := c.backend.InvoiceStatus(ctx, invoiceID)
			if err != nil {
				if ctx.Err() == nil {
					log.WithError(err).Debug("failure polling invoice status")
				}
				continue
			}
			if !c.Dispatch(ctx, StatusObserved{Attempt: attempt, Status: status}) {
				return
			}
		}
	}
}
