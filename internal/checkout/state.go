package checkout

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ln-donations/internal/models"
	"ln-donations/internal/processor"
)

// Phase is a step of the checkout flow.
type Phase int

const (
	PhaseTierSelection Phase = iota
	PhaseDetailsEntry
	PhaseInvoiceCreation
	PhaseAwaitingPayment
	PhaseSettled
	PhaseExpired
)

func (p Phase) String() string {
	switch p {
	case PhaseTierSelection:
		return "tier_selection"
	case PhaseDetailsEntry:
		return "details_entry"
	case PhaseInvoiceCreation:
		return "invoice_creation"
	case PhaseAwaitingPayment:
		return "awaiting_payment"
	case PhaseSettled:
		return "settled"
	case PhaseExpired:
		return "expired"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Session is the state of one donor's checkout. Attempt increases every time
// an invoice attempt starts or is abandoned, so events produced for an older
// attempt can be recognised and dropped.
type Session struct {
	Phase   Phase
	Intent  models.DonationIntent
	Attempt uint64

	InvoiceID string
	Target    *PaymentTarget
	Remaining int
	Status    string

	Error string
}

// Countdown renders the remaining time as MM:SS.
func (s Session) Countdown() string {
	return FormatCountdown(s.Remaining)
}

// FormatCountdown renders seconds as zero padded MM:SS.
func FormatCountdown(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func (s *Session) clearInvoice() {
	s.InvoiceID = ""
	s.Target = nil
	s.Remaining = 0
	s.Status = ""
}

// Event is an input to the state machine.
type Event interface {
	event()
}

type (
	// TierSelected picks a donation tier.
	TierSelected struct{ Tier models.Tier }

	// Continue submits the details form. Amount is only read for the custom
	// tier.
	Continue struct {
		Amount       decimal.Decimal
		DonationType models.DonationType
		Name         string
		Email        string
	}

	// InvoiceReady reports that an invoice exists and has a payable target.
	InvoiceReady struct {
		Attempt   uint64
		InvoiceID string
		Target    *PaymentTarget
	}

	// InvoiceFailed reports that invoice creation or target resolution failed.
	InvoiceFailed struct {
		Attempt uint64
		Err     error
	}

	// Tick is one second of countdown.
	Tick struct{ Attempt uint64 }

	// StatusObserved carries a polled processor status.
	StatusObserved struct {
		Attempt uint64
		Status  string
	}

	// Back leaves the current step without expiring anything.
	Back struct{}

	// Retry creates a fresh invoice after expiry.
	Retry struct{}

	// DonateAgain starts over after a settled donation.
	DonateAgain struct{}
)

func (TierSelected) event()   {}
func (Continue) event()       {}
func (InvoiceReady) event()   {}
func (InvoiceFailed) event()  {}
func (Tick) event()           {}
func (StatusObserved) event() {}
func (Back) event()           {}
func (Retry) event()          {}
func (DonateAgain) event()    {}

// Effect is work the controller performs after a transition.
type Effect interface {
	effect()
}

type (
	// CreateInvoice asks for a new invoice and its payment target.
	CreateInvoice struct {
		Attempt uint64
		Intent  models.DonationIntent
	}

	// StartTimers starts the countdown and the status poller.
	StartTimers struct {
		Attempt   uint64
		InvoiceID string
	}

	// StopTimers stops the countdown and the status poller together.
	StopTimers struct{}

	// ScheduleReceipt sends the receipt for an invoice once, after Delay.
	ScheduleReceipt struct {
		InvoiceID string
		Delay     time.Duration
	}
)

func (CreateInvoice) effect()   {}
func (StartTimers) effect()     {}
func (StopTimers) effect()      {}
func (ScheduleReceipt) effect() {}

// Machine is the checkout automaton. Reduce is pure; all time and I/O lives
// in the controller.
type Machine struct {
	CountdownSeconds int
	ReceiptDelay     time.Duration
}

// Reduce applies e to s. Events that do not apply to the current phase or
// belong to an older attempt leave the session unchanged.
func (m Machine) Reduce(s Session, e Event) (Session, []Effect) {
	switch e := e.(type) {
	case TierSelected:
		if s.Phase != PhaseTierSelection && s.Phase != PhaseDetailsEntry {
			return s, nil
		}
		if !e.Tier.Valid() {
			s.Error = fmt.Sprintf("unknown tier %q", e.Tier)
			return s, nil
		}
		s.Phase = PhaseDetailsEntry
		s.Intent = models.DonationIntent{Tier: e.Tier}
		if info, _ := e.Tier.Info(); !e.Tier.CustomAmount() {
			s.Intent.Amount = info.SuggestedAmount
		}
		s.Error = ""
		return s, nil

	case Continue:
		if s.Phase != PhaseDetailsEntry {
			return s, nil
		}
		intent, problem := detailsIntent(s.Intent, e)
		if problem != "" {
			s.Error = problem
			return s, nil
		}
		s.Intent = intent
		return m.startAttempt(s)

	case InvoiceReady:
		if s.Phase != PhaseInvoiceCreation || e.Attempt != s.Attempt {
			return s, nil
		}
		s.Phase = PhaseAwaitingPayment
		s.InvoiceID = e.InvoiceID
		s.Target = e.Target
		s.Remaining = m.CountdownSeconds
		s.Status = processor.StatusNew
		return s, []Effect{StartTimers{Attempt: s.Attempt, InvoiceID: e.InvoiceID}}

	case InvoiceFailed:
		if s.Phase != PhaseInvoiceCreation || e.Attempt != s.Attempt {
			return s, nil
		}
		s.Phase = PhaseDetailsEntry
		s.clearInvoice()
		s.Error = "Could not create the invoice"
		if e.Err != nil {
			s.Error += ": " + e.Err.Error()
		}
		return s, nil

	case Tick:
		if s.Phase != PhaseAwaitingPayment || e.Attempt != s.Attempt {
			return s, nil
		}
		s.Remaining--
		if s.Remaining <= 0 {
			s.Remaining = 0
			s.Phase = PhaseExpired
			return s, []Effect{StopTimers{}}
		}
		return s, nil

	case StatusObserved:
		if s.Phase != PhaseAwaitingPayment || e.Attempt != s.Attempt {
			return s, nil
		}
		s.Status = processor.NormalizeStatus(e.Status)
		switch {
		case processor.IsSuccess(s.Status):
			s.Phase = PhaseSettled
			effects := []Effect{StopTimers{}}
			if s.Intent.WantsReceipt() {
				effects = append(effects, ScheduleReceipt{InvoiceID: s.InvoiceID, Delay: m.ReceiptDelay})
			}
			return s, effects
		case processor.IsFailed(s.Status):
			s.Phase = PhaseExpired
			return s, []Effect{StopTimers{}}
		}
		return s, nil

	case Back:
		switch s.Phase {
		case PhaseDetailsEntry:
			s.Phase = PhaseTierSelection
			s.Error = ""
		case PhaseInvoiceCreation:
			s.Phase = PhaseDetailsEntry
			s.Attempt++
			s.clearInvoice()
		case PhaseAwaitingPayment:
			s.Phase = PhaseDetailsEntry
			s.Attempt++
			s.clearInvoice()
			return s, []Effect{StopTimers{}}
		}
		return s, nil

	case Retry:
		if s.Phase != PhaseExpired {
			return s, nil
		}
		return m.startAttempt(s)

	case DonateAgain:
		if s.Phase != PhaseSettled {
			return s, nil
		}
		return Session{Phase: PhaseTierSelection, Attempt: s.Attempt + 1}, nil
	}

	return s, nil
}

func (m Machine) startAttempt(s Session) (Session, []Effect) {
	s.Attempt++
	s.Phase = PhaseInvoiceCreation
	s.clearInvoice()
	s.Error = ""
	return s, []Effect{CreateInvoice{Attempt: s.Attempt, Intent: s.Intent}}
}

// detailsIntent merges the submitted form into the intent. It returns a
// human readable problem when the form is incomplete.
func detailsIntent(intent models.DonationIntent, c Continue) (models.DonationIntent, string) {
	if intent.Tier.CustomAmount() {
		if !c.Amount.IsPositive() {
			return intent, "Enter a positive amount"
		}
		intent.Amount = c.Amount
	}

	intent.DonationType = c.DonationType
	intent.DonorName = ""
	intent.DonorEmail = ""

	switch c.DonationType {
	case models.DonationAnonymous:
	case models.DonationNamed:
		name := strings.TrimSpace(c.Name)
		email := strings.TrimSpace(c.Email)
		if name == "" || email == "" {
			return intent, "Name and email are required for named donations"
		}
		intent.DonorName = name
		intent.DonorEmail = email
	default:
		return intent, "Choose an anonymous or named donation"
	}
	return intent, ""
}
