package checkout

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ln-donations/internal/models"
)

var testMachine = Machine{CountdownSeconds: 900, ReceiptDelay: 2 * time.Second}

func reduceAll(t *testing.T, s Session, events ...Event) (Session, []Effect) {
	t.Helper()
	var all []Effect
	for _, e := range events {
		var effects []Effect
		s, effects = testMachine.Reduce(s, e)
		all = append(all, effects...)
	}
	return s, all
}

func namedContinue() Continue {
	return Continue{DonationType: models.DonationNamed, Name: "Jo Doe", Email: "jo@example.com"}
}

func awaiting(t *testing.T, c Continue) Session {
	t.Helper()
	s, _ := reduceAll(t, Session{}, TierSelected{Tier: models.TierFriend}, c)
	require.Equal(t, PhaseInvoiceCreation, s.Phase)
	s, effects := testMachine.Reduce(s, InvoiceReady{Attempt: s.Attempt, InvoiceID: "INV1", Target: &PaymentTarget{Payload: "lnbc1"}})
	require.Equal(t, PhaseAwaitingPayment, s.Phase)
	require.Equal(t, []Effect{StartTimers{Attempt: s.Attempt, InvoiceID: "INV1"}}, effects)
	return s
}

func TestFormatCountdown(t *testing.T) {
	assert.Equal(t, "15:00", FormatCountdown(900))
	assert.Equal(t, "09:05", FormatCountdown(545))
	assert.Equal(t, "00:00", FormatCountdown(0))
	assert.Equal(t, "00:00", FormatCountdown(-3))
}

func TestReduce_TierSelection(t *testing.T) {
	s, effects := testMachine.Reduce(Session{}, TierSelected{Tier: models.TierFriend})
	assert.Empty(t, effects)
	assert.Equal(t, PhaseDetailsEntry, s.Phase)
	assert.True(t, decimal.NewFromInt(25).Equal(s.Intent.Amount))

	s, _ = testMachine.Reduce(Session{}, TierSelected{Tier: "platinum"})
	assert.Equal(t, PhaseTierSelection, s.Phase)
	assert.NotEmpty(t, s.Error)
}

func TestReduce_ContinuePreconditions(t *testing.T) {
	custom, _ := testMachine.Reduce(Session{}, TierSelected{Tier: models.TierCustom})

	s, effects := testMachine.Reduce(custom, Continue{DonationType: models.DonationAnonymous})
	assert.Empty(t, effects)
	assert.Equal(t, PhaseDetailsEntry, s.Phase)
	assert.Equal(t, "Enter a positive amount", s.Error)

	s, effects = testMachine.Reduce(custom, Continue{Amount: decimal.NewFromInt(5), DonationType: models.DonationNamed, Name: "Jo"})
	assert.Empty(t, effects)
	assert.Equal(t, PhaseDetailsEntry, s.Phase)
	assert.NotEmpty(t, s.Error)

	s, effects = testMachine.Reduce(custom, Continue{Amount: decimal.NewFromInt(5), DonationType: models.DonationAnonymous, Name: "ignored"})
	require.Len(t, effects, 1)
	create := effects[0].(CreateInvoice)
	assert.Equal(t, s.Attempt, create.Attempt)
	assert.True(t, decimal.NewFromInt(5).Equal(create.Intent.Amount))
	assert.Empty(t, create.Intent.DonorName)
	assert.Equal(t, PhaseInvoiceCreation, s.Phase)
}

func TestReduce_InvoiceFailureClearsState(t *testing.T) {
	s, _ := reduceAll(t, Session{}, TierSelected{Tier: models.TierFriend}, namedContinue())
	s.Target = &PaymentTarget{Payload: "stale"}
	s.InvoiceID = "stale"

	s, effects := testMachine.Reduce(s, InvoiceFailed{Attempt: s.Attempt, Err: errors.New("processor down")})
	assert.Empty(t, effects)
	assert.Equal(t, PhaseDetailsEntry, s.Phase)
	assert.Empty(t, s.InvoiceID)
	assert.Nil(t, s.Target)
	assert.Contains(t, s.Error, "processor down")
}

func TestReduce_SettlementSchedulesReceiptOnce(t *testing.T) {
	s := awaiting(t, namedContinue())
	attempt := s.Attempt

	s, effects := reduceAll(t, s,
		StatusObserved{Attempt: attempt, Status: "New"},
		StatusObserved{Attempt: attempt, Status: "pending"},
	)
	assert.Empty(t, effects)
	assert.Equal(t, PhaseAwaitingPayment, s.Phase)

	s, effects = testMachine.Reduce(s, StatusObserved{Attempt: attempt, Status: "Settled"})
	assert.Equal(t, PhaseSettled, s.Phase)
	assert.Equal(t, []Effect{StopTimers{}, ScheduleReceipt{InvoiceID: "INV1", Delay: 2 * time.Second}}, effects)

	// Late poll results and ticks after settlement change nothing.
	s, effects = reduceAll(t, s,
		StatusObserved{Attempt: attempt, Status: "settled"},
		Tick{Attempt: attempt},
	)
	assert.Empty(t, effects)
	assert.Equal(t, PhaseSettled, s.Phase)
}

func TestReduce_SuccessStatuses(t *testing.T) {
	for _, status := range []string{"settled", "PROCESSING", "Paid"} {
		s := awaiting(t, namedContinue())
		s, _ = testMachine.Reduce(s, StatusObserved{Attempt: s.Attempt, Status: status})
		assert.Equal(t, PhaseSettled, s.Phase, status)
	}
}

func TestReduce_AnonymousSettlementSendsNoReceipt(t *testing.T) {
	s := awaiting(t, Continue{DonationType: models.DonationAnonymous})

	s, effects := testMachine.Reduce(s, StatusObserved{Attempt: s.Attempt, Status: "settled"})
	assert.Equal(t, PhaseSettled, s.Phase)
	assert.Equal(t, []Effect{StopTimers{}}, effects)
}

func TestReduce_ExpiryRace(t *testing.T) {
	s := awaiting(t, namedContinue())
	attempt := s.Attempt
	s.Remaining = 1

	s, effects := reduceAll(t, s,
		Tick{Attempt: attempt},
		StatusObserved{Attempt: attempt, Status: "pending"},
	)
	assert.Equal(t, PhaseExpired, s.Phase)
	assert.Equal(t, 0, s.Remaining)
	assert.Equal(t, []Effect{StopTimers{}}, effects)

	// Upstream settling after local expiry does not resurrect the attempt.
	s, effects = testMachine.Reduce(s, StatusObserved{Attempt: attempt, Status: "settled"})
	assert.Equal(t, PhaseExpired, s.Phase)
	assert.Empty(t, effects)
}

func TestReduce_ProcessorExpiry(t *testing.T) {
	for _, status := range []string{"expired", "Invalid"} {
		s := awaiting(t, namedContinue())
		s, effects := testMachine.Reduce(s, StatusObserved{Attempt: s.Attempt, Status: status})
		assert.Equal(t, PhaseExpired, s.Phase)
		assert.Equal(t, []Effect{StopTimers{}}, effects)
	}
}

func TestReduce_RetryCreatesFreshInvoice(t *testing.T) {
	s := awaiting(t, namedContinue())
	old := s.Attempt
	s, _ = testMachine.Reduce(s, StatusObserved{Attempt: old, Status: "expired"})

	s, effects := testMachine.Reduce(s, Retry{})
	assert.Equal(t, PhaseInvoiceCreation, s.Phase)
	assert.Greater(t, s.Attempt, old)
	assert.Empty(t, s.InvoiceID)
	assert.Nil(t, s.Target)
	require.Len(t, effects, 1)
	assert.Equal(t, "Jo Doe", effects[0].(CreateInvoice).Intent.DonorName)

	// Ticks from the expired attempt are stale.
	s, effects = testMachine.Reduce(s, InvoiceReady{Attempt: s.Attempt, InvoiceID: "INV2"})
	require.Len(t, effects, 1)
	s, _ = testMachine.Reduce(s, Tick{Attempt: old})
	assert.Equal(t, 900, s.Remaining)
}

func TestReduce_BackCancelsWithoutExpiry(t *testing.T) {
	s := awaiting(t, namedContinue())
	attempt := s.Attempt

	s, effects := testMachine.Reduce(s, Back{})
	assert.Equal(t, PhaseDetailsEntry, s.Phase)
	assert.Equal(t, []Effect{StopTimers{}}, effects)
	assert.Empty(t, s.InvoiceID)

	s, effects = testMachine.Reduce(s, StatusObserved{Attempt: attempt, Status: "settled"})
	assert.Equal(t, PhaseDetailsEntry, s.Phase)
	assert.Empty(t, effects)
}

func TestReduce_BackDuringCreationDropsLateInvoice(t *testing.T) {
	s, effects := reduceAll(t, Session{}, TierSelected{Tier: models.TierFriend}, namedContinue())
	create := effects[0].(CreateInvoice)

	s, _ = testMachine.Reduce(s, Back{})
	s, effects = testMachine.Reduce(s, InvoiceReady{Attempt: create.Attempt, InvoiceID: "late"})
	assert.Equal(t, PhaseDetailsEntry, s.Phase)
	assert.Empty(t, effects)
	assert.Empty(t, s.InvoiceID)
}

func TestReduce_DonateAgain(t *testing.T) {
	s := awaiting(t, namedContinue())
	s, _ = testMachine.Reduce(s, StatusObserved{Attempt: s.Attempt, Status: "settled"})
	attempt := s.Attempt

	s, effects := testMachine.Reduce(s, DonateAgain{})
	assert.Empty(t, effects)
	assert.Equal(t, PhaseTierSelection, s.Phase)
	assert.Equal(t, models.DonationIntent{}, s.Intent)
	assert.Greater(t, s.Attempt, attempt)
}

func TestReduce_EndToEnd(t *testing.T) {
	s, effects := reduceAll(t, Session{},
		TierSelected{Tier: models.TierFriend},
		namedContinue(),
	)
	require.Len(t, effects, 1)
	create := effects[0].(CreateInvoice)
	assert.True(t, decimal.NewFromInt(25).Equal(create.Intent.Amount))
	assert.Equal(t, models.TierFriend, create.Intent.Tier)
	assert.Equal(t, models.DonationNamed, create.Intent.DonationType)
	assert.Equal(t, "Jo Doe", create.Intent.DonorName)
	assert.Equal(t, "jo@example.com", create.Intent.DonorEmail)

	target, err := NewPaymentTarget("lnbc1...", 128)
	require.NoError(t, err)

	s, _ = testMachine.Reduce(s, InvoiceReady{Attempt: create.Attempt, InvoiceID: "INV1", Target: target})
	assert.Equal(t, 900, s.Remaining)
	assert.Equal(t, "15:00", s.Countdown())
	assert.True(t, s.Target.IsLightning)

	for i := 0; i < 9; i++ {
		s, effects = testMachine.Reduce(s, Tick{Attempt: s.Attempt})
		assert.Empty(t, effects)
		if i%3 == 2 && i < 8 {
			s, _ = testMachine.Reduce(s, StatusObserved{Attempt: s.Attempt, Status: "new"})
		}
	}
	assert.Equal(t, "14:51", s.Countdown())

	s, effects = testMachine.Reduce(s, StatusObserved{Attempt: s.Attempt, Status: "settled"})
	assert.Equal(t, PhaseSettled, s.Phase)
	assert.Contains(t, effects, Effect(ScheduleReceipt{InvoiceID: "INV1", Delay: 2 * time.Second}))
}
