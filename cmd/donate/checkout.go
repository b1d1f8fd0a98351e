package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ln-donations/internal/checkout"
	"ln-donations/internal/config"
	"ln-donations/internal/models"
	"ln-donations/internal/processor"
)

func registerCheckoutFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("server", "s", "http://localhost:8080", "Donation API base URL")
	cmd.Flags().StringP("tier", "t", string(models.TierSupporter), "Donation tier (see 'donate tiers')")
	cmd.Flags().StringP("amount", "a", "", "Amount in USD, custom tier only")
	cmd.Flags().String("type", string(models.DonationAnonymous), "Donation type (anonymous, named)")
	cmd.Flags().StringP("name", "n", "", "Your name, named donations only")
	cmd.Flags().StringP("email", "e", "", "Receipt email, named donations only")
	cmd.Flags().StringSlice("lightning-ids", nil, "Payment method ids treated as Lightning")
	cmd.Flags().BoolP("verbose", "v", false, "Log controller activity to stderr")
}

// details is the donor's answer to the details form, taken from flags.
type details struct {
	tier models.Tier
	form checkout.Continue
}

func detailsFromFlags(cmd *cobra.Command) (details, error) {
	tier, _ := cmd.Flags().GetString("tier")
	amount, _ := cmd.Flags().GetString("amount")
	donationType, _ := cmd.Flags().GetString("type")
	name, _ := cmd.Flags().GetString("name")
	email, _ := cmd.Flags().GetString("email")

	d := details{
		tier: models.Tier(strings.ToLower(tier)),
		form: checkout.Continue{
			DonationType: models.DonationType(strings.ToLower(donationType)),
			Name:         name,
			Email:        email,
		},
	}
	if !d.tier.Valid() {
		return d, errors.Errorf("unknown tier %q", tier)
	}
	if amount != "" {
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return d, errors.Wrapf(err, "invalid amount %q", amount)
		}
		d.form.Amount = value
	}
	return d, nil
}

func runCheckout(cmd *cobra.Command, args []string) error {
	d, err := detailsFromFlags(cmd)
	if err != nil {
		return err
	}

	server, _ := cmd.Flags().GetString("server")
	ids, _ := cmd.Flags().GetStringSlice("lightning-ids")
	verbose, _ := cmd.Flags().GetBool("verbose")

	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetLevel(logrus.WarnLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Without the flag, use the same LIGHTNING_METHOD_IDS as the server.
	if len(ids) == 0 {
		if _, err := config.Load(); err != nil {
			logger.WithError(err).Warn("cannot load config, using default lightning ids")
		}
		ids = config.LightningMethodIDs()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	screen := newScreen(cmd.OutOrStdout())
	ctrl := checkout.NewController(
		checkout.NewAPIClient(server, nil),
		processor.NewClassifier(ids...),
		logrus.NewEntry(logger).WithField("component", "checkout"),
		checkout.DefaultConfig(),
		checkout.WithObserver(screen.render),
	)

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	if !submit(ctx, ctrl, d) {
		return <-done
	}
	// Let the submitted details land so EOF on stdin sees the open invoice.
	waitUntil(ctx, ctrl, submitted, sessionPollInterval)

	go readCommands(ctx, cmd.InOrStdin(), ctrl, d, cancel, sessionPollInterval)

	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// controller is the part of checkout.Controller the command loop drives.
type controller interface {
	Dispatch(ctx context.Context, e checkout.Event) bool
	Session() checkout.Session
}

const sessionPollInterval = 100 * time.Millisecond

func submit(ctx context.Context, ctrl controller, d details) bool {
	return ctrl.Dispatch(ctx, checkout.TierSelected{Tier: d.tier}) &&
		ctrl.Dispatch(ctx, d.form)
}

// readCommands turns input lines into controller events until quit or EOF.
// On EOF an invoice that is still being created or paid runs to its outcome
// first, so a settled donation still gets its receipt.
func readCommands(ctx context.Context, in io.Reader, ctrl controller, d details, quit func(), interval time.Duration) {
	defer quit()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		var ok bool
		switch command(scanner.Text()) {
		case "b":
			ok = ctrl.Dispatch(ctx, checkout.Back{})
		case "r":
			ok = ctrl.Dispatch(ctx, checkout.Retry{})
		case "a":
			ok = ctrl.Dispatch(ctx, checkout.DonateAgain{}) && submit(ctx, ctrl, d)
		case "c":
			// Resubmits the details after going back.
			ok = ctrl.Dispatch(ctx, d.form)
		case "q":
			return
		default:
			ok = true
		}
		if !ok {
			return
		}
	}

	waitUntil(ctx, ctrl, func(s checkout.Session) bool { return !invoiceOpen(s) }, interval)
}

func submitted(s checkout.Session) bool {
	return s.Phase >= checkout.PhaseInvoiceCreation || s.Error != ""
}

func invoiceOpen(s checkout.Session) bool {
	return s.Phase == checkout.PhaseInvoiceCreation || s.Phase == checkout.PhaseAwaitingPayment
}

// waitUntil polls the session until done reports true or ctx ends.
func waitUntil(ctx context.Context, ctrl controller, done func(checkout.Session) bool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for !done(ctrl.Session()) {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func command(line string) string {
	line = strings.ToLower(strings.TrimSpace(line))
	if line == "" {
		return ""
	}
	return line[:1]
}

// screen prints session changes. It runs on the controller's event loop, so
// it only writes and never blocks on input.
type screen struct {
	mu      sync.Mutex
	out     io.Writer
	last    checkout.Session
	printed int
}

func newScreen(out io.Writer) *screen {
	return &screen{out: out, last: checkout.Session{Phase: -1}}
}

func (s *screen) render(session checkout.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.last = session }()

	if session.Error != "" && session.Error != s.last.Error {
		fmt.Fprintf(s.out, "! %s\n", session.Error)
	}

	if session.Phase == s.last.Phase && session.Attempt == s.last.Attempt {
		// Only ticks move Remaining, so status updates never reprint it.
		if session.Phase == checkout.PhaseAwaitingPayment && session.Remaining%30 == 0 && session.Remaining != s.printed {
			s.printed = session.Remaining
			fmt.Fprintf(s.out, "  expires in %s (status: %s)\n", session.Countdown(), session.Status)
		}
		return
	}

	switch session.Phase {
	case checkout.PhaseDetailsEntry:
		if s.last.Phase > checkout.PhaseDetailsEntry {
			fmt.Fprintln(s.out, "Back to details. Type c to create a new invoice.")
		}
	case checkout.PhaseInvoiceCreation:
		fmt.Fprintf(s.out, "Creating a $%s %s invoice...\n", session.Intent.Amount.StringFixed(2), session.Intent.Tier)
	case checkout.PhaseAwaitingPayment:
		s.renderTarget(session)
	case checkout.PhaseSettled:
		fmt.Fprintln(s.out, "Payment received. Thank you for your donation!")
		if session.Intent.WantsReceipt() {
			fmt.Fprintf(s.out, "A receipt is on its way to %s.\n", session.Intent.DonorEmail)
		}
		fmt.Fprintln(s.out, "Type a to donate again or q to quit.")
	case checkout.PhaseExpired:
		fmt.Fprintln(s.out, "The invoice expired. Type r for a fresh one or q to quit.")
	}
}

func (s *screen) renderTarget(session checkout.Session) {
	target := session.Target
	s.printed = session.Remaining
	fmt.Fprintf(s.out, "Invoice %s, expires in %s\n", session.InvoiceID, session.Countdown())
	if target == nil {
		return
	}
	if qr, err := target.Terminal(); err == nil {
		fmt.Fprintln(s.out, qr)
	}
	if target.IsLightning {
		fmt.Fprintf(s.out, "Lightning invoice:\n%s\n", target.Payload)
		for _, link := range target.DeepLinks {
			fmt.Fprintf(s.out, "  %-10s %s\n", link.Wallet, link.URL)
		}
	} else {
		fmt.Fprintf(s.out, "Pay in the browser: %s\n", target.Payload)
	}
	fmt.Fprintln(s.out, "Waiting for payment. Type b to go back or q to quit.")
}
