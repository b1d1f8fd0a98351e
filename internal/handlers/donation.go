package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"ln-donations/internal/besteffort"
	"ln-donations/internal/config"
	"ln-donations/internal/donor"
	"ln-donations/internal/metrics"
	"ln-donations/internal/models"
	"ln-donations/internal/processor"
	"ln-donations/internal/receipt"
	"ln-donations/internal/retry"
	"ln-donations/internal/retry/backoff"
	"ln-donations/internal/validation"
	ws "ln-donations/internal/websocket"
)

const invoiceCurrency = "USD"

type DonationHandler struct {
	log        *logrus.Entry
	Processor  processor.API
	Donors     donor.Store
	Receipts   receipt.Dispatcher
	Hub        *ws.Hub
	sideEffect *besteffort.Runner

	lookupAttempts uint
	lookupBackoff  time.Duration
	now            func() time.Time
}

type DonationOption func(*DonationHandler)

// WithDonorLookup sets how long send-receipt waits for a donor record that
// has not landed yet.
func WithDonorLookup(attempts uint, interval time.Duration) DonationOption {
	return func(h *DonationHandler) {
		h.lookupAttempts = attempts
		h.lookupBackoff = interval
	}
}

// WithClock replaces time.Now for receipt dates and feed timestamps.
func WithClock(now func() time.Time) DonationOption {
	return func(h *DonationHandler) {
		h.now = now
	}
}

func NewDonationHandler(
	log *logrus.Entry,
	proc processor.API,
	donors donor.Store,
	receipts receipt.Dispatcher,
	hub *ws.Hub,
	opts ...DonationOption,
) *DonationHandler {
	h := &DonationHandler{
		log:            log,
		Processor:      proc,
		Donors:         donors,
		Receipts:       receipts,
		Hub:            hub,
		sideEffect:     besteffort.New(log),
		lookupAttempts: 3,
		lookupBackoff:  500 * time.Millisecond,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *DonationHandler) CreateDonation(c *gin.Context) {
	log := h.log.WithField("method", "CreateDonation")

	var req validation.CreateDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	intent, err := validation.ValidateCreate(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	metadata := map[string]interface{}{
		"tier":         string(intent.Tier),
		"donationType": string(intent.DonationType),
	}
	if intent.DonationType == models.DonationNamed {
		metadata["buyerName"] = intent.DonorName
	}

	invoice, err := h.Processor.CreateInvoice(c.Request.Context(), processor.CreateInvoiceRequest{
		Amount:     intent.Amount,
		Currency:   invoiceCurrency,
		BuyerEmail: intent.DonorEmail,
		Metadata:   metadata,
	})
	metrics.InvoicesCreated.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		h.processorFailure(c, log, err, "Failed to create invoice")
		return
	}

	record := donor.FromIntent(invoice.ID, intent)
	saved := h.sideEffect.Run(c.Request.Context(), "save-donor", func(ctx context.Context) error {
		return h.Donors.Upsert(ctx, record)
	})
	metrics.DonorWrites.WithLabelValues(outcomeLabel(saved)).Inc()

	log.WithFields(logrus.Fields{
		"invoice_id":    invoice.ID,
		"tier":          intent.Tier,
		"donation_type": intent.DonationType,
	}).Info("invoice created")

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"invoice": invoice,
	})
}

func (h *DonationHandler) GetPaymentMethods(c *gin.Context) {
	log := h.log.WithField("method", "GetPaymentMethods")

	invoiceID := c.Param("invoiceId")
	if invoiceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invoice ID is required"})
		return
	}

	methods, err := h.Processor.GetPaymentMethods(c.Request.Context(), invoiceID)
	if err != nil {
		h.processorFailure(c, log.WithField("invoice_id", invoiceID), err, "Failed to fetch payment methods")
		return
	}
	if methods == nil {
		methods = []processor.PaymentMethod{}
	}

	c.JSON(http.StatusOK, methods)
}

func (h *DonationHandler) GetStatus(c *gin.Context) {
	log := h.log.WithField("method", "GetStatus")

	invoiceID := c.Query("invoiceId")
	if invoiceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invoice ID is required"})
		return
	}

	invoice, err := h.Processor.GetInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		h.processorFailure(c, log.WithField("invoice_id", invoiceID), err, "Failed to fetch invoice status")
		return
	}

	if h.Hub != nil && processor.IsSuccess(invoice.Status) {
		h.announce(c.Request.Context(), invoice)
	}

	c.JSON(http.StatusOK, invoice)
}

// announce pushes a settled invoice to the live feed. The hub drops repeats.
func (h *DonationHandler) announce(ctx context.Context, invoice *processor.Invoice) {
	h.sideEffect.Run(ctx, "announce", func(ctx context.Context) error {
		record, err := h.Donors.GetByInvoiceID(ctx, invoice.ID)
		if errors.Is(err, donor.ErrNotFound) {
			// Without a record the tier is unknown, so the alert carries none.
			record = &models.DonorRecord{
				InvoiceID:    invoice.ID,
				Amount:       invoice.Amount,
				DonationType: models.DonationAnonymous,
			}
		} else if err != nil {
			return err
		}

		if h.Hub.Announce(ws.AlertFor(record, h.now())) {
			metrics.SettledFeed.Inc()
		}
		return nil
	})
}

func (h *DonationHandler) SendReceipt(c *gin.Context) {
	log := h.log.WithField("method", "SendReceipt")

	var req validation.SendReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if err := validation.ValidateReceipt(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log = log.WithField("invoice_id", req.InvoiceID)

	record, err := h.lookupDonor(c.Request.Context(), req.InvoiceID)
	if errors.Is(err, donor.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Donation not found"})
		return
	}
	if err != nil {
		log.WithError(err).Warn("failure reading donor record")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}

	if record.DonationType != models.DonationNamed || record.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Receipts are only sent for named donations with an email address"})
		return
	}

	err = h.Receipts.Send(c.Request.Context(), receipt.Receipt{
		DonorName:     record.Name,
		DonorEmail:    record.Email,
		Amount:        record.Amount,
		Tier:          record.Tier,
		InvoiceID:     record.InvoiceID,
		Date:          h.now(),
		TransactionID: req.TransactionID,
	})
	metrics.ReceiptsSent.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		if config.IsMissing(err) {
			log.WithError(err).Error("mail transport is not configured")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Email service is not configured"})
			return
		}
		log.WithError(err).Warn("failure sending receipt")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send receipt"})
		return
	}

	log.Info("receipt sent")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// lookupDonor gives a best-effort donor write that is still in flight a few
// chances to land before reporting the donation as unknown.
func (h *DonationHandler) lookupDonor(ctx context.Context, invoiceID string) (*models.DonorRecord, error) {
	var record *models.DonorRecord
	_, err := retry.Retry(
		ctx,
		func(ctx context.Context) error {
			var err error
			record, err = h.Donors.GetByInvoiceID(ctx, invoiceID)
			return err
		},
		retry.Limit(h.lookupAttempts),
		retry.If(func(err error) bool { return errors.Is(err, donor.ErrNotFound) }),
		retry.Backoff(backoff.Constant(h.lookupBackoff), h.lookupBackoff),
	)
	return record, err
}

func (h *DonationHandler) processorFailure(c *gin.Context, log *logrus.Entry, err error, message string) {
	var apiErr *processor.APIError
	switch {
	case config.IsMissing(err):
		log.WithError(err).Error("payment processor is not configured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Payment processor is not configured"})
	case errors.As(err, &apiErr):
		log.WithError(err).WithFields(logrus.Fields{
			"upstream_status": apiErr.StatusCode,
			"upstream_body":   apiErr.Body,
		}).Warn("payment processor rejected request")
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	case processor.IsUnreachable(err):
		log.WithError(err).Warn("payment processor unreachable")
		c.JSON(http.StatusInternalServerError, gin.H{"error": message + ": payment processor unreachable"})
	default:
		log.WithError(err).Warn("payment processor failure")
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}

func outcomeLabel(ok bool) string {
	if ok {
		return metrics.StatusSuccess
	}
	return metrics.StatusFailure
}
