package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"ln-donations/internal/donor"
	"ln-donations/internal/middleware"
)

type AdminHandler struct {
	log    *logrus.Entry
	Donors donor.Store
}

func NewAdminHandler(log *logrus.Entry, donors donor.Store) *AdminHandler {
	return &AdminHandler{log: log, Donors: donors}
}

// GetDonor returns the full donor record of an invoice, email included, so
// staff can answer receipt requests by hand.
func (h *AdminHandler) GetDonor(c *gin.Context) {
	log := h.log.WithFields(logrus.Fields{
		"method":     "GetDonor",
		"admin":      c.GetString(middleware.AdminContextKey),
		"invoice_id": c.Param("invoiceId"),
	})

	record, err := h.Donors.GetByInvoiceID(c.Request.Context(), c.Param("invoiceId"))
	if errors.Is(err, donor.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Donation not found"})
		return
	}
	if err != nil {
		log.WithError(err).Warn("failure reading donor record")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}

	log.Info("admin donor lookup")
	c.JSON(http.StatusOK, record)
}
