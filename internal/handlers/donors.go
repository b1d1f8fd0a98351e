package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ln-donations/internal/donor"
	"ln-donations/internal/models"
)

type DonorHandler struct {
	log    *logrus.Entry
	Donors donor.Store
}

func NewDonorHandler(log *logrus.Entry, donors donor.Store) *DonorHandler {
	return &DonorHandler{log: log, Donors: donors}
}

// publicDonor is what the recognition wall shows. Email is never listed.
type publicDonor struct {
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	Tier      models.Tier     `json:"tier"`
	CreatedAt time.Time       `json:"createdAt"`
}

// GetDonors returns the named donor list, or aggregate stats with
// ?type=stats.
func (h *DonorHandler) GetDonors(c *gin.Context) {
	log := h.log.WithField("method", "GetDonors")

	if c.Query("type") == "stats" {
		stats, err := h.Donors.Stats(c.Request.Context())
		if err != nil {
			log.WithError(err).Warn("failure aggregating donor stats")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load donor stats"})
			return
		}
		c.JSON(http.StatusOK, stats)
		return
	}

	records, err := h.Donors.ListNamed(c.Request.Context())
	if err != nil {
		log.WithError(err).Warn("failure listing donors")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load donors"})
		return
	}

	donors := make([]publicDonor, 0, len(records))
	for _, r := range records {
		donors = append(donors, publicDonor{
			Name:      r.Name,
			Amount:    r.Amount,
			Tier:      r.Tier,
			CreatedAt: r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"donors": donors})
}
