package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ln-donations/internal/merchants"
)

type MerchantHandler struct {
	Directory *merchants.Directory
}

func NewMerchantHandler(directory *merchants.Directory) *MerchantHandler {
	return &MerchantHandler{Directory: directory}
}

// ListMerchants supports ?category= and ?lightning=true.
func (h *MerchantHandler) ListMerchants(c *gin.Context) {
	list := h.Directory.List(merchants.Filter{
		Category:      c.Query("category"),
		LightningOnly: c.Query("lightning") == "true",
	})
	c.JSON(http.StatusOK, gin.H{
		"merchants":  list,
		"categories": h.Directory.Categories(),
	})
}

func (h *MerchantHandler) GetMerchant(c *gin.Context) {
	m, ok := h.Directory.Find(c.Param("slug"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Merchant not found"})
		return
	}
	c.JSON(http.StatusOK, m)
}
