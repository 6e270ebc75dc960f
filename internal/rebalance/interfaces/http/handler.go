// Package http exposes read-only ops endpoints for the processor.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/rebalancer/internal/rebalance/application"
)

type LedgerHandler struct {
	processor *application.ProcessorService
}

func NewLedgerHandler(processor *application.ProcessorService) *LedgerHandler {
	return &LedgerHandler{processor: processor}
}

func (h *LedgerHandler) RegisterRoutes(r *gin.RouterGroup) {
	v1 := r.Group("/v1")
	{
		v1.GET("/ledger", h.GetLedger)
		v1.GET("/ledger/:symbol", h.GetLedgerEntry)
	}
}

// GetLedger returns a snapshot of every tracked symbol.
func (h *LedgerHandler) GetLedger(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"symbols": h.processor.Ledger().Len(),
		"entries": h.processor.Ledger().Snapshot(),
	})
}

// GetLedgerEntry returns the last-known state of one symbol.
func (h *LedgerHandler) GetLedgerEntry(c *gin.Context) {
	symbol := c.Param("symbol")
	entry, ok := h.processor.Ledger().Get(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "symbol not tracked"})
		return
	}
	c.JSON(http.StatusOK, entry)
}
