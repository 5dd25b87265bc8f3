package controllers

import (
	"net/http"

	"fulfillment-service/services"

	"github.com/gin-gonic/gin"
)

type InvoiceController struct {
	invoiceService services.InvoiceService
}

func NewInvoiceController(invoiceService services.InvoiceService) *InvoiceController {
	return &InvoiceController{invoiceService: invoiceService}
}

// ListInvoices handles GET /invoices.
func (ic *InvoiceController) ListInvoices(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	page, limit := parsePaginationParams(ctx)

	resp, svcErr := ic.invoiceService.ListInvoices(ctx.Request.Context(), userID, page, limit)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusOK, resp)
}

// GetInvoice handles GET /invoices/:id.
func (ic *InvoiceController) GetInvoice(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	invoiceID, ok := invoiceIDParam(ctx)
	if !ok {
		return
	}

	detail, svcErr := ic.invoiceService.GetInvoice(ctx.Request.Context(), userID, invoiceID)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusOK, detail)
}

// CancelInvoice handles POST /invoices/:id/cancel.
func (ic *InvoiceController) CancelInvoice(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	invoiceID, ok := invoiceIDParam(ctx)
	if !ok {
		return
	}

	invoice, svcErr := ic.invoiceService.CancelInvoice(ctx.Request.Context(), userID, invoiceID)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"invoice": invoice})
}
