package controllers

import (
	"errors"
	"io"
	"net/http"

	"fulfillment-service/services"

	"github.com/gin-gonic/gin"
)

type PaymentController struct {
	paymentService services.PaymentService
}

func NewPaymentController(paymentService services.PaymentService) *PaymentController {
	return &PaymentController{paymentService: paymentService}
}

// StartPayment handles POST /invoices/:id/pay. An empty body selects the default provider.
func (pc *PaymentController) StartPayment(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}
	invoiceID, ok := invoiceIDParam(ctx)
	if !ok {
		return
	}

	var req services.StartPaymentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		bindError(ctx, err)
		return
	}

	start, svcErr := pc.paymentService.StartPayment(ctx.Request.Context(), userID, invoiceID, &req)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusCreated, start)
}

// Callback handles GET|POST /payments/callback for both browser redirects and webhooks.
func (pc *PaymentController) Callback(ctx *gin.Context) {
	var req services.CallbackRequest
	if err := ctx.ShouldBind(&req); err != nil {
		bindError(ctx, err)
		return
	}
	// Some gateways redirect with capitalised parameter names.
	if req.Authority == "" {
		req.Authority = ctx.Query("Authority")
	}
	if req.Status == "" {
		req.Status = ctx.Query("Status")
	}

	result, svcErr := pc.paymentService.HandleCallback(ctx.Request.Context(), &req)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusOK, result)
}
