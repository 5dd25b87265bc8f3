package controllers

import (
	"net/http"

	"fulfillment-service/services"

	"github.com/gin-gonic/gin"
)

// CheckoutController handles checkout and the read-only cart endpoints.
type CheckoutController struct {
	checkoutService services.CheckoutService
	cartService     services.CartService
}

func NewCheckoutController(checkoutService services.CheckoutService, cartService services.CartService) *CheckoutController {
	return &CheckoutController{checkoutService: checkoutService, cartService: cartService}
}

// Checkout handles POST /checkout.
func (cc *CheckoutController) Checkout(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req services.CheckoutRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	invoice, svcErr := cc.checkoutService.Checkout(ctx.Request.Context(), userID, &req)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"invoice": invoice})
}

// CheckCart handles POST /cart/check.
func (cc *CheckoutController) CheckCart(ctx *gin.Context) {
	var req services.CartRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	result, svcErr := cc.cartService.CheckCart(ctx.Request.Context(), &req)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusOK, result)
}

// PreviewCoupon handles POST /cart/coupon. Nothing is reserved.
func (cc *CheckoutController) PreviewCoupon(ctx *gin.Context) {
	userID, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req services.CouponPreviewRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	preview, svcErr := cc.cartService.PreviewCoupon(ctx.Request.Context(), userID, &req)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusOK, preview)
}
