package routes

import (
	"fulfillment-service/controllers"
	"fulfillment-service/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterCheckoutRoutes sets up checkout and cart routes.
func RegisterCheckoutRoutes(r *gin.Engine, cc *controllers.CheckoutController) {
	r.POST("/checkout", middleware.AuthMiddleware(), cc.Checkout)

	cartRoutes := r.Group("/cart")
	cartRoutes.Use(middleware.AuthMiddleware())
	cartRoutes.POST("/check", cc.CheckCart)
	cartRoutes.POST("/coupon", cc.PreviewCoupon)
}

// RegisterInvoiceRoutes sets up invoice reads, cancellation and payment initiation.
func RegisterInvoiceRoutes(r *gin.Engine, ic *controllers.InvoiceController, pc *controllers.PaymentController) {
	invoiceRoutes := r.Group("/invoices")
	invoiceRoutes.Use(middleware.AuthMiddleware())
	invoiceRoutes.GET("", ic.ListInvoices)
	invoiceRoutes.GET("/:id", ic.GetInvoice)
	invoiceRoutes.POST("/:id/cancel", ic.CancelInvoice)
	invoiceRoutes.POST("/:id/pay", pc.StartPayment)
}

// RegisterPaymentRoutes sets up the gateway callback. Gateways and browsers reach it without
// the identity header, so it is guarded by the callback token and a per-IP limiter instead.
func RegisterPaymentRoutes(r *gin.Engine, pc *controllers.PaymentController, limiter *middleware.RateLimiter) {
	paymentRoutes := r.Group("/payments")
	if limiter != nil {
		paymentRoutes.Use(limiter.Middleware())
	}
	paymentRoutes.GET("/callback", pc.Callback)
	paymentRoutes.POST("/callback", pc.Callback)
}
