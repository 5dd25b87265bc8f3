package services

import (
	"context"
	"encoding/json"
	"time"

	"fulfillment-service/models"
	aws_pkg "fulfillment-service/pkg/aws"

	"go.uber.org/zap"
)

const (
	EventInvoiceCreated       = "invoice.created"
	EventInvoicePaid          = "invoice.paid"
	EventInvoicePaymentFailed = "invoice.payment_failed"
	EventInvoiceCancelled     = "invoice.cancelled"
)

// InvoiceEvent is the SNS payload for invoice lifecycle changes.
type InvoiceEvent struct {
	EventType     string    `json:"event_type"`
	InvoiceID     string    `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	UserID        string    `json:"user_id"`
	Status        string    `json:"status"`
	Total         string    `json:"total"`
	Currency      string    `json:"currency"`
	CouponCode    string    `json:"coupon_code,omitempty"`
	PaymentID     string    `json:"payment_id,omitempty"`
	Provider      string    `json:"provider,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// InvoiceEvents publishes best-effort lifecycle events. Failures are logged, never returned.
type InvoiceEvents struct {
	snsClient   aws_pkg.SNSPublisher
	snsTopicArn string
	logger      *zap.Logger
}

func NewInvoiceEvents(snsClient aws_pkg.SNSPublisher, snsTopicArn string, logger *zap.Logger) *InvoiceEvents {
	return &InvoiceEvents{snsClient: snsClient, snsTopicArn: snsTopicArn, logger: logger}
}

func (e *InvoiceEvents) Publish(ctx context.Context, eventType string, invoice *models.Invoice, payment *models.Payment, reason string) {
	if e == nil || invoice == nil {
		return
	}
	if e.snsClient == nil || e.snsTopicArn == "" {
		e.logger.Debug("SNS client not configured, skipping invoice event", zap.String("event_type", eventType))
		return
	}

	event := InvoiceEvent{
		EventType:     eventType,
		InvoiceID:     invoice.ID.String(),
		InvoiceNumber: invoice.Number,
		UserID:        invoice.UserID.String(),
		Status:        string(invoice.Status),
		Total:         invoice.Total.StringFixed(2),
		Currency:      invoice.Currency,
		CouponCode:    invoice.CouponCode,
		Reason:        reason,
		Timestamp:     time.Now().UTC(),
	}
	if payment != nil {
		event.PaymentID = payment.ID.String()
		event.Provider = payment.Provider
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		e.logger.Error("Failed to marshal invoice event", zap.Error(err))
		return
	}

	if err := e.snsClient.Publish(ctx, e.snsTopicArn, eventBytes); err != nil {
		e.logger.Error("Failed to publish invoice event",
			zap.String("event_type", eventType),
			zap.String("invoice_id", event.InvoiceID),
			zap.Error(err),
		)
		return
	}

	e.logger.Info("Published invoice event",
		zap.String("event_type", eventType),
		zap.String("invoice_id", event.InvoiceID),
	)
}
