package models

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft          InvoiceStatus = "draft"
	InvoiceStatusPending        InvoiceStatus = "pending"
	InvoiceStatusPaymentPending InvoiceStatus = "payment_pending"
	InvoiceStatusPaymentFailed  InvoiceStatus = "payment_failed"
	InvoiceStatusPaid           InvoiceStatus = "paid"
	InvoiceStatusProcessing     InvoiceStatus = "processing"
	InvoiceStatusShipped        InvoiceStatus = "shipped"
	InvoiceStatusDelivered      InvoiceStatus = "delivered"
	InvoiceStatusCancelled      InvoiceStatus = "cancelled"
	InvoiceStatusRefunded       InvoiceStatus = "refunded"
)

var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:          {InvoiceStatusPending, InvoiceStatusCancelled},
	InvoiceStatusPending:        {InvoiceStatusPaymentPending, InvoiceStatusCancelled},
	InvoiceStatusPaymentPending: {InvoiceStatusPaid, InvoiceStatusPaymentFailed, InvoiceStatusCancelled},
	InvoiceStatusPaymentFailed:  {InvoiceStatusPaymentPending, InvoiceStatusCancelled},
	InvoiceStatusPaid:           {InvoiceStatusProcessing, InvoiceStatusRefunded},
	InvoiceStatusProcessing:     {InvoiceStatusShipped, InvoiceStatusCancelled, InvoiceStatusRefunded},
	InvoiceStatusShipped:        {InvoiceStatusDelivered, InvoiceStatusRefunded},
	InvoiceStatusDelivered:      {InvoiceStatusRefunded},
	InvoiceStatusCancelled:      nil,
	InvoiceStatusRefunded:       nil,
}

// InvoiceStatuses lists every known status.
func InvoiceStatuses() []InvoiceStatus {
	return []InvoiceStatus{
		InvoiceStatusDraft,
		InvoiceStatusPending,
		InvoiceStatusPaymentPending,
		InvoiceStatusPaymentFailed,
		InvoiceStatusPaid,
		InvoiceStatusProcessing,
		InvoiceStatusShipped,
		InvoiceStatusDelivered,
		InvoiceStatusCancelled,
		InvoiceStatusRefunded,
	}
}

// Valid reports whether s is a known status.
func (s InvoiceStatus) Valid() bool {
	_, ok := invoiceTransitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s InvoiceStatus) IsTerminal() bool {
	next, ok := invoiceTransitions[s]
	return ok && len(next) == 0
}

// CanTransition reports whether an invoice may move from one status to another.
// Staying in the same known status is always allowed. The check never mutates anything.
func CanTransition(from, to InvoiceStatus) bool {
	next, ok := invoiceTransitions[from]
	if !ok {
		return false
	}
	if from == to {
		return true
	}
	for _, candidate := range next {
		if candidate == to {
			return true
		}
	}
	return false
}
