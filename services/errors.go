package services

import (
	"errors"
	"net/http"
)

// Machine-readable reasons carried by ServiceError.
const (
	ReasonInvalidInput           = "invalid_input"
	ReasonNotFound               = "not_found"
	ReasonProductUnavailable     = "product_unavailable"
	ReasonInsufficientStock      = "insufficient_stock"
	ReasonCurrencyMismatch       = "currency_mismatch"
	ReasonAddressNotOwned        = "address_not_owned"
	ReasonCouponCodeRequired     = "coupon_code_required"
	ReasonCouponNotFound         = "coupon_not_found"
	ReasonCouponInactive         = "coupon_inactive"
	ReasonCouponMinSubtotal      = "coupon_min_subtotal"
	ReasonCouponUsageLimit       = "coupon_usage_limit"
	ReasonCouponCurrencyMismatch = "coupon_currency_mismatch"
	ReasonCouponUserLimit        = "coupon_user_limit"
	ReasonInvalidTransition      = "invalid_transition"
	ReasonPaymentInProgress      = "payment_in_progress"
	ReasonAllocationUnavailable  = "allocation_unavailable"
	ReasonProviderUnsupported    = "provider_unsupported"
	ReasonProviderDisabled       = "provider_disabled"
	ReasonInvalidCallback        = "invalid_callback"
	ReasonGatewayFailure         = "gateway_failure"
	ReasonInternal               = "internal_error"
)

// ServiceError represents a typed error with an HTTP status code and, for validation
// failures, the request field it concerns.
type ServiceError struct {
	StatusCode int
	Field      string
	Reason     string
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func validationError(field, reason, message string) *ServiceError {
	return &ServiceError{StatusCode: http.StatusUnprocessableEntity, Field: field, Reason: reason, Message: message}
}

func badRequest(reason, message string, err error) *ServiceError {
	return &ServiceError{StatusCode: http.StatusBadRequest, Reason: reason, Message: message, Err: err}
}

func notFoundError(message string) *ServiceError {
	return &ServiceError{StatusCode: http.StatusNotFound, Reason: ReasonNotFound, Message: message}
}

func conflictError(reason, message string) *ServiceError {
	return &ServiceError{StatusCode: http.StatusConflict, Reason: reason, Message: message}
}

func internalError(message string, err error) *ServiceError {
	return &ServiceError{StatusCode: http.StatusInternalServerError, Reason: ReasonInternal, Message: message, Err: err}
}

func gatewayError(message string, err error) *ServiceError {
	return &ServiceError{StatusCode: http.StatusBadGateway, Reason: ReasonGatewayFailure, Message: message, Err: err}
}

// asServiceError unwraps err into a ServiceError, wrapping anything else as an internal failure.
func asServiceError(err error, fallback string) *ServiceError {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return internalError(fallback, err)
}
