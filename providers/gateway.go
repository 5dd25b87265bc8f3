package providers

import (
	"context"
	"errors"
	"time"

	"fulfillment-service/models"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported payment provider")
	ErrProviderDisabled    = errors.New("payment provider disabled")
	// ErrMalformedCallback means the callback is missing or carries an unusable field.
	ErrMalformedCallback = errors.New("malformed payment callback")
	// ErrGatewayRejected means the gateway answered but refused the request.
	ErrGatewayRejected = errors.New("payment gateway rejected request")
)

// MinTimeout is the lowest HTTP timeout a gateway will run with.
const MinTimeout = 5 * time.Second

// Gateway is implemented by every payment provider integration.
type Gateway interface {
	Name() string

	// Initiate registers the attempt with the provider and returns where to send the customer.
	// payment.CallbackToken is already set and must be carried back by the callback.
	Initiate(ctx context.Context, payment *models.Payment, invoice *models.Invoice) (*InitiateResult, error)

	// ResolveCallbackOutcome decides whether a returning customer actually paid.
	ResolveCallbackOutcome(ctx context.Context, payment *models.Payment, invoice *models.Invoice, cb Callback) (*Outcome, error)
}

type InitiateResult struct {
	Authority     string
	CallbackToken string
	RedirectURL   string
	Meta          map[string]interface{}
}

// Callback holds the provider fields of a returning redirect.
type Callback struct {
	Authority string
	Status    string
}

type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
)

type Outcome struct {
	Status    OutcomeStatus
	Reference string
	Reason    string
}

func succeeded(reference string) *Outcome {
	return &Outcome{Status: OutcomeSuccess, Reference: reference}
}

func failed(reason string) *Outcome {
	return &Outcome{Status: OutcomeFailed, Reason: reason}
}

// ProviderSettings configures one provider.
type ProviderSettings struct {
	Enabled     bool
	MerchantID  string
	Sandbox     bool
	Timeout     time.Duration
	CallbackURL string
	BaseURL     string
	// Currency restricts the provider to one ISO code; empty accepts any.
	Currency string
	// MinorUnits is the decimal shift from invoice amounts to the integer unit the provider charges in.
	MinorUnits int32
}

// EffectiveTimeout applies the MinTimeout floor.
func (s ProviderSettings) EffectiveTimeout() time.Duration {
	if s.Timeout < MinTimeout {
		return MinTimeout
	}
	return s.Timeout
}

// Settings configures the whole registry.
type Settings struct {
	DefaultProvider string
	Mock            ProviderSettings
	Remote          ProviderSettings
}
