package providers

import (
	"context"
	"fmt"
	"net/url"

	"fulfillment-service/models"

	"github.com/google/uuid"
)

const MockProviderName = "mock"

// MockGateway never leaves the process. It sends the customer straight back to the callback
// URL, where the caller states the outcome with an explicit status of success or failed.
type MockGateway struct {
	callbackURL string
}

func NewMockGateway(settings ProviderSettings) *MockGateway {
	callback := settings.CallbackURL
	if callback == "" {
		callback = "http://localhost:8080/payments/callback"
	}
	return &MockGateway{callbackURL: callback}
}

func (m *MockGateway) Name() string { return MockProviderName }

func (m *MockGateway) Initiate(_ context.Context, payment *models.Payment, _ *models.Invoice) (*InitiateResult, error) {
	authority := "MOCK-" + uuid.NewString()

	callback, err := url.Parse(m.callbackURL)
	if err != nil {
		return nil, fmt.Errorf("mock callback url: %w", err)
	}
	q := callback.Query()
	q.Set("payment_id", payment.ID.String())
	q.Set("token", payment.CallbackToken)
	q.Set("authority", authority)
	callback.RawQuery = q.Encode()

	return &InitiateResult{
		Authority:     authority,
		CallbackToken: payment.CallbackToken,
		RedirectURL:   callback.String(),
		Meta:          map[string]interface{}{"mode": "mock"},
	}, nil
}

func (m *MockGateway) ResolveCallbackOutcome(_ context.Context, payment *models.Payment, _ *models.Invoice, cb Callback) (*Outcome, error) {
	switch cb.Status {
	case string(OutcomeSuccess), string(OutcomeFailed):
	default:
		return nil, fmt.Errorf("%w: status must be success or failed, got %q", ErrMalformedCallback, cb.Status)
	}

	if cb.Authority != "" && cb.Authority != payment.Authority {
		return failed("authority_mismatch"), nil
	}
	if cb.Status == string(OutcomeFailed) {
		return failed("mock_declined"), nil
	}
	return succeeded("MOCK-REF-" + payment.ID.String()[:8]), nil
}
