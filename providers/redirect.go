package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"fulfillment-service/models"

	"go.uber.org/zap"
)

const (
	RemoteProviderName = "remote"

	remoteRequestPath  = "/pg/v4/payment/request.json"
	remoteVerifyPath   = "/pg/v4/payment/verify.json"
	remoteStartPayPath = "/pg/StartPay/"

	remoteCodeSuccess         = 100
	remoteCodeAlreadyVerified = 101
)

// RedirectGateway talks to a hosted payment page: register the amount, send the customer to
// StartPay, then verify the returning authority server to server. The host comes from config only.
type RedirectGateway struct {
	merchantID  string
	callbackURL string
	baseURL     string
	sandbox     bool
	currency    string
	minorUnits  int32
	httpClient  *http.Client
	logger      *zap.Logger
}

func NewRedirectGateway(settings ProviderSettings, logger *zap.Logger) *RedirectGateway {
	return &RedirectGateway{
		merchantID:  settings.MerchantID,
		callbackURL: settings.CallbackURL,
		baseURL:     strings.TrimSuffix(settings.BaseURL, "/"),
		sandbox:     settings.Sandbox,
		currency:    strings.ToUpper(settings.Currency),
		minorUnits:  settings.MinorUnits,
		httpClient: &http.Client{
			Timeout: settings.EffectiveTimeout(),
		},
		logger: logger,
	}
}

func (g *RedirectGateway) Name() string { return RemoteProviderName }

// ---- wire structs ----

type remoteRequestBody struct {
	MerchantID  string            `json:"merchant_id"`
	Amount      int64             `json:"amount"`
	Description string            `json:"description"`
	CallbackURL string            `json:"callback_url"`
	Currency    string            `json:"currency,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type remoteVerifyBody struct {
	MerchantID string `json:"merchant_id"`
	Amount     int64  `json:"amount"`
	Authority  string `json:"authority"`
}

// remoteEnvelope mirrors the gateway response. data and errors switch between an object and an
// empty array depending on the outcome, so both stay raw until inspected.
type remoteEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

type remoteData struct {
	Code      json.Number `json:"code"`
	Message   string      `json:"message"`
	Authority string      `json:"authority"`
	RefID     json.Number `json:"ref_id"`
	CardPan   string      `json:"card_pan"`
	FeeType   string      `json:"fee_type"`
}

type remoteError struct {
	Code    json.Number `json:"code"`
	Message string      `json:"message"`
}

func (e remoteEnvelope) data() (remoteData, bool) {
	var d remoteData
	if !isJSONObject(e.Data) {
		return d, false
	}
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return d, false
	}
	return d, true
}

func (e remoteEnvelope) err() (remoteError, bool) {
	var re remoteError
	if !isJSONObject(e.Errors) {
		return re, false
	}
	if err := json.Unmarshal(e.Errors, &re); err != nil {
		return re, false
	}
	return re, true
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func codeOf(n json.Number) (int64, bool) {
	if n == "" {
		return 0, false
	}
	v, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return v, true
}

// ---- Gateway implementation ----

// Initiate registers the payment and builds the StartPay redirect.
func (g *RedirectGateway) Initiate(ctx context.Context, payment *models.Payment, invoice *models.Invoice) (*InitiateResult, error) {
	if g.baseURL == "" {
		return nil, fmt.Errorf("remote initiate: base url not configured")
	}
	amount, err := g.payableAmount(payment)
	if err != nil {
		return nil, fmt.Errorf("remote initiate: %w", err)
	}
	callback, err := g.callbackFor(payment)
	if err != nil {
		return nil, err
	}

	body := remoteRequestBody{
		MerchantID:  g.merchantID,
		Amount:      amount,
		Description: fmt.Sprintf("Invoice %s", invoice.Number),
		CallbackURL: callback,
		Currency:    strings.ToUpper(payment.Currency),
		Metadata:    map[string]string{"order_id": invoice.Number},
	}

	var env remoteEnvelope
	if err := g.doRequest(ctx, remoteRequestPath, body, &env); err != nil {
		return nil, fmt.Errorf("remote initiate: %w", err)
	}

	data, ok := env.data()
	code, hasCode := codeOf(data.Code)
	if !ok || !hasCode || code != remoteCodeSuccess {
		return nil, fmt.Errorf("remote initiate: %w: %s", ErrGatewayRejected, describe(env))
	}
	if data.Authority == "" {
		return nil, fmt.Errorf("remote initiate: %w: empty authority", ErrGatewayRejected)
	}

	return &InitiateResult{
		Authority:     data.Authority,
		CallbackToken: payment.CallbackToken,
		RedirectURL:   g.baseURL + remoteStartPayPath + url.PathEscape(data.Authority),
		Meta: map[string]interface{}{
			"request_code": code,
			"fee_type":     data.FeeType,
			"sandbox":      g.sandbox,
			"amount":       amount,
		},
	}, nil
}

// ResolveCallbackOutcome verifies an affirmative return. Non-affirmative returns fail without a network call.
func (g *RedirectGateway) ResolveCallbackOutcome(ctx context.Context, payment *models.Payment, _ *models.Invoice, cb Callback) (*Outcome, error) {
	authority := strings.TrimSpace(cb.Authority)
	if authority == "" {
		return nil, fmt.Errorf("%w: authority is required", ErrMalformedCallback)
	}
	if authority != payment.Authority {
		return failed("authority_mismatch"), nil
	}
	if !isAffirmative(cb.Status) {
		status := strings.ToLower(strings.TrimSpace(cb.Status))
		if status == "" {
			status = "missing"
		}
		return failed("gateway_status_" + status), nil
	}

	amount, err := g.payableAmount(payment)
	if err != nil {
		return failed("amount_not_payable"), nil
	}
	body := remoteVerifyBody{
		MerchantID: g.merchantID,
		Amount:     amount,
		Authority:  authority,
	}

	var env remoteEnvelope
	if err := g.doRequest(ctx, remoteVerifyPath, body, &env); err != nil {
		g.logger.Warn("Remote verify request failed",
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err),
		)
		return failed("verify_request_failed: " + err.Error()), nil
	}

	data, ok := env.data()
	code, hasCode := codeOf(data.Code)
	if !ok || !hasCode || (code != remoteCodeSuccess && code != remoteCodeAlreadyVerified) {
		return failed("verify_rejected: " + describe(env)), nil
	}

	return succeeded(data.RefID.String()), nil
}

func isAffirmative(status string) bool {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "OK", "SUCCESS":
		return true
	}
	return false
}

func describe(env remoteEnvelope) string {
	if e, ok := env.err(); ok {
		return fmt.Sprintf("code %s: %s", e.Code, e.Message)
	}
	if d, ok := env.data(); ok {
		return fmt.Sprintf("code %s: %s", d.Code, d.Message)
	}
	return "no usable response"
}

// payableAmount converts the payment into the provider's integer unit. Amounts the unit cannot
// carry exactly, and currencies the provider does not take, are refused rather than rounded.
func (g *RedirectGateway) payableAmount(payment *models.Payment) (int64, error) {
	if g.currency != "" && !strings.EqualFold(g.currency, payment.Currency) {
		return 0, fmt.Errorf("%w: currency %s not accepted, want %s", ErrGatewayRejected, payment.Currency, g.currency)
	}
	scaled := payment.Amount.Shift(g.minorUnits)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: amount %s not representable with %d minor units", ErrGatewayRejected, payment.Amount.String(), g.minorUnits)
	}
	if !scaled.IsPositive() {
		return 0, fmt.Errorf("%w: amount must be positive", ErrGatewayRejected)
	}
	return scaled.IntPart(), nil
}

func (g *RedirectGateway) callbackFor(payment *models.Payment) (string, error) {
	if g.callbackURL == "" {
		return "", fmt.Errorf("remote initiate: callback url not configured")
	}
	u, err := url.Parse(g.callbackURL)
	if err != nil {
		return "", fmt.Errorf("remote callback url: %w", err)
	}
	q := u.Query()
	q.Set("payment_id", payment.ID.String())
	q.Set("token", payment.CallbackToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- HTTP helper ----

func (g *RedirectGateway) doRequest(ctx context.Context, path string, body interface{}, out *remoteEnvelope) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	// Rejections come back as 4xx with the same envelope, so decode before judging the status.
	if err := json.Unmarshal(respBytes, out); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("gateway error (status %d): %s", resp.StatusCode, string(respBytes))
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
