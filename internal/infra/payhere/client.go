package payhere

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Gateway status codes delivered in notifications.
const (
	StatusCodeSuccess     = 2
	StatusCodePending     = 0
	StatusCodeCancelled   = -1
	StatusCodeFailed      = -2
	StatusCodeChargedback = -3
)

const chargeEndpoint = "/merchant/v1/payment/charge"

// Client talks to the PayHere merchant API and owns all signature
// computation for outbound requests and inbound notifications.
type Client struct {
	merchantID string
	secretHash string // uppercase MD5 of the merchant secret, precomputed
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a new PayHere client wrapper
func NewClient(merchantID, merchantSecret, baseURL string, timeout time.Duration, rps float64, burst int, logger *slog.Logger) (*Client, error) {
	if merchantID == "" || merchantSecret == "" {
		return nil, fmt.Errorf("payhere merchant credentials are required")
	}

	return &Client{
		merchantID: merchantID,
		secretHash: md5Upper(merchantSecret),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		logger:     logger,
	}, nil
}

// CheckoutHash computes the integrity hash the gateway expects on a charge
// request: MD5 over merchant id, order id, formatted amount, currency and
// the hashed merchant secret, uppercased.
func (c *Client) CheckoutHash(orderID string, amount float64, currency string) string {
	return md5Upper(c.merchantID + orderID + formatAmount(amount) + currency + c.secretHash)
}

// VerifyNotificationSignature recomputes the expected md5sig from the
// notification's trusted fields and compares it to the supplied one. Any
// missing field or mismatch returns false; it never errors in a way that
// could bypass verification.
func (c *Client) VerifyNotificationSignature(n Notification) bool {
	if n.MerchantID == "" || n.OrderID == "" || n.PayhereAmount == "" ||
		n.PayhereCurrency == "" || n.StatusCode == "" || n.MD5Sig == "" {
		return false
	}
	if n.MerchantID != c.merchantID {
		return false
	}

	expected := md5Upper(n.MerchantID + n.OrderID + n.PayhereAmount +
		n.PayhereCurrency + n.StatusCode + c.secretHash)

	return expected == strings.ToUpper(n.MD5Sig)
}

type ChargeResult struct {
	GatewayPaymentID string
	OrderID          string
	StatusCode       int
	Message          string
}

type chargeResponse struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
	Data   struct {
		PaymentID  json.Number `json:"payment_id"`
		OrderID    string      `json:"order_id"`
		StatusCode int         `json:"status_code"`
	} `json:"data"`
}

// ChargeToken submits a recurring charge against a stored customer token.
// The result only confirms the gateway accepted the charge request; the
// authoritative settlement arrives later through the notification endpoint.
// Declines and transport failures are returned as errors, never as a silent
// false success.
func (c *Client) ChargeToken(ctx context.Context, token, orderID string, amount float64, currency string) (*ChargeResult, error) {
	if token == "" {
		return nil, fmt.Errorf("customer token is required")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiting: %w", err)
	}

	form := url.Values{}
	form.Set("merchant_id", c.merchantID)
	form.Set("customer_token", token)
	form.Set("order_id", orderID)
	form.Set("amount", formatAmount(amount))
	form.Set("currency", currency)
	form.Set("hash", c.CheckoutHash(orderID, amount, currency))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+chargeEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build charge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	c.logger.Info("Submitting token charge to PayHere",
		"order_id", orderID,
		"amount", amount,
		"currency", currency)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("charge request to gateway: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned HTTP %d: %s", resp.StatusCode, truncate(body))
	}

	var decoded chargeResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}

	if decoded.Status != 1 {
		return nil, fmt.Errorf("gateway declined charge for order %s: %s", orderID, decoded.Msg)
	}

	result := &ChargeResult{
		GatewayPaymentID: decoded.Data.PaymentID.String(),
		OrderID:          decoded.Data.OrderID,
		StatusCode:       decoded.Data.StatusCode,
		Message:          decoded.Msg,
	}

	c.logger.Info("Token charge accepted by PayHere",
		"order_id", orderID,
		"gateway_payment_id", result.GatewayPaymentID,
		"status_code", result.StatusCode)

	return result, nil
}

func md5Upper(s string) string {
	sum := md5.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// formatAmount renders amounts exactly as they must appear in hashes,
// two decimals, no thousands separators.
func formatAmount(amount float64) string {
	return fmt.Sprintf("%.2f", amount)
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
