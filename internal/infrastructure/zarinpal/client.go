// Package zarinpal talks to the ZarinPal v4 payment gateway REST API.
package zarinpal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-shop-api/internal/config"
)

const (
	productionBase = "https://payment.zarinpal.com"
	sandboxBase    = "https://sandbox.zarinpal.com"

	// CodeOK is the gateway's success sentinel.
	CodeOK = 100
	// codeAlreadyVerified is returned when verify is repeated for a paid authority.
	codeAlreadyVerified = 101
)

// Client requests and verifies payments. It never retries.
type Client struct {
	http       *http.Client
	baseURL    string
	merchantID string
}

func NewClient(cfg *config.Config) *Client {
	base := productionBase
	if cfg.ZarinpalSandbox {
		base = sandboxBase
	}
	return &Client{
		http:       &http.Client{Timeout: cfg.GatewayTimeout},
		baseURL:    base,
		merchantID: cfg.ZarinpalMerchantID,
	}
}

// WithBaseURL points the client at another host, e.g. an httptest server.
func (c *Client) WithBaseURL(base string) *Client {
	cp := *c
	cp.baseURL = base
	return &cp
}

type Session struct {
	Status    int
	Authority string
	URL       string
}

type Verification struct {
	Status int
	RefID  string
}

type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

type gatewayError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type requestData struct {
	Code      int    `json:"code"`
	Authority string `json:"authority"`
}

type verifyData struct {
	Code  int         `json:"code"`
	RefID json.Number `json:"ref_id"`
}

// Request opens a payment session. A non-OK Status with a nil error means
// the gateway answered and refused.
func (c *Client) Request(ctx context.Context, amount int64, callbackURL, description string) (*Session, error) {
	body := map[string]interface{}{
		"merchant_id":  c.merchantID,
		"amount":       amount,
		"callback_url": callbackURL,
		"description":  description,
	}
	var data requestData
	code, err := c.call(ctx, "/pg/v4/payment/request.json", body, &data)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return &Session{Status: code}, nil
	}
	s := &Session{Status: data.Code, Authority: data.Authority}
	if data.Code == CodeOK {
		s.URL = c.baseURL + "/pg/StartPay/" + data.Authority
	}
	return s, nil
}

func (c *Client) Verify(ctx context.Context, amount int64, authority string) (*Verification, error) {
	body := map[string]interface{}{
		"merchant_id": c.merchantID,
		"amount":      amount,
		"authority":   authority,
	}
	var data verifyData
	code, err := c.call(ctx, "/pg/v4/payment/verify.json", body, &data)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return &Verification{Status: code}, nil
	}
	status := data.Code
	if status == codeAlreadyVerified {
		status = CodeOK
	}
	return &Verification{Status: status, RefID: data.RefID.String()}, nil
}

// call posts body and decodes data into out. It returns the gateway error
// code when the response carries one instead of data.
func (c *Client) call(ctx context.Context, path string, body interface{}, out interface{}) (int, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("zarinpal %s: %w", path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return 0, fmt.Errorf("zarinpal %s: decode (http %d): %w", path, resp.StatusCode, err)
	}
	var ge gatewayError
	if len(env.Errors) > 0 && env.Errors[0] == '{' {
		if err := json.Unmarshal(env.Errors, &ge); err == nil && ge.Code != 0 {
			return ge.Code, nil
		}
	}
	if len(env.Data) == 0 || env.Data[0] != '{' {
		return 0, fmt.Errorf("zarinpal %s: empty data (http %d)", path, resp.StatusCode)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return 0, fmt.Errorf("zarinpal %s: decode data: %w", path, err)
	}
	return 0, nil
}
