package telephony

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ============================================
// PROVIDER REST CLIENT
// Server-side call control: transfer to a human, hangup
// ============================================

// TransferClient drives the provider's call-control REST API. The relay
// only acknowledges transfer_to_human; the actual leg redirect happens here
// in the telephony layer.
type TransferClient struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
}

// NewTransferClient creates a call-control client
func NewTransferClient(accountSID, authToken string) *TransferClient {
	return &TransferClient{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s", accountSID),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Validate checks the client credentials
func (c *TransferClient) Validate() error {
	if c.accountSID == "" {
		return fmt.Errorf("provider account SID not configured")
	}
	if c.authToken == "" {
		return fmt.Errorf("provider auth token not configured")
	}
	return nil
}

// TransferCall redirects a live call to the tenant's fallback number
func (c *TransferClient) TransferCall(ctx context.Context, callID, number string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if !IsValidE164(number) {
		return fmt.Errorf("transfer number must be in E.164 format (+1234567890)")
	}

	twiml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Say>Transferring you now, one moment please.</Say>
    <Dial>%s</Dial>
</Response>`, number)

	formData := url.Values{}
	formData.Set("Twiml", twiml)

	return c.postCallUpdate(ctx, callID, formData)
}

// HangupCall terminates a live call server-side
func (c *TransferClient) HangupCall(ctx context.Context, callID string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	formData := url.Values{}
	formData.Set("Status", "completed")

	return c.postCallUpdate(ctx, callID, formData)
}

// postCallUpdate POSTs a call update to the provider API
func (c *TransferClient) postCallUpdate(ctx context.Context, callID string, formData url.Values) error {
	reqURL := fmt.Sprintf("%s/Calls/%s.json", c.baseURL, callID)

	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, strings.NewReader(formData.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("provider API error (%d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// IsValidE164 checks if a phone number is in E.164 format
func IsValidE164(phone string) bool {
	if len(phone) < 3 || len(phone) > 16 {
		return false
	}
	if phone[0] != '+' {
		return false
	}
	for _, c := range phone[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
