package messaging

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
// SMS MESSAGING
// Booking confirmation texts via the provider REST API
// ============================================

// Client sends SMS through the Twilio Messages API
type Client struct {
	accountSID string
	authToken  string
	from       string // sending number, E.164
	httpClient *http.Client
}

// NewClient creates an SMS client
func NewClient(accountSID, authToken, from string) *Client {
	return &Client{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Validate checks the required credentials
func (c *Client) Validate() error {
	if c.accountSID == "" || c.authToken == "" {
		return fmt.Errorf("SMS API credentials not configured")
	}
	if c.from == "" {
		return fmt.Errorf("SMS sending number not configured")
	}
	return nil
}

// SendSMS sends one text message
func (c *Client) SendSMS(ctx context.Context, to, body string) error {
	endpoint := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", c.accountSID)

	formData := url.Values{}
	formData.Set("From", c.from)
	formData.Set("To", to)
	formData.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(formData.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("SMS API error (%d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// SendBookingConfirmation texts the caller their appointment details
func (c *Client) SendBookingConfirmation(ctx context.Context, to, business, date, clock string) error {
	return c.SendSMS(ctx, to, BookingConfirmation(business, date, clock))
}

// BookingConfirmation formats the confirmation message body
func BookingConfirmation(business, date, clock string) string {
	return fmt.Sprintf("Your appointment at %s is confirmed for %s at %s. Reply to this number if you need to make changes.",
		business, date, clock)
}
