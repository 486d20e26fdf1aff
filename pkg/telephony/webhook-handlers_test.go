package telephony

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func postIncoming(t *testing.T, h *WebhookHandlers, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.HandleTwilioIncoming(rec, req)
	return rec
}

func TestTwilioIncomingTwiML(t *testing.T) {
	h := NewWebhookHandlers("phones.example.com")

	form := url.Values{}
	form.Set("CallSid", "CA123")
	form.Set("From", "+15551234567")
	form.Set("To", "+15559876543")

	rec := postIncoming(t, h, "/webhook/twilio/incoming?tenant_id=abc-123", form)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("content type = %q, want text/xml", ct)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"<Connect>",
		`url="wss://phones.example.com/stream/twilio"`,
		`name="tenant_id" value="abc-123"`,
		`name="from" value="+15551234567"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("TwiML missing %q:\n%s", want, body)
		}
	}
}

func TestTwilioIncomingRejectsBadRequests(t *testing.T) {
	h := NewWebhookHandlers("phones.example.com")

	// Missing CallSid
	rec := postIncoming(t, h, "/webhook/twilio/incoming?tenant_id=abc", url.Values{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing CallSid status = %d, want 400", rec.Code)
	}

	// Missing tenant_id
	form := url.Values{}
	form.Set("CallSid", "CA123")
	rec = postIncoming(t, h, "/webhook/twilio/incoming", form)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing tenant_id status = %d, want 400", rec.Code)
	}

	// Wrong method
	req := httptest.NewRequest(http.MethodGet, "/webhook/twilio/incoming", nil)
	get := httptest.NewRecorder()
	h.HandleTwilioIncoming(get, req)
	if get.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", get.Code)
	}
}
