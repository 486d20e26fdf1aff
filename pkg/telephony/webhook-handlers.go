package telephony

import (
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
)

// ============================================
// INCOMING CALL WEBHOOK
// HTTP endpoint answering provider call webhooks with stream directives
// ============================================

// WebhookHandlers answers provider webhooks for incoming calls. The response
// directs the provider to open a media stream WebSocket carrying the tenant
// id as a stream parameter.
type WebhookHandlers struct {
	publicHost string // externally reachable host for stream URLs
}

// NewWebhookHandlers creates the webhook handlers
func NewWebhookHandlers(publicHost string) *WebhookHandlers {
	return &WebhookHandlers{publicHost: publicHost}
}

// ============================================
// TWIML GENERATION
// ============================================

// twimlResponse is the answer document for a Twilio incoming-call webhook
type twimlResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Connect *twimlConnect `xml:"Connect,omitempty"`
}

// twimlConnect wraps a bidirectional <Stream>
type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string           `xml:"url,attr"`
	Parameters []twimlParameter `xml:"Parameter"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// ============================================
// HTTP HANDLERS
// ============================================

// HandleTwilioIncoming answers a Twilio incoming-call webhook with TwiML
// connecting the call to the media stream endpoint. The tenant id arrives on
// the webhook URL and is echoed back as a stream custom parameter.
func (h *WebhookHandlers) HandleTwilioIncoming(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	callSID := r.FormValue("CallSid")
	if callSID == "" {
		log.Printf("[Webhook] Missing CallSid in incoming-call request")
		http.Error(w, "Missing CallSid", http.StatusBadRequest)
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		log.Printf("[Webhook] Missing tenant_id for call %s", callSID)
		http.Error(w, "Missing tenant_id", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	to := r.FormValue("To")
	log.Printf("[Webhook] Incoming call: %s (from: %s, to: %s, tenant: %s)",
		callSID, from, to, tenantID)

	streamURL := fmt.Sprintf("wss://%s/stream/twilio", h.publicHost)

	twiml := &twimlResponse{
		Connect: &twimlConnect{
			Stream: twimlStream{
				URL: streamURL,
				Parameters: []twimlParameter{
					{Name: "tenant_id", Value: tenantID},
					{Name: "from", Value: from},
					{Name: "to", Value: to},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "text/xml")
	w.Write([]byte(xml.Header))
	if err := xml.NewEncoder(w).Encode(twiml); err != nil {
		log.Printf("[Webhook] Failed to encode TwiML for call %s: %v", callSID, err)
	}
}

// HandleHealth reports process liveness
func (h *WebhookHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
