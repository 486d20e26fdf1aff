package realtime

import (
	"fmt"
	"strings"
	"time"

	"github.com/birddigital/voice-receptionist/pkg/store"
)

// ============================================
// FUNCTION SCHEMA & INSTRUCTIONS
// Tenant-scoped session configuration content
// ============================================

// Tool names the dispatcher routes on
const (
	ToolCheckAvailability = "check_availability"
	ToolBookAppointment   = "book_appointment"
	ToolCancelAppointment = "cancel_appointment"
	ToolTransferToHuman   = "transfer_to_human"
)

// ReceptionistTools returns the function-call schema sent with every session
func ReceptionistTools() []Tool {
	return []Tool{
		{
			Type:        "function",
			Name:        ToolCheckAvailability,
			Description: "Check open appointment times for a given date. Use before offering times to the caller.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"date": map[string]interface{}{
						"type":        "string",
						"description": "Date to check, formatted YYYY-MM-DD",
					},
				},
				"required": []string{"date"},
			},
		},
		{
			Type:        "function",
			Name:        ToolBookAppointment,
			Description: "Book an appointment once the caller has confirmed a date, time, name and phone number.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"customer_name": map[string]interface{}{
						"type":        "string",
						"description": "Caller's full name",
					},
					"customer_phone": map[string]interface{}{
						"type":        "string",
						"description": "Caller's phone number",
					},
					"date": map[string]interface{}{
						"type":        "string",
						"description": "Appointment date, formatted YYYY-MM-DD",
					},
					"time": map[string]interface{}{
						"type":        "string",
						"description": "Appointment start time, 24-hour HH:MM",
					},
					"service": map[string]interface{}{
						"type":        "string",
						"description": "Requested service name, if the caller mentioned one",
					},
					"notes": map[string]interface{}{
						"type":        "string",
						"description": "Anything else the business should know",
					},
				},
				"required": []string{"customer_name", "customer_phone", "date", "time"},
			},
		},
		{
			Type:        "function",
			Name:        ToolCancelAppointment,
			Description: "Cancel the caller's confirmed appointment(s) by phone number, optionally limited to one date.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"customer_phone": map[string]interface{}{
						"type":        "string",
						"description": "Phone number the appointment was booked under",
					},
					"date": map[string]interface{}{
						"type":        "string",
						"description": "Restrict cancellation to this date, formatted YYYY-MM-DD",
					},
				},
				"required": []string{"customer_phone"},
			},
		},
		{
			Type:        "function",
			Name:        ToolTransferToHuman,
			Description: "Transfer the call to a human when the caller asks for a person or the request is out of scope.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"reason": map[string]interface{}{
						"type":        "string",
						"description": "Short reason for the transfer",
					},
				},
				"required": []string{"reason"},
			},
		},
	}
}

// BuildInstructions assembles the receptionist persona with the tenant's
// business metadata; tenant custom instructions are appended verbatim.
func BuildInstructions(tenant *store.TenantConfig, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are the phone receptionist for %s", tenant.DisplayName)
	if tenant.BusinessCategory != "" {
		fmt.Fprintf(&b, ", a %s", tenant.BusinessCategory)
	}
	b.WriteString(". Answer briefly and naturally; this is a live phone call. ")
	b.WriteString("Greet the caller, then help them check availability, book, or cancel appointments using the provided functions. ")
	b.WriteString("Always confirm date, time, name and phone number aloud before booking. ")
	b.WriteString("If the caller asks for a person or you cannot help, use transfer_to_human. ")

	local := now.In(tenant.Location())
	fmt.Fprintf(&b, "The current date and time is %s. ", local.Format("Monday, January 2, 2006 at 3:04 PM"))
	fmt.Fprintf(&b, "Dates passed to functions must be YYYY-MM-DD and times 24-hour HH:MM in the business's local time.")

	if tenant.CustomInstructions != "" {
		b.WriteString("\n\n")
		b.WriteString(tenant.CustomInstructions)
	}

	return b.String()
}
