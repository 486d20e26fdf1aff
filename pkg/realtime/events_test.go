package realtime

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/birddigital/voice-receptionist/pkg/store"
)

func TestParseSessionReady(t *testing.T) {
	for _, wire := range []string{"session.created", "session.updated"} {
		event, err := parseServerEvent([]byte(`{"type":"` + wire + `"}`))
		if err != nil {
			t.Fatalf("parse %s: %v", wire, err)
		}
		if event.Type != EventSessionReady {
			t.Errorf("%s parsed as %s, want %s", wire, event.Type, EventSessionReady)
		}
	}
}

func TestParseAudioDelta(t *testing.T) {
	audio := []byte{0x01, 0x02, 0xff}
	payload := base64.StdEncoding.EncodeToString(audio)

	event, err := parseServerEvent([]byte(`{"type":"response.audio.delta","delta":"` + payload + `"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Type != EventAudioDelta {
		t.Fatalf("event type = %s, want %s", event.Type, EventAudioDelta)
	}
	if string(event.Audio) != string(audio) {
		t.Errorf("audio not decoded: %v", event.Audio)
	}
}

func TestParseBadAudioDelta(t *testing.T) {
	if _, err := parseServerEvent([]byte(`{"type":"response.audio.delta","delta":"!!!"}`)); err == nil {
		t.Error("expected error for undecodable delta payload")
	}
}

func TestParseTranscripts(t *testing.T) {
	event, err := parseServerEvent([]byte(`{"type":"response.audio_transcript.done","transcript":"Hello there"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Type != EventAssistantTranscript || event.Transcript != "Hello there" {
		t.Errorf("unexpected assistant transcript event: %+v", event)
	}

	event, err = parseServerEvent([]byte(`{"type":"conversation.item.input_audio_transcription.completed","transcript":"Book me in"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Type != EventCallerTranscript || event.Transcript != "Book me in" {
		t.Errorf("unexpected caller transcript event: %+v", event)
	}
}

func TestParseFunctionCall(t *testing.T) {
	event, err := parseServerEvent([]byte(`{
		"type": "response.function_call_arguments.done",
		"call_id": "call_abc",
		"name": "check_availability",
		"arguments": "{\"date\":\"2025-06-02\"}"
	}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Type != EventFunctionCall {
		t.Fatalf("event type = %s, want %s", event.Type, EventFunctionCall)
	}
	fc := event.FunctionCall
	if fc.CallID != "call_abc" || fc.Name != "check_availability" {
		t.Errorf("unexpected function call: %+v", fc)
	}
	if !strings.Contains(fc.Arguments, "2025-06-02") {
		t.Errorf("arguments not carried raw: %q", fc.Arguments)
	}
}

func TestParseFunctionCallMissingID(t *testing.T) {
	if _, err := parseServerEvent([]byte(`{"type":"response.function_call_arguments.done","name":"x"}`)); err == nil {
		t.Error("expected error for function call without call_id")
	}
}

func TestParseError(t *testing.T) {
	event, err := parseServerEvent([]byte(`{
		"type": "error",
		"error": {"type": "invalid_request_error", "code": "bad_schema", "message": "nope"}
	}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Type != EventError || event.Err == nil || event.Err.Code != "bad_schema" {
		t.Errorf("unexpected error event: %+v", event)
	}
}

func TestParseIgnoredAndMalformed(t *testing.T) {
	_, err := parseServerEvent([]byte(`{"type":"response.created"}`))
	if !errors.Is(err, errIgnoredEvent) {
		t.Errorf("out-of-contract event error = %v, want errIgnoredEvent", err)
	}

	if _, err := parseServerEvent([]byte(`{not json`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestReceptionistToolSchema(t *testing.T) {
	tools := ReceptionistTools()
	if len(tools) != 4 {
		t.Fatalf("tool count = %d, want 4", len(tools))
	}

	byName := map[string]Tool{}
	for _, tool := range tools {
		if tool.Type != "function" {
			t.Errorf("tool %s type = %q, want function", tool.Name, tool.Type)
		}
		byName[tool.Name] = tool
	}

	for _, name := range []string{ToolCheckAvailability, ToolBookAppointment, ToolCancelAppointment, ToolTransferToHuman} {
		if _, ok := byName[name]; !ok {
			t.Errorf("missing tool %s", name)
		}
	}

	required, ok := byName[ToolBookAppointment].Parameters["required"].([]string)
	if !ok {
		t.Fatal("book_appointment schema missing required list")
	}
	want := map[string]bool{"customer_name": true, "customer_phone": true, "date": true, "time": true}
	for _, field := range required {
		delete(want, field)
	}
	if len(want) != 0 {
		t.Errorf("book_appointment required list missing fields: %v", want)
	}
}

func TestBuildInstructions(t *testing.T) {
	tenant := &store.TenantConfig{
		ID:                 uuid.New(),
		DisplayName:        "Sunrise Dental",
		BusinessCategory:   "dental clinic",
		Timezone:           "America/New_York",
		CustomInstructions: "We do not take walk-ins on Fridays.",
	}
	now := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

	got := BuildInstructions(tenant, now)

	if !strings.Contains(got, "Sunrise Dental") || !strings.Contains(got, "dental clinic") {
		t.Error("instructions missing business identity")
	}
	// 14:30 UTC is 10:30 AM in New York that day
	if !strings.Contains(got, "Monday, June 2, 2025 at 10:30 AM") {
		t.Errorf("instructions missing tenant-local time:\n%s", got)
	}
	if !strings.Contains(got, "We do not take walk-ins on Fridays.") {
		t.Error("custom instructions not appended")
	}
}

func TestBuildInstructionsWithoutOptionalFields(t *testing.T) {
	tenant := &store.TenantConfig{ID: uuid.New(), DisplayName: "Acme", Timezone: "UTC"}
	got := BuildInstructions(tenant, time.Now())

	if !strings.Contains(got, "Acme") {
		t.Error("instructions missing business name")
	}
	if strings.Contains(got, ", a .") {
		t.Error("empty category leaked into instructions")
	}
}

func TestDialerRejectsMissingCredentials(t *testing.T) {
	if _, err := NewDialer(Config{Model: "gpt-realtime"}); err == nil {
		t.Error("expected error for missing API key")
	}
	if _, err := NewDialer(Config{APIKey: "sk-test"}); err == nil {
		t.Error("expected error for missing model name")
	}
	if _, err := NewDialer(Config{APIKey: "sk-test", Model: "gpt-realtime"}); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}
