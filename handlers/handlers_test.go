package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/shipanion/gateway/auth"
	"github.com/shipanion/gateway/config"
	"github.com/shipanion/gateway/pkg/protocol"
	"github.com/shipanion/gateway/shipvox"
)

func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	client := shipvox.NewClient(config.ShipVoxConfig{
		Timeout: config.Duration{Duration: 10 * time.Second},
		Mock:    true,
	}, slog.Default())
	return &Handlers{client: client}
}

func testIdentity() *auth.Identity {
	return &auth.Identity{Username: "alice"}
}

func ratesPayload(t *testing.T, fields map[string]any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(fields)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestGetRatesMissingField(t *testing.T) {
	h := newTestHandlers(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		payload map[string]any
		want    string
	}{
		{"no origin", map[string]any{"destination_zip": "10001", "weight": 5.0}, "Missing required field: origin_zip"},
		{"no destination", map[string]any{"origin_zip": "90210", "weight": 5.0}, "Missing required field: destination_zip"},
		{"no weight", map[string]any{"origin_zip": "90210", "destination_zip": "10001"}, "Missing required field: weight"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &protocol.Message{Type: protocol.TypeGetRates, Payload: ratesPayload(t, tt.payload)}
			_, _, err := h.handleGetRates(ctx, msg, testIdentity())
			if err == nil {
				t.Fatal("expected validation error")
			}
			if err.Error() != tt.want {
				t.Errorf("error: got %q, want %q", err.Error(), tt.want)
			}
		})
	}
}

func TestGetRatesSuccess(t *testing.T) {
	h := newTestHandlers(t)

	msg := &protocol.Message{
		Type: protocol.TypeGetRates,
		Payload: ratesPayload(t, map[string]any{
			"origin_zip":      "90210",
			"destination_zip": "10001",
			"weight":          5.0,
		}),
	}
	resp, update, err := h.handleGetRates(context.Background(), msg, testIdentity())
	if err != nil {
		t.Fatalf("handleGetRates: %v", err)
	}
	if update != nil {
		t.Error("get_rates should not produce an update")
	}
	if resp.Type != protocol.TypeQuoteReady {
		t.Errorf("Type: got %q, want quote_ready", resp.Type)
	}
	rates, ok := resp.Payload.(*shipvox.RateResponse)
	if !ok {
		t.Fatalf("payload type: %T", resp.Payload)
	}
	if len(rates.AllOptions) == 0 {
		t.Error("no quotes in response")
	}
}

func TestToolCallMissing(t *testing.T) {
	h := newTestHandlers(t)
	msg := &protocol.Message{Type: protocol.TypeClientToolCall}
	if _, _, err := h.handleClientToolCall(context.Background(), msg, testIdentity()); err == nil {
		t.Fatal("expected error when client_tool_call is absent")
	}
}

func TestToolCallUnknownTool(t *testing.T) {
	h := newTestHandlers(t)
	msg := &protocol.Message{
		Type: protocol.TypeClientToolCall,
		ClientToolCall: &protocol.ToolCall{
			ToolCallID: "tc-1",
			ToolName:   "teleport_package",
		},
	}
	resp, update, err := h.handleClientToolCall(context.Background(), msg, testIdentity())
	if err != nil {
		t.Fatalf("unexpected handler error: %v", err)
	}
	if update != nil {
		t.Error("unknown tool produced an update")
	}
	if resp.Type != protocol.TypeClientToolResult || !resp.IsError {
		t.Errorf("expected error tool result, got %+v", resp)
	}
	if resp.ToolCallID != "tc-1" {
		t.Errorf("ToolCallID: got %q, want tc-1", resp.ToolCallID)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok || result["error"] != "Unsupported tool: teleport_package" {
		t.Errorf("result: got %v", resp.Result)
	}
}

func TestGetShippingQuotesMissingParam(t *testing.T) {
	h := newTestHandlers(t)
	msg := &protocol.Message{
		Type: protocol.TypeClientToolCall,
		ClientToolCall: &protocol.ToolCall{
			ToolCallID: "tc-2",
			ToolName:   "get_shipping_quotes",
			Parameters: map[string]any{"from_zip": "90210", "weight": 5.0},
		},
	}
	resp, update, err := h.handleClientToolCall(context.Background(), msg, testIdentity())
	if err != nil {
		t.Fatalf("unexpected handler error: %v", err)
	}
	if update != nil {
		t.Error("validation failure produced an update")
	}
	if !resp.IsError {
		t.Fatal("expected is_error tool result")
	}
	result := resp.Result.(map[string]any)
	if result["error"] != "Missing required parameter: to_zip" {
		t.Errorf("error: got %v", result["error"])
	}
}

func TestGetShippingQuotesSuccess(t *testing.T) {
	h := newTestHandlers(t)
	msg := &protocol.Message{
		Type: protocol.TypeClientToolCall,
		ClientToolCall: &protocol.ToolCall{
			ToolCallID: "tc-3",
			ToolName:   "get_shipping_quotes",
			Parameters: map[string]any{
				"from_zip": "90210",
				"to_zip":   "10001",
				"weight":   5.0,
			},
		},
	}
	resp, update, err := h.handleClientToolCall(context.Background(), msg, testIdentity())
	if err != nil {
		t.Fatalf("handleClientToolCall: %v", err)
	}
	if resp.IsError {
		t.Fatalf("unexpected tool error: %+v", resp.Result)
	}
	if resp.ToolCallID != "tc-3" {
		t.Errorf("ToolCallID: got %q", resp.ToolCallID)
	}
	rates, ok := resp.Result.(*shipvox.RateResponse)
	if !ok {
		t.Fatalf("result type: %T", resp.Result)
	}
	if rates.CheapestOption == nil {
		t.Fatal("no cheapest option")
	}

	if update == nil {
		t.Fatal("expected quote_ready update")
	}
	if update.Text != protocol.UpdateQuoteReady {
		t.Errorf("update kind: got %q", update.Text)
	}
	if update.Data["from"] != "90210" || update.Data["to"] != "10001" {
		t.Errorf("update data route: %v", update.Data)
	}
	if update.Data["carrier"] != rates.CheapestOption.Carrier {
		t.Errorf("update carrier %v != cheapest carrier %v", update.Data["carrier"], rates.CheapestOption.Carrier)
	}
	if msgText, _ := update.Data["message"].(string); msgText == "" {
		t.Error("update missing human message")
	}
}

func TestCreateLabelValidation(t *testing.T) {
	h := newTestHandlers(t)
	ctx := context.Background()

	fullShipper := map[string]any{"name": "A", "street": "1 Main", "city": "LA", "state": "CA", "zip_code": "90210"}
	fullRecipient := map[string]any{"name": "B", "street": "2 Broad", "city": "NY", "state": "NY", "zip_code": "10001"}

	tests := []struct {
		name   string
		params map[string]any
		want   string
	}{
		{
			"missing carrier",
			map[string]any{"shipper": fullShipper, "recipient": fullRecipient, "package": map[string]any{"weight": 5.0}},
			"Missing required parameter: carrier",
		},
		{
			"shipper missing city",
			map[string]any{
				"carrier":   "ups",
				"shipper":   map[string]any{"name": "A", "street": "1 Main", "state": "CA", "zip_code": "90210"},
				"recipient": fullRecipient,
				"package":   map[string]any{"weight": 5.0},
			},
			"Missing required shipper field: city",
		},
		{
			"recipient missing zip",
			map[string]any{
				"carrier":   "ups",
				"shipper":   fullShipper,
				"recipient": map[string]any{"name": "B", "street": "2 Broad", "city": "NY", "state": "NY"},
				"package":   map[string]any{"weight": 5.0},
			},
			"Missing required recipient field: zip_code",
		},
		{
			"zero weight",
			map[string]any{
				"carrier":   "ups",
				"shipper":   fullShipper,
				"recipient": fullRecipient,
				"package":   map[string]any{"weight": 0.0},
			},
			"Package weight must be greater than 0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &protocol.Message{
				Type: protocol.TypeClientToolCall,
				ClientToolCall: &protocol.ToolCall{
					ToolCallID: "tc-4",
					ToolName:   "create_label",
					Parameters: tt.params,
				},
			}
			resp, update, err := h.handleClientToolCall(ctx, msg, testIdentity())
			if err != nil {
				t.Fatalf("unexpected handler error: %v", err)
			}
			if update != nil {
				t.Error("validation failure produced an update")
			}
			if !resp.IsError {
				t.Fatal("expected is_error tool result")
			}
			result := resp.Result.(map[string]any)
			if result["error"] != tt.want {
				t.Errorf("error: got %v, want %q", result["error"], tt.want)
			}
		})
	}
}

func TestCreateLabelSuccess(t *testing.T) {
	h := newTestHandlers(t)
	msg := &protocol.Message{
		Type: protocol.TypeClientToolCall,
		ClientToolCall: &protocol.ToolCall{
			ToolCallID: "tc-5",
			ToolName:   "create_label",
			Parameters: map[string]any{
				"carrier":      "fedex",
				"service_type": "Ground",
				"shipper":      map[string]any{"name": "A", "street": "1 Main", "city": "LA", "state": "CA", "zip_code": "90210"},
				"recipient":    map[string]any{"name": "B", "street": "2 Broad", "city": "NY", "state": "NY", "zip_code": "10001"},
				"package":      map[string]any{"weight": 5.0, "dimensions": map[string]any{"length": 10.0, "width": 8.0, "height": 4.0}},
			},
		},
	}
	resp, update, err := h.handleClientToolCall(context.Background(), msg, testIdentity())
	if err != nil {
		t.Fatalf("handleClientToolCall: %v", err)
	}
	if resp.IsError {
		t.Fatalf("unexpected tool error: %+v", resp.Result)
	}
	label, ok := resp.Result.(*shipvox.LabelResponse)
	if !ok {
		t.Fatalf("result type: %T", resp.Result)
	}
	if label.TrackingNumber == "" {
		t.Error("missing tracking number")
	}

	if update == nil {
		t.Fatal("expected label_created update")
	}
	if update.Text != protocol.UpdateLabelCreated {
		t.Errorf("update kind: got %q", update.Text)
	}
	if update.Data["tracking_number"] != label.TrackingNumber {
		t.Errorf("update tracking %v != label tracking %v", update.Data["tracking_number"], label.TrackingNumber)
	}
}
