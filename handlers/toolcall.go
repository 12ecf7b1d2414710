package handlers

import (
	"context"
	"fmt"

	"github.com/shipanion/gateway/auth"
	"github.com/shipanion/gateway/pkg/protocol"
	"github.com/shipanion/gateway/shipvox"
)

// Tool names the voice agent may invoke through client_tool_call.
const (
	toolGetShippingQuotes = "get_shipping_quotes"
	toolCreateLabel       = "create_label"
)

// handleClientToolCall serves ElevenLabs client tool invocations. Tool
// failures stay on the tool result channel: the response is always a
// client_tool_result echoing tool_call_id, with is_error marking failures,
// so the agent can relay the outcome to the caller in its own words.
func (h *Handlers) handleClientToolCall(ctx context.Context, msg *protocol.Message, identity *auth.Identity) (*protocol.Response, *protocol.ContextualUpdate, error) {
	tc := msg.ClientToolCall
	if tc == nil {
		return nil, nil, fmt.Errorf("Missing client_tool_call in message")
	}

	switch tc.ToolName {
	case toolGetShippingQuotes:
		return h.getShippingQuotes(ctx, tc)
	case toolCreateLabel:
		return h.createLabel(ctx, tc)
	default:
		return toolError(tc, fmt.Sprintf("Unsupported tool: %s", tc.ToolName)), nil, nil
	}
}

// getShippingQuotes maps the agent's parameter names onto a rate request,
// fetches quotes, and pushes a quote_ready update to the session so the UI
// reflects what the caller just heard.
func (h *Handlers) getShippingQuotes(ctx context.Context, tc *protocol.ToolCall) (*protocol.Response, *protocol.ContextualUpdate, error) {
	if err := requireParams(tc.Parameters, "from_zip", "to_zip", "weight"); err != nil {
		return toolError(tc, err.Error()), nil, nil
	}

	req := &shipvox.RateRequest{
		OriginZip:       asString(tc.Parameters["from_zip"]),
		DestinationZip:  asString(tc.Parameters["to_zip"]),
		Weight:          asFloat(tc.Parameters["weight"]),
		Dimensions:      dimensionsFrom(tc.Parameters["dimensions"]),
		PickupRequested: asBool(tc.Parameters["pickup_requested"]),
	}

	rates, err := h.client.GetRates(ctx, req)
	if err != nil {
		return toolError(tc, err.Error()), nil, nil
	}

	return toolResult(tc, rates), NewQuoteReadyUpdate(rates), nil
}

// createLabel validates the full label request shape before calling the label
// service. Validation failures name the missing field with stable text.
func (h *Handlers) createLabel(ctx context.Context, tc *protocol.ToolCall) (*protocol.Response, *protocol.ContextualUpdate, error) {
	if err := requireParams(tc.Parameters, "carrier", "shipper", "recipient", "package"); err != nil {
		return toolError(tc, err.Error()), nil, nil
	}

	shipper, err := addressFrom(tc.Parameters["shipper"], "shipper")
	if err != nil {
		return toolError(tc, err.Error()), nil, nil
	}
	recipient, err := addressFrom(tc.Parameters["recipient"], "recipient")
	if err != nil {
		return toolError(tc, err.Error()), nil, nil
	}

	pkgParams, ok := tc.Parameters["package"].(map[string]any)
	if !ok {
		return toolError(tc, "Missing required parameter: package"), nil, nil
	}
	weight := asFloat(pkgParams["weight"])
	if weight <= 0 {
		return toolError(tc, "Package weight must be greater than 0"), nil, nil
	}

	req := &shipvox.LabelRequest{
		Carrier:   asString(tc.Parameters["carrier"]),
		Shipper:   shipper,
		Recipient: recipient,
		Package: shipvox.Package{
			Weight:     weight,
			Dimensions: dimensionsFrom(pkgParams["dimensions"]),
		},
		ServiceType: asString(tc.Parameters["service_type"]),
	}

	label, err := h.client.CreateLabel(ctx, req)
	if err != nil {
		return toolError(tc, err.Error()), nil, nil
	}

	return toolResult(tc, label), NewLabelCreatedUpdate(label), nil
}

// addressFrom validates and converts a shipper or recipient address object.
// The role appears in the error text so the agent can tell the two apart.
func addressFrom(v any, role string) (shipvox.Address, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return shipvox.Address{}, fmt.Errorf("Missing required parameter: %s", role)
	}
	for _, f := range []string{"name", "street", "city", "state", "zip_code"} {
		if _, present := m[f]; !present {
			return shipvox.Address{}, fmt.Errorf("Missing required %s field: %s", role, f)
		}
	}
	addr := shipvox.Address{
		Name:    asString(m["name"]),
		Street:  asString(m["street"]),
		City:    asString(m["city"]),
		State:   asString(m["state"]),
		ZipCode: asString(m["zip_code"]),
		Country: asString(m["country"]),
	}
	if addr.Country == "" {
		addr.Country = "US"
	}
	return addr, nil
}

func toolResult(tc *protocol.ToolCall, result any) *protocol.Response {
	return &protocol.Response{
		Type:       protocol.TypeClientToolResult,
		ToolCallID: tc.ToolCallID,
		Result:     result,
	}
}

func toolError(tc *protocol.ToolCall, text string) *protocol.Response {
	return &protocol.Response{
		Type:       protocol.TypeClientToolResult,
		ToolCallID: tc.ToolCallID,
		Result:     map[string]any{"error": text},
		IsError:    true,
	}
}
