package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shipanion/gateway/auth"
	"github.com/shipanion/gateway/pkg/protocol"
	"github.com/shipanion/gateway/shipvox"
)

// handleGetRates serves the get_rates message: validate the payload, fetch
// quotes, answer quote_ready. The browser UI is the only consumer, so there
// is no contextual update to fan out.
func (h *Handlers) handleGetRates(ctx context.Context, msg *protocol.Message, identity *auth.Identity) (*protocol.Response, *protocol.ContextualUpdate, error) {
	var fields map[string]json.RawMessage
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &fields); err != nil {
			return nil, nil, fmt.Errorf("Invalid get_rates payload")
		}
	}
	for _, f := range []string{"origin_zip", "destination_zip", "weight"} {
		if _, ok := fields[f]; !ok {
			return nil, nil, fmt.Errorf("Missing required field: %s", f)
		}
	}

	var req shipvox.RateRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return nil, nil, fmt.Errorf("Invalid get_rates payload")
	}

	rates, err := h.client.GetRates(ctx, &req)
	if err != nil {
		return nil, nil, err
	}

	return &protocol.Response{
		Type:    protocol.TypeQuoteReady,
		Payload: rates,
	}, nil, nil
}
