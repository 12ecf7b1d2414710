package handlers

import (
	"fmt"

	"github.com/shipanion/gateway/pkg/protocol"
	"github.com/shipanion/gateway/shipvox"
)

// NewContextualUpdate builds the uniform contextual_update envelope. The
// dispatcher fills requestId, user, and session_id before delivery.
func NewContextualUpdate(kind string, data map[string]any) *protocol.ContextualUpdate {
	return &protocol.ContextualUpdate{
		Type:      protocol.TypeContextualUpdate,
		Text:      kind,
		Data:      data,
		Timestamp: protocol.Now(),
	}
}

// NewQuoteReadyUpdate summarizes a rate response for the session's UI
// connections, leading with the cheapest option.
func NewQuoteReadyUpdate(rates *shipvox.RateResponse) *protocol.ContextualUpdate {
	data := map[string]any{
		"from":        rates.Request.OriginZip,
		"to":          rates.Request.DestinationZip,
		"weight_lbs":  rates.Request.Weight,
		"all_options": rates.AllOptions,
	}
	message := "No shipping options available"
	if cheapest := rates.CheapestOption; cheapest != nil {
		data["carrier"] = cheapest.Carrier
		data["service"] = cheapest.ServiceName
		data["price"] = cheapest.Cost
		data["eta"] = fmt.Sprintf("%d days", cheapest.TransitDays)
		message = fmt.Sprintf("Quote ready from %s for $%.2f", cheapest.Carrier, cheapest.Cost)
	}
	data["message"] = message

	return &protocol.ContextualUpdate{
		Type:      protocol.TypeContextualUpdate,
		Text:      protocol.UpdateQuoteReady,
		Data:      data,
		Timestamp: protocol.Now(),
	}
}

// NewLabelCreatedUpdate announces a purchased label to the session.
func NewLabelCreatedUpdate(label *shipvox.LabelResponse) *protocol.ContextualUpdate {
	return &protocol.ContextualUpdate{
		Type: protocol.TypeContextualUpdate,
		Text: protocol.UpdateLabelCreated,
		Data: map[string]any{
			"tracking_number":    label.TrackingNumber,
			"carrier":            label.Carrier,
			"label_url":          label.LabelURL,
			"qr_code":            label.FallbackQRCodeURL,
			"estimated_delivery": label.EstimatedDelivery,
			"message":            fmt.Sprintf("Label created with %s, tracking %s", label.Carrier, label.TrackingNumber),
		},
		Timestamp: protocol.Now(),
	}
}
